package assigner

import (
	"sort"

	"github.com/gridassign/gridassign/internal/model"
)

// isEvgenLike reports whether taskType belongs to the MC-share weighting
// set (spec.md §4.1 step 13: "e.g. evgen"). Kept as a literal condition,
// mirroring the equally literal evgen/simul fast-track conditions of step 4.
func isEvgenLike(taskType string) bool {
	return taskType == "evgen"
}

// t1SitesForCloud returns the site names whose storage should be treated as
// this cloud's Tier-1 for both location-completeness (step 6) and T1
// scoring/probing (step 8): the cloud's own Source site, plus any
// split-Tier-1 sites configured for it (the NL -> NIKHEF-ELPROD rule,
// spec.md §9).
func t1SitesForCloud(cloud model.Cloud, additional map[string][]string) []string {
	sites := make([]string, 0, 1+len(additional[cloud.Name]))
	sites = append(sites, cloud.Source)
	sites = append(sites, additional[cloud.Name]...)
	return sites
}

// datasetCloudStatus is one (dataset, cloud) pair's location-completeness
// evaluation (spec.md §4.1 step 6).
type datasetCloudStatus struct {
	hasReplica bool     // a T1 or T2 member holds (or might hold) this dataset
	t1Complete bool      // the best T1 site's replica is complete
	t1Present  bool      // some T1 site has a replicaStat entry at all
	t2Sites    []string  // T2 member sites with a replicaStat entry
}

// evalDatasetCloud implements spec.md §4.1 step 6 for one dataset/cloud
// pair. locs is task.Locations[dataset] (site -> ReplicaStat); t1Sites and
// t2Sites are this cloud's Tier-1 and Tier-2 member site names.
func evalDatasetCloud(locs map[string]model.ReplicaStat, t1Sites, t2Sites []string) datasetCloudStatus {
	var (
		best      model.ReplicaStat
		bestFound = -1 // -1 sorts below any concrete found count, including 0
		t1Present bool
	)

	for _, site := range t1Sites {
		stat, ok := locs[site]
		if !ok {
			continue
		}
		t1Present = true
		found := -1
		if stat.Found != nil {
			found = *stat.Found
		}
		if found > bestFound {
			best = stat
			bestFound = found
		}
	}

	status := datasetCloudStatus{t1Present: t1Present}
	if t1Present {
		status.hasReplica = true
		status.t1Complete = best.Found != nil && best.Total >= 0 && *best.Found >= best.Total
		return status
	}

	for _, site := range t2Sites {
		if _, ok := locs[site]; ok {
			status.t2Sites = append(status.t2Sites, site)
		}
	}
	status.hasReplica = len(status.t2Sites) > 0
	return status
}

// t2MemberSites returns a cloud's member sites excluding its Tier-1 set.
func t2MemberSites(cloud model.Cloud, t1Sites []string) []string {
	t1 := make(map[string]bool, len(t1Sites))
	for _, s := range t1Sites {
		t1[s] = true
	}
	out := make([]string, 0, len(cloud.Sites))
	for _, s := range cloud.Sites {
		if !t1[s] {
			out = append(out, s)
		}
	}
	return out
}

// sampledTotal approximates spec.md §4.2's "total number of files sampled":
// when the batch count fits within maxBatches every entry is probed, so the
// total is exact; otherwise maxBatches batches of batchSize are sampled, so
// the total is maxBatches*batchSize except for the (rare) case where the
// undersized final batch is among those sampled. This module always treats
// the sampled total as maxBatches*batchSize in that case — an
// approximation, since the exact total depends on which batch
// indices the Replica Locator's RNG happened to draw.
func sampledTotal(n, batchSize, maxBatches int) int {
	if batchSize <= 0 {
		batchSize = 1
	}
	if maxBatches <= 0 {
		return n
	}
	totalBatches := (n + batchSize - 1) / batchSize
	if totalBatches <= maxBatches {
		return n
	}
	return maxBatches * batchSize
}

// groupSitesByLFCHost groups T2 member sites by their replica-catalogue
// host (spec.md §4.1 step 10), for sites present in the directory snapshot.
func groupSitesByLFCHost(sites []string, dir *model.DirectorySnapshot) map[string][]string {
	groups := make(map[string][]string)
	for _, name := range sites {
		site, ok := dir.GetSite(name)
		if !ok {
			continue
		}
		groups[site.LFCHost] = append(groups[site.LFCHost], name)
	}
	return groups
}

// sortedLFCHosts returns groupSitesByLFCHost's keys in deterministic order,
// so T2 catalogue probing and its early-exit behave the same way on every
// run given the same inputs.
func sortedLFCHosts(groups map[string][]string) []string {
	out := make([]string, 0, len(groups))
	for k := range groups {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

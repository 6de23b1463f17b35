// Package assigner implements the Assigner Controller (spec.md §4.1): the
// per-task decision flow that picks a cloud (or declines) and commits the
// result to the Cloud-Task claim row.
package assigner

import (
	"context"
	"fmt"
	"strings"

	"github.com/gridassign/gridassign/internal/config"
	"github.com/gridassign/gridassign/internal/model"
	"github.com/gridassign/gridassign/internal/netutil"
	"github.com/gridassign/gridassign/internal/rwagg"
	"github.com/gridassign/gridassign/internal/subplanner"
)

// TaskDB is the slice of the Task DB collaborator (spec.md §6) the
// Controller depends on.
type TaskDB interface {
	GetCloudTask(ctx context.Context, taskID int64) (model.CloudTask, bool, error)
	// SetCloudTask performs the one-shot unassigned -> assigned commit
	// (spec.md §3/§5). Implementations must reject (return an error) a
	// second commit attempt for an already-assigned taskId.
	SetCloudTask(ctx context.Context, row model.CloudTask) error
	// SeeCloudTask resolves a peer task's committed cloud. ok=false
	// signals a lookup error, which callers must swallow and skip
	// (spec.md §4.4); cloud=="" with ok=true means "not yet assigned".
	SeeCloudTask(ctx context.Context, taskID int64) (cloud string, ok bool, err error)
}

// Directory is the slice of the Site/Cloud Directory collaborator the
// Controller depends on (spec.md §4.3).
type Directory interface {
	Snapshot() *model.DirectorySnapshot
}

// Locator is the slice of the Replica Locator collaborator the Controller
// depends on (spec.md §4.2).
type Locator interface {
	CountFiles(ctx context.Context, dataset, catalogueURL string, lfns, guids []string, storageEndpoints []string) (int, error)
	Refresh(ctx context.Context, dataset string, sites []string)
}

// LoadOracle is the slice of the Load Oracle collaborator the Controller
// depends on (spec.md §2, §6).
type LoadOracle interface {
	NPilotByCloud(ctx context.Context, cloudSites map[string][]string) (map[string]float64, error)
}

// SubscriptionPlanner is the slice of the Subscription Planner collaborator
// the Controller depends on (spec.md §4.5).
type SubscriptionPlanner interface {
	Subscribe(ctx context.Context, in subplanner.Input) (bool, error)
}

// ConfigSource serves the current, hot-reloadable RuntimeConfig.
type ConfigSource interface {
	Current() *config.RuntimeConfig
}

// Controller implements the Assign operation.
type Controller struct {
	taskDB  TaskDB
	dir     Directory
	locator Locator
	oracle  LoadOracle
	planner SubscriptionPlanner
	cfg     ConfigSource
}

// New builds a Controller from its collaborators.
func New(taskDB TaskDB, dir Directory, locator Locator, oracle LoadOracle, planner SubscriptionPlanner, cfg ConfigSource) *Controller {
	return &Controller{taskDB: taskDB, dir: dir, locator: locator, oracle: oracle, planner: planner, cfg: cfg}
}

// Assign implements spec.md §4.1's assign(task) -> cloud | null. rawMeta is
// the caller-supplied metadata bundle (step 2); it is parsed and validated
// here rather than by the caller so a bad bundle is always logged with
// taskId context.
func (c *Controller) Assign(ctx context.Context, task model.Task, rawMeta model.DecisionMetadata) (string, error) {
	// Step 1: idempotence / claim.
	claim, ok, err := c.taskDB.GetCloudTask(ctx, task.TaskID)
	if err != nil {
		return "", fmt.Errorf("assigner: read cloud-task claim: %w", err)
	}
	if !ok {
		logError(task.TaskID, "no cloud-task claim row")
		return "", fmt.Errorf("%w: task %d", ErrMissingClaim, task.TaskID)
	}
	if claim.Status == model.StatusAssigned {
		logInfo(task.TaskID, "already assigned to %s, no side effects", claim.Cloud)
		return claim.Cloud, nil
	}

	// Step 2: parse metadata.
	meta, err := model.ParseDecisionMetadata(rawMeta, task.TaskID)
	if err != nil {
		logWarning(task.TaskID, "bad metadata: %v", err)
		return "", fmt.Errorf("%w: %v", ErrBadMetadata, err)
	}

	// Step 3: RW recomputation.
	rw, fullRW := rwagg.RecomputeCloud(rwagg.Input{
		SelfTaskID:   task.TaskID,
		SelfPriority: meta.PriorityMap[task.TaskID],
		SelfGroup:    meta.TaskGroupMap[task.TaskID],
		ExpectedRW:   meta.ExpectedRW,
		PriorityMap:  meta.PriorityMap,
		TaskGroupMap: meta.TaskGroupMap,
	}, func(otherTaskID int64) (string, bool) {
		cloud, ok, err := c.taskDB.SeeCloudTask(ctx, otherTaskID)
		if err != nil {
			logWarning(task.TaskID, "seeCloudTask(%d) failed, skipping: %v", otherTaskID, err)
			return "", false
		}
		return cloud, ok
	})

	cfg := c.cfg.Current()
	dir := c.dir.Snapshot()
	selfExpectedRW := meta.ExpectedRW[task.TaskID]

	// Step 4: candidate filtering.
	survivors, candidateSubs := c.filterCandidates(task, meta, dir, cfg)
	if len(survivors) == 0 {
		logWarning(task.TaskID, "no clouds survive candidate filtering")
	}

	// Step 5: replica freshness.
	usingOpenDataset := c.refreshReplicas(ctx, task)

	// Step 6: location-completeness filter.
	survivors, removedMap, t2ListForMissing := c.filterByLocation(task, survivors, dir, cfg)

	// Step 7: empty candidate set.
	if len(survivors) == 0 {
		c.attemptSubscription(ctx, task.TaskID, task.TaskType, removedMap, rw, fullRW, selfExpectedRW, candidateSubs, dir, cfg, false, false)
		logError(task.TaskID, "no candidate clouds after location-completeness filtering")
		return "", fmt.Errorf("%w: task %d: no clouds after location-completeness filtering", ErrNoCandidates, task.TaskID)
	}

	// Step 8: T1 scoring.
	t1Candidates, nFiles, maxNFiles, err := c.scoreT1(ctx, task, survivors, rw, fullRW, selfExpectedRW, dir, cfg)
	if err != nil {
		logError(task.TaskID, "replica locator failed during T1 scoring: %v", err)
		return "", fmt.Errorf("%w: %v", ErrLocatorFailed, err)
	}

	// Step 9: T1-complete candidates.
	effectiveMax := maxNFiles
	if usingOpenDataset {
		effectiveMax = 0
	}
	maxClouds := make(map[string]bool)
	for _, cs := range t1Candidates {
		if nFiles[cs.cloud.Name] >= effectiveMax {
			maxClouds[cs.cloud.Name] = true
		}
	}

	candidatesUsingT2 := make(map[string]bool)
	// Step 10: T2 fallback.
	if len(maxClouds) == 0 {
		candidatesUsingT2 = c.t2Fallback(ctx, task, t2ListForMissing, nFiles, effectiveMax, dir)
		if len(candidatesUsingT2) > 0 {
			maxClouds = candidatesUsingT2
		}
	}

	// Step 11: low-RW promotion.
	useMcShare := false
	if !isEvgenLike(task.TaskType) {
		infinite := make(map[string]bool)
		for _, cs := range t1Candidates {
			if !maxClouds[cs.cloud.Name] {
				continue
			}
			if rw[cs.cloud.Name] < cfg.RWLow*cs.mcshare {
				infinite[cs.cloud.Name] = true
			}
		}
		if len(infinite) > 0 {
			maxClouds = infinite
			useMcShare = true
		}
	}

	// Step 12: empty after scoring.
	if len(maxClouds) == 0 {
		c.attemptSubscription(ctx, task.TaskID, task.TaskType, removedMap, rw, fullRW, selfExpectedRW, candidateSubs, dir, cfg, false, false)
		logError(task.TaskID, "no candidate clouds survive scoring")
		return "", fmt.Errorf("%w: task %d: no clouds survive T1/T2 scoring", ErrNoCandidates, task.TaskID)
	}

	// Step 13: weighted choice.
	byName := make(map[string]candidateScore, len(t1Candidates))
	for _, cs := range t1Candidates {
		byName[cs.cloud.Name] = cs
	}
	candidates := make([]weightedCandidate, 0, len(maxClouds))
	for cloud := range maxClouds {
		cs, ok := byName[cloud]
		if !ok {
			continue
		}
		var w float64
		switch {
		case useMcShare || isEvgenLike(task.TaskType):
			w = cs.mcshare
		default:
			w = cs.nPilot / (1 + rw[cloud])
		}
		candidates = append(candidates, weightedCandidate{cloud: cloud, weight: w})
	}
	chosen, err := weightedChoice(candidates, nil)
	if err != nil {
		logError(task.TaskID, "weighted choice failed: %v", err)
		return "", fmt.Errorf("%w: %v", ErrZeroWeight, err)
	}

	// Step 14: T2-driven subscription.
	if candidatesUsingT2[chosen] {
		restricted := map[string][]string{}
		for dataset, clouds := range removedMap {
			for _, cl := range clouds {
				if cl == chosen {
					restricted[dataset] = []string{chosen}
				}
			}
		}
		ok, err := c.subscribe(ctx, restricted, rw, fullRW, selfExpectedRW, candidateSubs, dir, cfg, true, true)
		if err != nil {
			logError(task.TaskID, "T2-driven subscription failed: %v", err)
			return "", fmt.Errorf("%w: %v", ErrSubscriptionRequired, err)
		}
		if !ok {
			logError(task.TaskID, "T2-driven subscription declined")
			return "", fmt.Errorf("%w: planner declined", ErrSubscriptionRequired)
		}
	}

	// Step 15: commit.
	if err := c.taskDB.SetCloudTask(ctx, model.CloudTask{TaskID: task.TaskID, Cloud: chosen, Status: model.StatusAssigned}); err != nil {
		logError(task.TaskID, "commit failed: %v", err)
		return "", fmt.Errorf("%w: task %d: %v", ErrCommitFailed, task.TaskID, err)
	}

	logInfo(task.TaskID, "assigned to %s", chosen)
	return chosen, nil
}

// candidateScore is one surviving cloud's T1-scoring state (step 8).
type candidateScore struct {
	cloud   model.Cloud
	mcshare float64
	nPilot  float64
}

// filterCandidates implements spec.md §4.1 step 4.
func (c *Controller) filterCandidates(task model.Task, meta model.DecisionMetadata, dir *model.DirectorySnapshot, cfg *config.RuntimeConfig) ([]model.Cloud, []string) {
	var survivors []model.Cloud
	var candidateSubs []string

	for _, cloud := range dir.CloudList() {
		if !cloud.Online() {
			logDebug(task.TaskID, "cloud %s dropped: offline", cloud.Name)
			continue
		}
		if task.ProdSourceLabel == "validation" && !cloud.Validation {
			logDebug(task.TaskID, "cloud %s dropped: validation task, cloud not validation-enabled", cloud.Name)
			continue
		}
		if needsFastTrack(task.TaskType, meta.PriorityMap[task.TaskID], cfg) && !cloud.FastTrack {
			logDebug(task.TaskID, "cloud %s dropped: fasttrack required, cloud not fasttrack-enabled", cloud.Name)
			continue
		}
		if task.MaxDiskCount > 0 && !c.hasSiteForDiskCount(cloud, task.MaxDiskCount, dir) {
			logDebug(task.TaskID, "cloud %s dropped: no member site satisfies maxDiskCount=%v", cloud.Name, task.MaxDiskCount)
			continue
		}
		survivors = append(survivors, cloud)
		candidateSubs = append(candidateSubs, cloud.Name)
	}
	return survivors, candidateSubs
}

func needsFastTrack(taskType string, priority int, cfg *config.RuntimeConfig) bool {
	switch taskType {
	case "evgen":
		return priority >= cfg.EvgenFastTrackPrio
	case "simul":
		return priority >= cfg.SimulFastTrackPrio
	default:
		return false
	}
}

// hasSiteForDiskCount implements step 4's maxDiskCount rule: an online
// member site (ignoring sites whose name contains "test", case-
// insensitively) must have maxInputSize >= maxDiskCount, or be unset.
func (c *Controller) hasSiteForDiskCount(cloud model.Cloud, maxDiskCount float64, dir *model.DirectorySnapshot) bool {
	for _, name := range cloud.Sites {
		if strings.Contains(strings.ToLower(name), "test") {
			continue
		}
		site, ok := dir.GetSite(name)
		if !ok || !site.Online() {
			continue
		}
		if site.MaxInputSize == 0 || site.MaxInputSize >= maxDiskCount {
			return true
		}
	}
	return false
}

// refreshReplicas implements spec.md §4.1 step 5.
func (c *Controller) refreshReplicas(ctx context.Context, task model.Task) bool {
	usingOpenDataset := false
	for dataset, sites := range task.Locations {
		var stale []string
		for site, stat := range sites {
			if stat.Unknown() {
				stale = append(stale, site)
			}
			if !stat.Immutable {
				usingOpenDataset = true
			}
		}
		if len(stale) > 0 {
			c.locator.Refresh(ctx, dataset, stale)
		}
	}
	return usingOpenDataset
}

// filterByLocation implements spec.md §4.1 step 6.
func (c *Controller) filterByLocation(task model.Task, survivors []model.Cloud, dir *model.DirectorySnapshot, cfg *config.RuntimeConfig) ([]model.Cloud, map[string][]string, map[string][]string) {
	removedMap := map[string][]string{}
	t2ListForMissing := map[string][]string{}

	kept := make([]model.Cloud, 0, len(survivors))
	for _, cloud := range survivors {
		t1Sites := t1SitesForCloud(cloud, cfg.AdditionalT1EndpointsByCloud)
		t2Sites := t2MemberSites(cloud, t1Sites)

		ok := true
		for dataset, locs := range task.Locations {
			status := evalDatasetCloud(locs, t1Sites, t2Sites)
			if !status.hasReplica {
				logDebug(task.TaskID, "cloud %s dropped: no T1 or T2 replica for dataset %s", cloud.Name, dataset)
				ok = false
				break
			}
			if !status.t1Complete {
				removedMap[dataset] = append(removedMap[dataset], cloud.Name)
			}
			if len(status.t2Sites) > 0 {
				t2ListForMissing[cloud.Name] = append(t2ListForMissing[cloud.Name], status.t2Sites...)
			}
		}
		if ok {
			kept = append(kept, cloud)
		}
	}
	return kept, removedMap, t2ListForMissing
}

// scoreT1 implements spec.md §4.1 step 8.
func (c *Controller) scoreT1(ctx context.Context, task model.Task, survivors []model.Cloud, rw, fullRW map[string]float64, selfExpectedRW float64, dir *model.DirectorySnapshot, cfg *config.RuntimeConfig) ([]candidateScore, map[string]int, int, error) {
	cloudSites := make(map[string][]string, len(survivors))
	for _, cloud := range survivors {
		cloudSites[cloud.Name] = cloud.Sites
	}
	nPilot, err := c.oracle.NPilotByCloud(ctx, cloudSites)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("load oracle: %w", err)
	}

	maxNFiles := sampledTotal(len(task.LFNs), cfg.Batch, cfg.MaxBatches)
	nFiles := make(map[string]int, len(survivors))
	var scored []candidateScore

	for _, cloud := range survivors {
		site, ok := dir.GetSite(cloud.Source)
		if !ok {
			logWarning(task.TaskID, "cloud %s dropped: unknown Tier-1 site %s", cloud.Name, cloud.Source)
			continue
		}
		availableSpace := site.Space - cfg.SpacePerRW*(fullRW[cloud.Name]+selfExpectedRW)
		if availableSpace < cfg.SpaceLow {
			logDebug(task.TaskID, "cloud %s dropped: availableSpace %v < SPACE_LOW", cloud.Name, availableSpace)
			continue
		}
		if rw[cloud.Name] > cfg.RWHigh*cloud.MCShare {
			logDebug(task.TaskID, "cloud %s dropped: RW %v > RW_HIGH*mcshare", cloud.Name, rw[cloud.Name])
			continue
		}

		t1Sites := t1SitesForCloud(cloud, cfg.AdditionalT1EndpointsByCloud)
		catalogueURL, endpoints := t1CatalogueTarget(t1Sites, dir)
		probeKey := fmt.Sprintf("task-%d", task.TaskID)
		count, err := c.locator.CountFiles(ctx, probeKey, catalogueURL, task.LFNs, task.GUIDs, endpoints)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("probe cloud %s: %w", cloud.Name, err)
		}
		nFiles[cloud.Name] = count
		scored = append(scored, candidateScore{cloud: cloud, mcshare: cloud.MCShare, nPilot: nPilot[cloud.Name]})
	}

	return scored, nFiles, maxNFiles, nil
}

// t2Fallback implements spec.md §4.1 step 10.
func (c *Controller) t2Fallback(ctx context.Context, task model.Task, t2ListForMissing map[string][]string, nFiles map[string]int, effectiveMax int, dir *model.DirectorySnapshot) map[string]bool {
	out := make(map[string]bool)
	for cloud, sites := range t2ListForMissing {
		groups := groupSitesByLFCHost(sites, dir)
		best := nFiles[cloud]
		for _, lfcHost := range sortedLFCHosts(groups) {
			group := groups[lfcHost]
			catalogueURL, endpoints := t2CatalogueTarget(lfcHost, group, dir)
			probeKey := fmt.Sprintf("task-%d-t2-%s", task.TaskID, lfcHost)
			count, err := c.locator.CountFiles(ctx, probeKey, catalogueURL, task.LFNs, task.GUIDs, endpoints)
			if err != nil {
				continue
			}
			if count > best {
				best = count
			}
			if best >= effectiveMax {
				break // early exit once this catalogue satisfies the threshold
			}
		}
		if best >= effectiveMax {
			out[cloud] = true
		}
	}
	return out
}

// attemptSubscription and subscribe wrap Subscription Planner invocation
// for the two dead-end branches (steps 7 and 12), which discard the
// planner's outcome, and step 14's T2-driven path, which does not.
func (c *Controller) attemptSubscription(ctx context.Context, taskID int64, taskType string, removedMap map[string][]string, rw, fullRW map[string]float64, selfExpectedRW float64, candidateSubs []string, dir *model.DirectorySnapshot, cfg *config.RuntimeConfig, noEmptyCheck, acceptInProcess bool) {
	if !isSubscriptionEligible(taskType) {
		return
	}
	if _, err := c.subscribe(ctx, removedMap, rw, fullRW, selfExpectedRW, candidateSubs, dir, cfg, noEmptyCheck, acceptInProcess); err != nil {
		logWarning(taskID, "subscription attempt failed: %v", err)
	}
}

func isSubscriptionEligible(taskType string) bool {
	return taskType == "simul"
}

func (c *Controller) subscribe(ctx context.Context, removedMap map[string][]string, rw, fullRW map[string]float64, selfExpectedRW float64, candidateSubs []string, dir *model.DirectorySnapshot, cfg *config.RuntimeConfig, noEmptyCheck, acceptInProcess bool) (bool, error) {
	clouds := make(map[string]subplanner.CloudInput, len(candidateSubs))
	for _, name := range candidateSubs {
		cloud, ok := dir.GetCloud(name)
		if !ok {
			continue
		}
		site, ok := dir.GetSite(cloud.Source)
		if !ok {
			continue
		}
		clouds[name] = subplanner.CloudInput{
			Name:          name,
			T1Space:       site.Space,
			T1DDMEndpoint: site.DDM,
			MCShare:       cloud.MCShare,
		}
	}

	return c.planner.Subscribe(ctx, subplanner.Input{
		RemovedMap:      removedMap,
		RW:              rw,
		FullRW:          fullRW,
		ExpectedRWSelf:  selfExpectedRW,
		CandidateSubs:   candidateSubs,
		Clouds:          clouds,
		NoEmptyCheck:    noEmptyCheck,
		AcceptInProcess: acceptInProcess,
	})
}

// t1CatalogueTarget resolves the single catalogue URL and combined storage
// endpoint list to probe for a cloud's Tier-1 set (spec.md §4.2's
// storage-endpoint extraction plus §9's split-Tier-1 rule: all configured
// Tier-1 sites for a cloud share one probe call).
func t1CatalogueTarget(t1Sites []string, dir *model.DirectorySnapshot) (string, []string) {
	var catalogueURL string
	var endpoints []string
	for _, name := range t1Sites {
		site, ok := dir.GetSite(name)
		if !ok {
			continue
		}
		if catalogueURL == "" {
			catalogueURL = netutil.CatalogueURL(site.LFCHost, site.DDM)
		}
		endpoints = append(endpoints, netutil.SplitEndpoints(site.SE)...)
	}
	return catalogueURL, endpoints
}

func t2CatalogueTarget(lfcHost string, sites []string, dir *model.DirectorySnapshot) (string, []string) {
	var endpoints []string
	var ddmBase string
	for _, name := range sites {
		site, ok := dir.GetSite(name)
		if !ok {
			continue
		}
		if ddmBase == "" {
			ddmBase = site.DDM
		}
		endpoints = append(endpoints, netutil.SplitEndpoints(site.SE)...)
	}
	if lfcHost != "" {
		return "lfc://" + lfcHost + ":/grid/atlas/", endpoints
	}
	return ddmBase, endpoints
}

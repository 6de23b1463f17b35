// Package loadoracle computes per-site pilot availability and folds it
// into per-cloud nPilot, per spec.md §2's Load Oracle responsibility and
// the getCurrentSiteData() collaborator call of spec.md §6.
package loadoracle

import "context"

// SiteActivity is one site's pilot-dispatch rates, as reported by the
// collaborator Task DB's getCurrentSiteData() call.
type SiteActivity struct {
	GetJob    int // job-get rate at this site
	UpdateJob int // job-update rate at this site
}

// TaskDB is the slice of the Task DB collaborator (spec.md §6) the Load
// Oracle depends on.
type TaskDB interface {
	GetCurrentSiteData(ctx context.Context) (map[string]SiteActivity, error)
}

// Oracle computes nPilot for a cloud: 1 + the summed getJob/updateJob
// activity of its member sites (spec.md §3: "nPilot[cloud] = 1 +
// Σ(getJob+updateJob) over member sites").
type Oracle struct {
	taskDB TaskDB
}

// New returns an Oracle backed by the given Task DB collaborator.
func New(taskDB TaskDB) *Oracle {
	return &Oracle{taskDB: taskDB}
}

// NPilotByCloud returns nPilot for every cloud in clouds, keyed by cloud
// name, given each cloud's member site list.
func (o *Oracle) NPilotByCloud(ctx context.Context, cloudSites map[string][]string) (map[string]float64, error) {
	activity, err := o.taskDB.GetCurrentSiteData(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(cloudSites))
	for cloud, sites := range cloudSites {
		nPilot := 1.0
		for _, site := range sites {
			a, ok := activity[site]
			if !ok {
				continue
			}
			nPilot += float64(a.GetJob + a.UpdateJob)
		}
		out[cloud] = nPilot
	}
	return out, nil
}

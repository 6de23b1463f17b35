// Package locator implements the Replica Locator of spec.md §4.2: given a
// dataset's (lfn, guid) pairs and a set of storage endpoints, return how
// many of them the catalogue can see replicated there, batched and
// retried.
package locator

import "context"

// Catalogue is the Replica Catalogue collaborator named in spec.md §6.
// CountFiles probes one batch of (lfn, guid) pairs against a catalogue URL
// restricted to the given storage endpoint hosts, returning how many of
// them the catalogue reports present. ListFileReplicasBySites backs the
// refresh path (§4.1 step 5): it re-lists a dataset's replicas across the
// given sites so stale ReplicaStat entries in a Task can be refreshed.
type Catalogue interface {
	CountFiles(ctx context.Context, catalogueURL string, lfns, guids []string, storageHosts []string) (int, error)
	ListFileReplicasBySites(ctx context.Context, dataset string, sites []string) error
}

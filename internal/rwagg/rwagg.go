// Package rwagg recomputes per-cloud Running Work against the live task
// table, per spec.md §4.4.
package rwagg

// AssignedLookup resolves the cloud a task was committed to. It returns
// ("", true) for a task that has not been assigned yet, and (_, false) to
// signal a lookup error, which the aggregator swallows and skips.
type AssignedLookup func(taskID int64) (cloud string, ok bool)

// Input bundles the per-decision maps the Assigner Controller already
// parsed out of the metadata bundle (spec.md §4.1 step 2), plus the
// self task's identity.
type Input struct {
	SelfTaskID   int64
	SelfPriority int
	SelfGroup    string

	RW           map[int64]float64
	FullRW       map[int64]float64
	ExpectedRW   map[int64]float64
	PriorityMap  map[int64]int
	TaskGroupMap map[int64]string
}

// RecomputeCloud folds every other task's committed load into per-cloud RW
// and FullRW maps, per spec.md §4.4's procedure:
//
//   - skip otherTaskId == self
//   - assigned, ok := getAssignedCloud(otherTaskId); skip if !ok (lookup
//     error) or assigned == "" (not yet assigned)
//   - fullRW[assigned] += expectedRW[otherTaskId] always
//   - if priorityMap[otherTaskId] is missing or < self priority, stop
//   - if taskGroupMap[otherTaskId] != self group, stop
//   - rw[assigned] += expectedRW[otherTaskId]
func RecomputeCloud(in Input, getAssignedCloud AssignedLookup) (rw, fullRW map[string]float64) {
	rw = map[string]float64{}
	fullRW = map[string]float64{}

	for otherTaskID, expected := range in.ExpectedRW {
		if otherTaskID == in.SelfTaskID {
			continue
		}

		assigned, ok := getAssignedCloud(otherTaskID)
		if !ok {
			continue // lookup error: swallow and skip
		}
		if assigned == "" {
			continue // not yet assigned
		}

		fullRW[assigned] += expected

		otherPriority, hasPriority := in.PriorityMap[otherTaskID]
		if !hasPriority || otherPriority < in.SelfPriority {
			continue
		}
		if in.TaskGroupMap[otherTaskID] != in.SelfGroup {
			continue
		}

		rw[assigned] += expected
	}

	return rw, fullRW
}

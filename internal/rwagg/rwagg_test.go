package rwagg

import "testing"

func TestRecomputeCloud_Conservation(t *testing.T) {
	in := Input{
		SelfTaskID:   1,
		SelfPriority: 500,
		SelfGroup:    "groupA",
		ExpectedRW: map[int64]float64{
			1: 50,
			2: 100,
			3: 200,
			4: 75,
		},
		PriorityMap: map[int64]int{
			2: 600,
			3: 400,
			4: 900,
		},
		TaskGroupMap: map[int64]string{
			2: "groupA",
			3: "groupA",
			4: "groupB",
		},
	}
	assigned := map[int64]string{2: "US", 3: "US", 4: "US"}
	lookup := func(taskID int64) (string, bool) {
		cloud, ok := assigned[taskID]
		if !ok {
			return "", true // not yet assigned
		}
		return cloud, true
	}

	rw, fullRW := RecomputeCloud(in, lookup)

	if fullRW["US"] != 375 { // 100 + 200 + 75
		t.Errorf("fullRW[US] = %v, want 375", fullRW["US"])
	}
	// task 2: priority 600 >= 500, same group -> counts
	// task 3: priority 400 < 500 -> excluded from RW
	// task 4: different group -> excluded from RW
	if rw["US"] != 100 {
		t.Errorf("rw[US] = %v, want 100", rw["US"])
	}
	if rw["US"] > fullRW["US"] {
		t.Errorf("RW conservation violated: rw[US]=%v > fullRW[US]=%v", rw["US"], fullRW["US"])
	}
}

func TestRecomputeCloud_SkipsSelf(t *testing.T) {
	in := Input{
		SelfTaskID:   1,
		SelfPriority: 100,
		SelfGroup:    "g",
		ExpectedRW:   map[int64]float64{1: 999},
		PriorityMap:  map[int64]int{},
		TaskGroupMap: map[int64]string{},
	}
	lookup := func(taskID int64) (string, bool) { return "US", true }

	rw, fullRW := RecomputeCloud(in, lookup)
	if len(rw) != 0 || len(fullRW) != 0 {
		t.Errorf("expected self task excluded, got rw=%v fullRW=%v", rw, fullRW)
	}
}

func TestRecomputeCloud_SkipsUnassignedAndLookupErrors(t *testing.T) {
	in := Input{
		SelfTaskID:   1,
		SelfPriority: 100,
		SelfGroup:    "g",
		ExpectedRW:   map[int64]float64{2: 50, 3: 50},
		PriorityMap:  map[int64]int{2: 200, 3: 200},
		TaskGroupMap: map[int64]string{2: "g", 3: "g"},
	}
	lookup := func(taskID int64) (string, bool) {
		switch taskID {
		case 2:
			return "", true // unassigned
		default:
			return "", false // lookup error
		}
	}

	rw, fullRW := RecomputeCloud(in, lookup)
	if len(rw) != 0 || len(fullRW) != 0 {
		t.Errorf("expected no contributions, got rw=%v fullRW=%v", rw, fullRW)
	}
}

func TestRecomputeCloud_MissingPriorityExcludesFromRW(t *testing.T) {
	in := Input{
		SelfTaskID:   1,
		SelfPriority: 100,
		SelfGroup:    "g",
		ExpectedRW:   map[int64]float64{2: 50},
		PriorityMap:  map[int64]int{}, // task 2's priority missing
		TaskGroupMap: map[int64]string{2: "g"},
	}
	lookup := func(taskID int64) (string, bool) { return "US", true }

	rw, fullRW := RecomputeCloud(in, lookup)
	if fullRW["US"] != 50 {
		t.Errorf("fullRW[US] = %v, want 50", fullRW["US"])
	}
	if rw["US"] != 0 {
		t.Errorf("rw[US] = %v, want 0 (missing priority excludes from RW)", rw["US"])
	}
}

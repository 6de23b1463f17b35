package subplanner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gridassign/gridassign/internal/subscription"
)

type stubDDM struct {
	subscriptionInfo map[string]SubscriptionInfo // key: dataset+"|"+endpoint
	listErr          error

	files    map[string][]FileInfo
	filesErr error

	registerCalls []string // dataset+"|"+endpoint
	registerErr   error
}

func (s *stubDDM) ListSubscriptionInfo(ctx context.Context, dataset, endpoint string) (SubscriptionInfo, error) {
	if s.listErr != nil {
		return SubscriptionInfo{}, s.listErr
	}
	if s.subscriptionInfo == nil {
		return SubscriptionInfo{}, nil
	}
	info, ok := s.subscriptionInfo[dataset+"|"+endpoint]
	if !ok {
		return SubscriptionInfo{}, ErrDestinationUnknown
	}
	return info, nil
}

func (s *stubDDM) ListFilesInDataset(ctx context.Context, dataset string) ([]FileInfo, error) {
	if s.filesErr != nil {
		return nil, s.filesErr
	}
	return s.files[dataset], nil
}

func (s *stubDDM) RegisterDatasetSubscription(ctx context.Context, dataset, endpoint string, opts RegisterOptions) error {
	s.registerCalls = append(s.registerCalls, dataset+"|"+endpoint)
	return s.registerErr
}

type stubIdentity struct {
	dn  string
	err error
}

func (s *stubIdentity) CallerDN(ctx context.Context) (string, error) {
	return s.dn, s.err
}

func gbFiles(gb int64) []FileInfo {
	return []FileInfo{{SizeBytes: gb * bytesPerGB}}
}

func TestSubscribe_EmptyCandidateSetDeclines(t *testing.T) {
	p := New(&stubDDM{}, &stubIdentity{dn: "/O=Grid/CN=alice"}, subscription.NewLedger(time.Hour))

	ok, err := p.Subscribe(context.Background(), Input{
		RemovedMap:    map[string][]string{"ds1": {"US"}},
		CandidateSubs: []string{"DE"}, // no overlap with removedMap's clouds
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected false when no candidate cloud is in removedMap ∩ candidateSubs")
	}
}

func TestSubscribe_DuplicateSuppressionDeclines(t *testing.T) {
	ddm := &stubDDM{
		subscriptionInfo: map[string]SubscriptionInfo{
			"ds1|US": {Exists: true, OwnerDN: "/O=Grid/CN=alice"},
		},
	}
	p := New(ddm, &stubIdentity{dn: "/O=Grid/CN=alice/CN=proxy"}, subscription.NewLedger(time.Hour))

	ok, err := p.Subscribe(context.Background(), Input{
		RemovedMap:    map[string][]string{"ds1": {"US"}},
		CandidateSubs: []string{"US"},
		Clouds: map[string]CloudInput{
			"US": {Name: "US", T1Space: 5000, T1DDMEndpoint: "US", MCShare: 1},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected false: same owner already holds a subscription at this Tier-1 endpoint")
	}
}

func TestSubscribe_DestinationUnknownIsNotADuplicate(t *testing.T) {
	ddm := &stubDDM{
		subscriptionInfo: map[string]SubscriptionInfo{}, // every probe reports ErrDestinationUnknown
		files:            map[string][]FileInfo{"ds1": gbFiles(10)},
	}
	p := New(ddm, &stubIdentity{dn: "/O=Grid/CN=alice"}, subscription.NewLedger(time.Hour))

	ok, err := p.Subscribe(context.Background(), Input{
		RemovedMap:    map[string][]string{"ds1": {"US"}},
		CandidateSubs: []string{"US"},
		RW:            map[string]float64{"US": 100},
		Clouds: map[string]CloudInput{
			"US": {Name: "US", T1Space: 5000, T1DDMEndpoint: "US", MCShare: 1},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected success: destination-unknown probe must not be treated as a duplicate")
	}
	if len(ddm.registerCalls) != 1 || ddm.registerCalls[0] != "ds1|US" {
		t.Fatalf("expected one registerDatasetSubscription(ds1, US), got %v", ddm.registerCalls)
	}
}

func TestSubscribe_RejectsLowSpaceCloud(t *testing.T) {
	ddm := &stubDDM{files: map[string][]FileInfo{"ds1": gbFiles(10)}}
	p := New(ddm, &stubIdentity{dn: "/O=Grid/CN=alice"}, subscription.NewLedger(time.Hour))

	ok, err := p.Subscribe(context.Background(), Input{
		RemovedMap:    map[string][]string{"ds1": {"US"}},
		CandidateSubs: []string{"US"},
		RW:            map[string]float64{"US": 100},
		Clouds: map[string]CloudInput{
			"US": {Name: "US", T1Space: 100, T1DDMEndpoint: "US", MCShare: 1}, // below SPACE_LOW=1024
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected false: available space below SPACE_LOW")
	}
	if len(ddm.registerCalls) != 0 {
		t.Fatalf("expected no orders issued, got %v", ddm.registerCalls)
	}
}

func TestSubscribe_RejectsZeroMCShare(t *testing.T) {
	ddm := &stubDDM{files: map[string][]FileInfo{"ds1": gbFiles(10)}}
	p := New(ddm, &stubIdentity{dn: "/O=Grid/CN=alice"}, subscription.NewLedger(time.Hour))

	ok, _ := p.Subscribe(context.Background(), Input{
		RemovedMap:    map[string][]string{"ds1": {"US"}},
		CandidateSubs: []string{"US"},
		RW:            map[string]float64{"US": 100},
		Clouds: map[string]CloudInput{
			"US": {Name: "US", T1Space: 5000, T1DDMEndpoint: "US", MCShare: 0},
		},
	})
	if ok {
		t.Fatal("expected false: mcshare == 0 clouds are rejected")
	}
}

func TestSubscribe_RejectsNotEmptyEnoughUnlessNoEmptyCheck(t *testing.T) {
	ddm := &stubDDM{files: map[string][]FileInfo{"ds1": gbFiles(10)}}
	p := New(ddm, &stubIdentity{dn: "/O=Grid/CN=alice"}, subscription.NewLedger(time.Hour))

	in := Input{
		RemovedMap:    map[string][]string{"ds1": {"US"}},
		CandidateSubs: []string{"US"},
		RW:            map[string]float64{"US": 10000}, // r = 10000/(600*1) > 1.0
		Clouds: map[string]CloudInput{
			"US": {Name: "US", T1Space: 5000, T1DDMEndpoint: "US", MCShare: 1},
		},
	}

	ok, err := p.Subscribe(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected false: r > 1.0 without NoEmptyCheck")
	}

	in.NoEmptyCheck = true
	ddm.registerCalls = nil
	ok, err = p.Subscribe(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected true: NoEmptyCheck bypasses the r>1.0 rejection")
	}
}

func TestSubscribe_PicksMinimumRCloud(t *testing.T) {
	ddm := &stubDDM{files: map[string][]FileInfo{"ds1": gbFiles(10)}}
	p := New(ddm, &stubIdentity{dn: "/O=Grid/CN=alice"}, subscription.NewLedger(time.Hour))

	ok, err := p.Subscribe(context.Background(), Input{
		RemovedMap:    map[string][]string{"ds1": {"US", "DE"}},
		CandidateSubs: []string{"US", "DE"},
		RW:            map[string]float64{"US": 500, "DE": 100},
		Clouds: map[string]CloudInput{
			"US": {Name: "US", T1Space: 5000, T1DDMEndpoint: "US", MCShare: 1},
			"DE": {Name: "DE", T1Space: 5000, T1DDMEndpoint: "DE", MCShare: 1},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected success")
	}
	if len(ddm.registerCalls) != 1 || ddm.registerCalls[0] != "ds1|DE" {
		t.Fatalf("expected subscription issued to DE (lower r), got %v", ddm.registerCalls)
	}
}

func TestSubscribe_AlreadyExistsTreatedAsSuccess(t *testing.T) {
	ddm := &stubDDM{
		files:       map[string][]FileInfo{"ds1": gbFiles(10)},
		registerErr: ErrAlreadyExists,
	}
	p := New(ddm, &stubIdentity{dn: "/O=Grid/CN=alice"}, subscription.NewLedger(time.Hour))

	ok, err := p.Subscribe(context.Background(), Input{
		RemovedMap:    map[string][]string{"ds1": {"US"}},
		CandidateSubs: []string{"US"},
		RW:            map[string]float64{"US": 100},
		Clouds: map[string]CloudInput{
			"US": {Name: "US", T1Space: 5000, T1DDMEndpoint: "US", MCShare: 1},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected true: already-exists is treated as success")
	}
}

func TestSubscribe_RegisterRetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	ddm := &failingThenOKDDM{attempts: &attempts, files: map[string][]FileInfo{"ds1": gbFiles(10)}}
	p := New(ddm, &stubIdentity{dn: "/O=Grid/CN=alice"}, subscription.NewLedger(time.Hour), WithRetries(3, time.Millisecond, 3))

	ok, err := p.Subscribe(context.Background(), Input{
		RemovedMap:    map[string][]string{"ds1": {"US"}},
		CandidateSubs: []string{"US"},
		RW:            map[string]float64{"US": 100},
		Clouds: map[string]CloudInput{
			"US": {Name: "US", T1Space: 5000, T1DDMEndpoint: "US", MCShare: 1},
		},
	})
	if err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}
	if !ok {
		t.Fatal("expected true")
	}
}

type failingThenOKDDM struct {
	stubDDM
	attempts *atomic.Int32
	files    map[string][]FileInfo
}

func (d *failingThenOKDDM) ListFilesInDataset(ctx context.Context, dataset string) ([]FileInfo, error) {
	return d.files[dataset], nil
}

func (d *failingThenOKDDM) RegisterDatasetSubscription(ctx context.Context, dataset, endpoint string, opts RegisterOptions) error {
	if d.attempts.Add(1) < 2 {
		return errors.New("transient DDM error")
	}
	return nil
}

func TestSubscribe_LedgerShortCircuitsSecondCall(t *testing.T) {
	ddm := &stubDDM{files: map[string][]FileInfo{"ds1": gbFiles(10)}}
	ledger := subscription.NewLedger(time.Hour)
	p := New(ddm, &stubIdentity{dn: "/O=Grid/CN=alice"}, ledger)

	in := Input{
		RemovedMap:    map[string][]string{"ds1": {"US"}},
		CandidateSubs: []string{"US"},
		RW:            map[string]float64{"US": 100},
		Clouds: map[string]CloudInput{
			"US": {Name: "US", T1Space: 5000, T1DDMEndpoint: "US", MCShare: 1},
		},
	}

	ok1, err := p.Subscribe(context.Background(), in)
	if err != nil || !ok1 {
		t.Fatalf("first call: ok=%v err=%v", ok1, err)
	}

	ok2, err := p.Subscribe(context.Background(), in)
	if err != nil {
		t.Fatalf("second call: unexpected error: %v", err)
	}
	if ok2 {
		t.Fatal("expected second back-to-back call for the same (owner, dataset) to be suppressed by the local ledger")
	}
	if len(ddm.registerCalls) != 1 {
		t.Fatalf("expected exactly one registerDatasetSubscription across both calls, got %d", len(ddm.registerCalls))
	}
}

func TestSubscribe_AcceptInProcessSkipsDuplicateCheck(t *testing.T) {
	ddm := &stubDDM{
		files: map[string][]FileInfo{"ds1": gbFiles(10)},
		subscriptionInfo: map[string]SubscriptionInfo{
			"ds1|US": {Exists: true, OwnerDN: "/O=Grid/CN=alice"},
		},
	}
	p := New(ddm, &stubIdentity{dn: "/O=Grid/CN=alice"}, subscription.NewLedger(time.Hour))

	ok, err := p.Subscribe(context.Background(), Input{
		RemovedMap:      map[string][]string{"ds1": {"US"}},
		CandidateSubs:   []string{"US"},
		RW:              map[string]float64{"US": 100},
		AcceptInProcess: true,
		NoEmptyCheck:    true,
		Clouds: map[string]CloudInput{
			"US": {Name: "US", T1Space: 5000, T1DDMEndpoint: "US", MCShare: 1},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected true: acceptInProcess skips the duplicate-suppression step entirely")
	}
}

package locator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type stubCatalogue struct {
	countFiles    func(ctx context.Context, catalogueURL string, lfns, guids, hosts []string) (int, error)
	refreshCalled atomic.Bool
	refreshErr    error
}

func (s *stubCatalogue) CountFiles(ctx context.Context, catalogueURL string, lfns, guids, hosts []string) (int, error) {
	return s.countFiles(ctx, catalogueURL, lfns, guids, hosts)
}

func (s *stubCatalogue) ListFileReplicasBySites(ctx context.Context, dataset string, sites []string) error {
	s.refreshCalled.Store(true)
	return s.refreshErr
}

func TestLocator_CountFiles_SumsAcrossBatches(t *testing.T) {
	cat := &stubCatalogue{
		countFiles: func(ctx context.Context, catalogueURL string, lfns, guids, hosts []string) (int, error) {
			return len(lfns), nil // pretend every file is found
		},
	}
	l, err := New(Config{Catalogue: cat, Batch: 2, MaxBatches: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lfns := []string{"a", "b", "c", "d", "e"}
	guids := []string{"1", "2", "3", "4", "5"}

	got, err := l.CountFiles(context.Background(), "ds1", "https://ddm.example.org/", lfns, guids, []string{"srm://se.example.org:8443/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5 {
		t.Fatalf("expected 5 found, got %d", got)
	}
}

func TestLocator_CountFiles_RetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	cat := &stubCatalogue{
		countFiles: func(ctx context.Context, catalogueURL string, lfns, guids, hosts []string) (int, error) {
			if attempts.Add(1) < 2 {
				return 0, errors.New("transient catalogue error")
			}
			return len(lfns), nil
		},
	}
	l, err := New(Config{Catalogue: cat, Batch: 200, MaxBatches: 100, BatchRetries: 3, BatchBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := l.CountFiles(context.Background(), "ds1", "https://ddm.example.org/", []string{"a"}, []string{"1"}, []string{"se.example.org"})
	if err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestLocator_CountFiles_DefinitiveFailureAfterRetries(t *testing.T) {
	cat := &stubCatalogue{
		countFiles: func(ctx context.Context, catalogueURL string, lfns, guids, hosts []string) (int, error) {
			return 0, errors.New("catalogue down")
		},
	}
	l, err := New(Config{Catalogue: cat, Batch: 200, MaxBatches: 100, BatchRetries: 2, BatchBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = l.CountFiles(context.Background(), "ds1", "https://ddm.example.org/", []string{"a"}, []string{"1"}, []string{"se.example.org"})
	if !errors.Is(err, ErrProbeFailed) {
		t.Fatalf("expected ErrProbeFailed, got %v", err)
	}
}

func TestLocator_CountFiles_CachesResult(t *testing.T) {
	var calls atomic.Int32
	cat := &stubCatalogue{
		countFiles: func(ctx context.Context, catalogueURL string, lfns, guids, hosts []string) (int, error) {
			calls.Add(1)
			return len(lfns), nil
		},
	}
	l, err := New(Config{Catalogue: cat, Batch: 200, MaxBatches: 100, CacheCapacity: 1000, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := l.CountFiles(context.Background(), "ds1", "https://ddm.example.org/", []string{"a"}, []string{"1"}, []string{"srm://se.example.org:8443/x"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if calls.Load() != 1 {
		t.Fatalf("expected catalogue to be probed once due to caching, got %d calls", calls.Load())
	}
}

func TestLocator_Refresh_SwallowsErrors(t *testing.T) {
	cat := &stubCatalogue{refreshErr: errors.New("listing failed")}
	l, err := New(Config{Catalogue: cat})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Refresh(context.Background(), "ds1", []string{"BNL"})
	if !cat.refreshCalled.Load() {
		t.Fatal("expected ListFileReplicasBySites to be called")
	}
}

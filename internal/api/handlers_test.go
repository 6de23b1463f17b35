package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gridassign/gridassign/internal/config"
	"github.com/gridassign/gridassign/internal/model"
)

func assertBodyContains(t *testing.T, rec *httptest.ResponseRecorder, substr string) {
	t.Helper()
	if !strings.Contains(rec.Body.String(), substr) {
		t.Errorf("body %q does not contain %q", rec.Body.String(), substr)
	}
}

type fakeRepo struct {
	claimed map[int64]model.CloudTask
	saved   *config.RuntimeConfig
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{claimed: map[int64]model.CloudTask{}}
}

func (f *fakeRepo) CreateCloudTaskClaim(ctx context.Context, taskID int64) error {
	if _, ok := f.claimed[taskID]; ok {
		return nil
	}
	f.claimed[taskID] = model.CloudTask{TaskID: taskID, Status: model.StatusUnassigned}
	return nil
}

func (f *fakeRepo) GetCloudTask(ctx context.Context, taskID int64) (model.CloudTask, bool, error) {
	ct, ok := f.claimed[taskID]
	return ct, ok, nil
}

func (f *fakeRepo) SetTaskPayload(ctx context.Context, taskID int64, payloadJSON string) error {
	return nil
}

func (f *fakeRepo) SaveRuntimeConfig(cfg *config.RuntimeConfig, version int) error {
	f.saved = cfg
	return nil
}

func TestHandleClaimTask_CreatesRow(t *testing.T) {
	repo := newFakeRepo()
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks/7/claim", nil)
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	HandleClaimTask(repo)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if _, ok := repo.claimed[7]; !ok {
		t.Fatal("expected claim row to be created")
	}
}

func TestHandleGetAssignment_NotYetAssigned(t *testing.T) {
	repo := newFakeRepo()
	repo.claimed[7] = model.CloudTask{TaskID: 7, Status: model.StatusUnassigned}

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/7/assignment", nil)
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	HandleGetAssignment(repo)(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleGetAssignment_Assigned(t *testing.T) {
	repo := newFakeRepo()
	repo.claimed[7] = model.CloudTask{TaskID: 7, Cloud: "US", Status: model.StatusAssigned}

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/7/assignment", nil)
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	HandleGetAssignment(repo)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	assertBodyContains(t, rec, "US")
}

func TestHandleConfigReload_SwapsLiveConfig(t *testing.T) {
	repo := newFakeRepo()
	var live atomic.Pointer[config.RuntimeConfig]
	live.Store(config.NewDefaultRuntimeConfig())
	var version atomic.Int64

	body := `{"rw_low":999,"rw_high":8000,"rw_sub":600,"space_low":1024,"space_per_rw":0.2,` +
		`"batch":200,"max_batches":100,"evgen_fasttrack_prio":700,"simul_fasttrack_prio":800,` +
		`"additional_t1_endpoints_by_cloud":{}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/config/reload", strings.NewReader(body))
	rec := httptest.NewRecorder()

	HandleConfigReload(repo, &live, &version)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if live.Load().RWLow != 999 {
		t.Fatalf("expected live RWLow 999, got %v", live.Load().RWLow)
	}
	if repo.saved == nil || repo.saved.RWLow != 999 {
		t.Fatal("expected config to be persisted")
	}
}

func TestAuthMiddleware_Unauthorized(t *testing.T) {
	handler := AuthMiddleware("secret", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/7/assignment", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	assertBodyContains(t, rec, "UNAUTHORIZED")
}

package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gridassign/gridassign/internal/config"
	"github.com/gridassign/gridassign/internal/model"
	"github.com/gridassign/gridassign/internal/taskpayload"
)

// ClaimRepo is the subset of internal/state.StateRepo the claim/assignment
// handlers depend on. Defining it here (rather than importing the concrete
// type) keeps internal/api free of a direct internal/state dependency.
type ClaimRepo interface {
	CreateCloudTaskClaim(ctx context.Context, taskID int64) error
	SetTaskPayload(ctx context.Context, taskID int64, payloadJSON string) error
	GetCloudTask(ctx context.Context, taskID int64) (model.CloudTask, bool, error)
}

func parseTaskID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(PathParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// HandleClaimTask returns the handler for POST /v1/tasks/{id}/claim. It
// creates the initial unassigned Cloud-Task row; calling it twice for the
// same taskId is a no-op (spec.md §3). An optional JSON body carrying a
// taskpayload.Payload is stored alongside the row so cmd/assignerd's worker
// pool has something to decide on; a bare claim with no body is valid too
// (the payload can be attached by a later call).
func HandleClaimTask(repo ClaimRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, ok := parseTaskID(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "id: must be a positive integer")
			return
		}
		if err := repo.CreateCloudTaskClaim(r.Context(), taskID); err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}

		if r.ContentLength != 0 {
			var payload taskpayload.Payload
			if err := DecodeBody(r, &payload); err != nil {
				writeDecodeBodyError(w, err)
				return
			}
			payload.Task.TaskID = taskID
			data, err := taskpayload.Marshal(payload)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
				return
			}
			if err := repo.SetTaskPayload(r.Context(), taskID, data); err != nil {
				WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
				return
			}
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"task_id": taskID,
			"status":  model.StatusUnassigned,
		})
	}
}

type assignmentResponse struct {
	TaskID int64  `json:"task_id"`
	Cloud  string `json:"cloud"`
}

// HandleGetAssignment returns the handler for GET /v1/tasks/{id}/assignment.
// Responds 404 while the task is unclaimed or still unassigned.
func HandleGetAssignment(repo ClaimRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, ok := parseTaskID(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "id: must be a positive integer")
			return
		}
		ct, found, err := repo.GetCloudTask(r.Context(), taskID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}
		if !found || ct.Status != model.StatusAssigned {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "task is not yet assigned")
			return
		}
		WriteJSON(w, http.StatusOK, assignmentResponse{TaskID: ct.TaskID, Cloud: ct.Cloud})
	}
}

// ConfigRepo persists the hot-reloadable RuntimeConfig.
type ConfigRepo interface {
	SaveRuntimeConfig(cfg *config.RuntimeConfig, version int) error
}

// HandleConfigReload returns the handler for POST /v1/config/reload. The
// request body is a full RuntimeConfig; on success it is persisted and
// hot-swapped into live via the shared atomic pointer (SPEC_FULL.md §4.8).
func HandleConfigReload(repo ConfigRepo, live *atomic.Pointer[config.RuntimeConfig], version *atomic.Int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var next config.RuntimeConfig
		if err := DecodeBody(r, &next); err != nil {
			writeDecodeBodyError(w, err)
			return
		}

		newVersion := int(version.Add(1))
		if err := repo.SaveRuntimeConfig(&next, newVersion); err != nil {
			version.Add(-1)
			WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}

		for _, d := range config.DiffFromDefault(&next) {
			log.Printf("WARNING: runtime config override: %s", d)
		}
		live.Store(&next)

		WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": newVersion})
	}
}

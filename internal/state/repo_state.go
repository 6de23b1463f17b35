package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gridassign/gridassign/internal/config"
	"github.com/gridassign/gridassign/internal/model"
)

// StateRepo wraps the single SQLite database backing the Cloud-Task claim
// table (spec.md §3) and the persisted RuntimeConfig. All writes go through
// this type; SQLite's own locking serializes concurrent commits per the
// concurrency model of spec.md §5 ("a second concurrent commit for the
// same taskId must either observe assigned and back off, or be rejected").
type StateRepo struct {
	db *sql.DB
}

// NewStateRepo wraps an already-open, already-migrated database handle.
func NewStateRepo(db *sql.DB) *StateRepo {
	return &StateRepo{db: db}
}

// --- cloud_tasks ---

// CreateCloudTaskClaim inserts the initial unassigned row for taskID. This
// is the external caller's contract obligation (spec.md §3: "A task with
// no row is ineligible"); it is exposed to the admin/control surface via
// POST /v1/tasks/{id}/claim. Calling it twice for the same taskId is a
// no-op (ON CONFLICT DO NOTHING): re-claiming an already-claimed task must
// never reset an assigned row back to unassigned.
func (r *StateRepo) CreateCloudTaskClaim(ctx context.Context, taskID int64) error {
	now := time.Now().UnixNano()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cloud_tasks (task_id, cloud, status, created_at_ns, updated_at_ns)
		VALUES (?, '', 'unassigned', ?, ?)
		ON CONFLICT(task_id) DO NOTHING
	`, taskID, now, now)
	if err != nil {
		return fmt.Errorf("create cloud-task claim %d: %w", taskID, err)
	}
	return nil
}

// GetCloudTask implements the assigner.TaskDB collaborator's read of
// spec.md §4.1 step 1. ok=false means no row exists for taskID.
func (r *StateRepo) GetCloudTask(ctx context.Context, taskID int64) (model.CloudTask, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT task_id, cloud, status FROM cloud_tasks WHERE task_id = ?`, taskID)
	var ct model.CloudTask
	var status string
	if err := row.Scan(&ct.TaskID, &ct.Cloud, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CloudTask{}, false, nil
		}
		return model.CloudTask{}, false, fmt.Errorf("get cloud-task %d: %w", taskID, err)
	}
	ct.Status = model.CloudTaskStatus(status)
	return ct, true, nil
}

// SetCloudTask performs the one-shot unassigned -> assigned commit of
// spec.md §3/§4.1 step 15. A second commit attempt for an already-assigned
// taskId is rejected (ErrConflict): the UPDATE only matches rows still in
// 'unassigned' status, and RowsAffected == 0 distinguishes "already
// assigned" from "no such row".
func (r *StateRepo) SetCloudTask(ctx context.Context, row model.CloudTask) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE cloud_tasks
		SET cloud = ?, status = ?, updated_at_ns = ?
		WHERE task_id = ? AND status = 'unassigned'
	`, row.Cloud, string(row.Status), time.Now().UnixNano(), row.TaskID)
	if err != nil {
		return fmt.Errorf("commit cloud-task %d: %w", row.TaskID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit cloud-task %d: %w", row.TaskID, err)
	}
	if n == 0 {
		existing, ok, err := r.GetCloudTask(ctx, row.TaskID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("commit cloud-task %d: %w: no claim row", row.TaskID, ErrNotFound)
		}
		if existing.Status == model.StatusAssigned {
			return fmt.Errorf("commit cloud-task %d: %w: already assigned to %s", row.TaskID, ErrConflict, existing.Cloud)
		}
		return fmt.Errorf("commit cloud-task %d: %w: unexpected state", row.TaskID, ErrConflict)
	}
	return nil
}

// SetTaskPayload stores the serialized (model.Task, model.DecisionMetadata)
// bundle the worker pool will later decode and feed to
// assigner.Controller.Assign. Exists because the Task DB collaborator of
// spec.md §6 has no getTask() call of its own: the full task payload has to
// enter the system somehow, and the task-control API that would otherwise
// carry it is explicitly out of scope (spec.md §1). POST
// /v1/tasks/{id}/claim accepts it as an optional request body.
func (r *StateRepo) SetTaskPayload(ctx context.Context, taskID int64, payloadJSON string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cloud_tasks SET payload_json = ? WHERE task_id = ?`, payloadJSON, taskID)
	if err != nil {
		return fmt.Errorf("set task payload %d: %w", taskID, err)
	}
	return nil
}

// PendingClaim is one unassigned cloud-task row with a decodable payload,
// as returned by ListPendingClaims.
type PendingClaim struct {
	TaskID      int64
	PayloadJSON string
}

// ListPendingClaims returns up to limit unassigned rows that carry a task
// payload, oldest first, for the worker pool to drain.
func (r *StateRepo) ListPendingClaims(ctx context.Context, limit int) ([]PendingClaim, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT task_id, payload_json FROM cloud_tasks
		WHERE status = 'unassigned' AND payload_json <> ''
		ORDER BY created_at_ns ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending claims: %w", err)
	}
	defer rows.Close()

	var out []PendingClaim
	for rows.Next() {
		var pc PendingClaim
		if err := rows.Scan(&pc.TaskID, &pc.PayloadJSON); err != nil {
			return nil, fmt.Errorf("list pending claims: scan: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// SeeCloudTask resolves a peer task's committed cloud for the RW Aggregator
// (spec.md §4.4). ok=false signals a lookup error, which the caller must
// swallow and skip; cloud=="" with ok=true means "not yet assigned".
func (r *StateRepo) SeeCloudTask(ctx context.Context, taskID int64) (string, bool, error) {
	ct, found, err := r.GetCloudTask(ctx, taskID)
	if err != nil {
		return "", false, err
	}
	if !found || ct.Status != model.StatusAssigned {
		return "", true, nil
	}
	return ct.Cloud, true, nil
}

// --- runtime_config ---

// GetRuntimeConfig loads the persisted RuntimeConfig and its version.
// Returns a nil config and version 0 if no row exists yet.
func (r *StateRepo) GetRuntimeConfig() (*config.RuntimeConfig, int, error) {
	row := r.db.QueryRow(`SELECT config_json, version FROM runtime_config WHERE id = 1`)
	var configJSON string
	var version int
	if err := row.Scan(&configJSON, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("scan runtime_config: %w", err)
	}
	cfg := &config.RuntimeConfig{}
	if err := json.Unmarshal([]byte(configJSON), cfg); err != nil {
		return nil, 0, fmt.Errorf("unmarshal runtime_config: %w", err)
	}
	return cfg, version, nil
}

// SaveRuntimeConfig persists cfg with the given version, bumping
// updated_at_ns. Used by the /v1/config/reload admin endpoint.
func (r *StateRepo) SaveRuntimeConfig(cfg *config.RuntimeConfig, version int) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal runtime_config: %w", err)
	}
	_, err = r.db.Exec(`
		INSERT INTO runtime_config (id, config_json, version, updated_at_ns)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config_json   = excluded.config_json,
			version       = excluded.version,
			updated_at_ns = excluded.updated_at_ns
	`, string(data), version, time.Now().UnixNano())
	return err
}

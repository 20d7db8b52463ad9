// Package workrequest persists the durable record of intent and exposes its
// status transitions, grounded on the teacher's session status-transition
// idiom (conditional UPDATE, idempotent terminal checks).
package workrequest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
	"github.com/codeready-toolchain/agentcore/pkg/models"
)

// Recorder is the Work Request Recorder.
type Recorder struct {
	db *sql.DB
}

// New builds a Recorder.
func New(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Create inserts a WorkRequest row (status = pending) and returns its ID.
func (r *Recorder) Create(ctx context.Context, userID, workspaceID, basketID string, agentKind models.AgentKind, workMode string, payload any, isTrial bool) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", apperr.Wrap(apperr.Validation, err, "marshal work request payload")
	}

	const q = `
		INSERT INTO work_requests (user_id, workspace_id, basket_id, agent_kind, work_mode, payload, is_trial, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING id`
	var id string
	if err := r.db.QueryRowContext(ctx, q, userID, workspaceID, basketID, agentKind, workMode, payloadBytes, isTrial).Scan(&id); err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "insert work request")
	}
	return id, nil
}

// Get fetches a WorkRequest by ID.
func (r *Recorder) Get(ctx context.Context, id string) (*models.WorkRequest, error) {
	const q = `
		SELECT id, user_id, workspace_id, basket_id, agent_kind, work_mode, payload, is_trial,
		       status, result_summary, error_message, created_at, updated_at
		FROM work_requests WHERE id = $1`
	wr := &models.WorkRequest{}
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&wr.ID, &wr.UserID, &wr.WorkspaceID, &wr.BasketID, &wr.AgentKind, &wr.WorkMode, &wr.Payload,
		&wr.IsTrial, &wr.Status, &wr.ResultSummary, &wr.ErrorMessage, &wr.CreatedAt, &wr.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "work request not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "get work request")
	}
	return wr, nil
}

// MarkRunning transitions a pending request to running.
func (r *Recorder) MarkRunning(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE work_requests SET status = 'running', updated_at = now()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "mark running")
	}
	return requireRowAffectedOrTerminalOK(ctx, r.db, id, res)
}

// MarkCompleted transitions a request to completed. Idempotent: re-marking
// an already-completed request with the same summary is a no-op.
func (r *Recorder) MarkCompleted(ctx context.Context, id, resultSummary string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE work_requests SET status = 'completed', result_summary = $2, updated_at = now()
		WHERE id = $1 AND status <> 'failed'`, id, resultSummary)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "mark completed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "rows affected")
	}
	if n == 0 {
		existing, getErr := r.Get(ctx, id)
		if getErr == nil && existing.Status == models.WorkRequestStatusCompleted && existing.ResultSummary == resultSummary {
			return nil
		}
		return apperr.New(apperr.Conflict, "work request already in a terminal state")
	}
	return nil
}

// MarkFailed transitions a request to failed.
func (r *Recorder) MarkFailed(ctx context.Context, id, errorMessage string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE work_requests SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1 AND status <> 'completed'`, id, errorMessage)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "mark failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "rows affected")
	}
	if n == 0 {
		existing, getErr := r.Get(ctx, id)
		if getErr == nil && existing.Status == models.WorkRequestStatusFailed && existing.ErrorMessage == errorMessage {
			return nil
		}
		return apperr.New(apperr.Conflict, "work request already completed")
	}
	return nil
}

func requireRowAffectedOrTerminalOK(ctx context.Context, db *sql.DB, id string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "rows affected")
	}
	if n == 0 {
		const q = `SELECT status FROM work_requests WHERE id = $1`
		var status models.WorkRequestStatus
		if err := db.QueryRowContext(ctx, q, id).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.New(apperr.NotFound, "work request not found")
			}
			return apperr.Wrap(apperr.Internal, err, "get status")
		}
		if status.Terminal() {
			return apperr.New(apperr.Conflict, "work request already in a terminal state")
		}
		return apperr.New(apperr.Conflict, "work request not in expected state")
	}
	return nil
}

// Package ticket implements the Work Ticket Executor (component G),
// grounded on the teacher's pkg/queue/worker.go claim → timeout →
// register-cancel → execute → terminal-status-update lifecycle.
package ticket

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/agentruntime"
	"github.com/codeready-toolchain/agentcore/pkg/apperr"
	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/session"
	"github.com/codeready-toolchain/agentcore/pkg/substrate"
	"github.com/codeready-toolchain/agentcore/pkg/workrequest"
)

// RuntimeFactory builds a fresh agentruntime.Runtime for one ticket execution.
type RuntimeFactory func() *agentruntime.Runtime

// Executor orchestrates one ticket end to end (spec §4.G).
type Executor struct {
	db        *sql.DB
	sessions  *session.Registry
	requests  *workrequest.Recorder
	substrate substrate.API
	runtimes  RuntimeFactory

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds an Executor.
func New(db *sql.DB, sessions *session.Registry, requests *workrequest.Recorder, client substrate.API, runtimes RuntimeFactory) *Executor {
	return &Executor{
		db:        db,
		sessions:  sessions,
		requests:  requests,
		substrate: client,
		runtimes:  runtimes,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Run executes ticketID end to end (spec §4.G steps 1–10). Re-executing a
// terminal ticket is rejected (idempotency).
func (e *Executor) Run(ctx context.Context, ticketID string, input agentruntime.Input, userToken string) error {
	t, err := e.get(ctx, ticketID)
	if err != nil {
		return err
	}
	if t.Status != models.WorkTicketStatusPending && t.Status != models.WorkTicketStatusPaused {
		return apperr.New(apperr.Conflict, "ticket is not in a runnable state")
	}

	if err := e.transitionRunning(ctx, ticketID); err != nil {
		return err
	}
	if err := e.requests.MarkRunning(ctx, t.WorkRequestID); err != nil {
		slog.Warn("failed to mark work request running", "ticket_id", ticketID, "error", err)
	}

	sess, err := e.sessions.Get(ctx, t.SessionID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.registerCancel(ticketID, cancel)
	defer e.unregisterCancel(ticketID)

	lock := e.sessions.Lock(t.SessionID)
	lock.Lock()
	defer lock.Unlock()

	runtime := e.runtimes()
	input.Ticket = t
	input.Session = sess
	input.CallCtx.UserToken = userToken

	result, runErr := runtime.Execute(runCtx, input, func() bool {
		select {
		case <-runCtx.Done():
			return true
		default:
			return false
		}
	})

	if runErr != nil {
		e.finish(ctx, t, models.WorkTicketStatusFailed, len(result.WorkOutputs))
		_ = e.requests.MarkFailed(ctx, t.WorkRequestID, runErr.Error())
		return runErr
	}

	if result.Cancelled {
		e.finish(ctx, t, models.WorkTicketStatusFailed, len(result.WorkOutputs))
		_ = e.requests.MarkFailed(ctx, t.WorkRequestID, "cancelled")
		return apperr.New(apperr.Cancelled, "ticket execution cancelled")
	}

	if result.Messages != nil {
		if err := e.sessions.UpdateState(ctx, t.SessionID, agentruntime.SessionState{Messages: result.Messages}); err != nil {
			slog.Warn("failed to persist session conversation state", "ticket_id", ticketID, "error", err)
		}
	}
	if result.ProviderHandle != "" {
		if err := e.sessions.UpdateProviderHandle(ctx, t.SessionID, result.ProviderHandle); err != nil {
			slog.Warn("failed to persist session provider handle", "ticket_id", ticketID, "error", err)
		}
	}

	outputs, err := e.substrate.ListWorkOutputs(ctx, userToken, substrate.ListWorkOutputsFilter{TicketID: ticketID})
	if err != nil {
		slog.Warn("failed to fetch emitted outputs for checkpoint detection", "ticket_id", ticketID, "error", err)
	}

	finalStatus := models.WorkTicketStatusCompleted
	if agentruntime.DetectCheckpoint(outputs) {
		finalStatus = models.WorkTicketStatusPendingReview
	}

	e.finish(ctx, t, finalStatus, len(result.WorkOutputs))

	summary := result.ResponseText
	if len(summary) > 500 {
		summary = summary[:500]
	}
	if err := e.requests.MarkCompleted(ctx, t.WorkRequestID, summary); err != nil {
		slog.Warn("failed to mark work request completed", "ticket_id", ticketID, "error", err)
	}

	return nil
}

// Cancel fires the cooperative cancel signal for an in-flight ticket, if any.
func (e *Executor) Cancel(ticketID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.cancels[ticketID]
	if ok {
		cancel()
	}
	return ok
}

func (e *Executor) registerCancel(ticketID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels[ticketID] = cancel
}

func (e *Executor) unregisterCancel(ticketID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancels, ticketID)
}

func (e *Executor) get(ctx context.Context, id string) (*models.WorkTicket, error) {
	const q = `
		SELECT id, work_request_id, agent_session_id, basket_id, workspace_id, agent_kind, status,
		       started_at, ended_at, output_count, metadata, created_at, updated_at
		FROM work_tickets WHERE id = $1`
	t := &models.WorkTicket{}
	err := e.db.QueryRowContext(ctx, q, id).Scan(
		&t.ID, &t.WorkRequestID, &t.SessionID, &t.BasketID, &t.WorkspaceID, &t.AgentKind, &t.Status,
		&t.StartedAt, &t.EndedAt, &t.OutputCount, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "ticket not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "get ticket")
	}
	return t, nil
}

func (e *Executor) transitionRunning(ctx context.Context, id string) error {
	now := time.Now()
	res, err := e.db.ExecContext(ctx, `
		UPDATE work_tickets SET status = 'running', started_at = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'paused')`, id, now)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "transition ticket running")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "rows affected")
	}
	if n == 0 {
		return apperr.New(apperr.Conflict, "ticket is not in a runnable state")
	}
	return nil
}

func (e *Executor) finish(ctx context.Context, t *models.WorkTicket, status models.WorkTicketStatus, outputCount int) {
	metadata, _ := json.Marshal(map[string]any{"output_count": outputCount})
	_, err := e.db.ExecContext(ctx, `
		UPDATE work_tickets SET status = $2, ended_at = now(), output_count = $3, metadata = $4, updated_at = now()
		WHERE id = $1`, t.ID, status, outputCount, metadata)
	if err != nil {
		slog.Error("failed to finalize ticket", "ticket_id", t.ID, "status", status, "error", err)
	}
}

// Create inserts a pending WorkTicket for an admitted WorkRequest; it is the
// (C -> D -> G) seam the scaffolder and the /api/work/queue route both use.
func Create(ctx context.Context, db *sql.DB, workRequestID string, sess *models.AgentSession) (*models.WorkTicket, error) {
	const q = `
		INSERT INTO work_tickets (work_request_id, agent_session_id, basket_id, workspace_id, agent_kind, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, work_request_id, agent_session_id, basket_id, workspace_id, agent_kind, status,
		          started_at, ended_at, output_count, metadata, created_at, updated_at`
	t := &models.WorkTicket{}
	err := db.QueryRowContext(ctx, q, workRequestID, sess.ID, sess.BasketID, sess.WorkspaceID, sess.AgentKind).Scan(
		&t.ID, &t.WorkRequestID, &t.SessionID, &t.BasketID, &t.WorkspaceID, &t.AgentKind, &t.Status,
		&t.StartedAt, &t.EndedAt, &t.OutputCount, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "insert ticket")
	}
	return t, nil
}

// Get fetches a ticket by id, for read routes (GET /api/work/tickets/{id}).
func Get(ctx context.Context, db *sql.DB, id string) (*models.WorkTicket, error) {
	const q = `
		SELECT id, work_request_id, agent_session_id, basket_id, workspace_id, agent_kind, status,
		       started_at, ended_at, output_count, metadata, created_at, updated_at
		FROM work_tickets WHERE id = $1`
	t := &models.WorkTicket{}
	err := db.QueryRowContext(ctx, q, id).Scan(
		&t.ID, &t.WorkRequestID, &t.SessionID, &t.BasketID, &t.WorkspaceID, &t.AgentKind, &t.Status,
		&t.StartedAt, &t.EndedAt, &t.OutputCount, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("ticket %s not found", id))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "get ticket")
	}
	return t, nil
}

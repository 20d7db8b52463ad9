// Package cleanup provides a background retention job that deletes old,
// terminal work_requests/work_tickets rows so the tables don't grow
// unbounded. Grounded on the teacher's pkg/cleanup ticker-driven loop
// structure; the session/event soft-delete domain it originally operated on
// has no analog here, so this core's own terminal-state tables
// (work_requests, work_tickets) take their place, queried directly against
// *sql.DB rather than through the teacher's ent-backed service layer.
package cleanup

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Service periodically deletes terminal work_requests/work_tickets rows
// older than the configured retention window. A ticket row is only deleted
// once its parent work_request row is also gone (FK-ordered), so requests
// are deleted first.
type Service struct {
	db              *sql.DB
	retentionDays   int
	cleanupInterval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service against db.
func NewService(db *sql.DB, retentionDays int, cleanupInterval time.Duration) *Service {
	return &Service{db: db, retentionDays: retentionDays, cleanupInterval: cleanupInterval}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started", "retention_days", s.retentionDays, "interval", s.cleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.deleteOldWorkRequests(ctx)
}

// deleteOldWorkRequests removes terminal work_requests (and their cascaded
// work_tickets, via ON DELETE CASCADE) whose updated_at is older than the
// retention window. Pending/running requests are never touched regardless
// of age.
func (s *Service) deleteOldWorkRequests(ctx context.Context) {
	const q = `
		DELETE FROM work_requests
		WHERE status IN ('completed', 'failed')
		  AND updated_at < now() - make_interval(days => $1)`

	res, err := s.db.ExecContext(ctx, q, s.retentionDays)
	if err != nil {
		slog.Error("retention: delete old work_requests failed", "error", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.Info("retention: deleted old work_requests", "count", n)
	}
}

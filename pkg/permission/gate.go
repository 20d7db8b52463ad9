// Package permission implements the trial-count and subscription check that
// gates admission of a new work request.
package permission

import (
	"context"
	"database/sql"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
	"github.com/codeready-toolchain/agentcore/pkg/models"
)

// SubscriptionLookup checks whether a user has an active agent subscription.
// The owning subscription/billing system is out of scope (spec §1); this is
// the swappable seam the core depends on instead.
type SubscriptionLookup interface {
	HasActiveSubscription(ctx context.Context, userID, workspaceID string, agentKind models.AgentKind) (bool, error)
}

// Decision is the outcome of Check.
type Decision struct {
	IsSubscribed    bool
	RemainingTrials int
}

// Gate implements the Permission/Quota Gate.
type Gate struct {
	db           *sql.DB
	subscription SubscriptionLookup
	trialCap     int
}

// New builds a Gate. trialCap is the default (10) unless configured otherwise.
func New(db *sql.DB, subscription SubscriptionLookup, trialCap int) *Gate {
	if trialCap <= 0 {
		trialCap = 10
	}
	return &Gate{db: db, subscription: subscription, trialCap: trialCap}
}

// Check is a pure read; no mutation. See spec.md §4.B.
func (g *Gate) Check(ctx context.Context, userID, workspaceID string, agentKind models.AgentKind) (Decision, error) {
	subscribed, err := g.subscription.HasActiveSubscription(ctx, userID, workspaceID, agentKind)
	if err != nil {
		return Decision{}, apperr.Wrap(apperr.Internal, err, "subscription lookup failed")
	}
	if subscribed {
		return Decision{IsSubscribed: true}, nil
	}

	count, err := g.countNonFailedTerminalOrRunning(ctx, userID, workspaceID)
	if err != nil {
		return Decision{}, apperr.Wrap(apperr.Internal, err, "trial count query failed")
	}

	if count >= g.trialCap {
		return Decision{}, apperr.New(apperr.PermissionDenied, "trial exhausted").WithDetails(map[string]any{
			"cap":   g.trialCap,
			"count": count,
		})
	}

	return Decision{IsSubscribed: false, RemainingTrials: g.trialCap - count}, nil
}

// countNonFailedTerminalOrRunning counts WorkRequest rows for (user, workspace)
// whose status is completed or running — i.e. everything except pending
// (not yet admitted) and failed (doesn't consume quota).
func (g *Gate) countNonFailedTerminalOrRunning(ctx context.Context, userID, workspaceID string) (int, error) {
	const q = `
		SELECT count(*) FROM work_requests
		WHERE user_id = $1 AND workspace_id = $2 AND is_trial = true
		  AND status IN ('completed', 'running')`
	var count int
	if err := g.db.QueryRowContext(ctx, q, userID, workspaceID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

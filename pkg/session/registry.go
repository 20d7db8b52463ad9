// Package session implements the persistent Session Registry (component D):
// get-or-create with thinking-partner parent linkage, and a per-session
// mutex map serializing concurrent ticket execution against one session.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
	"github.com/codeready-toolchain/agentcore/pkg/models"
)

// Registry is the Session Registry.
type Registry struct {
	db *sql.DB

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a Registry.
func New(db *sql.DB) *Registry {
	return &Registry{db: db, locks: make(map[string]*sync.Mutex)}
}

// GetOrCreate returns the session for (basket, agent_kind), inserting one
// (and, transitively, the thinking_partner parent) if it does not exist yet.
// Concurrent calls for the same (basket, agent_kind) all observe the same
// resulting row (spec §8 "Session uniqueness").
func (r *Registry) GetOrCreate(ctx context.Context, basketID, workspaceID string, agentKind models.AgentKind) (*models.AgentSession, error) {
	if existing, err := r.get(ctx, basketID, agentKind); err == nil {
		return existing, nil
	} else if apperr.KindOf(err) != apperr.NotFound {
		return nil, err
	}

	var parentID *string
	if agentKind != models.AgentKindThinkingPartner {
		tp, err := r.GetOrCreate(ctx, basketID, workspaceID, models.AgentKindThinkingPartner)
		if err != nil {
			return nil, err
		}
		id := tp.ID
		parentID = &id
	}

	session, err := r.insert(ctx, basketID, workspaceID, agentKind, parentID)
	if err != nil {
		// Lost the race against a concurrent insert for the same
		// (basket, agent_kind): fall back to the row the winner created.
		if isUniqueViolation(err) {
			return r.get(ctx, basketID, agentKind)
		}
		return nil, err
	}
	return session, nil
}

func (r *Registry) get(ctx context.Context, basketID string, agentKind models.AgentKind) (*models.AgentSession, error) {
	const q = `
		SELECT id, basket_id, workspace_id, agent_kind, parent_session_id, created_by_session_id,
		       provider_handle, state, metadata, created_at, updated_at
		FROM agent_sessions WHERE basket_id = $1 AND agent_kind = $2`
	s := &models.AgentSession{}
	err := r.db.QueryRowContext(ctx, q, basketID, agentKind).Scan(
		&s.ID, &s.BasketID, &s.WorkspaceID, &s.AgentKind, &s.ParentSessionID, &s.CreatedBySessionID,
		&s.ProviderHandle, &s.State, &s.Metadata, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "session not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "get session")
	}
	return s, nil
}

func (r *Registry) insert(ctx context.Context, basketID, workspaceID string, agentKind models.AgentKind, parentID *string) (*models.AgentSession, error) {
	const q = `
		INSERT INTO agent_sessions (basket_id, workspace_id, agent_kind, parent_session_id, created_by_session_id, state, metadata)
		VALUES ($1, $2, $3, $4, $4, '{}', '{}')
		RETURNING id, basket_id, workspace_id, agent_kind, parent_session_id, created_by_session_id,
		          provider_handle, state, metadata, created_at, updated_at`
	s := &models.AgentSession{}
	err := r.db.QueryRowContext(ctx, q, basketID, workspaceID, agentKind, parentID).Scan(
		&s.ID, &s.BasketID, &s.WorkspaceID, &s.AgentKind, &s.ParentSessionID, &s.CreatedBySessionID,
		&s.ProviderHandle, &s.State, &s.Metadata, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "insert session")
	}
	return s, nil
}

// UpdateProviderHandle stores the provider's opaque conversation handle
// after the runtime's first turn for this session.
func (r *Registry) UpdateProviderHandle(ctx context.Context, id, handle string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE agent_sessions SET provider_handle = $2, updated_at = now() WHERE id = $1`, id, handle)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "update provider handle")
	}
	return nil
}

// UpdateState persists the session's opaque state blob.
func (r *Registry) UpdateState(ctx context.Context, id string, state any) error {
	b, err := json.Marshal(state)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "marshal session state")
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE agent_sessions SET state = $2, updated_at = now() WHERE id = $1`, id, b)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "update session state")
	}
	return nil
}

// GetByBasketAndKind fetches a session by its (basket, agent_kind) key
// without creating one, for read-only routes.
func (r *Registry) GetByBasketAndKind(ctx context.Context, basketID string, agentKind models.AgentKind) (*models.AgentSession, error) {
	return r.get(ctx, basketID, agentKind)
}

// Get fetches a session by ID.
func (r *Registry) Get(ctx context.Context, id string) (*models.AgentSession, error) {
	const q = `
		SELECT id, basket_id, workspace_id, agent_kind, parent_session_id, created_by_session_id,
		       provider_handle, state, metadata, created_at, updated_at
		FROM agent_sessions WHERE id = $1`
	s := &models.AgentSession{}
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.BasketID, &s.WorkspaceID, &s.AgentKind, &s.ParentSessionID, &s.CreatedBySessionID,
		&s.ProviderHandle, &s.State, &s.Metadata, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "session not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "get session")
	}
	return s, nil
}

// Lock returns the per-session mutex, creating it on first use. Callers
// must hold it for the duration of one ticket's execution against the
// session — the registry does not otherwise prevent interleaved turns
// against the same provider handle (spec §5 "Sessions").
func (r *Registry) Lock(sessionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[sessionID] = l
	}
	return l
}

func isUniqueViolation(err error) bool {
	// pgx/stdlib surfaces a *pgconn.PgError; checking the SQLSTATE string
	// keeps this package free of a direct pgconn import for a single check.
	return err != nil && contains(err.Error(), "SQLSTATE 23505")
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}

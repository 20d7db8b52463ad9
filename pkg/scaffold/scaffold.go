// Package scaffold implements the Project Scaffolder (component J): a
// transactional one-shot onboarding sequence, grounded on the teacher's
// services.SessionService.CreateSession multi-step, per-step-wrapped
// transaction idiom.
package scaffold

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/permission"
	"github.com/codeready-toolchain/agentcore/pkg/session"
	"github.com/codeready-toolchain/agentcore/pkg/substrate"
	"github.com/codeready-toolchain/agentcore/pkg/workrequest"
)

// Input is what the caller supplies to onboard a new project.
type Input struct {
	UserID          string
	WorkspaceID     string
	Name            string
	Description     string
	InitialContext  string
	UserToken       string
}

// Summary lists every ID created by a successful scaffold run (spec §4.J
// "Return a summary listing all created IDs").
type Summary struct {
	BasketID              string
	IntentBlockID         string
	DumpID                string
	ProjectID             string
	ThinkingPartnerID     string
	SpecialistSessionIDs  []string
	WorkRequestID         string
}

// Scaffolder runs the onboarding sequence.
type Scaffolder struct {
	db        *sql.DB
	gate      *permission.Gate
	client    substrate.API
	sessions  *session.Registry
	requests  *workrequest.Recorder
}

// New builds a Scaffolder.
func New(db *sql.DB, gate *permission.Gate, client substrate.API, sessions *session.Registry, requests *workrequest.Recorder) *Scaffolder {
	return &Scaffolder{db: db, gate: gate, client: client, sessions: sessions, requests: requests}
}

// stepError identifies which step failed (spec §8 scenario 6: "the error
// returned identifies step=...").
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return fmt.Sprintf("scaffold step %q failed: %v", e.step, e.err) }
func (e *stepError) Unwrap() error { return e.err }

// Run executes the full sequence (spec §4.J steps 1-7).
func (s *Scaffolder) Run(ctx context.Context, in Input) (Summary, error) {
	summary := Summary{}

	// Step 1: gate on agent_kind=research.
	if _, err := s.gate.Check(ctx, in.UserID, in.WorkspaceID, models.AgentKindResearch); err != nil {
		return summary, &stepError{step: "permission_check", err: err}
	}

	// Step 2: create_basket.
	basketID, err := s.client.CreateBasket(ctx, in.UserToken, map[string]any{"origin": "scaffold", "name": in.Name})
	if err != nil {
		return summary, &stepError{step: "create_basket", err: err}
	}
	summary.BasketID = basketID

	// Step 3: foundational intent anchor block.
	intentID, err := s.client.CreateAnchorBlock(ctx, in.UserToken, basketID, "intent", "intent", in.Description, 1.0, "ACCEPTED")
	if err != nil {
		return summary, &stepError{step: "create_intent_block", err: err}
	}
	summary.IntentBlockID = intentID

	// Step 4: optional create_dump.
	if in.InitialContext != "" {
		dumpID, err := s.client.CreateDump(ctx, in.UserToken, basketID, []byte(in.InitialContext))
		if err != nil {
			return summary, &stepError{step: "create_dump", err: err}
		}
		summary.DumpID = dumpID
	}

	// Step 5: insert the Project row.
	const insertProject = `
		INSERT INTO projects (workspace_id, basket_id, name, description, status)
		VALUES ($1, $2, $3, $4, 'active') RETURNING id`
	var projectID string
	if err := s.db.QueryRowContext(ctx, insertProject, in.WorkspaceID, basketID, in.Name, in.Description).Scan(&projectID); err != nil {
		return summary, &stepError{step: "create_project", err: apperr.Wrap(apperr.Internal, err, "insert project")}
	}
	summary.ProjectID = projectID

	// Step 6: TP session first, then three specialists parented to it.
	tp, err := s.sessions.GetOrCreate(ctx, basketID, in.WorkspaceID, models.AgentKindThinkingPartner)
	if err != nil {
		return summary, &stepError{step: "create_thinking_partner_session", err: err}
	}
	summary.ThinkingPartnerID = tp.ID

	for _, kind := range []models.AgentKind{models.AgentKindResearch, models.AgentKindContent, models.AgentKindReporting} {
		sess, err := s.sessions.GetOrCreate(ctx, basketID, in.WorkspaceID, kind)
		if err != nil {
			return summary, &stepError{step: fmt.Sprintf("create_%s_session", kind), err: err}
		}
		summary.SpecialistSessionIDs = append(summary.SpecialistSessionIDs, sess.ID)
	}

	// Step 7: record the work-request.
	workRequestID, err := s.requests.Create(ctx, in.UserID, in.WorkspaceID, basketID, models.AgentKindResearch, "scaffold", map[string]any{"project_id": projectID}, false)
	if err != nil {
		return summary, &stepError{step: "record_work_request", err: err}
	}
	summary.WorkRequestID = workRequestID

	return summary, nil
}

package substrate

import (
	"context"

	"github.com/codeready-toolchain/agentcore/pkg/models"
)

// API is the substrate surface consumed by the rest of the core. *Client
// satisfies it; tests substitute a hand-written fake (mirroring the
// teacher's stub-executor pattern) instead of hitting a real service.
type API interface {
	Health(ctx context.Context) error
	CreateBasket(ctx context.Context, token string, originMetadata map[string]any) (string, error)
	GetBasketBlocks(ctx context.Context, token, basketID, state string, limit int) ([]map[string]any, error)
	CreateDump(ctx context.Context, token, basketID string, content []byte) (string, error)
	CreateWorkOutput(ctx context.Context, token string, out *models.WorkOutput) (string, error)
	ListWorkOutputs(ctx context.Context, token string, f ListWorkOutputsFilter) ([]models.WorkOutput, error)
	GetWorkOutput(ctx context.Context, token, outputID string) (models.WorkOutput, error)
	UpdateWorkOutput(ctx context.Context, token, outputID string, status models.SupervisionStatus, reviewerNotes string) error
	MarkOutputPromoted(ctx context.Context, token, outputID, proposalID string, method models.PromotionMethod, userID string) error
	SkipOutputPromotion(ctx context.Context, token, outputID string) error
	CreateProposal(ctx context.Context, token string, p Proposal) (string, error)
	GetReferenceAssets(ctx context.Context, token, basketID string, agentKind models.AgentKind, ticketID, permanence string) ([]map[string]any, error)
	InitiateWork(ctx context.Context, token, basketID, jobType string, params map[string]any) (string, error)
	GetWorkStatus(ctx context.Context, token, jobID string) (map[string]any, error)
	ReadContextItem(ctx context.Context, token, basketID, itemType string, itemKey *string) (*models.ContextItem, bool, error)
	ListContextItems(ctx context.Context, token, basketID string, tier models.ContextTier) ([]models.ContextItem, error)
	UpsertContextItem(ctx context.Context, token, basketID, itemType string, itemKey *string, content map[string]any, completeness float64, tier models.ContextTier) (string, error)
	CreateGovernanceProposal(ctx context.Context, token, basketID, itemType string, itemKey *string, content map[string]any) (string, error)
	CreateAnchorBlock(ctx context.Context, token, basketID, semanticType, anchorRole, body string, confidence float64, state string) (string, error)
}

var _ API = (*Client)(nil)

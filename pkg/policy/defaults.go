// Package policy provides the default implementations of the small
// swappable seams the core depends on but does not own: subscription
// status, workspace promotion settings, recipe definitions, and context
// schemas. Each of these is explicitly out of scope for this core (spec §1)
// and owned by another service in a real deployment; the defaults here keep
// the orchestrator runnable standalone and are the seam an operator swaps
// for a real backing client.
package policy

import (
	"context"
	"sync"

	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/tools"
)

// NoSubscriptions reports every user as unsubscribed, forcing trial-cap
// accounting for all requests. A real deployment replaces this with a
// client into the subscription/billing service.
type NoSubscriptions struct{}

func (NoSubscriptions) HasActiveSubscription(ctx context.Context, userID, workspaceID string, agentKind models.AgentKind) (bool, error) {
	return false, nil
}

// ManualPromotion never auto-promotes; every approved output waits for an
// explicit POST .../promote call.
type ManualPromotion struct{}

func (ManualPromotion) PromotionMode(ctx context.Context, workspaceID string) (bool, error) {
	return false, nil
}

func (ManualPromotion) AutoPromoteTypes(ctx context.Context, workspaceID string) ([]models.OutputType, error) {
	return nil, nil
}

// NoGovernance never routes a foundation-tier write_context call through a
// governance proposal.
type NoGovernance struct{}

func (NoGovernance) RequiresProposal(workspaceID string) bool { return false }

// StaticRecipes is an in-memory RecipeCatalog seeded at startup. A real
// deployment loads these from substrate or a config service instead.
type StaticRecipes struct {
	mu      sync.RWMutex
	recipes map[string]tools.Recipe
}

// NewStaticRecipes builds a catalog from a fixed recipe list.
func NewStaticRecipes(recipes []tools.Recipe) *StaticRecipes {
	m := make(map[string]tools.Recipe, len(recipes))
	for _, r := range recipes {
		m[r.Slug] = r
	}
	return &StaticRecipes{recipes: m}
}

func (s *StaticRecipes) List(category string) ([]tools.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tools.Recipe, 0, len(s.recipes))
	for _, r := range s.recipes {
		if !r.Active {
			continue
		}
		if category != "" && r.Category != category {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *StaticRecipes) Get(slug string) (tools.Recipe, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recipes[slug]
	return r, ok, nil
}

// NoSchemas treats every item_type as schema-less: writes are always fully
// complete and default to the working tier.
type NoSchemas struct{}

func (NoSchemas) SchemaFor(itemType string) (map[string]any, bool) { return nil, false }

func (NoSchemas) DefaultTier(itemType string) models.ContextTier {
	return models.ContextTierWorking
}

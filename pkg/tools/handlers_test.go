package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/substrate"
)

type stubSubstrate struct {
	substrate.API
	createOutputID   string
	contextItem      *models.ContextItem
	contextFound     bool
	upsertID         string
	proposalID       string
	listContextItems []models.ContextItem
}

func (s *stubSubstrate) CreateWorkOutput(ctx context.Context, token string, out *models.WorkOutput) (string, error) {
	return s.createOutputID, nil
}

func (s *stubSubstrate) ReadContextItem(ctx context.Context, token, basketID, itemType string, itemKey *string) (*models.ContextItem, bool, error) {
	return s.contextItem, s.contextFound, nil
}

func (s *stubSubstrate) UpsertContextItem(ctx context.Context, token, basketID, itemType string, itemKey *string, content map[string]any, completeness float64, tier models.ContextTier) (string, error) {
	return s.upsertID, nil
}

func (s *stubSubstrate) CreateGovernanceProposal(ctx context.Context, token, basketID, itemType string, itemKey *string, content map[string]any) (string, error) {
	return s.proposalID, nil
}

func (s *stubSubstrate) ListContextItems(ctx context.Context, token, basketID string, tier models.ContextTier) ([]models.ContextItem, error) {
	return s.listContextItems, nil
}

type stubRecipes struct {
	list  []Recipe
	byMap map[string]Recipe
}

func (s stubRecipes) List(category string) ([]Recipe, error) { return s.list, nil }
func (s stubRecipes) Get(slug string) (Recipe, bool, error) {
	r, ok := s.byMap[slug]
	return r, ok, nil
}

type stubSchemas struct {
	schema map[string]any
	has    bool
	tier   models.ContextTier
}

func (s stubSchemas) SchemaFor(itemType string) (map[string]any, bool) { return s.schema, s.has }
func (s stubSchemas) DefaultTier(itemType string) models.ContextTier   { return s.tier }

type stubGovernance struct{ requires bool }

func (s stubGovernance) RequiresProposal(workspaceID string) bool { return s.requires }

func TestEmitWorkOutputReturnsID(t *testing.T) {
	cat := NewCatalog()
	client := &stubSubstrate{createOutputID: "out-1"}
	require.NoError(t, registerEmitWorkOutput(cat, client))

	args := json.RawMessage(`{"output_type":"finding","title":"t","body":"b","confidence":0.8}`)
	result, err := cat.Dispatch(context.Background(), "emit_work_output", args, CallContext{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, map[string]any{"id": "out-1"}, result.Value)
}

func TestReadContextReportsNotFound(t *testing.T) {
	cat := NewCatalog()
	client := &stubSubstrate{contextFound: false}
	require.NoError(t, registerReadContext(cat, client))

	args := json.RawMessage(`{"item_type":"incident_summary"}`)
	result, err := cat.Dispatch(context.Background(), "read_context", args, CallContext{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"found": false}, result.Value)
}

func TestWriteContextRoutesFoundationWritesThroughGovernance(t *testing.T) {
	cat := NewCatalog()
	client := &stubSubstrate{proposalID: "prop-1"}
	schemas := stubSchemas{has: false, tier: models.ContextTierFoundation}
	governance := stubGovernance{requires: true}
	require.NoError(t, registerWriteContext(cat, client, schemas, governance))

	args := json.RawMessage(`{"item_type":"charter","content":{"goal":"ship it"}}`)
	result, err := cat.Dispatch(context.Background(), "write_context", args, CallContext{Workspace: "ws-1"})
	require.NoError(t, err)
	value := result.Value.(map[string]any)
	assert.Equal(t, "proposed", value["action"])
	assert.Equal(t, "prop-1", value["proposal_id"])
}

func TestWriteContextSavesDirectlyWhenNotFoundation(t *testing.T) {
	cat := NewCatalog()
	client := &stubSubstrate{upsertID: "item-1"}
	schemas := stubSchemas{has: false, tier: models.ContextTierWorking}
	governance := stubGovernance{requires: true}
	require.NoError(t, registerWriteContext(cat, client, schemas, governance))

	args := json.RawMessage(`{"item_type":"note","content":{"k":"v"}}`)
	result, err := cat.Dispatch(context.Background(), "write_context", args, CallContext{Workspace: "ws-1"})
	require.NoError(t, err)
	value := result.Value.(map[string]any)
	assert.Equal(t, "saved", value["action"])
	assert.Equal(t, "item-1", value["id"])
}

func TestComputeCompletenessWithNoSchemaIsFull(t *testing.T) {
	schemas := stubSchemas{has: false}
	assert.Equal(t, 1.0, computeCompleteness(schemas, "anything", nil))
}

func TestComputeCompletenessCountsFilledRequiredFields(t *testing.T) {
	schemas := stubSchemas{
		has:    true,
		schema: map[string]any{"required": []any{"a", "b"}},
	}
	completeness := computeCompleteness(schemas, "t", map[string]any{"a": "x"})
	assert.Equal(t, 0.5, completeness)
}

func TestTriggerRecipeRejectsUnknownSlug(t *testing.T) {
	cat := NewCatalog()
	recipes := stubRecipes{byMap: map[string]Recipe{}}
	triggered := false
	trigger := TriggerRecipe(func(ctx context.Context, callCtx CallContext, slug string, params map[string]any, priority string) (string, error) {
		triggered = true
		return "ticket-1", nil
	})
	require.NoError(t, registerTriggerRecipe(cat, recipes, trigger))

	args := json.RawMessage(`{"recipe_slug":"nope","parameters":{}}`)
	result, err := cat.Dispatch(context.Background(), "trigger_recipe", args, CallContext{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.False(t, triggered)
}

func TestTriggerRecipeInvokesTriggerOnKnownSlug(t *testing.T) {
	cat := NewCatalog()
	recipes := stubRecipes{byMap: map[string]Recipe{"a": {Slug: "a", Active: true}}}
	trigger := TriggerRecipe(func(ctx context.Context, callCtx CallContext, slug string, params map[string]any, priority string) (string, error) {
		return "ticket-1", nil
	})
	require.NoError(t, registerTriggerRecipe(cat, recipes, trigger))

	args := json.RawMessage(`{"recipe_slug":"a","parameters":{}}`)
	result, err := cat.Dispatch(context.Background(), "trigger_recipe", args, CallContext{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, map[string]any{"work_ticket_id": "ticket-1"}, result.Value)
}

func TestWebSearchIsNotLocallyDispatchable(t *testing.T) {
	cat := NewCatalog()
	require.NoError(t, registerWebSearch(cat))

	result, err := cat.Dispatch(context.Background(), "web_search", json.RawMessage(`{"query":"x"}`), CallContext{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

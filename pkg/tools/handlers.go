package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/substrate"
)

// Recipe is a named work template (see GLOSSARY).
type Recipe struct {
	Slug             string         `json:"slug"`
	Category         string         `json:"category"`
	RequiredContext  []string       `json:"required_context"`
	ParameterSchema  map[string]any `json:"parameter_schema"`
	Active           bool           `json:"active"`
}

// RecipeCatalog is the read-only source of recipe definitions.
type RecipeCatalog interface {
	List(category string) ([]Recipe, error)
	Get(slug string) (Recipe, bool, error)
}

// ContextSchemaLookup reports the required-field schema for an item_type, if any.
type ContextSchemaLookup interface {
	SchemaFor(itemType string) (map[string]any, bool)
	DefaultTier(itemType string) models.ContextTier
}

// GovernancePolicy decides whether a foundation-tier write needs a proposal.
type GovernancePolicy interface {
	RequiresProposal(workspaceID string) bool
}

// TriggerRecipe is the seam into the Work Request Recorder + Permission Gate
// used by trigger_recipe (admits another work request through C).
type TriggerRecipe func(ctx context.Context, callCtx CallContext, recipeSlug string, parameters map[string]any, priority string) (ticketID string, err error)

// RegisterCoreTools wires every core tool from spec.md §4.E into cat.
func RegisterCoreTools(
	cat *Catalog,
	client substrate.API,
	recipes RecipeCatalog,
	schemas ContextSchemaLookup,
	governance GovernancePolicy,
	triggerRecipe TriggerRecipe,
) error {
	if err := registerEmitWorkOutput(cat, client); err != nil {
		return err
	}
	if err := registerReadContext(cat, client); err != nil {
		return err
	}
	if err := registerWriteContext(cat, client, schemas, governance); err != nil {
		return err
	}
	if err := registerListContext(cat, client, schemas); err != nil {
		return err
	}
	if err := registerListRecipes(cat, recipes); err != nil {
		return err
	}
	if err := registerTriggerRecipe(cat, recipes, triggerRecipe); err != nil {
		return err
	}
	if err := registerWebSearch(cat); err != nil {
		return err
	}
	if err := registerDocumentSkill(cat); err != nil {
		return err
	}
	return nil
}

var emitWorkOutputSchema = []byte(`{
	"type": "object",
	"required": ["output_type", "title", "body", "confidence"],
	"properties": {
		"output_type": {"type": "string"},
		"title": {"type": "string"},
		"body": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"source_context_ids": {"type": "array", "items": {"type": "string"}},
		"tool_call_id": {"type": "string"}
	}
}`)

func registerEmitWorkOutput(cat *Catalog, client substrate.API) error {
	return cat.Register(Definition{
		Name:        "emit_work_output",
		Description: "Persist one structured artifact produced during this ticket.",
		InputSchema: mustSchema(emitWorkOutputSchema),
	}, emitWorkOutputSchema, func(ctx context.Context, args json.RawMessage, callCtx CallContext) (Result, error) {
		var in struct {
			OutputType       string   `json:"output_type"`
			Title            string   `json:"title"`
			Body             string   `json:"body"`
			Confidence       float64  `json:"confidence"`
			SourceContextIDs []string `json:"source_context_ids"`
			ToolCallID       string   `json:"tool_call_id"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return Result{IsError: true, Value: err.Error()}, nil
		}

		out := &models.WorkOutput{
			BasketID:          callCtx.Basket,
			WorkTicketID:       callCtx.Ticket,
			AgentKind:          callCtx.AgentKind,
			OutputType:         models.OutputType(in.OutputType),
			Title:              in.Title,
			Body:               in.Body,
			Confidence:         in.Confidence,
			SourceContextIDs:   in.SourceContextIDs,
			ToolCallID:         in.ToolCallID,
			SupervisionStatus:  models.SupervisionStatusPendingReview,
		}

		id, err := client.CreateWorkOutput(ctx, callCtx.UserToken, out)
		if err != nil {
			return Result{}, err
		}
		return Result{Value: map[string]any{"id": id}}, nil
	})
}

var readContextSchema = []byte(`{
	"type": "object",
	"required": ["item_type"],
	"properties": {
		"item_type": {"type": "string"},
		"item_key": {"type": "string"},
		"fields": {"type": "array", "items": {"type": "string"}}
	}
}`)

func registerReadContext(cat *Catalog, client substrate.API) error {
	return cat.Register(Definition{
		Name:        "read_context",
		Description: "Read the most recently updated context item of a given type for this basket.",
		InputSchema: mustSchema(readContextSchema),
	}, readContextSchema, func(ctx context.Context, args json.RawMessage, callCtx CallContext) (Result, error) {
		var in struct {
			ItemType string  `json:"item_type"`
			ItemKey  *string `json:"item_key"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return Result{IsError: true, Value: err.Error()}, nil
		}

		item, found, err := client.ReadContextItem(ctx, callCtx.UserToken, callCtx.Basket, in.ItemType, in.ItemKey)
		if err != nil {
			return Result{}, err
		}
		if !found {
			return Result{Value: map[string]any{"found": false}}, nil
		}
		return Result{Value: map[string]any{
			"found":              true,
			"tier":               item.Tier,
			"content":            item.Content,
			"completeness_score": item.CompletenessScore,
		}}, nil
	})
}

var writeContextSchema = []byte(`{
	"type": "object",
	"required": ["item_type", "content"],
	"properties": {
		"item_type": {"type": "string"},
		"item_key": {"type": "string"},
		"content": {"type": "object"},
		"title": {"type": "string"}
	}
}`)

func registerWriteContext(cat *Catalog, client substrate.API, schemas ContextSchemaLookup, governance GovernancePolicy) error {
	return cat.Register(Definition{
		Name:        "write_context",
		Description: "Write (create or update) a structured context item for this basket.",
		InputSchema: mustSchema(writeContextSchema),
	}, writeContextSchema, func(ctx context.Context, args json.RawMessage, callCtx CallContext) (Result, error) {
		var in struct {
			ItemType string         `json:"item_type"`
			ItemKey  *string        `json:"item_key"`
			Content  map[string]any `json:"content"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return Result{IsError: true, Value: err.Error()}, nil
		}

		completeness := computeCompleteness(schemas, in.ItemType, in.Content)
		tier := schemas.DefaultTier(in.ItemType)

		if tier == models.ContextTierFoundation && governance.RequiresProposal(callCtx.Workspace) {
			id, err := client.CreateGovernanceProposal(ctx, callCtx.UserToken, callCtx.Basket, in.ItemType, in.ItemKey, in.Content)
			if err != nil {
				return Result{}, err
			}
			return Result{Value: map[string]any{
				"action":            "proposed",
				"requires_approval": true,
				"proposal_id":       id,
			}}, nil
		}

		id, err := client.UpsertContextItem(ctx, callCtx.UserToken, callCtx.Basket, in.ItemType, in.ItemKey, in.Content, completeness, tier)
		if err != nil {
			return Result{}, err
		}
		return Result{Value: map[string]any{"action": "saved", "id": id, "completeness_score": completeness}}, nil
	})
}

// computeCompleteness = filled_required / total_required, or 1 if no schema exists.
func computeCompleteness(schemas ContextSchemaLookup, itemType string, content map[string]any) float64 {
	schema, ok := schemas.SchemaFor(itemType)
	if !ok {
		return 1.0
	}
	required, _ := schema["required"].([]any)
	if len(required) == 0 {
		return 1.0
	}
	filled := 0
	for _, r := range required {
		key, ok := r.(string)
		if !ok {
			continue
		}
		if v, present := content[key]; present && v != nil && v != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(required))
}

func registerListContext(cat *Catalog, client substrate.API, schemas ContextSchemaLookup) error {
	return cat.Register(Definition{
		Name:        "list_context",
		Description: "Group active context items by tier; include per-tier counts and overall completeness.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{"tier": map[string]any{"type": "string"}}},
	}, nil, func(ctx context.Context, args json.RawMessage, callCtx CallContext) (Result, error) {
		var in struct {
			Tier string `json:"tier"`
		}
		_ = json.Unmarshal(args, &in)

		items, err := client.ListContextItems(ctx, callCtx.UserToken, callCtx.Basket, models.ContextTier(in.Tier))
		if err != nil {
			return Result{}, err
		}

		byTier := map[models.ContextTier][]models.ContextItem{}
		var sum float64
		for _, item := range items {
			byTier[item.Tier] = append(byTier[item.Tier], item)
			sum += item.CompletenessScore
		}
		overall := 0.0
		if len(items) > 0 {
			overall = sum / float64(len(items))
		}

		counts := map[string]int{}
		for tier, rows := range byTier {
			counts[string(tier)] = len(rows)
		}

		return Result{Value: map[string]any{
			"counts":              counts,
			"overall_completeness": overall,
		}}, nil
	})
}

func registerListRecipes(cat *Catalog, recipes RecipeCatalog) error {
	return cat.Register(Definition{
		Name:        "list_recipes",
		Description: "Enumerate active recipes with their required context types and parameters.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{"category": map[string]any{"type": "string"}}},
	}, nil, func(ctx context.Context, args json.RawMessage, callCtx CallContext) (Result, error) {
		var in struct {
			Category string `json:"category"`
		}
		_ = json.Unmarshal(args, &in)

		list, err := recipes.List(in.Category)
		if err != nil {
			return Result{}, err
		}
		return Result{Value: list}, nil
	})
}

var triggerRecipeSchema = []byte(`{
	"type": "object",
	"required": ["recipe_slug", "parameters"],
	"properties": {
		"recipe_slug": {"type": "string"},
		"parameters": {"type": "object"},
		"priority": {"type": "string"}
	}
}`)

func registerTriggerRecipe(cat *Catalog, recipes RecipeCatalog, trigger TriggerRecipe) error {
	return cat.Register(Definition{
		Name:        "trigger_recipe",
		Description: "Admit another work request for the named recipe and return its ticket id.",
		InputSchema: mustSchema(triggerRecipeSchema),
	}, triggerRecipeSchema, func(ctx context.Context, args json.RawMessage, callCtx CallContext) (Result, error) {
		var in struct {
			RecipeSlug string         `json:"recipe_slug"`
			Parameters map[string]any `json:"parameters"`
			Priority   string         `json:"priority"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return Result{IsError: true, Value: err.Error()}, nil
		}

		recipe, found, err := recipes.Get(in.RecipeSlug)
		if err != nil {
			return Result{}, err
		}
		if !found {
			return Result{IsError: true, Value: fmt.Sprintf("unknown recipe: %s", in.RecipeSlug)}, nil
		}
		if err := validateRecipeParameters(recipe, in.Parameters); err != nil {
			return Result{IsError: true, Value: err.Error()}, nil
		}

		ticketID, err := trigger(ctx, callCtx, in.RecipeSlug, in.Parameters, in.Priority)
		if err != nil {
			return Result{}, err
		}
		return Result{Value: map[string]any{"work_ticket_id": ticketID}}, nil
	})
}

func validateRecipeParameters(recipe Recipe, parameters map[string]any) error {
	if recipe.ParameterSchema == nil {
		return nil
	}
	schemaBytes, err := json.Marshal(recipe.ParameterSchema)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "marshal recipe schema")
	}
	return validateAgainstSchema(schemaBytes, parameters)
}

func registerWebSearch(cat *Catalog) error {
	// Provider-hosted capability, not implemented locally; declared for LLM
	// awareness only (spec §4.E).
	return cat.Register(Definition{
		Name:        "web_search",
		Description: "Search the public web (provider-hosted; executed by the LLM provider, not dispatched locally).",
		InputSchema: map[string]any{"type": "object", "required": []any{"query"}, "properties": map[string]any{"query": map[string]any{"type": "string"}}},
	}, nil, func(ctx context.Context, args json.RawMessage, callCtx CallContext) (Result, error) {
		return Result{IsError: true, Value: "web_search is a provider-hosted tool and must not be dispatched locally"}, nil
	})
}

func registerDocumentSkill(cat *Catalog) error {
	return cat.Register(Definition{
		Name:        "document_skill",
		Description: "Generate a PPTX/XLSX/DOCX/PDF via a provider skill; returns file metadata to record via emit_work_output.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"skill_id", "spec"},
			"properties": map[string]any{
				"skill_id": map[string]any{"type": "string"},
				"spec":     map[string]any{"type": "object"},
			},
		},
	}, nil, func(ctx context.Context, args json.RawMessage, callCtx CallContext) (Result, error) {
		// Dispatch happens provider-side; the runtime records the resulting
		// file metadata through emit_work_output once the provider returns it.
		return Result{Value: map[string]any{"status": "delegated_to_provider"}}, nil
	})
}

func mustSchema(b []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	return m
}

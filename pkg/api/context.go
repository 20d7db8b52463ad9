package api

import (
	"context"

	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/substrate"
)

// dynamicContext computes the two inputs to the system prompt's dynamic
// context block (spec §4.F.1.c): referenced-asset titles and prior approved
// output titles for this agent_kind in this basket. Both are fetched from A
// server-side — a client-supplied referenced_assets list would let a caller
// forge context the agent treats as ground truth.
func dynamicContext(ctx context.Context, api substrate.API, token, basketID string, agentKind models.AgentKind, ticketID string) ([]string, []string, error) {
	assets, err := api.GetReferenceAssets(ctx, token, basketID, agentKind, ticketID, "")
	if err != nil {
		return nil, nil, err
	}
	var referencedAssets []string
	for _, a := range assets {
		if title, ok := a["title"].(string); ok && title != "" {
			referencedAssets = append(referencedAssets, title)
		}
	}

	outputs, err := api.ListWorkOutputs(ctx, token, substrate.ListWorkOutputsFilter{
		BasketID:  basketID,
		AgentKind: agentKind,
		Status:    models.SupervisionStatusApproved,
	})
	if err != nil {
		return nil, nil, err
	}
	var priorApproved []string
	for _, o := range outputs {
		if o.Title != "" {
			priorApproved = append(priorApproved, o.Title)
		}
	}

	return referencedAssets, priorApproved, nil
}

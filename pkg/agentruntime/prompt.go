package agentruntime

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/agentcore/pkg/models"
)

// agentIdentity holds the per-agent-kind identity and quality rules
// (spec §4.F.1.a), mirroring the teacher's per-stage instruction composition.
var agentIdentity = map[models.AgentKind]string{
	models.AgentKindResearch:        "You are a research agent. Investigate the task thoroughly and emit findings, recommendations, and insights grounded in the context you read. Favor precision over speed; state uncertainty explicitly via confidence scores.",
	models.AgentKindContent:         "You are a content agent. Draft and refine content variants and assets consistent with the basket's brand and audience context.",
	models.AgentKindReporting:       "You are a reporting agent. Synthesize prior approved outputs into structured report sections.",
	models.AgentKindThinkingPartner: "You are the thinking partner: a conversational agent that helps the user refine context and can dispatch specialist agents via trigger_recipe.",
}

const orchestrationPrinciples = `Orchestration context: you operate against a shared knowledge substrate organized into baskets. Read existing context before acting. Use emit_work_output to record every artifact a human should review; never assume a text response alone is sufficient. Tool arguments must match the declared JSON-Schema exactly.`

// BuildSystemPrompt composes the system prompt: identity + orchestration
// principles + a dynamic context block of referenced-asset titles and prior
// approved outputs. Context is inserted as summaries, never whole documents
// (spec §4.F.1).
func BuildSystemPrompt(agentKind models.AgentKind, referencedAssets, priorApprovedOutputs []string) string {
	var sb strings.Builder

	identity, ok := agentIdentity[agentKind]
	if !ok {
		identity = agentIdentity[models.AgentKindResearch]
	}
	sb.WriteString(identity)
	sb.WriteString("\n\n")
	sb.WriteString(orchestrationPrinciples)

	if len(referencedAssets) > 0 || len(priorApprovedOutputs) > 0 {
		sb.WriteString("\n\nDynamic context:\n")
		if len(referencedAssets) > 0 {
			sb.WriteString(fmt.Sprintf("Referenced assets: %s\n", strings.Join(referencedAssets, "; ")))
		}
		if len(priorApprovedOutputs) > 0 {
			sb.WriteString(fmt.Sprintf("Prior approved outputs in this basket (%s): %s\n", agentKind, strings.Join(priorApprovedOutputs, "; ")))
		}
	}

	return sb.String()
}

package agentruntime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/agentcore/pkg/models"
)

func TestBuildSystemPromptUsesAgentIdentity(t *testing.T) {
	prompt := BuildSystemPrompt(models.AgentKindContent, nil, nil)
	assert.Contains(t, prompt, "content agent")
}

func TestBuildSystemPromptFallsBackToResearchForUnknownKind(t *testing.T) {
	prompt := BuildSystemPrompt(models.AgentKind("unknown"), nil, nil)
	assert.Contains(t, prompt, "research agent")
}

func TestBuildSystemPromptIncludesDynamicContext(t *testing.T) {
	prompt := BuildSystemPrompt(models.AgentKindResearch, []string{"asset-1"}, []string{"finding-1"})
	assert.Contains(t, prompt, "Referenced assets: asset-1")
	assert.Contains(t, prompt, "finding-1")
}

func TestBuildSystemPromptOmitsDynamicContextWhenEmpty(t *testing.T) {
	prompt := BuildSystemPrompt(models.AgentKindResearch, nil, nil)
	assert.NotContains(t, prompt, "Dynamic context")
}

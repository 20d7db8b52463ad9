package agentruntime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentcore/pkg/llmclient"
	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/tools"
)

type scriptedLLM struct {
	responses []llmclient.Response
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, systemPrompt string, messages []llmclient.Message, defs []llmclient.ToolDefinition) (llmclient.Response, error) {
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func newTextOnlyCatalog() *tools.Catalog {
	return tools.NewCatalog()
}

func newEmitCatalog(t *testing.T) *tools.Catalog {
	cat := tools.NewCatalog()
	err := cat.Register(tools.Definition{Name: "emit_work_output"}, nil, func(ctx context.Context, args json.RawMessage, callCtx tools.CallContext) (tools.Result, error) {
		return tools.Result{Value: map[string]any{"id": "out-1"}}, nil
	})
	require.NoError(t, err)
	return cat
}

func TestExecuteReturnsResponseTextWhenNoToolUse(t *testing.T) {
	llm := &scriptedLLM{responses: []llmclient.Response{
		{Blocks: []llmclient.Block{{Type: llmclient.BlockText, Text: "final answer"}}},
	}}
	rt := New(llm, newTextOnlyCatalog(), nil)

	result, err := rt.Execute(context.Background(), Input{Ticket: &models.WorkTicket{ID: "t1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "final answer", result.ResponseText)
	assert.Zero(t, result.ToolCalls)
}

func TestExecuteDispatchesToolUseAndRecordsWorkOutput(t *testing.T) {
	llm := &scriptedLLM{responses: []llmclient.Response{
		{Blocks: []llmclient.Block{{Type: llmclient.BlockToolUse, ToolUseID: "u1", ToolName: "emit_work_output", ToolInput: json.RawMessage(`{}`)}}},
		{Blocks: []llmclient.Block{{Type: llmclient.BlockText, Text: "done"}}},
	}}
	rt := New(llm, newEmitCatalog(t), nil)

	result, err := rt.Execute(context.Background(), Input{Ticket: &models.WorkTicket{ID: "t1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ToolCalls)
	assert.Equal(t, []string{"out-1"}, result.WorkOutputs)
	assert.Equal(t, "done", result.ResponseText)
}

func TestExecuteReturnsCancelledWhenSignalFires(t *testing.T) {
	llm := &scriptedLLM{responses: []llmclient.Response{{}}}
	rt := New(llm, newTextOnlyCatalog(), nil)

	result, err := rt.Execute(context.Background(), Input{Ticket: &models.WorkTicket{ID: "t1"}}, func() bool { return true })
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Zero(t, llm.calls)
}

func TestExecuteStopsAtIterationCapWithForcedConclusion(t *testing.T) {
	responses := make([]llmclient.Response, MaxIterations)
	for i := range responses {
		responses[i] = llmclient.Response{Blocks: []llmclient.Block{
			{Type: llmclient.BlockToolUse, ToolUseID: "u", ToolName: "emit_work_output", ToolInput: json.RawMessage(`{}`)},
		}}
	}
	llm := &scriptedLLM{responses: responses}
	rt := New(llm, newEmitCatalog(t), nil)

	result, err := rt.Execute(context.Background(), Input{Ticket: &models.WorkTicket{ID: "t1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, forcedConclusionText, result.ResponseText)
	assert.Equal(t, MaxIterations, llm.calls)
}

func TestDetectCheckpointFlagsLowConfidenceOutput(t *testing.T) {
	outputs := []models.WorkOutput{{Confidence: 0.5}}
	assert.True(t, DetectCheckpoint(outputs))
}

func TestDetectCheckpointFlagsExplicitReviewRequest(t *testing.T) {
	outputs := []models.WorkOutput{{Confidence: 0.95, RequiresReview: true}}
	assert.True(t, DetectCheckpoint(outputs))
}

func TestDetectCheckpointFalseWhenAllConfident(t *testing.T) {
	outputs := []models.WorkOutput{{Confidence: 0.95}}
	assert.False(t, DetectCheckpoint(outputs))
}

func TestBuildUserMessageIncludesContextEnvelopeAndParameters(t *testing.T) {
	msg := BuildUserMessage("investigate the outage", map[string]any{"severity": "high"}, "prior context here")
	assert.Contains(t, msg, "prior context here")
	assert.Contains(t, msg, "investigate the outage")
	assert.Contains(t, msg, "severity")
}

func TestBuildUserMessageOmitsParametersWhenEmpty(t *testing.T) {
	msg := BuildUserMessage("investigate", nil, "")
	assert.Equal(t, "investigate", msg)
}

func TestExecuteSeedsMessagesFromPersistedSessionState(t *testing.T) {
	prior, err := json.Marshal(SessionState{Messages: []llmclient.Message{
		{Role: llmclient.RoleUser, Blocks: []llmclient.Block{{Type: llmclient.BlockText, Text: "earlier ticket's question"}}},
		{Role: llmclient.RoleAssistant, Blocks: []llmclient.Block{{Type: llmclient.BlockText, Text: "earlier ticket's answer"}}},
	}})
	require.NoError(t, err)

	llm := &scriptedLLM{responses: []llmclient.Response{
		{ID: "msg_02", Blocks: []llmclient.Block{{Type: llmclient.BlockText, Text: "continued answer"}}},
	}}
	rt := New(llm, newTextOnlyCatalog(), nil)

	sess := &models.AgentSession{ID: "sess-1", State: prior}
	result, err := rt.Execute(context.Background(), Input{Ticket: &models.WorkTicket{ID: "t1"}, Session: sess, TaskDescription: "follow up"}, nil)
	require.NoError(t, err)

	require.Len(t, result.Messages, 4)
	assert.Equal(t, "earlier ticket's question", result.Messages[0].Blocks[0].Text)
	assert.Contains(t, result.Messages[2].Blocks[0].Text, "follow up")
	assert.Equal(t, "msg_02", result.ProviderHandle)
}

func TestExecuteCancelledLeavesSessionStateUntouched(t *testing.T) {
	llm := &scriptedLLM{responses: []llmclient.Response{{}}}
	rt := New(llm, newTextOnlyCatalog(), nil)

	result, err := rt.Execute(context.Background(), Input{Ticket: &models.WorkTicket{ID: "t1"}}, func() bool { return true })
	require.NoError(t, err)
	assert.Nil(t, result.Messages)
	assert.Empty(t, result.ProviderHandle)
}

func TestLoadSessionMessagesHandlesEmptyAndMalformedState(t *testing.T) {
	assert.Nil(t, LoadSessionMessages(nil))
	assert.Nil(t, LoadSessionMessages([]byte("not json")))
}

type scriptedStreamingLLM struct {
	events []llmclient.StreamEvent
}

func (s *scriptedStreamingLLM) Generate(ctx context.Context, systemPrompt string, messages []llmclient.Message, defs []llmclient.ToolDefinition) (llmclient.Response, error) {
	panic("generateTurn should prefer GenerateStream when available")
}

func (s *scriptedStreamingLLM) GenerateStream(ctx context.Context, systemPrompt string, messages []llmclient.Message, defs []llmclient.ToolDefinition) (<-chan llmclient.StreamEvent, error) {
	ch := make(chan llmclient.StreamEvent, len(s.events))
	for _, e := range s.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

type recordingProgress struct {
	events []string
}

func (p *recordingProgress) Emit(ticketID string, eventType, stepName string, payload map[string]any) {
	p.events = append(p.events, eventType)
}

func TestExecuteStreamsTextDeltasWhenLLMSupportsStreaming(t *testing.T) {
	llm := &scriptedStreamingLLM{events: []llmclient.StreamEvent{
		{Type: "text_delta", Text: "hel"},
		{Type: "text_delta", Text: "lo"},
		{Type: "final", Final: &llmclient.Response{ID: "msg_9", Blocks: []llmclient.Block{{Type: llmclient.BlockText, Text: "hello"}}}},
	}}
	progress := &recordingProgress{}
	rt := New(llm, newTextOnlyCatalog(), progress)

	result, err := rt.Execute(context.Background(), Input{Ticket: &models.WorkTicket{ID: "t1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.ResponseText)
	assert.Equal(t, "msg_9", result.ProviderHandle)
	assert.Contains(t, progress.events, "text_delta")
}

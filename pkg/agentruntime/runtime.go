// Package agentruntime implements the Agent Runtime (component F): prompt
// composition, the bounded LLM tool loop, checkpoint detection, and
// cancellation — one runtime instance per in-flight ticket, grounded on the
// teacher's react.go iterate-call-parse-dispatch-loop shape.
package agentruntime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
	"github.com/codeready-toolchain/agentcore/pkg/llmclient"
	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/tools"
)

// MaxIterations bounds the tool loop (spec §4.F, §8 "Tool-loop boundedness").
const MaxIterations = 10

const forcedConclusionText = "I've reached my investigation limit for this task. Based on what I've found so far, here is my best current assessment; further investigation may be needed."

// checkpointConfidenceThreshold is the low-confidence checkpoint bound (spec §4.F).
const checkpointConfidenceThreshold = 0.7

// LLM is the subset of llmclient.Client the runtime depends on, so tests can
// substitute a stub implementation (mirroring the teacher's stub-executor pattern).
type LLM interface {
	Generate(ctx context.Context, systemPrompt string, messages []llmclient.Message, tools []llmclient.ToolDefinition) (llmclient.Response, error)
}

// StreamingLLM is the optional streaming variant of LLM (spec §4.F
// "Streaming variant"). When the configured LLM also implements it, the
// runtime drives each turn through GenerateStream instead of Generate,
// forwarding text_delta and tool_start events through the progress channel
// as they arrive rather than only after the full turn completes.
type StreamingLLM interface {
	GenerateStream(ctx context.Context, systemPrompt string, messages []llmclient.Message, tools []llmclient.ToolDefinition) (<-chan llmclient.StreamEvent, error)
}

// ProgressEmitter is the seam into the Progress Channel (component I).
type ProgressEmitter interface {
	Emit(ticketID string, eventType, stepName string, payload map[string]any)
}

// Input bundles everything one ticket execution needs.
type Input struct {
	Ticket         *models.WorkTicket
	Session        *models.AgentSession
	AgentKind      models.AgentKind
	TaskDescription string
	Parameters     map[string]any
	ReferencedAssets []string
	PriorApprovedOutputs []string
	ContextEnvelope string
	CallCtx        tools.CallContext
}

// Result is the runtime's output (spec §4.F.3.c).
type Result struct {
	ResponseText string
	ToolCalls    int
	WorkOutputs  []string
	InputTokens  int
	OutputTokens int
	NeedsReview  bool
	Cancelled    bool

	// Messages is the full turn history accumulated by this execution,
	// seeded from Input.Session's prior state plus every turn run here. The
	// caller persists it via session.Registry.UpdateState so the next
	// ticket against this session resumes the conversation (spec §4.F
	// "Session continuity"). Left nil when the run was cancelled before a
	// turn completed, since there is nothing new to persist.
	Messages []llmclient.Message
	// ProviderHandle is the last turn's provider message id, persisted via
	// session.Registry.UpdateProviderHandle.
	ProviderHandle string
}

// SessionState is the JSON shape persisted into AgentSession.State: the
// conversation's accumulated turns. pkg/session stores it opaquely; only
// this package interprets it.
type SessionState struct {
	Messages []llmclient.Message `json:"messages"`
}

// LoadSessionMessages decodes a persisted AgentSession.State blob into prior
// turn history. An empty or unrecognized blob means this is the session's
// first turn.
func LoadSessionMessages(state []byte) []llmclient.Message {
	if len(state) == 0 {
		return nil
	}
	var s SessionState
	if err := json.Unmarshal(state, &s); err != nil {
		return nil
	}
	return s.Messages
}

// Runtime drives one ticket's tool loop.
type Runtime struct {
	llm      LLM
	catalog  *tools.Catalog
	progress ProgressEmitter
}

// New builds a Runtime.
func New(llm LLM, catalog *tools.Catalog, progress ProgressEmitter) *Runtime {
	return &Runtime{llm: llm, catalog: catalog, progress: progress}
}

// CancelSignal is checked between iterations (spec §4.F "Cancellation").
type CancelSignal func() bool

// generateTurn runs one provider turn. When r.llm implements StreamingLLM and
// a progress emitter is configured, it streams the turn, forwarding
// text_delta and tool_start events as they arrive; otherwise it falls back
// to one blocking Generate call.
func (r *Runtime) generateTurn(ctx context.Context, ticketID, systemPrompt string, messages []llmclient.Message, toolDefs []llmclient.ToolDefinition) (llmclient.Response, error) {
	streamer, ok := r.llm.(StreamingLLM)
	if !ok || r.progress == nil {
		return r.llm.Generate(ctx, systemPrompt, messages, toolDefs)
	}

	events, err := streamer.GenerateStream(ctx, systemPrompt, messages, toolDefs)
	if err != nil {
		return llmclient.Response{}, err
	}

	var final llmclient.Response
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case "text_delta":
			r.progress.Emit(ticketID, "text_delta", "", map[string]any{"text": ev.Text})
		case "tool_start":
			if ev.Tool != nil {
				r.progress.Emit(ticketID, "tool_start", ev.Tool.ToolName, map[string]any{"tool": ev.Tool.ToolName})
			}
		case "final":
			if ev.Final != nil {
				final = *ev.Final
			}
		case "error":
			streamErr = apperr.New(apperr.LLMTransient, "llm stream failed")
		}
	}
	if streamErr != nil {
		return llmclient.Response{}, streamErr
	}
	return final, nil
}

// Execute runs the bounded tool loop and returns when the LLM stops calling
// tools, the iteration cap is reached, or cancel fires.
func (r *Runtime) Execute(ctx context.Context, in Input, cancel CancelSignal) (Result, error) {
	systemPrompt := BuildSystemPrompt(in.AgentKind, in.ReferencedAssets, in.PriorApprovedOutputs)
	userMessage := BuildUserMessage(in.TaskDescription, in.Parameters, in.ContextEnvelope)

	var ticketID string
	if in.Ticket != nil {
		ticketID = in.Ticket.ID
	}

	var priorState []byte
	if in.Session != nil {
		priorState = in.Session.State
	}
	messages := LoadSessionMessages(priorState)
	messages = append(messages, llmclient.Message{Role: llmclient.RoleUser, Blocks: []llmclient.Block{{Type: llmclient.BlockText, Text: userMessage}}})

	toolDefs := toLLMToolDefs(r.catalog.Definitions())

	result := Result{}
	firstToolUseEmitted := false
	var lastMessageID string

	for iteration := 0; iteration < MaxIterations; iteration++ {
		if cancel != nil && cancel() {
			result.Cancelled = true
			return result, nil
		}

		resp, err := r.generateTurn(ctx, ticketID, systemPrompt, messages, toolDefs)
		if err != nil {
			return result, err
		}
		result.InputTokens += resp.InputTokens
		result.OutputTokens += resp.OutputTokens
		if resp.ID != "" {
			lastMessageID = resp.ID
		}

		var toolUses []llmclient.Block
		assistantBlocks := make([]llmclient.Block, 0, len(resp.Blocks))
		for _, block := range resp.Blocks {
			assistantBlocks = append(assistantBlocks, block)
			switch block.Type {
			case llmclient.BlockText:
				result.ResponseText += block.Text
			case llmclient.BlockToolUse:
				toolUses = append(toolUses, block)
			}
		}

		messages = append(messages, llmclient.Message{Role: llmclient.RoleAssistant, Blocks: assistantBlocks})

		if len(toolUses) == 0 {
			result.Messages = messages
			result.ProviderHandle = lastMessageID
			return result, nil
		}

		toolResults := make([]llmclient.Block, 0, len(toolUses))
		for _, use := range toolUses {
			if !firstToolUseEmitted && r.progress != nil {
				r.progress.Emit(ticketID, "tool_start", use.ToolName, map[string]any{"tool": use.ToolName})
				firstToolUseEmitted = true
			}

			result.ToolCalls++
			callResult, callErr := r.catalog.Dispatch(ctx, use.ToolName, json.RawMessage(use.ToolInput), in.CallCtx)
			if callErr != nil {
				toolResults = append(toolResults, llmclient.Block{
					Type: llmclient.BlockToolResult, ToolUseID: use.ToolUseID, ToolOutput: callErr.Error(), IsError: true,
				})
				continue
			}

			if use.ToolName == "emit_work_output" {
				if id, ok := extractOutputID(callResult.Value); ok {
					result.WorkOutputs = append(result.WorkOutputs, id)
				}
			}

			toolResults = append(toolResults, llmclient.Block{
				Type: llmclient.BlockToolResult, ToolUseID: use.ToolUseID, ToolOutput: callResult.Value, IsError: callResult.IsError,
			})
		}

		messages = append(messages, llmclient.Message{Role: llmclient.RoleUser, Blocks: toolResults})
	}

	// Iteration cap reached: terminate with the fixed apology, keep outputs, do not raise.
	result.ResponseText = forcedConclusionText
	result.Messages = messages
	result.ProviderHandle = lastMessageID
	return result, nil
}

func toLLMToolDefs(defs []tools.Definition) []llmclient.ToolDefinition {
	out := make([]llmclient.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, llmclient.ToolDefinition{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}
	return out
}

func extractOutputID(value any) (string, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := m["id"].(string)
	return id, ok
}

// DetectCheckpoint inspects emitted outputs for low confidence or an
// explicit review flag (spec §4.F "Checkpoint detection").
func DetectCheckpoint(outputs []models.WorkOutput) bool {
	for _, o := range outputs {
		if o.Confidence < checkpointConfidenceThreshold || o.RequiresReview {
			return true
		}
	}
	return false
}

// BuildUserMessage formats the task description and agent-kind-specific
// parameters into a directive prompt (spec §4.F.2), optionally prefixed by
// a pre-computed context envelope document (§4.G step 5).
func BuildUserMessage(taskDescription string, parameters map[string]any, contextEnvelope string) string {
	msg := ""
	if contextEnvelope != "" {
		msg += contextEnvelope + "\n\n"
	}
	msg += taskDescription
	if len(parameters) > 0 {
		paramsJSON, _ := json.Marshal(parameters)
		msg += fmt.Sprintf("\n\nParameters: %s", paramsJSON)
	}
	return msg
}

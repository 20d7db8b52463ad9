// Package llmclient is the LLM provider boundary: it accepts
// {system prompt, messages, tool catalog} and returns a sequence of typed
// content blocks (text, tool-use, tool-result), matching the Anthropic
// Messages API's block union — spec.md's deliberately opaque provider
// contract, made concrete.
package llmclient

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
)

// Role mirrors the conversation roles the runtime composes messages with.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType enumerates the typed response blocks the provider returns.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is one typed content block, either produced by the provider
// (text, tool_use) or supplied back to it (tool_result).
type Block struct {
	Type       BlockType
	Text       string
	ToolUseID  string
	ToolName   string
	ToolInput  json.RawMessage
	ToolOutput any
	IsError    bool
}

// Message is one turn in the conversation.
type Message struct {
	Role   Role
	Blocks []Block
}

// ToolDefinition is the provider-facing shape of a tools.Definition.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Response is one provider turn's result. ID is the provider's message id
// (e.g. "msg_01...") — the closest concrete thing Anthropic's stateless
// Messages API offers to an "opaque session handle"; pkg/session persists it
// for traceability, even though resuming a conversation still requires
// resending the accumulated messages rather than referencing the handle.
type Response struct {
	ID           string
	Blocks       []Block
	InputTokens  int
	OutputTokens int
}

// StreamEvent is one event of the streaming variant (spec §4.F).
type StreamEvent struct {
	Type    string // text_delta, tool_start, tool_result, final
	Text    string
	Tool    *Block
	Final   *Response
}

// Client is the LLM provider boundary.
type Client struct {
	anthropic anthropic.Client
	model     string
}

// New builds a Client against the Anthropic Messages API.
func New(apiKey, model string) *Client {
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_5)
	}
	return &Client{
		anthropic: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
	}
}

// Generate sends one turn and returns the provider's typed blocks. Session
// continuity is the caller's responsibility: pkg/agentruntime seeds messages
// with the prior turns it loaded from pkg/session's persisted state, since
// the Anthropic Messages API has no server-side resumable session to hand a
// handle to (spec §4.F "Session continuity").
func (c *Client) Generate(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  toAnthropicMessages(messages),
		Tools:     toAnthropicTools(tools),
	}

	msg, err := c.anthropic.Messages.New(ctx, params)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.LLMTransient, err, "llm generate failed")
	}

	return fromAnthropicMessage(msg), nil
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Blocks))
		for _, b := range m.Blocks {
			switch b.Type {
			case BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, toolResultText(b), b.IsError))
			case BlockToolUse:
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUseID, b.ToolInput, b.ToolName))
			}
		}
		role := anthropic.MessageParamRoleUser
		if m.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

func toolResultText(b Block) string {
	if s, ok := b.ToolOutput.(string); ok {
		return s
	}
	j, err := json.Marshal(b.ToolOutput)
	if err != nil {
		return ""
	}
	return string(j)
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: t.InputSchema["properties"]},
			},
		})
	}
	return out
}

func fromAnthropicMessage(msg *anthropic.Message) Response {
	resp := Response{
		ID:           msg.ID,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Blocks = append(resp.Blocks, Block{Type: BlockText, Text: variant.Text})
		case anthropic.ToolUseBlock:
			resp.Blocks = append(resp.Blocks, Block{
				Type:      BlockToolUse,
				ToolUseID: variant.ID,
				ToolName:  variant.Name,
				ToolInput: json.RawMessage(variant.Input),
			})
		}
	}
	return resp
}

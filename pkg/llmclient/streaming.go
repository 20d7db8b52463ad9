package llmclient

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
)

// GenerateStream yields {type, data} events over a channel for SSE
// consumption through the progress channel (spec §4.F "Streaming variant").
// The channel is closed after a "final" event or an error.
func (c *Client) GenerateStream(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition) (<-chan StreamEvent, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  toAnthropicMessages(messages),
		Tools:     toAnthropicTools(tools),
	}

	events := make(chan StreamEvent, 16)
	stream := c.anthropic.Messages.NewStreaming(ctx, params)

	go func() {
		defer close(events)

		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				events <- StreamEvent{Type: "error"}
				return
			}

			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok {
					events <- StreamEvent{Type: "text_delta", Text: delta.Text}
				}
			case anthropic.ContentBlockStartEvent:
				if tu, ok := variant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					events <- StreamEvent{Type: "tool_start", Tool: &Block{Type: BlockToolUse, ToolUseID: tu.ID, ToolName: tu.Name}}
				}
			}
		}

		if err := stream.Err(); err != nil {
			events <- StreamEvent{Type: "error"}
			return
		}

		final := fromAnthropicMessage(&acc)
		events <- StreamEvent{Type: "final", Final: &final}
	}()

	return events, nil
}

package provider

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/taskboard-ai/chat-gateway/internal/model"
	"github.com/taskboard-ai/chat-gateway/internal/tool"
)

// AnthropicClient streams chat completions from Anthropic.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates an Anthropic client from a caller-supplied API key.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() Name {
	return NameAnthropic
}

// Models returns known model identifiers.
func (c *AnthropicClient) Models() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
	}
}

// StreamChat sends a streaming completion request. Text deltas are forwarded
// as they arrive; tool_use blocks accumulate their partial-JSON input per
// content block and are emitted as one batch when the stream ends.
func (c *AnthropicClient) StreamChat(ctx context.Context, req *Request, h StreamHandler) error {
	chatModel := req.Model
	if chatModel == "" {
		chatModel = "claude-3-5-sonnet-20241022"
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	// Anthropic takes the system prompt as a separate parameter, not as a
	// message in the array.
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == model.RoleSystem {
			continue
		}
		messages = append(messages, anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(chatModel),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	}
	if req.System != "" {
		params.System = anthropic.F(req.System)
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropic.F(tool.ToAnthropic(req.Tools))
	}

	stream := c.client.Messages.NewStreaming(ctx, params)

	type pendingCall struct {
		name string
		args strings.Builder
	}
	pending := make(map[int64]*pendingCall)

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case anthropic.MessageStreamEventTypeContentBlockStart:
			if event.ContentBlock.Type == "tool_use" {
				pending[event.Index] = &pendingCall{name: event.ContentBlock.Name}
			}
		case anthropic.MessageStreamEventTypeContentBlockDelta:
			switch event.Delta.Type {
			case "text_delta":
				if err := h.OnText(event.Delta.Text); err != nil {
					return err
				}
			case "input_json_delta":
				if p := pending[event.Index]; p != nil {
					p.args.WriteString(event.Delta.PartialJSON)
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return err
	}

	if len(pending) == 0 {
		return nil
	}

	indexes := make([]int64, 0, len(pending))
	for idx := range pending {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	calls := make([]model.ToolCall, 0, len(pending))
	for _, idx := range indexes {
		p := pending[idx]
		calls = append(calls, model.ToolCall{
			Name:      p.name,
			Arguments: parseToolArguments(p.args.String()),
		})
	}
	return h.OnToolCalls(calls)
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"

	"github.com/sashabaranov/go-openai"

	"github.com/taskboard-ai/chat-gateway/internal/model"
	"github.com/taskboard-ai/chat-gateway/internal/tool"
)

// OpenAIClient streams chat completions from OpenAI.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI client from a caller-supplied API key.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return &OpenAIClient{client: openai.NewClient(apiKey)}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() Name {
	return NameOpenAI
}

// Models returns known model identifiers.
func (c *OpenAIClient) Models() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
	}
}

// StreamChat sends a streaming completion request, forwarding text deltas as
// they arrive. Tool-call fragments are accumulated per index and emitted as
// one batch when the stream ends.
func (c *OpenAIClient) StreamChat(ctx context.Context, req *Request, h StreamHandler) error {
	chatModel := req.Model
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	request := openai.ChatCompletionRequest{
		Model:    chatModel,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		request.Tools = tool.ToOpenAI(req.Tools)
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return err
	}
	defer stream.Close()

	// Tool-call arguments arrive as partial JSON fragments keyed by index.
	type pendingCall struct {
		name string
		args string
	}
	pending := make(map[int]*pendingCall)

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta

		if delta.Content != "" {
			if err := h.OnText(delta.Content); err != nil {
				return err
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			p := pending[idx]
			if p == nil {
				p = &pendingCall{}
				pending[idx] = p
			}
			if tc.Function.Name != "" {
				p.name = tc.Function.Name
			}
			p.args += tc.Function.Arguments
		}
	}

	if len(pending) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(pending))
	for idx := range pending {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]model.ToolCall, 0, len(pending))
	for _, idx := range indexes {
		p := pending[idx]
		if p.name == "" {
			continue
		}
		calls = append(calls, model.ToolCall{
			Name:      p.name,
			Arguments: parseToolArguments(p.args),
		})
	}
	if len(calls) == 0 {
		return nil
	}
	return h.OnToolCalls(calls)
}

// parseToolArguments decodes a tool-call argument payload. Providers send
// arguments as a JSON object string; an empty or unparseable payload yields
// an empty map rather than failing the whole stream.
func parseToolArguments(raw string) map[string]any {
	args := make(map[string]any)
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return make(map[string]any)
	}
	return args
}

package provider

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/taskboard-ai/chat-gateway/internal/model"
	"github.com/taskboard-ai/chat-gateway/internal/tool"
)

// GeminiClient streams chat completions from Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a Gemini client from a caller-supplied API key.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Name returns the provider name.
func (c *GeminiClient) Name() Name {
	return NameGemini
}

// Models returns known model identifiers.
func (c *GeminiClient) Models() []string {
	return []string{
		"gemini-2.0-flash",
		"gemini-1.5-pro",
		"gemini-1.5-flash",
	}
}

// StreamChat sends a streaming completion request. Gemini delivers function
// calls as parts inside streamed candidates; text parts are forwarded as
// deltas and function-call parts are collected into one batch emitted at
// stream end.
func (c *GeminiClient) StreamChat(ctx context.Context, req *Request, h StreamHandler) error {
	chatModel := req.Model
	if chatModel == "" {
		chatModel = "gemini-2.0-flash"
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			// handled via SystemInstruction below
		case model.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = tool.ToGemini(req.Tools)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	var calls []model.ToolCall

	for resp, err := range c.client.Models.GenerateContentStream(ctx, chatModel, contents, config) {
		if err != nil {
			return fmt.Errorf("Gemini streaming error: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				if err := h.OnText(part.Text); err != nil {
					return err
				}
			}
			if part.FunctionCall != nil {
				args := part.FunctionCall.Args
				if args == nil {
					args = make(map[string]any)
				}
				calls = append(calls, model.ToolCall{
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			}
		}
	}

	if len(calls) == 0 {
		return nil
	}
	return h.OnToolCalls(calls)
}

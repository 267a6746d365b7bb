// Package provider implements streaming chat clients for the supported LLM
// providers and normalizes their output into text deltas and tool-call
// batches.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskboard-ai/chat-gateway/internal/model"
	"github.com/taskboard-ai/chat-gateway/internal/tool"
)

// Name identifies a supported provider.
type Name string

const (
	NameOpenAI    Name = "openai"
	NameAnthropic Name = "anthropic"
	NameGemini    Name = "gemini"
)

// ErrUnknownProvider is returned when a request names a provider outside the
// supported set. Validation happens before any outbound call.
var ErrUnknownProvider = errors.New("unknown provider")

// Names returns the closed set of supported providers.
func Names() []Name {
	return []Name{NameOpenAI, NameAnthropic, NameGemini}
}

// Supported reports whether name is in the supported set.
func Supported(name string) bool {
	switch Name(name) {
	case NameOpenAI, NameAnthropic, NameGemini:
		return true
	}
	return false
}

// Request is a provider-neutral completion request. The system prompt is
// carried separately because providers disagree on where it goes.
type Request struct {
	Model     string
	System    string
	Messages  []model.Message
	Tools     []tool.Tool
	MaxTokens int
}

// StreamHandler receives normalized output while a provider stream is open.
// Returning an error from either method aborts the stream.
type StreamHandler interface {
	// OnText is called for each text delta as it arrives.
	OnText(delta string) error

	// OnToolCalls is called once per batch of tool calls requested by the
	// model. The gateway reports them; it never executes them.
	OnToolCalls(calls []model.ToolCall) error
}

// Client is the interface all provider adapters implement.
type Client interface {
	// StreamChat sends a streaming completion request and forwards
	// normalized events to h until the stream ends.
	StreamChat(ctx context.Context, req *Request, h StreamHandler) error

	// Name returns the provider name.
	Name() Name

	// Models returns known model identifiers for this provider.
	Models() []string
}

// New builds a client for the named provider using the caller-supplied API
// key. Clients are cheap and constructed per request; the key is never
// stored beyond the request that carried it.
func New(ctx context.Context, name string, apiKey string) (Client, error) {
	switch Name(name) {
	case NameOpenAI:
		return NewOpenAIClient(apiKey)
	case NameAnthropic:
		return NewAnthropicClient(apiKey)
	case NameGemini:
		return NewGeminiClient(ctx, apiKey)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

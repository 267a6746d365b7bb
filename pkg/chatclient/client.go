// Package chatclient implements the client-side controller for the chat
// gateway's streaming protocol.
//
// A Controller owns one conversation's visible message list. Send issues one
// HTTP request per user message, decodes the gateway's `data: <json>` stream
// incrementally and reconciles it into the list: text deltas mutate a
// trailing assistant placeholder in place, tool-call batches become pending
// calls awaiting user confirmation, and any failure rolls the list back so
// no partial assistant turn is left visible.
package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard-ai/chat-gateway/internal/model"
)

var (
	// ErrNotConfigured is returned synchronously by Send when the provider
	// API key or model is missing. No HTTP request is made.
	ErrNotConfigured = errors.New("API key not configured for provider")

	// ErrBusy is returned by Send while a previous stream is still open.
	// The contract is single-request-at-a-time; callers queue, not us.
	ErrBusy = errors.New("a request is already in flight")
)

const dataPrefix = "data: "

// Config configures a Controller.
type Config struct {
	// BaseURL is the gateway root, e.g. "https://api.example.com".
	BaseURL string

	// AuthToken is the bearer token for the gateway. Optional.
	AuthToken string

	// Provider selects the LLM vendor: "openai", "anthropic" or "gemini".
	Provider string

	// APIKey is the provider API key sent with each request.
	APIKey string

	// Model is the provider model identifier.
	Model string

	// EnableTools asks the gateway to offer the tool catalog to the model.
	EnableTools bool

	// ConversationID optionally links exchanges to a stored conversation.
	ConversationID string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Controller manages conversation state for one chat thread.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	state    State
	messages []model.Message
	pending  []model.ToolCall
	lastErr  error
}

// New creates a controller in StateIdle with an empty message list.
func New(cfg Config) *Controller {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Controller{
		cfg:   cfg,
		state: StateIdle,
	}
}

// State returns the current exchange state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the visible message list.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// PendingToolCalls returns the tool calls awaiting user confirmation, or nil.
func (c *Controller) PendingToolCalls() []model.ToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	out := make([]model.ToolCall, len(c.pending))
	copy(out, c.pending)
	return out
}

// Err returns the error of the last failed exchange, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClearMessages resets all local state. No server interaction.
func (c *Controller) ClearMessages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStreaming {
		return
	}
	c.messages = nil
	c.pending = nil
	c.lastErr = nil
	c.state = StateIdle
}

// ClearPendingToolCalls discards pending tool calls. No server interaction.
func (c *Controller) ClearPendingToolCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	if c.state == StateAwaitingTools {
		c.state = StateIdle
	}
}

// Send appends the user message and an assistant placeholder, issues the
// request, and returns a channel of typed events. The channel carries the
// whole exchange and closes after the terminal Completed or Failed event.
// Callers must drain it.
//
// Cancelling ctx aborts the stream; the exchange then fails and rolls back
// like any other error.
func (c *Controller) Send(ctx context.Context, content string, payload *model.ContextPayload) (<-chan Event, error) {
	c.mu.Lock()
	if c.state == StateStreaming {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if c.cfg.APIKey == "" || c.cfg.Model == "" {
		c.mu.Unlock()
		return nil, ErrNotConfigured
	}

	now := time.Now()
	userMsg := model.Message{
		ID:        uuid.New().String(),
		Role:      model.RoleUser,
		Content:   content,
		CreatedAt: now,
	}
	placeholder := model.Message{
		ID:        uuid.New().String(),
		Role:      model.RoleAssistant,
		CreatedAt: now,
	}

	c.messages = append(c.messages, userMsg)
	// History sent to the server: everything up to and including the user
	// message. The placeholder is purely local.
	history := make([]model.Message, len(c.messages))
	copy(history, c.messages)

	c.messages = append(c.messages, placeholder)
	placeholderIdx := len(c.messages) - 1

	c.pending = nil
	c.lastErr = nil
	c.state = StateStreaming
	c.mu.Unlock()

	events := make(chan Event)
	go c.run(ctx, history, payload, placeholderIdx, events)
	return events, nil
}

func (c *Controller) run(ctx context.Context, history []model.Message, payload *model.ContextPayload, placeholderIdx int, events chan<- Event) {
	defer close(events)

	err := c.stream(ctx, history, payload, placeholderIdx, events)
	if err == nil {
		return
	}

	// Roll back to the pre-placeholder state: the user message stays, the
	// partial assistant turn is discarded.
	c.mu.Lock()
	c.messages = c.messages[:placeholderIdx]
	c.pending = nil
	c.lastErr = err
	c.state = StateFailed
	c.mu.Unlock()

	events <- Failed{Err: err}
}

func (c *Controller) stream(ctx context.Context, history []model.Message, payload *model.ContextPayload, placeholderIdx int, events chan<- Event) error {
	body, err := json.Marshal(model.ChatRequest{
		ConversationID: c.cfg.ConversationID,
		Messages:       history,
		Context:        payload,
		Provider:       c.cfg.Provider,
		APIKey:         c.cfg.APIKey,
		Model:          c.cfg.Model,
		EnableTools:    c.cfg.EnableTools,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/ai/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var accumulated strings.Builder
	var toolCalls []model.ToolCall

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

scan:
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := strings.TrimPrefix(line, dataPrefix)
		if data == model.DoneSentinel {
			break
		}

		var ev model.StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			if isTruncatedJSON(err, data) {
				// A fragment cut off mid-line: skip it rather than kill
				// the whole exchange.
				continue
			}
			return fmt.Errorf("malformed stream event: %w", err)
		}

		switch {
		case ev.Error != "":
			return errors.New(ev.Error)

		case ev.Type == model.EventTypeToolCalls:
			toolCalls = ev.ToolCalls
			c.mu.Lock()
			c.pending = toolCalls
			c.mu.Unlock()
			events <- ToolCalls{Calls: toolCalls}
			// Text streaming for this turn is paused pending user
			// confirmation; the server ends the stream after the batch.
			break scan

		case ev.IsText():
			if ev.Content == "" {
				continue
			}
			accumulated.WriteString(ev.Content)
			total := accumulated.String()
			c.mu.Lock()
			c.messages[placeholderIdx].Content = total
			c.mu.Unlock()
			events <- TextDelta{Content: ev.Content, Total: total}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}

	text := accumulated.String()

	c.mu.Lock()
	if len(toolCalls) > 0 {
		c.state = StateAwaitingTools
		if text == "" {
			// A pure tool-call turn produced no assistant text; drop the
			// empty placeholder instead of leaving a blank message.
			c.messages = append(c.messages[:placeholderIdx], c.messages[placeholderIdx+1:]...)
		}
		c.mu.Unlock()
		return nil
	}
	c.state = StateCompleted
	c.mu.Unlock()

	events <- Completed{Text: text}
	return nil
}

// isTruncatedJSON reports whether err is a syntax error at the very end of
// data, i.e. the fragment is a prefix of a valid document rather than
// garbage. Only this one failure category is tolerated.
func isTruncatedJSON(err error, data string) bool {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return syn.Offset >= int64(len(data))
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

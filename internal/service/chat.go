// Package service provides business logic for the AI chat gateway.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskboard-ai/chat-gateway/internal/keystore"
	"github.com/taskboard-ai/chat-gateway/internal/model"
	natsclient "github.com/taskboard-ai/chat-gateway/internal/nats"
	"github.com/taskboard-ai/chat-gateway/internal/provider"
	"github.com/taskboard-ai/chat-gateway/internal/tool"
	"github.com/taskboard-ai/chat-gateway/pkg/logger"
	"github.com/taskboard-ai/chat-gateway/pkg/metrics"
)

// ErrNoAPIKey is returned when a request carries no key and none is stored
// for the user.
var ErrNoAPIKey = errors.New("API key not configured for provider")

// ErrNoMessages is returned when a request has an empty message history.
var ErrNoMessages = errors.New("messages cannot be empty")

// EmitFunc writes one normalized event to the response stream.
type EmitFunc func(ev model.StreamEvent) error

// ClientFactory builds a provider client for a request. Swappable in tests.
type ClientFactory func(ctx context.Context, name, apiKey string) (provider.Client, error)

// ChatService dispatches chat requests to the selected provider and
// normalizes the provider's stream into wire events.
type ChatService struct {
	keys            keystore.Store
	conversations   *ConversationService
	eventLog        *natsclient.EventLog
	newClient       ClientFactory
	defaultProvider string
	maxTokens       int
	logger          *logger.Logger
}

// NewChatService creates a new chat service. eventLog may be nil when NATS
// is not configured.
func NewChatService(
	keys keystore.Store,
	conversations *ConversationService,
	eventLog *natsclient.EventLog,
	defaultProvider string,
	maxTokens int,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		keys:            keys,
		conversations:   conversations,
		eventLog:        eventLog,
		newClient:       provider.New,
		defaultProvider: defaultProvider,
		maxTokens:       maxTokens,
		logger:          log,
	}
}

// SetClientFactory replaces how provider clients are constructed. Used by
// tests to substitute fake providers.
func (s *ChatService) SetClientFactory(f ClientFactory) {
	s.newClient = f
}

// emitHandler adapts provider output into wire events, tracking the outcome
// for metrics and audit.
type emitHandler struct {
	emit      EmitFunc
	textLen   int
	toolCalls []model.ToolCall
}

func (h *emitHandler) OnText(delta string) error {
	h.textLen += len(delta)
	return h.emit(model.TextEvent(delta))
}

func (h *emitHandler) OnToolCalls(calls []model.ToolCall) error {
	h.toolCalls = calls
	return h.emit(model.ToolCallsEvent(calls))
}

// Stream validates the request, dispatches to the selected provider and
// forwards normalized events to emit. The caller is responsible for
// converting a returned error into an {error} wire event; by the time
// Stream returns, no further events will be emitted.
func (s *ChatService) Stream(ctx context.Context, userID string, req *model.ChatRequest, emit EmitFunc) error {
	if req.Provider == "" {
		req.Provider = s.defaultProvider
	}
	if !provider.Supported(req.Provider) {
		return fmt.Errorf("%w: %q", provider.ErrUnknownProvider, req.Provider)
	}
	if len(req.Messages) == 0 {
		return ErrNoMessages
	}

	apiKey := req.APIKey
	if apiKey == "" && s.keys != nil {
		stored, err := s.keys.Get(ctx, userID, req.Provider)
		if err != nil && !errors.Is(err, keystore.ErrNotFound) {
			return fmt.Errorf("failed to look up stored key: %w", err)
		}
		apiKey = stored
	}
	if apiKey == "" {
		return ErrNoAPIKey
	}

	client, err := s.newClient(ctx, req.Provider, apiKey)
	if err != nil {
		return err
	}

	preq := &provider.Request{
		Model:     req.Model,
		System:    BuildSystemPrompt(req.Context),
		Messages:  req.Messages,
		MaxTokens: s.maxTokens,
	}
	if req.EnableTools {
		preq.Tools = tool.Catalog()
	}

	handler := &emitHandler{emit: emit}
	start := time.Now()
	streamErr := client.StreamChat(ctx, preq, handler)
	duration := time.Since(start)

	outcome := natsclient.OutcomeCompleted
	status := "success"
	if streamErr != nil {
		outcome = natsclient.OutcomeErrored
		status = "error"
	} else if len(handler.toolCalls) > 0 {
		outcome = natsclient.OutcomeToolCalls
	}

	metrics.RecordChatStream(req.Provider, req.Model, status, duration.Seconds())
	if len(handler.toolCalls) > 0 {
		metrics.ToolCallsTotal.WithLabelValues(req.Provider).Add(float64(len(handler.toolCalls)))
	}

	if streamErr == nil && req.ConversationID != "" && s.conversations != nil {
		s.touchConversation(ctx, userID, req)
	}

	s.audit(ctx, userID, req, handler, outcome, streamErr, duration)

	if streamErr != nil {
		s.logger.Error("chat stream failed",
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.Error(streamErr),
		)
		return streamErr
	}

	s.logger.Info("chat stream completed",
		zap.String("provider", req.Provider),
		zap.String("model", req.Model),
		zap.Int("text_bytes", handler.textLen),
		zap.Int("tool_calls", len(handler.toolCalls)),
		zap.Duration("duration", duration),
	)
	return nil
}

// touchConversation derives a lazy title from the first user message and
// bumps the conversation's updated-at. Failures are logged, not surfaced:
// the exchange already succeeded.
func (s *ChatService) touchConversation(ctx context.Context, userID string, req *model.ChatRequest) {
	var firstUser string
	for _, msg := range req.Messages {
		if msg.Role == model.RoleUser {
			firstUser = msg.Content
			break
		}
	}
	if err := s.conversations.Touch(ctx, userID, req.ConversationID, firstUser); err != nil {
		s.logger.Warn("failed to touch conversation",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
	}
}

func (s *ChatService) audit(
	ctx context.Context,
	userID string,
	req *model.ChatRequest,
	handler *emitHandler,
	outcome natsclient.ExchangeOutcome,
	streamErr error,
	duration time.Duration,
) {
	if s.eventLog == nil {
		return
	}

	rec := &natsclient.ExchangeRecord{
		ID:           uuid.Must(uuid.NewV7()).String(),
		UserID:       userID,
		Provider:     req.Provider,
		Model:        req.Model,
		Outcome:      outcome,
		MessageCount: len(req.Messages),
		DurationMs:   duration.Milliseconds(),
		CreatedAt:    time.Now(),
	}
	for _, call := range handler.toolCalls {
		rec.ToolCalls = append(rec.ToolCalls, call.Name)
	}
	if streamErr != nil {
		rec.Reason = streamErr.Error()
	}

	if err := s.eventLog.Record(ctx, rec); err != nil {
		s.logger.Warn("failed to record audit event", zap.Error(err))
	}
}

// BuildSystemPrompt renders the context payload into the system prompt that
// grounds the model in the user's current task and project.
func BuildSystemPrompt(payload *model.ContextPayload) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant embedded in a Kanban/Gantt project-management app. ")
	b.WriteString("Help the user plan, organize and track work. ")
	b.WriteString("When an action would modify data, request it as a tool call and wait for the user to confirm; never assume it was executed.")

	if payload == nil {
		return b.String()
	}

	writeSection := func(label string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		b.WriteString("\n\n")
		b.WriteString(label)
		b.WriteString(": ")
		b.Write(data)
	}

	if payload.Project != nil {
		writeSection("Current project", payload.Project)
	}
	if payload.Task != nil {
		writeSection("Current task", payload.Task)
	}
	if payload.User != nil {
		writeSection("User", payload.User)
	}
	return b.String()
}

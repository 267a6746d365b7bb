package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the audit stream.
	StreamName = "AI_CHAT_AUDIT"

	// SubjectPrefix is the prefix for all audit subjects.
	SubjectPrefix = "ai.chat"
)

// ExchangeOutcome is the terminal state of a chat exchange.
type ExchangeOutcome string

const (
	OutcomeCompleted ExchangeOutcome = "completed"
	OutcomeToolCalls ExchangeOutcome = "tool_calls"
	OutcomeErrored   ExchangeOutcome = "errored"
)

// ExchangeRecord is one audit entry per chat exchange. API keys and message
// content never appear here.
type ExchangeRecord struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	Outcome      ExchangeOutcome `json:"outcome"`
	MessageCount int             `json:"message_count"`
	ToolCalls    []string        `json:"tool_calls,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}

// EventLog appends chat exchange records to a JetStream stream.
type EventLog struct {
	client *Client
}

// NewEventLog creates a new event log backed by the client's JetStream.
func NewEventLog(client *Client) *EventLog {
	return &EventLog{client: client}
}

// EnsureStream ensures the audit stream exists.
func (l *EventLog) EnsureStream(ctx context.Context) error {
	js := l.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "AI chat exchange audit records",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// ExchangeSubject returns the subject for an exchange record.
func ExchangeSubject(provider string, outcome ExchangeOutcome) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, provider, outcome)
}

// Record publishes an exchange record.
func (l *EventLog) Record(ctx context.Context, rec *ExchangeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	subject := ExchangeSubject(rec.Provider, rec.Outcome)
	if _, err := l.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}
	return nil
}

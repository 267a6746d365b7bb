// Package model defines data structures for the AI chat gateway.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single turn in a conversation. A message is created
// when the user submits input or when a streamed response begins, and is
// immutable once the turn completes.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolCall is a structured action request emitted by the model in place of
// free text. Tool calls require user confirmation before execution; the
// gateway only reports them, it never runs them.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatRequest is the body of POST /api/ai/chat. ConversationID is optional;
// when present, the exchange touches that conversation's title and
// updated-at timestamp.
type ChatRequest struct {
	ConversationID string          `json:"conversationId,omitempty"`
	Messages       []Message       `json:"messages"`
	Context        *ContextPayload `json:"context,omitempty"`
	Provider       string          `json:"provider"`
	APIKey         string          `json:"apiKey"`
	Model          string          `json:"model,omitempty"`
	EnableTools    bool            `json:"enableTools"`
}

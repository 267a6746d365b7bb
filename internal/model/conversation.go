package model

import (
	"strings"
	"time"
)

// Conversation represents a chat thread anchored to a task or project.
type Conversation struct {
	ID          string      `json:"id"`
	ProjectID   string      `json:"project_id"`
	Title       string      `json:"title"`
	ContextType ContextType `json:"context_type,omitempty"`
	ContextID   string      `json:"context_id,omitempty"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Deleted     bool        `json:"deleted,omitempty"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	ProjectID   string      `json:"project_id"`
	Title       string      `json:"title,omitempty"`
	ContextType ContextType `json:"context_type,omitempty"`
	ContextID   string      `json:"context_id,omitempty"`
}

// UpdateConversationRequest is the request to update a conversation.
type UpdateConversationRequest struct {
	Title string `json:"title,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

const maxDerivedTitleLen = 80

// DeriveTitle produces a conversation title from the first user message.
// Used when a conversation is created without an explicit title.
func DeriveTitle(firstUserMessage string) string {
	title := strings.TrimSpace(firstUserMessage)
	if title == "" {
		return "New conversation"
	}
	if line, _, found := strings.Cut(title, "\n"); found {
		title = strings.TrimSpace(line)
	}
	runes := []rune(title)
	if len(runes) > maxDerivedTitleLen {
		title = string(runes[:maxDerivedTitleLen-1]) + "…"
	}
	return title
}

package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskboard-ai/chat-gateway/internal/model"
	"github.com/taskboard-ai/chat-gateway/pkg/logger"
	"github.com/taskboard-ai/chat-gateway/pkg/metrics"
)

// ErrConversationNotFound is returned for missing, deleted, or
// foreign-owned conversations alike, so callers cannot probe for existence.
var ErrConversationNotFound = fmt.Errorf("conversation not found")

// ConversationService handles conversation metadata. Message content lives
// client-side; the gateway only tracks the thread's identity and title.
type ConversationService struct {
	logger *logger.Logger

	mu            sync.RWMutex
	conversations map[string]*model.Conversation
}

// NewConversationService creates a new conversation service.
func NewConversationService(log *logger.Logger) *ConversationService {
	return &ConversationService{
		logger:        log,
		conversations: make(map[string]*model.Conversation),
	}
}

// Create creates a new conversation.
func (s *ConversationService) Create(ctx context.Context, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	now := time.Now()

	conv := &model.Conversation{
		ID:          uuid.Must(uuid.NewV7()).String(),
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		ContextType: req.ContextType,
		ContextID:   req.ContextID,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()

	metrics.ConversationsTotal.Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("project_id", conv.ProjectID),
	)
	return conv, nil
}

// Get retrieves a conversation owned by userID.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	conv, exists := s.conversations[conversationID]
	s.mu.RUnlock()

	if !exists || conv.Deleted || conv.CreatedBy != userID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// List returns the user's conversations, most recently updated first.
func (s *ConversationService) List(ctx context.Context, userID, projectID string) (*model.ListConversationsResponse, error) {
	s.mu.RLock()
	var out []model.Conversation
	for _, conv := range s.conversations {
		if conv.Deleted || conv.CreatedBy != userID {
			continue
		}
		if projectID != "" && conv.ProjectID != projectID {
			continue
		}
		out = append(out, *conv)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	return &model.ListConversationsResponse{
		Conversations: out,
		Total:         len(out),
	}, nil
}

// Update changes a conversation's title.
func (s *ConversationService) Update(ctx context.Context, userID, conversationID string, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[conversationID]
	if !exists || conv.Deleted || conv.CreatedBy != userID {
		return nil, ErrConversationNotFound
	}
	if req.Title != "" {
		conv.Title = req.Title
	}
	conv.UpdatedAt = time.Now()
	return conv, nil
}

// Delete soft-deletes a conversation.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[conversationID]
	if !exists || conv.Deleted || conv.CreatedBy != userID {
		return ErrConversationNotFound
	}
	conv.Deleted = true
	conv.UpdatedAt = time.Now()
	return nil
}

// Touch bumps the conversation's updated-at and, when the conversation has
// no title yet, derives one from the first user message of the exchange.
func (s *ConversationService) Touch(ctx context.Context, userID, conversationID, firstUserMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[conversationID]
	if !exists || conv.Deleted || conv.CreatedBy != userID {
		return ErrConversationNotFound
	}
	if conv.Title == "" {
		conv.Title = model.DeriveTitle(firstUserMessage)
	}
	conv.UpdatedAt = time.Now()
	return nil
}

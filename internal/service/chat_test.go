package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard-ai/chat-gateway/internal/keystore"
	"github.com/taskboard-ai/chat-gateway/internal/model"
	"github.com/taskboard-ai/chat-gateway/internal/provider"
	"github.com/taskboard-ai/chat-gateway/pkg/logger"
)

// fakeClient scripts a provider stream: text deltas first, then an optional
// tool-call batch, then an optional error.
type fakeClient struct {
	name      provider.Name
	text      []string
	toolCalls []model.ToolCall
	err       error

	gotRequest *provider.Request
}

func (f *fakeClient) StreamChat(ctx context.Context, req *provider.Request, h provider.StreamHandler) error {
	f.gotRequest = req
	for _, delta := range f.text {
		if err := h.OnText(delta); err != nil {
			return err
		}
	}
	if len(f.toolCalls) > 0 {
		if err := h.OnToolCalls(f.toolCalls); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeClient) Name() provider.Name { return f.name }
func (f *fakeClient) Models() []string    { return nil }

func newTestChatService(t *testing.T, fake *fakeClient, keys keystore.Store) *ChatService {
	t.Helper()
	svc := NewChatService(keys, nil, nil, "anthropic", 4096, logger.NewNop())
	svc.SetClientFactory(func(ctx context.Context, name, apiKey string) (provider.Client, error) {
		fake.name = provider.Name(name)
		return fake, nil
	})
	return svc
}

func collectEmit(events *[]model.StreamEvent) EmitFunc {
	return func(ev model.StreamEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestStreamTextExchange(t *testing.T) {
	fake := &fakeClient{text: []string{"Hello", " there"}}
	svc := newTestChatService(t, fake, keystore.NewMemory())

	var events []model.StreamEvent
	req := &model.ChatRequest{
		Provider: "openai",
		APIKey:   "sk-test",
		Model:    "gpt-4o",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	}

	err := svc.Stream(context.Background(), "user-1", req, collectEmit(&events))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, model.EventTypeText, events[0].Type)
	assert.Equal(t, "Hello", events[0].Content)
	assert.Equal(t, " there", events[1].Content)
}

func TestStreamToolCallExchange(t *testing.T) {
	fake := &fakeClient{
		toolCalls: []model.ToolCall{{Name: "list_tasks", Arguments: map[string]any{}}},
	}
	svc := newTestChatService(t, fake, keystore.NewMemory())

	var events []model.StreamEvent
	req := &model.ChatRequest{
		Provider:    "anthropic",
		APIKey:      "sk-test",
		Model:       "claude-3-5-sonnet-20241022",
		EnableTools: true,
		Messages:    []model.Message{{Role: model.RoleUser, Content: "list my tasks"}},
	}

	err := svc.Stream(context.Background(), "user-1", req, collectEmit(&events))
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, model.EventTypeToolCalls, events[0].Type)
	require.Len(t, events[0].ToolCalls, 1)
	assert.Equal(t, "list_tasks", events[0].ToolCalls[0].Name)

	// EnableTools exposes the catalog to the provider.
	require.NotNil(t, fake.gotRequest)
	assert.NotEmpty(t, fake.gotRequest.Tools)
}

func TestStreamToolsOmittedWhenDisabled(t *testing.T) {
	fake := &fakeClient{text: []string{"ok"}}
	svc := newTestChatService(t, fake, keystore.NewMemory())

	req := &model.ChatRequest{
		Provider: "openai",
		APIKey:   "sk-test",
		Model:    "gpt-4o",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	}

	var events []model.StreamEvent
	require.NoError(t, svc.Stream(context.Background(), "user-1", req, collectEmit(&events)))
	require.NotNil(t, fake.gotRequest)
	assert.Empty(t, fake.gotRequest.Tools)
}

func TestStreamUnknownProvider(t *testing.T) {
	fake := &fakeClient{}
	svc := newTestChatService(t, fake, keystore.NewMemory())

	req := &model.ChatRequest{
		Provider: "cohere",
		APIKey:   "sk-test",
		Model:    "command-r",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	}

	err := svc.Stream(context.Background(), "user-1", req, collectEmit(new([]model.StreamEvent)))
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestStreamEmptyProviderUsesDefault(t *testing.T) {
	fake := &fakeClient{text: []string{"ok"}}
	svc := newTestChatService(t, fake, keystore.NewMemory())

	req := &model.ChatRequest{
		APIKey:   "sk-test",
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	}

	require.NoError(t, svc.Stream(context.Background(), "user-1", req, collectEmit(new([]model.StreamEvent))))
	assert.Equal(t, provider.NameAnthropic, fake.Name())
}

func TestStreamEmptyMessages(t *testing.T) {
	fake := &fakeClient{}
	svc := newTestChatService(t, fake, keystore.NewMemory())

	req := &model.ChatRequest{
		Provider: "openai",
		APIKey:   "sk-test",
		Model:    "gpt-4o",
	}

	err := svc.Stream(context.Background(), "user-1", req, collectEmit(new([]model.StreamEvent)))
	assert.ErrorIs(t, err, ErrNoMessages)
}

func TestStreamNoAPIKeyAnywhere(t *testing.T) {
	fake := &fakeClient{}
	svc := newTestChatService(t, fake, keystore.NewMemory())

	req := &model.ChatRequest{
		Provider: "openai",
		Model:    "gpt-4o",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	}

	err := svc.Stream(context.Background(), "user-1", req, collectEmit(new([]model.StreamEvent)))
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestStreamFallsBackToStoredKey(t *testing.T) {
	keys := keystore.NewMemory()
	require.NoError(t, keys.Set(context.Background(), "user-1", "openai", "sk-stored"))

	var usedKey string
	fake := &fakeClient{text: []string{"ok"}}
	svc := NewChatService(keys, nil, nil, "anthropic", 4096, logger.NewNop())
	svc.SetClientFactory(func(ctx context.Context, name, apiKey string) (provider.Client, error) {
		usedKey = apiKey
		return fake, nil
	})

	req := &model.ChatRequest{
		Provider: "openai",
		Model:    "gpt-4o",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	}

	require.NoError(t, svc.Stream(context.Background(), "user-1", req, collectEmit(new([]model.StreamEvent))))
	assert.Equal(t, "sk-stored", usedKey)
}

func TestStreamRequestKeyWinsOverStoredKey(t *testing.T) {
	keys := keystore.NewMemory()
	require.NoError(t, keys.Set(context.Background(), "user-1", "openai", "sk-stored"))

	var usedKey string
	fake := &fakeClient{text: []string{"ok"}}
	svc := NewChatService(keys, nil, nil, "anthropic", 4096, logger.NewNop())
	svc.SetClientFactory(func(ctx context.Context, name, apiKey string) (provider.Client, error) {
		usedKey = apiKey
		return fake, nil
	})

	req := &model.ChatRequest{
		Provider: "openai",
		APIKey:   "sk-request",
		Model:    "gpt-4o",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	}

	require.NoError(t, svc.Stream(context.Background(), "user-1", req, collectEmit(new([]model.StreamEvent))))
	assert.Equal(t, "sk-request", usedKey)
}

func TestStreamProviderError(t *testing.T) {
	fake := &fakeClient{
		text: []string{"partial"},
		err:  errors.New("rate limited"),
	}
	svc := newTestChatService(t, fake, keystore.NewMemory())

	var events []model.StreamEvent
	req := &model.ChatRequest{
		Provider: "openai",
		APIKey:   "sk-test",
		Model:    "gpt-4o",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	}

	err := svc.Stream(context.Background(), "user-1", req, collectEmit(&events))
	require.EqualError(t, err, "rate limited")
	// Deltas emitted before the failure were already forwarded.
	require.Len(t, events, 1)
	assert.Equal(t, "partial", events[0].Content)
}

func TestStreamTouchesConversation(t *testing.T) {
	conversations := NewConversationService(logger.NewNop())
	conv, err := conversations.Create(context.Background(), "user-1", &model.CreateConversationRequest{
		ProjectID: "p1",
	})
	require.NoError(t, err)
	require.Empty(t, conv.Title)

	fake := &fakeClient{text: []string{"ok"}}
	svc := NewChatService(keystore.NewMemory(), conversations, nil, "anthropic", 4096, logger.NewNop())
	svc.SetClientFactory(func(ctx context.Context, name, apiKey string) (provider.Client, error) {
		return fake, nil
	})

	req := &model.ChatRequest{
		ConversationID: conv.ID,
		Provider:       "openai",
		APIKey:         "sk-test",
		Model:          "gpt-4o",
		Messages:       []model.Message{{Role: model.RoleUser, Content: "Plan the Q3 release\nwith milestones"}},
	}

	require.NoError(t, svc.Stream(context.Background(), "user-1", req, collectEmit(new([]model.StreamEvent))))

	got, err := conversations.Get(context.Background(), "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Plan the Q3 release", got.Title)
}

func TestBuildSystemPrompt(t *testing.T) {
	base := BuildSystemPrompt(nil)
	assert.Contains(t, base, "project-management")
	assert.Contains(t, base, "tool call")

	withContext := BuildSystemPrompt(&model.ContextPayload{
		Project: &model.ProjectSnapshot{ID: "p1", Name: "Roadmap"},
		Task:    &model.TaskSnapshot{ID: "t1", Title: "Ship v2", Status: "in_progress"},
		User:    &model.UserSnapshot{ID: "u1", DisplayName: "Alex"},
	})
	assert.Contains(t, withContext, base)
	assert.Contains(t, withContext, "Current project")
	assert.Contains(t, withContext, `"Roadmap"`)
	assert.Contains(t, withContext, "Current task")
	assert.Contains(t, withContext, `"Ship v2"`)
	assert.Contains(t, withContext, "User")
	assert.Contains(t, withContext, `"Alex"`)
}

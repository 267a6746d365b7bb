package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard-ai/chat-gateway/internal/keystore"
	"github.com/taskboard-ai/chat-gateway/internal/middleware"
	"github.com/taskboard-ai/chat-gateway/internal/model"
	"github.com/taskboard-ai/chat-gateway/internal/provider"
	"github.com/taskboard-ai/chat-gateway/internal/service"
	"github.com/taskboard-ai/chat-gateway/pkg/logger"
)

const testJWTSecret = "test-secret"

// scriptedClient plays back a fixed provider stream.
type scriptedClient struct {
	text      []string
	toolCalls []model.ToolCall
	err       error
}

func (c *scriptedClient) StreamChat(ctx context.Context, req *provider.Request, h provider.StreamHandler) error {
	for _, delta := range c.text {
		if err := h.OnText(delta); err != nil {
			return err
		}
	}
	if len(c.toolCalls) > 0 {
		if err := h.OnToolCalls(c.toolCalls); err != nil {
			return err
		}
	}
	return c.err
}

func (c *scriptedClient) Name() provider.Name { return provider.NameOpenAI }
func (c *scriptedClient) Models() []string    { return nil }

type testEnv struct {
	router *chi.Mux
	keys   keystore.Store
	convs  *service.ConversationService
}

// newTestEnv wires handlers behind the same router layout the server uses,
// with a scripted provider behind the chat service.
func newTestEnv(t *testing.T, client *scriptedClient) *testEnv {
	t.Helper()
	log := logger.NewNop()

	keys := keystore.NewMemory()
	convs := service.NewConversationService(log)
	chatSvc := service.NewChatService(keys, convs, nil, "anthropic", 4096, log)
	chatSvc.SetClientFactory(func(ctx context.Context, name, apiKey string) (provider.Client, error) {
		return client, nil
	})

	chatHandler := NewChatHandler(chatSvc, log)
	keysHandler := NewKeysHandler(keys, log)
	toolsHandler := NewToolsHandler()
	conversationHandler := NewConversationHandler(convs, log)
	healthHandler := NewHealthHandler(nil)

	r := chi.NewRouter()
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/ai", func(r chi.Router) {
		r.Use(middleware.Auth(testJWTSecret))
		r.Post("/chat", chatHandler.Stream)
		r.Get("/keys", keysHandler.List)
		r.Post("/keys", keysHandler.Set)
		r.Get("/tools", toolsHandler.Catalog)
		r.Get("/tools/openai", toolsHandler.OpenAI)
		r.Get("/tools/anthropic", toolsHandler.Anthropic)
		r.Get("/tools/gemini", toolsHandler.Gemini)
	})

	r.Route("/api/v1/conversations", func(r chi.Router) {
		r.Use(middleware.Auth(testJWTSecret))
		r.Post("/", conversationHandler.Create)
		r.Get("/", conversationHandler.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", conversationHandler.Get)
			r.Put("/", conversationHandler.Update)
			r.Delete("/", conversationHandler.Delete)
		})
	})

	return &testEnv{router: r, keys: keys, convs: convs}
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	claims := &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// sseLines parses a recorded SSE body into its data payloads.
func sseLines(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			out = append(out, strings.TrimPrefix(line, "data: "))
		}
	}
	return out
}

func chatBody(content string) *model.ChatRequest {
	return &model.ChatRequest{
		Provider: "openai",
		APIKey:   "sk-test",
		Model:    "gpt-4o",
		Messages: []model.Message{{Role: model.RoleUser, Content: content}},
	}
}

func TestChatStreamText(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{text: []string{"Hello", " world"}})
	token := signToken(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/ai/chat", token, chatBody("hi"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	lines := sseLines(t, rec.Body.String())
	require.Len(t, lines, 3)

	var ev model.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, model.EventTypeText, ev.Type)
	assert.Equal(t, "Hello", ev.Content)

	assert.Equal(t, model.DoneSentinel, lines[2])
}

func TestChatStreamToolCalls(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{
		toolCalls: []model.ToolCall{{Name: "list_tasks", Arguments: map[string]any{}}},
	})
	token := signToken(t, "user-1")

	body := chatBody("list my tasks")
	body.EnableTools = true
	rec := env.do(t, http.MethodPost, "/api/ai/chat", token, body)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := sseLines(t, rec.Body.String())
	require.Len(t, lines, 2)

	var ev model.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, model.EventTypeToolCalls, ev.Type)
	require.Len(t, ev.ToolCalls, 1)
	assert.Equal(t, "list_tasks", ev.ToolCalls[0].Name)

	assert.Equal(t, model.DoneSentinel, lines[1])
}

func TestChatStreamProviderErrorBecomesEvent(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{
		text: []string{"partial"},
		err:  errors.New("rate limited"),
	})
	token := signToken(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/ai/chat", token, chatBody("hi"))
	// The stream was already open when the provider failed.
	require.Equal(t, http.StatusOK, rec.Code)

	lines := sseLines(t, rec.Body.String())
	require.Len(t, lines, 2, "error event ends the stream without [DONE]")

	var ev model.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	assert.Equal(t, "rate limited", ev.Error)
}

func TestChatRejectsUnsupportedProvider(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})
	token := signToken(t, "user-1")

	body := chatBody("hi")
	body.Provider = "cohere"
	rec := env.do(t, http.MethodPost, "/api/ai/chat", token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported provider")
}

func TestChatRejectsEmptyMessages(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})
	token := signToken(t, "user-1")

	body := chatBody("hi")
	body.Messages = nil
	rec := env.do(t, http.MethodPost, "/api/ai/chat", token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatMissingKeyBecomesErrorEvent(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{text: []string{"unreached"}})
	token := signToken(t, "user-1")

	body := chatBody("hi")
	body.APIKey = ""
	rec := env.do(t, http.MethodPost, "/api/ai/chat", token, body)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := sseLines(t, rec.Body.String())
	require.Len(t, lines, 1)
	var ev model.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Contains(t, ev.Error, "API key not configured")
}

func TestChatRequiresAuth(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})

	rec := env.do(t, http.MethodPost, "/api/ai/chat", "", chatBody("hi"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestKeysRoundTrip(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})
	token := signToken(t, "user-1")

	rec := env.do(t, http.MethodGet, "/api/ai/keys", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var presence map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &presence))
	assert.Equal(t, map[string]bool{"openai": false, "anthropic": false, "gemini": false}, presence)

	rec = env.do(t, http.MethodPost, "/api/ai/keys", token, SetKeyRequest{
		Provider: "anthropic",
		APIKey:   "sk-secret",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sk-secret", "key material never leaves the store")

	rec = env.do(t, http.MethodGet, "/api/ai/keys", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &presence))
	assert.True(t, presence["anthropic"])
	assert.NotContains(t, rec.Body.String(), "sk-secret")
}

func TestKeysSetValidation(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})
	token := signToken(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/ai/keys", token, SetKeyRequest{Provider: "cohere", APIKey: "sk"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/ai/keys", token, SetKeyRequest{Provider: "openai"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToolsEndpoints(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})
	token := signToken(t, "user-1")

	for _, path := range []string{
		"/api/ai/tools",
		"/api/ai/tools/openai",
		"/api/ai/tools/anthropic",
		"/api/ai/tools/gemini",
	} {
		rec := env.do(t, http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var resp map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), path)
		require.Contains(t, resp, "tools", path)
		assert.Contains(t, rec.Body.String(), "list_tasks", path)
	}
}

func TestConversationCRUDOverHTTP(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})
	token := signToken(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/v1/conversations/", token, model.CreateConversationRequest{
		ProjectID: "p1",
		Title:     "Sprint planning",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var conv model.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	require.NotEmpty(t, conv.ID)

	rec = env.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/", token, model.UpdateConversationRequest{
		Title: "Renamed",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Renamed")

	rec = env.do(t, http.MethodGet, "/api/v1/conversations/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list model.ListConversationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)

	// Another user sees nothing.
	otherToken := signToken(t, "user-2")
	rec = env.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/", otherToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/conversations/"+conv.ID+"/", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversationCreateRequiresProject(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})
	token := signToken(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/v1/conversations/", token, model.CreateConversationRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationGetRejectsMalformedID(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})
	token := signToken(t, "user-1")

	rec := env.do(t, http.MethodGet, "/api/v1/conversations/not-a-uuid/", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	// Without NATS configured readiness is unconditional.
	rec = env.do(t, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")
}

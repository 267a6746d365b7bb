package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/taskboard-ai/chat-gateway/internal/middleware"
	"github.com/taskboard-ai/chat-gateway/internal/model"
	"github.com/taskboard-ai/chat-gateway/internal/provider"
	"github.com/taskboard-ai/chat-gateway/internal/service"
	"github.com/taskboard-ai/chat-gateway/pkg/logger"
	"github.com/taskboard-ai/chat-gateway/pkg/metrics"
)

// ChatHandler handles the provider-agnostic chat streaming endpoint.
type ChatHandler struct {
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatSvc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatSvc,
		logger:      log,
	}
}

// Stream handles POST /api/ai/chat.
//
// The request names a provider from the closed supported set and carries the
// full message history plus a context payload. The response is a
// newline-delimited stream of `data: <json>` lines: text deltas, at most one
// tool_calls batch, or a single error event, terminated by `data: [DONE]`
// on success. The client never branches on provider identity.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Reject before opening the stream: these failures deserve an HTTP
	// status, not an SSE error event. An empty provider falls back to the
	// configured default inside the service.
	if req.Provider != "" && !provider.Supported(req.Provider) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported provider %q", req.Provider))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages cannot be empty")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	err := h.chatService.Stream(ctx, userID, &req, func(ev model.StreamEvent) error {
		return sendSSEData(w, flusher, ev)
	})
	if err != nil {
		// One error event, then end of stream. No retries at this layer.
		sendSSEData(w, flusher, model.ErrorEvent(err.Error()))
		return
	}

	fmt.Fprintf(w, "data: %s\n\n", model.DoneSentinel)
	flusher.Flush()
}

func sendSSEData(w http.ResponseWriter, flusher http.Flusher, ev model.StreamEvent) error {
	data, err := ev.Marshal()
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

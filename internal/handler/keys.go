package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/taskboard-ai/chat-gateway/internal/keystore"
	"github.com/taskboard-ai/chat-gateway/internal/middleware"
	"github.com/taskboard-ai/chat-gateway/internal/provider"
	"github.com/taskboard-ai/chat-gateway/pkg/logger"
)

// KeysHandler manages per-user provider API keys. Responses only ever carry
// presence booleans; key material never leaves the store.
type KeysHandler struct {
	keys   keystore.Store
	logger *logger.Logger
}

// NewKeysHandler creates a new keys handler.
func NewKeysHandler(keys keystore.Store, log *logger.Logger) *KeysHandler {
	return &KeysHandler{
		keys:   keys,
		logger: log,
	}
}

// SetKeyRequest is the body of POST /api/ai/keys.
type SetKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
}

// List handles GET /api/ai/keys. Returns which providers have a stored key
// for the authenticated user.
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	providers, err := h.keys.Providers(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list key presence")
		writeError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}

	writeJSON(w, http.StatusOK, providers)
}

// Set handles POST /api/ai/keys.
func (h *KeysHandler) Set(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req SetKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !provider.Supported(req.Provider) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported provider %q", req.Provider))
		return
	}
	if req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "apiKey cannot be empty")
		return
	}

	if err := h.keys.Set(ctx, userID, req.Provider, req.APIKey); err != nil {
		h.logger.Error("failed to store key")
		writeError(w, http.StatusInternalServerError, "failed to store key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "stored",
		"provider": req.Provider,
	})
}

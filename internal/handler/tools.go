package handler

import (
	"net/http"

	"github.com/taskboard-ai/chat-gateway/internal/tool"
)

// ToolsHandler exposes the registered tool catalog for introspection, in the
// neutral form and in each provider's native schema.
type ToolsHandler struct{}

// NewToolsHandler creates a new tools handler.
func NewToolsHandler() *ToolsHandler {
	return &ToolsHandler{}
}

// Catalog handles GET /api/ai/tools.
func (h *ToolsHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": tool.Catalog(),
	})
}

// OpenAI handles GET /api/ai/tools/openai (function schema).
func (h *ToolsHandler) OpenAI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": tool.ToOpenAI(tool.Catalog()),
	})
}

// Anthropic handles GET /api/ai/tools/anthropic (input_schema shape).
func (h *ToolsHandler) Anthropic(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": tool.ToAnthropic(tool.Catalog()),
	})
}

// Gemini handles GET /api/ai/tools/gemini (function declarations).
func (h *ToolsHandler) Gemini(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": tool.ToGemini(tool.Catalog()),
	})
}

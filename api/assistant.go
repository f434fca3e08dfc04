package api

import (
	"net/http"

	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/internal/assistant"
)

type AssistantHandler struct {
	engine *assistant.Engine
}

func NewAssistantHandler(engine *assistant.Engine) *AssistantHandler {
	return &AssistantHandler{engine: engine}
}

func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondError(w, r, apperr.UpstreamUnavailable("assistant is not configured", nil))
		return
	}
	var req assistant.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	reply, err := h.engine.Reply(r.Context(), CallerFrom(r.Context()), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, reply)
}

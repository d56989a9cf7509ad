package server

import (
	"encoding/json"
	"net/http"

	"github.com/clauderelay/clauderelay/internal/claude"
	"github.com/clauderelay/clauderelay/pkg/types"
)

// chatStream handles POST /chat/stream: the same orchestration as
// /chat, but every CLI event is forwarded over SSE as it arrives,
// followed by a final result or error event.
func (s *Server) chatStream(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt is required")
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	onEvent := func(ev claude.StreamEvent) {
		if err := sse.writeRaw("message", ev.Raw); err != nil {
			s.log.Debug().Err(err).Msg("stream client gone")
		}
	}

	resp, recResult, err := s.executeChat(r.Context(), req, onEvent)
	if err != nil {
		payload := map[string]any{"error": err.Error()}
		if recResult != nil {
			payload["recovery"] = recResult
		}
		sse.writeEvent("error", payload)
		return
	}

	sse.writeEvent("result", resp)
}

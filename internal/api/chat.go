package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/conversation"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/orchestrator"
)

// maxRequestBody limits chat request bodies. Attachments travel through
// their own endpoint, so chat payloads stay small.
const maxRequestBody = 1 << 20 // 1MB

// chatHandler handles message sending and mode control.
type chatHandler struct {
	ctrl   *orchestrator.Controller
	logger *slog.Logger
}

type sendRequest struct {
	Message string `json:"message"`
}

type sendResponse struct {
	SessionID string                `json:"sessionId"`
	Message   *conversation.Message `json:"message"`
}

// send runs one exchange through the controller and returns the assistant
// reply. A failed generation still returns 200: the reply body carries the
// fixed error text the UI renders inline.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	ex, err := h.ctrl.Send(r.Context(), req.Message)
	switch {
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		WriteError(w, http.StatusBadRequest, "empty_message", "message text or attachments required", h.logger)
		return
	case errors.Is(err, orchestrator.ErrSendInFlight):
		WriteError(w, http.StatusConflict, "send_in_flight", "a message is already being processed", h.logger)
		return
	case err != nil:
		h.logger.Error("send failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "send_failed", "failed to process message", h.logger)
		return
	}

	// The exchange carries its own session id: a concurrent newChat may
	// have deselected the session, but the turn still reconciled into it.
	writeJSON(w, http.StatusOK, sendResponse{SessionID: ex.SessionID.String(), Message: &ex.Message})
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// setMode switches the ambient generation mode for subsequent messages.
func (h *chatHandler) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	mode, ok := parseMode(req.Mode)
	if !ok {
		WriteError(w, http.StatusBadRequest, "invalid_mode", "mode must be chat, search, or image", h.logger)
		return
	}

	h.ctrl.SetMode(mode)
	w.WriteHeader(http.StatusNoContent)
}

// newChat leaves the current session and resets composer state. The mode
// is optional and defaults to CHAT.
func (h *chatHandler) newChat(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	mode := conversation.ModeChat
	if req.Mode != "" {
		var ok bool
		if mode, ok = parseMode(req.Mode); !ok {
			WriteError(w, http.StatusBadRequest, "invalid_mode", "mode must be chat, search, or image", h.logger)
			return
		}
	}

	h.ctrl.NewChat(mode)
	w.WriteHeader(http.StatusNoContent)
}

// parseMode maps a wire value to a Mode. Accepts any casing: the browser
// client historically sent the uppercase forms.
func parseMode(raw string) (conversation.Mode, bool) {
	mode := conversation.Mode(strings.ToLower(raw))
	return mode, mode.Valid()
}

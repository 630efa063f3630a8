package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/attachment"
)

// maxAttachmentBody bounds attachment uploads. Base64 expands payloads by
// about a third, so this admits raw files of roughly 24MB.
const maxAttachmentBody = 32 << 20 // 32MB

// attachmentHandler manages the pending attachment buffer and previews.
type attachmentHandler struct {
	store  *attachment.Store
	logger *slog.Logger
}

type addAttachmentRequest struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded file bytes
}

// add handles POST /api/v1/attachments — stages a file for the next message.
// Responds with the staged attachment, including its preview URL.
func (h *attachmentHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addAttachmentRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "attachment too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	if req.Name == "" || req.MIMEType == "" || req.Data == "" {
		WriteError(w, http.StatusBadRequest, "missing_field", "name, mimeType, and data are required", h.logger)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_data", "data must be base64-encoded", h.logger)
		return
	}

	att := h.store.Add(req.Name, req.MIMEType, data)
	writeJSON(w, http.StatusCreated, att)
}

// remove handles DELETE /api/v1/attachments/{index} — unstages one file.
func (h *attachmentHandler) remove(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_index", "index must be an integer", h.logger)
		return
	}

	if err := h.store.Remove(index); err != nil {
		if errors.Is(err, attachment.ErrIndexOutOfRange) {
			WriteError(w, http.StatusNotFound, "not_found", "no attachment at that index", h.logger)
			return
		}
		h.logger.Error("removing attachment", "error", err, "index", index)
		WriteError(w, http.StatusInternalServerError, "remove_failed", "failed to remove attachment", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// preview handles GET /api/v1/attachments/preview/{id} — serves staged file
// bytes for thumbnail rendering. Previews outlive staging: a drained
// attachment keeps its preview until the buffer is cleared.
func (h *attachmentHandler) preview(w http.ResponseWriter, r *http.Request) {
	mimeType, data, ok := h.store.Preview(r.PathValue("id"))
	if !ok {
		WriteError(w, http.StatusNotFound, "not_found", "preview not found", h.logger)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("writing preview body", "error", err)
	}
}

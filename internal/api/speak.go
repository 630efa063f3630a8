package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/audio"
)

// speechHandler converts message text to spoken audio.
type speechHandler struct {
	speech Speaker
	logger *slog.Logger
}

type speakRequest struct {
	Text string `json:"text"`
}

// speak handles POST /api/v1/speak — returns the text rendered as a WAV file.
func (h *speechHandler) speak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		WriteError(w, http.StatusBadRequest, "empty_text", "text is required", h.logger)
		return
	}

	pcm, err := h.speech.SpeakText(r.Context(), text)
	if err != nil {
		h.logger.Error("speech synthesis failed", "error", err)
		WriteError(w, http.StatusBadGateway, "speech_failed", "failed to synthesize speech", h.logger)
		return
	}
	if len(pcm) == 0 {
		WriteError(w, http.StatusBadGateway, "no_audio", "model returned no audio", h.logger)
		return
	}

	wav := audio.WAV(pcm)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	if _, err := w.Write(wav); err != nil {
		h.logger.Debug("writing audio body", "error", err)
	}
}

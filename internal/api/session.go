package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/conversation"
)

// sessionHandler serves session listing, retrieval, selection, and export.
type sessionHandler struct {
	store  *conversation.Store
	logger *slog.Logger
}

// sessionItem is the list-view shape: message bodies are omitted.
type sessionItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"messageCount"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
	Active       bool   `json:"active"`
}

// list handles GET /api/v1/sessions — returns sessions, most recent first.
func (h *sessionHandler) list(w http.ResponseWriter, _ *http.Request) {
	sessions := h.store.Sessions()
	active, hasActive := h.store.Active()

	items := make([]sessionItem, len(sessions))
	for i, sess := range sessions {
		items[i] = sessionItem{
			ID:           sess.ID.String(),
			Title:        sess.Title,
			MessageCount: len(sess.Messages),
			CreatedAt:    sess.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    sess.UpdatedAt.Format(time.RFC3339),
			Active:       hasActive && sess.ID == active.ID,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// get handles GET /api/v1/sessions/{id} — returns a session with all messages.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.store.Session(id)
	if err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("getting session", "error", err, "session_id", id)
		WriteError(w, http.StatusInternalServerError, "get_failed", "failed to get session", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// selectSession handles POST /api/v1/sessions/{id}/select — makes a session active.
func (h *sessionHandler) selectSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.store.Select(id); err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("selecting session", "error", err, "session_id", id)
		WriteError(w, http.StatusInternalServerError, "select_failed", "failed to select session", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// export handles GET /api/v1/sessions/{id}/export — exports a session with all messages.
// Query parameter: format=json (default) or format=markdown.
func (h *sessionHandler) export(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.store.Session(id)
	if err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("exporting session", "error", err, "session_id", id)
		WriteError(w, http.StatusInternalServerError, "export_failed", "failed to export session", h.logger)
		return
	}

	switch r.URL.Query().Get("format") {
	case "markdown":
		h.exportMarkdown(w, sess)
	case "", "json":
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{
				"filename": fmt.Sprintf("session-%s.json", id),
			}))
		writeJSON(w, http.StatusOK, sess)
	default:
		WriteError(w, http.StatusBadRequest, "invalid_format",
			"unsupported export format; use 'json' or 'markdown'", h.logger)
	}
}

// sessionID parses the {id} path value, writing a 400 on failure.
func (h *sessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "invalid session ID", h.logger)
		return uuid.Nil, false
	}
	return id, true
}

// titleReplacer strips newlines to prevent Markdown heading breakout.
// strings.Replacer is safe for concurrent use.
var titleReplacer = strings.NewReplacer("\n", " ", "\r", " ")

// sanitizeTitle replaces newline characters to prevent Markdown heading breakout.
func sanitizeTitle(s string) string {
	return titleReplacer.Replace(s)
}

// sanitizeMarkdownContent escapes leading Markdown structural characters
// to prevent structural injection in exported Markdown documents.
//
// Escapes: ATX headings (# ...), setext heading underlines (===, ---).
// Threat model: output is consumed as static text (editor, pandoc, etc.).
func sanitizeMarkdownContent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(trimmed, "#"):
			// ATX heading: place backslash immediately before # to escape it.
			indent := line[:len(line)-len(trimmed)]
			lines[i] = indent + `\` + trimmed
		case isSetextUnderline(trimmed):
			// Setext heading underline: escape to prevent previous line promotion.
			indent := line[:len(line)-len(trimmed)]
			lines[i] = indent + `\` + trimmed
		}
	}
	return strings.Join(lines, "\n")
}

// isSetextUnderline reports whether trimmed (leading whitespace already removed)
// consists entirely of '=' or entirely of '-' characters (with optional trailing whitespace).
// Such lines can promote the previous paragraph to a setext heading in CommonMark.
func isSetextUnderline(trimmed string) bool {
	s := strings.TrimRight(trimmed, " \t")
	if s == "" {
		return false
	}
	return strings.Trim(s, "=") == "" || strings.Trim(s, "-") == ""
}

// exportMarkdown renders a session as a Markdown document.
func (h *sessionHandler) exportMarkdown(w http.ResponseWriter, sess *conversation.Session) {
	var b strings.Builder
	title := sanitizeTitle(sess.Title)
	if title == "" {
		title = conversation.DefaultTitle
	}
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n\n")

	for _, msg := range sess.Messages {
		var role string
		switch msg.Role {
		case conversation.RoleUser:
			role = "User"
		case conversation.RoleAssistant:
			role = "Assistant"
		default:
			role = msg.Role
		}

		b.WriteString("**")
		b.WriteString(role)
		b.WriteString("**: ")
		b.WriteString(sanitizeMarkdownContent(msg.Content))
		b.WriteString("\n\n")
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{
			"filename": fmt.Sprintf("session-%s.md", sess.ID),
		}))
	if _, err := io.WriteString(w, b.String()); err != nil {
		h.logger.Error("writing markdown export", "error", err)
	}
}

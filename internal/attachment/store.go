// Package attachment holds file attachments pending send.
//
// Raw file bytes are base64-encoded for transport at Add time. Each
// attachment also gets a preview handle: a locally dereferenceable URL the
// browser can load while the attachment sits in the pending buffer or in a
// stored message. Handles are acquired in Add and released explicitly —
// Remove releases the handle, Drain transfers ownership to the message that
// now holds the attachment, Clear releases everything still pending.
package attachment

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/conversation"
)

// ErrIndexOutOfRange indicates a Remove index outside the pending buffer.
var ErrIndexOutOfRange = errors.New("attachment index out of range")

// PreviewPathPrefix is the URL path under which preview handles are served.
const PreviewPathPrefix = "/api/v1/attachments/preview/"

// preview retains the raw bytes backing a preview handle.
type preview struct {
	mimeType string
	data     []byte
}

// Store is the pending-send attachment buffer plus the preview registry.
// Safe for concurrent use. Duplicates are allowed.
type Store struct {
	mu       sync.Mutex
	pending  []conversation.Attachment
	previews map[string]preview // keyed by handle id
	logger   *slog.Logger
}

// NewStore creates an empty attachment store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		previews: make(map[string]preview),
		logger:   logger,
	}
}

// Add encodes raw file bytes and appends the attachment to the pending
// buffer, acquiring a preview handle for it.
func (s *Store) Add(name, mimeType string, data []byte) conversation.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.previews[id] = preview{mimeType: mimeType, data: data}

	att := conversation.Attachment{
		Name:       name,
		MIMEType:   mimeType,
		Data:       base64.StdEncoding.EncodeToString(data),
		PreviewURL: PreviewPathPrefix + id,
	}
	s.pending = append(s.pending, att)

	s.logger.Debug("attachment added",
		"name", name,
		"mime_type", mimeType,
		"bytes", len(data),
		"pending", len(s.pending),
	)
	return att
}

// Remove deletes the pending attachment at index and releases its
// preview handle.
func (s *Store) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.pending) {
		return ErrIndexOutOfRange
	}

	s.release(s.pending[index].PreviewURL)
	s.pending = append(s.pending[:index], s.pending[index+1:]...)
	return nil
}

// Pending returns a copy of the current pending buffer, in insertion order.
func (s *Store) Pending() []conversation.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]conversation.Attachment, len(s.pending))
	copy(out, s.pending)
	return out
}

// Drain empties the pending buffer and returns its contents. Preview
// handles stay alive: the attachments now belong to a stored message and
// the message keeps referencing them.
func (s *Store) Drain() []conversation.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.pending
	s.pending = nil
	return out
}

// Clear empties the pending buffer and releases every handle still owned
// by it. Used when the user abandons the composition (new chat).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, att := range s.pending {
		s.release(att.PreviewURL)
	}
	s.pending = nil
}

// Preview resolves a handle id to its MIME type and raw bytes.
func (s *Store) Preview(id string) (mimeType string, data []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.previews[id]
	if !ok {
		return "", nil, false
	}
	return p.mimeType, p.data, true
}

// release frees the preview behind a handle URL. Caller holds s.mu.
func (s *Store) release(previewURL string) {
	id, ok := idFromPreviewURL(previewURL)
	if !ok {
		return
	}
	delete(s.previews, id)
}

// idFromPreviewURL extracts the handle id from a preview URL.
func idFromPreviewURL(url string) (string, bool) {
	if len(url) <= len(PreviewPathPrefix) || url[:len(PreviewPathPrefix)] != PreviewPathPrefix {
		return "", false
	}
	return url[len(PreviewPathPrefix):], true
}

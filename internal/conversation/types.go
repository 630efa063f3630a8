// Package conversation owns chat sessions and their message sequences.
//
// Responsibilities: in-memory session list, ordered message append, active
// session selection, async title rename. Sessions live only for the process
// lifetime; there is no persistence layer and sessions are never deleted.
// Thread Safety: Store is safe for concurrent use; all reads return
// snapshots so callers never observe in-place mutation.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects which generation pathway handles a message.
type Mode string

// Generation modes.
const (
	ModeChat   Mode = "chat"   // higher-capability model with extended thinking
	ModeSearch Mode = "search" // faster model with web-search grounding
	ModeImage  Mode = "image"  // image generation
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeChat, ModeSearch, ModeImage:
		return true
	}
	return false
}

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Attachment is a file attached to a message, already encoded for transport.
type Attachment struct {
	Name       string `json:"name"`
	MIMEType   string `json:"mimeType"`
	Data       string `json:"data"` // base64-encoded payload
	PreviewURL string `json:"url"`  // locally dereferenceable preview handle
}

// GroundingURL is a web citation attached to a search-grounded answer.
type GroundingURL struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Message is a single conversation turn. Messages are immutable after
// creation and belong to exactly one session.
type Message struct {
	ID            string         `json:"id"`
	Role          string         `json:"role"` // "user" | "assistant"
	Content       string         `json:"content"`
	Timestamp     time.Time      `json:"timestamp"`
	Mode          Mode           `json:"mode"`
	Attachments   []Attachment   `json:"attachments,omitempty"`
	ImageURL      string         `json:"imageUrl,omitempty"`
	GroundingURLs []GroundingURL `json:"groundingUrls,omitempty"`
	Suggestions   []string       `json:"suggestions,omitempty"`
}

// Session is one conversation: an id, a display title, and the ordered
// message sequence. The title starts as DefaultTitle and is renamed once,
// asynchronously, after the first exchange completes.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// DefaultTitle is the placeholder title for a session before the title
// side-flow completes (or when it fails).
const DefaultTitle = "New Chat"

// TitleMaxLength is the maximum length for generated session titles, in runes.
const TitleMaxLength = 50

// clone returns a deep copy of the session. Message values are copied;
// the slices inside each message are shared, which is safe because
// messages are immutable after creation.
func (s *Session) clone() *Session {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}

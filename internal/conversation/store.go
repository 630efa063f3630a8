package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store manages the session list and the active-session selection.
//
// All mutation happens under a single mutex; reads return deep copies so a
// caller holding a snapshot is never surprised by a concurrent append. The
// session list is kept most-recent-first: new sessions are prepended.
type Store struct {
	mu       sync.RWMutex
	sessions []*Session
	byID     map[uuid.UUID]*Session
	activeID uuid.UUID // uuid.Nil = no selection
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates an empty Store. logger may be nil (defaults to
// slog.Default()).
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		byID:   make(map[uuid.UUID]*Session),
		logger: logger,
		now:    time.Now,
	}
}

// CreateSession creates a new session whose sole message is first, prepends
// it to the session list, and selects it as active. Returns a snapshot of
// the created session.
func (s *Store) CreateSession(first Message) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := &Session{
		ID:        uuid.New(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{first},
	}

	s.sessions = append([]*Session{sess}, s.sessions...)
	s.byID[sess.ID] = sess
	s.activeID = sess.ID

	s.logger.Debug("created session", "id", sess.ID, "mode", first.Mode)
	return sess.clone()
}

// AppendMessage appends msg to the session identified by id.
// Returns ErrSessionNotFound for an unknown id.
func (s *Store) AppendMessage(id uuid.UUID, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return ErrSessionNotFound
	}

	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = s.now()

	s.logger.Debug("appended message",
		"session_id", id,
		"role", msg.Role,
		"count", len(sess.Messages),
	)
	return nil
}

// RenameSession sets the session title. Used by the title side-flow; calling
// it twice with the same title is harmless.
func (s *Store) RenameSession(id uuid.UUID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return ErrSessionNotFound
	}

	sess.Title = title
	sess.UpdatedAt = s.now()
	s.logger.Debug("renamed session", "id", id, "title", title)
	return nil
}

// Select marks the session as active for rendering. Does not mutate
// message data.
func (s *Store) Select(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return ErrSessionNotFound
	}
	s.activeID = id
	return nil
}

// ClearSelection deselects the active session. An in-flight request
// targeting the deselected session still reconciles into it.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = uuid.Nil
}

// Active returns a snapshot of the active session, or false when no
// session is selected.
func (s *Store) Active() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == uuid.Nil {
		return nil, false
	}
	sess, ok := s.byID[s.activeID]
	if !ok {
		return nil, false
	}
	return sess.clone(), true
}

// Session returns a snapshot of the session with the given id.
func (s *Store) Session(id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.clone(), nil
}

// Sessions returns snapshots of all sessions, most-recent-first.
func (s *Store) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.clone()
	}
	return out
}

// MessageCount returns the number of messages in the session.
func (s *Store) MessageCount(id uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.byID[id]
	if !ok {
		return 0, ErrSessionNotFound
	}
	return len(sess.Messages), nil
}

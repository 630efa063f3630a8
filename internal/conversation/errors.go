package conversation

import "errors"

// ErrSessionNotFound indicates the session id does not exist in the store.
// Appending to an unknown session is an explicit error, not a silent drop.
// Check with errors.Is().
var ErrSessionNotFound = errors.New("session not found")

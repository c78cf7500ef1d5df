package ws

import "github.com/google/uuid"

// newConnID labels a connection for lifecycle events and log correlation.
// Same id format as messages and rooms.
func newConnID() string {
	return uuid.NewString()
}

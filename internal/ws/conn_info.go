package ws

import "time"

// ConnInfo carries request metadata captured at upgrade time, used for
// lifecycle events. UserID stays empty until a frame authenticates.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

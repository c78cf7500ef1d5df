package observability

// EventEnvelope is the wire shape for websocket lifecycle events published to
// the broker. OccurredAt is stamped by PublishEvent when left empty.
type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at,omitempty"`
	Payload    interface{} `json:"payload"`
}

// BuildHeaders carries request correlation ids into broker message headers so
// consumers can stitch events back to the originating HTTP upgrade.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

package delivery

import "context"

// Publisher routes an event onto the broker. The caller wraps this behind
// a circuit breaker so a broker outage never blocks the business response.
// eventID is injected as the envelope's top-level event_id, the key
// consumers deduplicate by.
// Implementations live in package events.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType, eventID string, payload any) error
}

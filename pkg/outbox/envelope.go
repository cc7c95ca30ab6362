package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event. It is nil for system changes.
type ActorRef struct {
	IdentityID int64  `json:"identityId"`
	Role       string `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload.
func DecodeEnvelope(raw json.RawMessage) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	err := json.Unmarshal(raw, &env)
	return env, err
}

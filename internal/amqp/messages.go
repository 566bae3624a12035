package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Bota93/spendesk/internal/events"
)

// AuthEventMessage is the wire form of an auth event. Origin identifies the
// publishing process so that it can skip its own events on the way back.
type AuthEventMessage struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Origin     string    `json:"origin,omitempty"`
}

func NewAuthEventMessage(e events.AuthEvent, origin string) *AuthEventMessage {
	at := e.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	return &AuthEventMessage{
		Type:       string(e.Type),
		UserID:     e.UserID,
		OccurredAt: at,
		Origin:     origin,
	}
}

// ToJSON converts the message to JSON bytes
func (m *AuthEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *AuthEventMessage) Event() events.AuthEvent {
	return events.AuthEvent{Type: events.Type(m.Type), UserID: m.UserID, OccurredAt: m.OccurredAt}
}

// AuthEventMessageFromJSON decodes and checks a message.
func AuthEventMessageFromJSON(data []byte) (*AuthEventMessage, error) {
	var msg AuthEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch events.Type(msg.Type) {
	case events.SignedIn, events.SignedOut, events.UserDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("event %s without user id", msg.Type)
	}
	return &msg, nil
}

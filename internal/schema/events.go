package schema

import "encoding/json"

// EventType is the discriminator carried by every wire envelope.
type EventType string

const (
	EventAuth            EventType = "auth"
	EventAuthSuccess     EventType = "auth_success"
	EventAuthError       EventType = "auth_error"
	EventNewMessage      EventType = "new_message"
	EventUserOnline      EventType = "user_online"
	EventUserOffline     EventType = "user_offline"
	EventReminder        EventType = "reminder_notification"
	EventReactionUpdated EventType = "reaction_updated"
	EventRoomUpdated     EventType = "chatRoomUpdated"
	EventError           EventType = "error"
)

// Envelope is a parsed inbound frame: the type discriminator plus the raw
// payload, so feature-specific subscribers can decode their own shapes.
type Envelope struct {
	Type EventType
	Raw  json.RawMessage
}

// DecodeEnvelope parses the discriminator out of an inbound frame. The raw
// bytes are retained as-is; a frame that is not a JSON object fails here.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Envelope{}, err
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Envelope{Type: head.Type, Raw: raw}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Raw, v)
}

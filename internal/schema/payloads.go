package schema

import "time"

// AuthRequest is the application-level handshake sent right after the
// channel opens.
type AuthRequest struct {
	Type   EventType `json:"type"`
	UserID int64     `json:"userId"`
}

// NewAuthRequest builds the handshake envelope for the local user.
func NewAuthRequest(userID int64) AuthRequest {
	return AuthRequest{Type: EventAuth, UserID: userID}
}

// Participant is the sender summary embedded in a message.
type Participant struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
}

// Message is the server's authoritative view of a chat message.
type Message struct {
	ID              int64        `json:"id"`
	ChatRoomID      int64        `json:"chatRoomId"`
	SenderID        int64        `json:"senderId"`
	Content         string       `json:"content"`
	ClientRequestID string       `json:"clientRequestId,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	Sender          *Participant `json:"sender,omitempty"`
}

// SenderName returns the display name when the sender summary is present.
func (m Message) SenderName() string {
	if m.Sender != nil {
		return m.Sender.DisplayName
	}
	return ""
}

// NewMessageEvent carries a server-confirmed message push.
type NewMessageEvent struct {
	Type    EventType `json:"type"`
	Message Message   `json:"message"`
}

// PresenceEvent carries user_online / user_offline pushes.
type PresenceEvent struct {
	Type   EventType `json:"type"`
	UserID int64     `json:"userId"`
}

// ReactionEvent carries a reaction_updated push scoped to one room.
type ReactionEvent struct {
	Type       EventType `json:"type"`
	ChatRoomID int64     `json:"chatRoomId"`
	MessageID  int64     `json:"messageId"`
}

// RoomUpdateEvent carries room metadata changes. ImageURL stays a pointer:
// an explicit null means the image was removed and must still invalidate.
type RoomUpdateEvent struct {
	Type       EventType `json:"type"`
	ChatRoomID int64     `json:"chatRoomId"`
	Name       string    `json:"name,omitempty"`
	ImageURL   *string   `json:"imageUrl"`
}

// ReminderEvent is a scheduled reminder pushed by the server.
type ReminderEvent struct {
	Type       EventType `json:"type"`
	Title      string    `json:"title,omitempty"`
	Message    string    `json:"message"`
	ChatRoomID int64     `json:"chatRoomId,omitempty"`
	ReminderID int64     `json:"reminderId,omitempty"`
}

// AuthResult carries auth_success / auth_error payloads.
type AuthResult struct {
	Type   EventType `json:"type"`
	UserID int64     `json:"userId,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// ErrorEvent is a server-reported error push.
type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

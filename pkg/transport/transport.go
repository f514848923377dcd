// Package transport defines the bidirectional channel contract the session
// core consumes. Implementations deliver events through callbacks so the
// connection state machine can be exercised against a fake socket.
package transport

import "context"

// State mirrors the channel's ready state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close codes carried on the close event.
const (
	// CloseNormal indicates an intentional closure; no reconnect follows it.
	CloseNormal = 1000
	// CloseAbnormal indicates the channel dropped without a close frame.
	CloseAbnormal = 1006
)

// Conn is an established channel.
type Conn interface {
	// Send transmits a serialized payload.
	Send(payload []byte) error
	// Close tears the channel down with the given close code.
	Close(code int, reason string) error
	// ReadyState reports the current channel state.
	ReadyState() State
}

// Events carries the channel callbacks. OnOpen delivers the established
// Conn before any OnMessage; OnClose is terminal for the Conn.
type Events struct {
	OnOpen    func(Conn)
	OnMessage func(data []byte)
	OnClose   func(code int, reason string)
	OnError   func(err error)
}

// Dialer establishes new channels. Dial blocks until the handshake outcome;
// on success events are delivered asynchronously, starting with OnOpen.
type Dialer interface {
	Dial(ctx context.Context, url string, ev Events) error
}

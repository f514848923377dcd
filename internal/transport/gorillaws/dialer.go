// Package gorillaws implements the transport contract over a real WebSocket
// connection using gorilla/websocket.
package gorillaws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"

	"main/pkg/transport"
)

const defaultHandshakeTimeout = 10 * time.Second

// Dialer dials WebSocket URLs and pumps events into transport callbacks.
type Dialer struct {
	// HandshakeTimeout bounds the opening handshake. Optional; default 10s.
	HandshakeTimeout time.Duration
	// RequestHeader is passed through to the handshake. Optional.
	RequestHeader map[string][]string
}

// Dial implements transport.Dialer. It blocks until the handshake outcome;
// on success the read loop starts and OnOpen fires before any OnMessage.
func (d *Dialer) Dial(ctx context.Context, url string, ev transport.Events) error {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	wsd := websocket.Dialer{HandshakeTimeout: timeout}
	ws, _, err := wsd.DialContext(ctx, url, d.RequestHeader)
	if err != nil {
		return errors.Wrapf(err, "dial %s", url)
	}

	c := &Conn{ws: ws}
	c.state.Store(int32(transport.StateOpen))
	go c.readLoop(ev)
	return nil
}

// Conn adapts a gorilla connection to transport.Conn.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	state   atomic.Int32
	closed  atomic.Bool
}

// Send implements transport.Conn.
func (c *Conn) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if transport.State(c.state.Load()) != transport.StateOpen {
		return errors.New("gorillaws: connection not open")
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// Close implements transport.Conn. It sends a close frame with the given
// code so the peer sees the intent, then drops the connection.
func (c *Conn) Close(code int, reason string) error {
	c.state.Store(int32(transport.StateClosing))
	c.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	err := c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.writeMu.Unlock()
	closeErr := c.ws.Close()
	c.state.Store(int32(transport.StateClosed))
	if err != nil {
		return err
	}
	return closeErr
}

// ReadyState implements transport.Conn.
func (c *Conn) ReadyState() transport.State {
	return transport.State(c.state.Load())
}

func (c *Conn) readLoop(ev transport.Events) {
	if ev.OnOpen != nil {
		ev.OnOpen(c)
	}
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.state.Store(int32(transport.StateClosed))
			if !c.closed.CompareAndSwap(false, true) {
				return
			}
			code, reason := closeDetails(err)
			if code == transport.CloseAbnormal && ev.OnError != nil {
				ev.OnError(err)
			}
			if ev.OnClose != nil {
				ev.OnClose(code, reason)
			}
			return
		}
		if ev.OnMessage != nil {
			ev.OnMessage(data)
		}
	}
}

func closeDetails(err error) (int, string) {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, ce.Text
	}
	return transport.CloseAbnormal, err.Error()
}

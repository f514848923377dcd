// Development chat server: just enough of the real backend to exercise the
// session core end to end. It authenticates, assigns server ids, broadcasts
// new_message and presence events, and optionally archives to PostgreSQL.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"main/internal/archive"
	"main/internal/schema"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type client struct {
	userID int64
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *client) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	nextID  atomic.Int64
	store   *archive.Store
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.broadcast(schema.PresenceEvent{Type: schema.EventUserOnline, UserID: c.userID}, c)
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.broadcast(schema.PresenceEvent{Type: schema.EventUserOffline, UserID: c.userID}, c)
}

func (h *hub) broadcast(v any, exclude *client) {
	h.mu.Lock()
	peers := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c != exclude {
			peers = append(peers, c)
		}
	}
	h.mu.Unlock()
	for _, c := range peers {
		c.send(v)
	}
}

func (h *hub) broadcastAll(v any) {
	h.broadcast(v, nil)
}

type inboundMessage struct {
	Type            string `json:"type"`
	ChatRoomID      int64  `json:"chatRoomId"`
	Content         string `json:"content"`
	ClientRequestID string `json:"clientRequestId"`
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Warnf("devserver: upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	c, ok := h.authenticate(ws)
	if !ok {
		return
	}
	h.add(c)
	defer h.remove(c)
	logs.Infof("devserver: user %d connected", c.userID)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			logs.Infof("devserver: user %d disconnected: %v", c.userID, err)
			return
		}
		h.handleFrame(c, data)
	}
}

// authenticate expects the first frame to be the auth envelope; anything
// else is rejected, matching the production handshake contract.
func (h *hub) authenticate(ws *websocket.Conn) (*client, bool) {
	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, false
	}
	_ = ws.SetReadDeadline(time.Time{})

	var auth schema.AuthRequest
	if err := json.Unmarshal(data, &auth); err != nil || auth.Type != schema.EventAuth || auth.UserID <= 0 {
		c := &client{conn: ws}
		c.send(schema.AuthResult{Type: schema.EventAuthError, Error: "authentication required"})
		return nil, false
	}

	c := &client{userID: auth.UserID, conn: ws}
	c.send(schema.AuthResult{Type: schema.EventAuthSuccess, UserID: auth.UserID})
	return c, true
}

func (h *hub) handleFrame(c *client, data []byte) {
	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		logs.Warnf("devserver: dropping malformed frame from user %d: %v", c.userID, err)
		return
	}
	switch in.Type {
	case "message":
		h.handleMessage(c, in)
	case "ping":
		c.send(map[string]string{"type": "pong"})
	default:
		c.send(schema.ErrorEvent{Type: schema.EventError, Message: "unknown message type: " + in.Type})
	}
}

func (h *hub) handleMessage(c *client, in inboundMessage) {
	msg := schema.Message{
		ChatRoomID:      in.ChatRoomID,
		SenderID:        c.userID,
		Content:         in.Content,
		ClientRequestID: in.ClientRequestID,
		CreatedAt:       time.Now().UTC(),
	}
	if h.store != nil {
		id, err := h.store.SaveMessage(msg)
		if err != nil {
			logs.Errorf("devserver: archive save failed: %v", err)
			msg.ID = h.nextID.Add(1)
		} else {
			msg.ID = id
		}
	} else {
		msg.ID = h.nextID.Add(1)
	}

	h.broadcastAll(schema.NewMessageEvent{Type: schema.EventNewMessage, Message: msg})
}

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	dsn := flag.String("dsn", "", "PostgreSQL DSN for the message archive (optional)")
	flag.Parse()

	h := &hub{clients: make(map[*client]struct{})}
	if *dsn != "" {
		store, err := archive.Open(*dsn)
		if err != nil {
			log.Fatalf("open archive: %v", err)
		}
		h.store = store
		logs.Infof("devserver: archiving messages to postgres")
	}

	http.HandleFunc("/ws", h.serve)
	logs.Infof("devserver: listening on %s", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal(err)
	}
}

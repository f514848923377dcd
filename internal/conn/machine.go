// Package conn owns the single transport channel: it is the only component
// holding the live handle, and every state transition happens on a transport
// callback or a scheduler firing.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/notify"
	"main/internal/obs"
	"main/internal/pending"
	"main/internal/schema"
	"main/pkg/backoff"
	"main/pkg/schedule"
	"main/pkg/transport"
)

var (
	ErrNotConnected = errors.New("conn: not connected")
	ErrSuppressed   = errors.New("conn: reconnection suppressed")
	ErrBadConfig    = errors.New("conn: invalid config")
)

const (
	// unstableThreshold is the attempt count at which the user is told the
	// connection is unstable. Only the crossing fires the notification.
	unstableThreshold = 3

	defaultSettleDelay  = 250 * time.Millisecond
	defaultPollInterval = 500 * time.Millisecond
	defaultPollBudget   = 10
)

// Status is the machine's connection state.
type Status uint8

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusOpen
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of the connection. IsConnected and
// IsReconnecting are never both true.
type State struct {
	IsConnected       bool
	IsReconnecting    bool
	ReconnectAttempts uint
	LastReconnectTime time.Time
}

// Result reports what Send did with a payload.
type Result struct {
	Sent      bool
	Queued    bool
	PendingID string
}

// Router receives raw inbound frames.
type Router interface {
	HandleFrame(data []byte)
}

// Config wires the machine's collaborators.
type Config struct {
	URL    string
	UserID int64
	Dialer transport.Dialer

	Scheduler schedule.Scheduler
	Backoff   backoff.Backoff
	Notifier  notify.Notifier
	Router    Router
	Metrics   *obs.Metrics

	// SettleDelay is the pause between open and the pending flush, letting
	// the auth handshake reach the server first. Optional; default 250ms.
	SettleDelay time.Duration
	// PingInterval enables periodic application-level pings when > 0.
	// Optional; default 0 (disabled).
	PingInterval time.Duration
	// MaxRetries is the pending store retry budget per message. Optional;
	// default pending.DefaultMaxRetries.
	MaxRetries uint
}

// Machine is the connection state machine.
type Machine struct {
	mu           sync.Mutex
	cfg          Config
	conn         transport.Conn
	status       Status
	suppressed   bool
	reconnecting bool
	attempts     uint
	lastOpen     time.Time

	reconnectTask schedule.Task
	pingTask      schedule.Task
	store         *pending.Store
}

// NewMachine validates config and builds a machine in the disconnected state.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Dialer == nil || cfg.URL == "" {
		return nil, ErrBadConfig
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.New()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{}
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = pending.DefaultMaxRetries
	}
	return &Machine{cfg: cfg}, nil
}

// AttachStore wires the pending message store. The machine is the store's
// sender, so the two are linked after construction.
func (m *Machine) AttachStore(store *pending.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = store
}

// Connect opens a new channel. It is a no-op while suppressed or when a
// channel is already connecting or open.
func (m *Machine) Connect() {
	m.mu.Lock()
	if m.suppressed || m.status != StatusDisconnected {
		m.mu.Unlock()
		return
	}
	m.status = StatusConnecting
	m.reconnecting = true
	m.reconnectTask = nil
	dialer := m.cfg.Dialer
	url := m.cfg.URL
	m.mu.Unlock()

	logs.Debugf("conn: dialing %s", url)
	err := dialer.Dial(context.Background(), url, transport.Events{
		OnOpen:    m.handleOpen,
		OnMessage: m.handleMessage,
		OnClose:   m.handleClose,
		OnError:   m.handleError,
	})
	if err != nil {
		logs.Warnf("conn: dial failed: %v", err)
		m.handleClose(transport.CloseAbnormal, "dial failed")
	}
}

// Send transmits the payload immediately when open. Otherwise, and on a
// transmit error, the payload falls through to the pending store; while the
// channel is still connecting a bounded poll retransmits it as soon as the
// socket opens.
func (m *Machine) Send(payload []byte) Result {
	m.mu.Lock()
	c := m.conn
	open := m.status == StatusOpen && c != nil
	m.mu.Unlock()

	if open {
		if err := c.Send(payload); err == nil {
			m.cfg.Metrics.AddSentDirect(1)
			return Result{Sent: true}
		} else {
			logs.Warnf("conn: send failed while open, queuing: %v", err)
		}
	}

	id := m.enqueue(payload)
	m.mu.Lock()
	connecting := m.status == StatusConnecting
	m.mu.Unlock()
	if connecting {
		m.cfg.Scheduler.After(defaultPollInterval, func() {
			m.pollForOpen(id, defaultPollBudget)
		})
	}
	return Result{Queued: true, PendingID: id}
}

// TrySend transmits directly or fails; it never queues. It backs the
// pending store's retry and flush paths.
func (m *Machine) TrySend(payload []byte) error {
	m.mu.Lock()
	c := m.conn
	open := m.status == StatusOpen && c != nil
	m.mu.Unlock()
	if !open {
		return ErrNotConnected
	}
	return c.Send(payload)
}

// Suppress toggles the reconnect suppress-flag. Raising it cancels any
// scheduled reconnect.
func (m *Machine) Suppress(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressed = v
	if v && m.reconnectTask != nil {
		m.reconnectTask.Cancel()
		m.reconnectTask = nil
		m.reconnecting = false
	}
}

// CloseIntentional tears the channel down with the normal-closure code so no
// reconnect follows, and cancels any scheduled reconnect.
func (m *Machine) CloseIntentional(reason string) {
	m.mu.Lock()
	if m.reconnectTask != nil {
		m.reconnectTask.Cancel()
		m.reconnectTask = nil
	}
	if m.pingTask != nil {
		m.pingTask.Cancel()
		m.pingTask = nil
	}
	c := m.conn
	m.conn = nil
	m.status = StatusDisconnected
	m.reconnecting = false
	m.mu.Unlock()

	if c != nil {
		if err := c.Close(transport.CloseNormal, reason); err != nil {
			logs.Debugf("conn: close: %v", err)
		}
	}
}

// State returns a snapshot of the connection.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := m.status == StatusOpen
	return State{
		IsConnected:       open,
		IsReconnecting:    m.reconnecting && !open,
		ReconnectAttempts: m.attempts,
		LastReconnectTime: m.lastOpen,
	}
}

// Status returns the current machine status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Machine) handleOpen(c transport.Conn) {
	m.mu.Lock()
	if m.suppressed {
		m.status = StatusDisconnected
		m.reconnecting = false
		m.mu.Unlock()
		_ = c.Close(transport.CloseNormal, "suppressed")
		return
	}
	m.conn = c
	m.status = StatusOpen
	m.reconnecting = false
	prior := m.attempts
	m.attempts = 0
	m.lastOpen = m.cfg.Scheduler.Now()
	ping := m.cfg.PingInterval
	m.mu.Unlock()

	m.cfg.Metrics.AddConnects(1)
	logs.Infof("conn: channel open, authenticating user %d", m.cfg.UserID)

	auth, err := json.Marshal(schema.NewAuthRequest(m.cfg.UserID))
	if err == nil {
		if err := c.Send(auth); err != nil {
			logs.Errorf("conn: auth handshake send failed: %v", err)
		}
	}

	if prior > 0 {
		m.cfg.Notifier.Show(notify.Notification{
			Title:       "Connection restored",
			Description: "You are back online.",
			Variant:     notify.VariantSuccess,
		})
	}

	m.cfg.Scheduler.After(m.cfg.SettleDelay, func() {
		if m.store != nil {
			m.store.FlushAll()
		}
	})
	if ping > 0 {
		m.schedulePing(ping)
	}
}

func (m *Machine) handleMessage(data []byte) {
	if m.cfg.Router != nil {
		m.cfg.Router.HandleFrame(data)
	}
}

// handleError only records the failure; the close handler is solely
// responsible for scheduling reconnects, to avoid double-scheduling.
func (m *Machine) handleError(err error) {
	logs.Warnf("conn: transport error: %v", err)
}

func (m *Machine) handleClose(code int, reason string) {
	m.mu.Lock()
	if m.pingTask != nil {
		m.pingTask.Cancel()
		m.pingTask = nil
	}
	m.conn = nil
	m.status = StatusDisconnected
	if code == transport.CloseNormal || m.suppressed {
		m.reconnecting = false
		m.mu.Unlock()
		logs.Infof("conn: channel closed (%d %s), not reconnecting", code, reason)
		return
	}
	m.attempts++
	a := m.attempts
	m.reconnecting = true
	delay := m.cfg.Backoff.Next(a)
	m.reconnectTask = m.cfg.Scheduler.After(delay, m.Connect)
	m.mu.Unlock()

	m.cfg.Metrics.AddReconnects(1)
	logs.Warnf("conn: channel closed (%d %s), reconnect attempt %d in %s", code, reason, a, delay)
	if a == unstableThreshold {
		m.cfg.Notifier.Show(notify.Notification{
			Title:       "Connection unstable",
			Description: "Trying to reconnect...",
			Variant:     notify.VariantDestructive,
		})
	}
}

func (m *Machine) enqueue(payload []byte) string {
	if m.store == nil {
		return ""
	}
	return m.store.Enqueue(payload, m.cfg.MaxRetries)
}

// pollForOpen watches a connecting channel on behalf of one queued payload
// and flushes it the moment the socket opens. The retry path takes over once
// the budget runs out or the connect attempt dies.
func (m *Machine) pollForOpen(id string, remaining int) {
	m.mu.Lock()
	status := m.status
	m.mu.Unlock()

	switch status {
	case StatusOpen:
		if m.store != nil {
			m.store.Flush(id)
		}
	case StatusConnecting:
		if remaining <= 0 {
			return
		}
		m.cfg.Scheduler.After(defaultPollInterval, func() {
			m.pollForOpen(id, remaining-1)
		})
	}
}

func (m *Machine) schedulePing(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusOpen {
		return
	}
	m.pingTask = m.cfg.Scheduler.After(interval, func() {
		if err := m.TrySend([]byte(`{"type":"ping"}`)); err == nil {
			m.schedulePing(interval)
		}
	})
}

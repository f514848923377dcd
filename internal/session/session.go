// Package session is the single entry point to the real-time delivery core.
// It owns the pending store, cache, router, and signaling registry, and
// injects them into each other; nothing here is ambient global state.
package session

import (
	"encoding/json"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/cache"
	"main/internal/conn"
	"main/internal/lifecycle"
	"main/internal/notify"
	"main/internal/obs"
	"main/internal/pending"
	"main/internal/router"
	"main/internal/schema"
	"main/internal/signal"
	"main/pkg/backoff"
	"main/pkg/schedule"
	"main/pkg/transport"
)

// Config wires a session. URL, UserID and Dialer are required; everything
// else has a sensible default.
type Config struct {
	URL    string
	UserID int64
	Dialer transport.Dialer

	Notifier    notify.Notifier
	Invalidator cache.Invalidator
	Scheduler   schedule.Scheduler
	Backoff     backoff.Backoff
	Metrics     *obs.Metrics

	MaxRetries    uint
	SweepInterval time.Duration
	ExpireAfter   time.Duration
	SettleDelay   time.Duration
	ResumeDelay   time.Duration
	PingInterval  time.Duration
}

// Session is the public facade over the delivery core. It is safe to call
// before the first connection attempt completes: sends queue instead of
// failing, and signaling subscriptions survive reconnect cycles untouched.
type Session struct {
	machine     *conn.Machine
	store       *pending.Store
	cache       *cache.Store
	signals     *signal.Registry
	coordinator *lifecycle.Coordinator
	metrics     *obs.Metrics
}

// New builds a fully wired session. It does not connect; call Connect.
func New(cfg Config) (*Session, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("session: dialer is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("session: url is required")
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.New()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{}
	}
	if cfg.Invalidator == nil {
		cfg.Invalidator = cache.NopInvalidator{}
	}
	if cfg.Backoff.Base == 0 && cfg.Backoff.Max == 0 && cfg.Backoff.Jitter == 0 {
		cfg.Backoff = backoff.Default()
	}

	signals := signal.NewRegistry()
	msgCache := cache.NewStore()
	rt := router.New(msgCache, cfg.Invalidator, cfg.Notifier, signals, cfg.Metrics, cfg.UserID)

	machine, err := conn.NewMachine(conn.Config{
		URL:          cfg.URL,
		UserID:       cfg.UserID,
		Dialer:       cfg.Dialer,
		Scheduler:    cfg.Scheduler,
		Backoff:      cfg.Backoff,
		Notifier:     cfg.Notifier,
		Router:       rt,
		Metrics:      cfg.Metrics,
		SettleDelay:  cfg.SettleDelay,
		PingInterval: cfg.PingInterval,
		MaxRetries:   cfg.MaxRetries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build connection machine")
	}

	store := pending.NewStore(pending.Config{
		Scheduler:     cfg.Scheduler,
		Backoff:       cfg.Backoff,
		Notifier:      cfg.Notifier,
		Metrics:       cfg.Metrics,
		ExpireAfter:   cfg.ExpireAfter,
		SweepInterval: cfg.SweepInterval,
	})
	store.AttachSender(machine)
	machine.AttachStore(store)

	return &Session{
		machine:     machine,
		store:       store,
		cache:       msgCache,
		signals:     signals,
		coordinator: lifecycle.NewCoordinator(machine, cfg.Scheduler, cfg.ResumeDelay),
		metrics:     cfg.Metrics,
	}, nil
}

// Connect starts the connection lifecycle and the pending expiry sweep.
func (s *Session) Connect() {
	s.store.StartSweeper()
	s.machine.Connect()
}

// SendMessage serializes the payload and hands it to the delivery core. The
// payload shape is the caller's business beyond serializability.
func (s *Session) SendMessage(payload any) (conn.Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return conn.Result{}, errors.Wrap(err, "serialize message")
	}
	return s.machine.Send(data), nil
}

// ConnectionState returns a read-only snapshot of the connection.
func (s *Session) ConnectionState() conn.State {
	return s.machine.State()
}

// PendingMessageCount reports how many messages await transmission.
func (s *Session) PendingMessageCount() int {
	return s.store.Len()
}

// SubscribeToSignaling registers a handler for every inbound envelope and
// returns its unsubscribe function.
func (s *Session) SubscribeToSignaling(fn signal.Handler) (unsubscribe func()) {
	return s.signals.Subscribe(fn)
}

// HandleAppState applies a host foreground/background transition.
func (s *Session) HandleAppState(state lifecycle.AppState) {
	s.coordinator.Handle(state)
}

// BindLifecycle subscribes the session to a host state source.
func (s *Session) BindLifecycle(src lifecycle.Source) (cancel func()) {
	return s.coordinator.Bind(src)
}

// Cache exposes the local message cache so the presentation layer can add
// optimistic entries and render room snapshots.
func (s *Session) Cache() *cache.Store {
	return s.cache
}

// AddOptimistic records a locally sent message ahead of confirmation.
func (s *Session) AddOptimistic(roomID int64, msg schema.Message) {
	s.cache.AddOptimistic(roomID, msg)
}

// Metrics returns the session counter set, which may be nil.
func (s *Session) Metrics() *obs.Metrics {
	return s.metrics
}

// Shutdown tears the channel down intentionally and stops background tasks.
func (s *Session) Shutdown() {
	s.store.StopSweeper()
	s.machine.Suppress(true)
	s.machine.CloseIntentional("session shutdown")
}

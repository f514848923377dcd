// Package pending keeps outbound messages that could not be transmitted,
// retrying them with backoff until they are sent, exhausted, or expired.
package pending

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/notify"
	"main/internal/obs"
	"main/pkg/backoff"
	"main/pkg/schedule"
)

var ErrUnknownMessage = errors.New("pending: unknown message id")

const (
	// DefaultMaxRetries is the retry budget per message.
	DefaultMaxRetries uint = 3
	// DefaultExpireAfter is how long an unresolved entry may linger before
	// the sweeper garbage-collects it.
	DefaultExpireAfter = 5 * time.Minute
	// DefaultSweepInterval is the cadence of the expiry sweep.
	DefaultSweepInterval = time.Minute
)

// Sender transmits a payload over the live channel without re-queuing it.
type Sender interface {
	TrySend(payload []byte) error
}

type entry struct {
	id         string
	payload    []byte
	enqueuedAt time.Time
	retryCount uint
	maxRetries uint
	retryTask  schedule.Task
}

// Store is the insertion-ordered pending message collection. It is mutated
// only by itself and the connection machine's send/flush paths.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string

	sender   Sender
	sched    schedule.Scheduler
	backoff  backoff.Backoff
	notifier notify.Notifier
	metrics  *obs.Metrics

	expireAfter   time.Duration
	sweepInterval time.Duration
	sweepTask     schedule.Task
	rng           *rand.Rand
}

// Config wires the store's collaborators.
type Config struct {
	Scheduler schedule.Scheduler
	Backoff   backoff.Backoff
	Notifier  notify.Notifier
	Metrics   *obs.Metrics

	// ExpireAfter overrides DefaultExpireAfter when > 0.
	ExpireAfter time.Duration
	// SweepInterval overrides DefaultSweepInterval when > 0.
	SweepInterval time.Duration
}

// NewStore creates an empty store. The sender is attached afterwards because
// the connection machine and the store reference each other.
func NewStore(cfg Config) *Store {
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.New()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{}
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = DefaultExpireAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Store{
		entries:       make(map[string]*entry),
		sched:         cfg.Scheduler,
		backoff:       cfg.Backoff,
		notifier:      cfg.Notifier,
		metrics:       cfg.Metrics,
		expireAfter:   cfg.ExpireAfter,
		sweepInterval: cfg.SweepInterval,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AttachSender wires the transmitter used by retries and flushes.
func (s *Store) AttachSender(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
}

// Enqueue stores a payload awaiting transmission and returns its local id.
// The id combines the current time with a random suffix; it is not a global
// identifier and only needs to be unique for the pending lifetime.
func (s *Store) Enqueue(payload []byte, maxRetries uint) string {
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("%d-%06d", s.sched.Now().UnixMilli(), s.rng.Intn(1_000_000))
	s.entries[id] = &entry{
		id:         id,
		payload:    append([]byte(nil), payload...),
		enqueuedAt: s.sched.Now(),
		maxRetries: maxRetries,
	}
	s.order = append(s.order, id)
	s.metrics.AddQueued(1)
	return id
}

// MarkSent removes a successfully transmitted entry.
func (s *Store) MarkSent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// Len reports the number of entries awaiting transmission.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ScheduleRetry bumps the entry's retry counter. At the limit the entry is
// dropped and the failure surfaced once; otherwise a retransmission fires
// after the backoff delay and re-enters this path on failure.
func (s *Store) ScheduleRetry(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.retryCount++
	if e.retryCount >= e.maxRetries {
		s.removeLocked(id)
		s.mu.Unlock()
		s.metrics.AddTerminalDrops(1)
		logs.Warnf("pending: message %s dropped after %d retries", id, e.retryCount)
		s.notifier.Show(notify.Notification{
			Title:       "Message not sent",
			Description: "The message could not be delivered. Please try again.",
			Variant:     notify.VariantDestructive,
		})
		return
	}
	delay := s.backoff.Next(e.retryCount)
	e.retryTask = s.sched.After(delay, func() { s.retransmit(id) })
	s.mu.Unlock()
	s.metrics.AddRetries(1)
}

// Flush attempts immediate transmission of a single entry, falling back to
// the retry path on failure.
func (s *Store) Flush(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || s.sender == nil {
		s.mu.Unlock()
		return
	}
	payload := e.payload
	sender := s.sender
	s.mu.Unlock()

	if err := sender.TrySend(payload); err != nil {
		s.ScheduleRetry(id)
		return
	}
	s.MarkSent(id)
}

// FlushAll attempts immediate transmission of every entry in insertion
// order. A failing entry re-enters the retry path without blocking the rest.
func (s *Store) FlushAll() {
	s.mu.Lock()
	ids := append([]string(nil), s.order...)
	s.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	logs.Debugf("pending: flushing %d queued messages", len(ids))
	s.metrics.AddFlushes(1)
	for _, id := range ids {
		s.Flush(id)
	}
}

// SweepExpired removes entries older than the threshold regardless of
// connection state. It is a silent safety net against leaks, distinct from
// the terminal-failure path: no notification fires.
func (s *Store) SweepExpired(threshold time.Duration) int {
	if threshold <= 0 {
		threshold = DefaultExpireAfter
	}
	cutoff := s.sched.Now().Add(-threshold)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, id := range append([]string(nil), s.order...) {
		e := s.entries[id]
		if e != nil && e.enqueuedAt.Before(cutoff) {
			s.removeLocked(id)
			removed++
		}
	}
	if removed > 0 {
		s.metrics.AddSweepRemovals(uint64(removed))
		logs.Infof("pending: swept %d expired messages", removed)
	}
	return removed
}

// StartSweeper begins the periodic expiry sweep.
func (s *Store) StartSweeper() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sweepTask != nil {
		return
	}
	s.sweepTask = s.sched.After(s.sweepInterval, s.sweep)
}

// StopSweeper cancels the periodic sweep.
func (s *Store) StopSweeper() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sweepTask != nil {
		s.sweepTask.Cancel()
		s.sweepTask = nil
	}
}

func (s *Store) sweep() {
	s.SweepExpired(s.expireAfter)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sweepTask == nil {
		return
	}
	s.sweepTask = s.sched.After(s.sweepInterval, s.sweep)
}

func (s *Store) retransmit(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	payload := e.payload
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		s.ScheduleRetry(id)
		return
	}
	if err := sender.TrySend(payload); err != nil {
		s.ScheduleRetry(id)
		return
	}
	s.MarkSent(id)
}

func (s *Store) removeLocked(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	if e.retryTask != nil {
		e.retryTask.Cancel()
	}
	delete(s.entries, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

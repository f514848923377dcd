package pending

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/notify"
	"main/pkg/backoff"
	"main/pkg/schedule"
)

type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
	fail bool
}

func (f *fakeSender) TrySend(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("transport down")
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeSender) sentStrings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, p := range f.sent {
		out[i] = string(p)
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	shown []notify.Notification
}

func (r *recordingNotifier) Show(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shown)
}

func newTestStore(t *testing.T) (*Store, *fakeSender, *recordingNotifier, *schedule.Fake) {
	t.Helper()
	sched := schedule.NewFake(time.Unix(0, 0))
	sender := &fakeSender{}
	notifier := &recordingNotifier{}
	store := NewStore(Config{
		Scheduler: sched,
		Backoff:   backoff.Backoff{Base: time.Second, Max: 60 * time.Second, Jitter: 0},
		Notifier:  notifier,
	})
	store.AttachSender(sender)
	return store, sender, notifier, sched
}

func TestFlushAllPreservesInsertionOrder(t *testing.T) {
	store, sender, _, _ := newTestStore(t)

	store.Enqueue([]byte("A"), 3)
	store.Enqueue([]byte("B"), 3)
	store.Enqueue([]byte("C"), 3)
	require.Equal(t, 3, store.Len())

	store.FlushAll()

	assert.Equal(t, []string{"A", "B", "C"}, sender.sentStrings())
	assert.Zero(t, store.Len())
}

func TestFlushAllFailingEntryDoesNotBlockRest(t *testing.T) {
	store, sender, _, sched := newTestStore(t)

	store.Enqueue([]byte("A"), 3)
	store.Enqueue([]byte("B"), 3)

	sender.fail = true
	store.FlushAll()
	require.Equal(t, 2, store.Len(), "both entries fall into the retry path")

	sender.fail = false
	sched.Advance(5 * time.Second)
	assert.ElementsMatch(t, []string{"A", "B"}, sender.sentStrings())
	assert.Zero(t, store.Len())
}

func TestMaxRetriesTerminalExactlyOnce(t *testing.T) {
	store, sender, notifier, _ := newTestStore(t)
	sender.fail = true

	id := store.Enqueue([]byte("doomed"), 1)
	store.ScheduleRetry(id)

	assert.Zero(t, store.Len(), "entry removed after exhausting its single retry")
	require.Equal(t, 1, notifier.count(), "terminal notification fires exactly once")
	assert.Equal(t, notify.VariantDestructive, notifier.shown[0].Variant)

	// A retry on a removed entry must be a no-op.
	store.ScheduleRetry(id)
	assert.Equal(t, 1, notifier.count())
}

func TestRetryPathRetransmitsUntilExhausted(t *testing.T) {
	store, sender, notifier, sched := newTestStore(t)
	sender.fail = true

	id := store.Enqueue([]byte("X"), 3)
	store.ScheduleRetry(id)
	require.Equal(t, 1, store.Len())

	// retryCount 1 -> retransmit fails -> retryCount 2 -> fails -> dropped at 3.
	sched.Advance(2 * time.Second)
	require.Equal(t, 1, store.Len())
	sched.Advance(4 * time.Second)

	assert.Zero(t, store.Len())
	assert.Equal(t, 1, notifier.count())
	assert.Empty(t, sender.sentStrings())
}

func TestRetrySucceedsAndMarksSent(t *testing.T) {
	store, sender, notifier, sched := newTestStore(t)
	sender.fail = true

	id := store.Enqueue([]byte("Y"), 3)
	store.ScheduleRetry(id)

	sender.fail = false
	sched.Advance(3 * time.Second)

	assert.Equal(t, []string{"Y"}, sender.sentStrings())
	assert.Zero(t, store.Len())
	assert.Zero(t, notifier.count())
}

func TestSweepExpiredIsSilent(t *testing.T) {
	store, _, notifier, sched := newTestStore(t)

	store.Enqueue([]byte("old"), 3)
	sched.Advance(6 * time.Minute)
	store.Enqueue([]byte("fresh"), 3)

	removed := store.SweepExpired(5 * time.Minute)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len(), "fresh entry survives")
	assert.Zero(t, notifier.count(), "expiry is garbage collection, not a user-facing failure")
}

func TestSweeperRunsPeriodically(t *testing.T) {
	store, _, _, sched := newTestStore(t)

	store.Enqueue([]byte("stale"), 3)
	store.StartSweeper()

	sched.Advance(6 * time.Minute)
	assert.Zero(t, store.Len(), "periodic sweep collected the stale entry")

	store.StopSweeper()
	assert.Zero(t, sched.Pending(), "stopping the sweeper cancels its task")
}

func TestEnqueueGeneratesUniqueIDs(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	seen := make(map[string]struct{})
	for range 100 {
		id := store.Enqueue([]byte("p"), 3)
		_, dup := seen[id]
		require.False(t, dup, "duplicate pending id %s", id)
		seen[id] = struct{}{}
	}
}

package conn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/notify"
	"main/internal/pending"
	"main/pkg/backoff"
	"main/pkg/schedule"
	"main/pkg/transport"
)

type fakeConn struct {
	mu       sync.Mutex
	sent     [][]byte
	failSend bool
	closes   []int
	state    transport.State
}

func (f *fakeConn) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("write failed")
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeConn) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, code)
	f.state = transport.StateClosed
	return nil
}

func (f *fakeConn) ReadyState() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) sentStrings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, p := range f.sent {
		out[i] = string(p)
	}
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	calls int
	ev    transport.Events
	err   error
}

func (f *fakeDialer) Dial(_ context.Context, _ string, ev transport.Events) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ev = ev
	return f.err
}

func (f *fakeDialer) dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
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

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.shown))
	for i, n := range r.shown {
		out[i] = n.Title
	}
	return out
}

type machineEnv struct {
	machine  *Machine
	dialer   *fakeDialer
	notifier *recordingNotifier
	sched    *schedule.Fake
	store    *pending.Store
}

func newMachineEnv(t *testing.T) *machineEnv {
	t.Helper()
	sched := schedule.NewFake(time.Unix(0, 0))
	dialer := &fakeDialer{}
	notifier := &recordingNotifier{}
	bo := backoff.Backoff{Base: time.Second, Max: 60 * time.Second, Jitter: 0}

	machine, err := NewMachine(Config{
		URL:       "ws://example.test/ws",
		UserID:    7,
		Dialer:    dialer,
		Scheduler: sched,
		Backoff:   bo,
		Notifier:  notifier,
	})
	require.NoError(t, err)

	store := pending.NewStore(pending.Config{
		Scheduler: sched,
		Backoff:   bo,
		Notifier:  notifier,
	})
	store.AttachSender(machine)
	machine.AttachStore(store)

	return &machineEnv{machine: machine, dialer: dialer, notifier: notifier, sched: sched, store: store}
}

func (e *machineEnv) open(t *testing.T) *fakeConn {
	t.Helper()
	e.machine.Connect()
	require.Equal(t, 1, e.dialer.dials())
	c := &fakeConn{state: transport.StateOpen}
	e.dialer.ev.OnOpen(c)
	return c
}

func TestOpenSendsAuthHandshake(t *testing.T) {
	env := newMachineEnv(t)
	c := env.open(t)

	sent := c.sentStrings()
	require.Len(t, sent, 1)

	var auth struct {
		Type   string `json:"type"`
		UserID int64  `json:"userId"`
	}
	require.NoError(t, json.Unmarshal([]byte(sent[0]), &auth))
	assert.Equal(t, "auth", auth.Type)
	assert.Equal(t, int64(7), auth.UserID)

	st := env.machine.State()
	assert.True(t, st.IsConnected)
	assert.False(t, st.IsReconnecting)
	assert.Zero(t, st.ReconnectAttempts)
}

func TestIntentionalCloseDoesNotReconnect(t *testing.T) {
	env := newMachineEnv(t)
	env.open(t)

	env.dialer.ev.OnClose(transport.CloseNormal, "bye")

	env.sched.Advance(2 * 60 * 1.3 * time.Second)
	assert.Equal(t, 1, env.dialer.dials(), "no reconnect after a normal closure")
	st := env.machine.State()
	assert.False(t, st.IsConnected)
	assert.False(t, st.IsReconnecting)
}

func TestAbnormalCloseSchedulesBackoffReconnect(t *testing.T) {
	env := newMachineEnv(t)
	env.open(t)

	env.dialer.ev.OnClose(transport.CloseAbnormal, "dropped")
	st := env.machine.State()
	assert.True(t, st.IsReconnecting)
	assert.Equal(t, uint(1), st.ReconnectAttempts)

	// Next(1) with base 1s and no jitter is 2s.
	env.sched.Advance(time.Second)
	assert.Equal(t, 1, env.dialer.dials())
	env.sched.Advance(time.Second)
	assert.Equal(t, 2, env.dialer.dials())
}

func TestUnstableNotificationFiresOnlyAtCrossing(t *testing.T) {
	env := newMachineEnv(t)
	env.open(t)

	for i := 0; i < 5; i++ {
		env.dialer.ev.OnClose(transport.CloseAbnormal, "dropped")
		// Never reopen: every dial stays pending, so the next close keeps
		// incrementing the attempt counter.
		env.sched.Advance(2 * 60 * 1.3 * time.Second)
	}

	unstable := 0
	for _, title := range env.notifier.titles() {
		if title == "Connection unstable" {
			unstable++
		}
	}
	assert.Equal(t, 1, unstable, "only the crossing of the threshold notifies")
	assert.Equal(t, uint(5), env.machine.State().ReconnectAttempts)
}

func TestRestoredNotificationAfterFailedAttempts(t *testing.T) {
	env := newMachineEnv(t)
	env.open(t)

	env.dialer.ev.OnClose(transport.CloseAbnormal, "dropped")
	env.sched.Advance(3 * time.Second)
	require.Equal(t, 2, env.dialer.dials())

	c := &fakeConn{state: transport.StateOpen}
	env.dialer.ev.OnOpen(c)

	assert.Contains(t, env.notifier.titles(), "Connection restored")
	st := env.machine.State()
	assert.True(t, st.IsConnected)
	assert.Zero(t, st.ReconnectAttempts, "attempts reset on successful open")
}

func TestSendWhileOpenTransmitsImmediately(t *testing.T) {
	env := newMachineEnv(t)
	c := env.open(t)

	res := env.machine.Send([]byte(`{"hello":1}`))
	assert.True(t, res.Sent)
	assert.False(t, res.Queued)
	assert.Contains(t, c.sentStrings(), `{"hello":1}`)
	assert.Zero(t, env.store.Len())
}

func TestSendFailureWhileOpenFallsThroughToQueue(t *testing.T) {
	env := newMachineEnv(t)
	c := env.open(t)
	c.mu.Lock()
	c.failSend = true
	c.mu.Unlock()

	res := env.machine.Send([]byte("payload"))
	assert.False(t, res.Sent)
	assert.True(t, res.Queued)
	assert.NotEmpty(t, res.PendingID)
	assert.Equal(t, 1, env.store.Len())
}

func TestSendWhileDisconnectedQueues(t *testing.T) {
	env := newMachineEnv(t)

	res := env.machine.Send([]byte("early"))
	assert.True(t, res.Queued)
	assert.Equal(t, 1, env.store.Len())
}

func TestQueueFlushOrderOnReconnect(t *testing.T) {
	env := newMachineEnv(t)

	env.machine.Send([]byte("A"))
	env.machine.Send([]byte("B"))
	env.machine.Send([]byte("C"))
	require.Equal(t, 3, env.store.Len())

	c := env.open(t)
	env.sched.Advance(time.Second)

	sent := c.sentStrings()
	require.Len(t, sent, 4, "auth plus the three flushed messages")
	assert.Equal(t, []string{"A", "B", "C"}, sent[1:])
	assert.Zero(t, env.store.Len())
}

func TestPollWhileConnectingFlushesOnOpen(t *testing.T) {
	env := newMachineEnv(t)
	env.machine.Connect()
	require.Equal(t, StatusConnecting, env.machine.Status())

	res := env.machine.Send([]byte("racing"))
	require.True(t, res.Queued)

	c := &fakeConn{state: transport.StateOpen}
	env.dialer.ev.OnOpen(c)
	env.sched.Advance(600 * time.Millisecond)

	assert.Contains(t, c.sentStrings(), "racing")
	assert.Zero(t, env.store.Len())
}

func TestSuppressBlocksConnect(t *testing.T) {
	env := newMachineEnv(t)
	env.machine.Suppress(true)

	env.machine.Connect()
	assert.Zero(t, env.dialer.dials())

	env.machine.Suppress(false)
	env.machine.Connect()
	assert.Equal(t, 1, env.dialer.dials())
}

func TestSuppressCancelsScheduledReconnect(t *testing.T) {
	env := newMachineEnv(t)
	env.open(t)
	env.dialer.ev.OnClose(transport.CloseAbnormal, "dropped")

	env.machine.Suppress(true)
	env.sched.Advance(2 * 60 * 1.3 * time.Second)
	assert.Equal(t, 1, env.dialer.dials(), "suppression cancels the pending reconnect timer")
}

func TestCloseIntentionalUsesNormalCode(t *testing.T) {
	env := newMachineEnv(t)
	c := env.open(t)

	env.machine.CloseIntentional("test teardown")

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Equal(t, []int{transport.CloseNormal}, c.closes)
}

func TestDialFailureEntersRetryPath(t *testing.T) {
	env := newMachineEnv(t)
	env.dialer.err = errors.New("no route")

	env.machine.Connect()
	st := env.machine.State()
	assert.True(t, st.IsReconnecting)
	assert.Equal(t, uint(1), st.ReconnectAttempts)

	env.sched.Advance(2 * time.Second)
	assert.Equal(t, 2, env.dialer.dials())
}

func TestOpenWhileSuppressedClosesImmediately(t *testing.T) {
	env := newMachineEnv(t)
	env.machine.Connect()
	env.machine.Suppress(true)

	c := &fakeConn{state: transport.StateOpen}
	env.dialer.ev.OnOpen(c)

	c.mu.Lock()
	closes := append([]int(nil), c.closes...)
	c.mu.Unlock()
	require.Equal(t, []int{transport.CloseNormal}, closes)
	assert.False(t, env.machine.State().IsConnected)
}

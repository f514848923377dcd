package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func msg(id int64, crid, content string) schema.Message {
	return schema.Message{
		ID:              id,
		ChatRoomID:      1,
		SenderID:        7,
		Content:         content,
		ClientRequestID: crid,
		CreatedAt:       time.Unix(1700000000, 0),
	}
}

func TestReconcileConfirmsOptimisticInPlace(t *testing.T) {
	s := NewStore()
	s.AddOptimistic(1, msg(0, "req-a", "hello"))
	s.AddOptimistic(1, msg(0, "req-b", "world"))

	outcome := s.Reconcile(1, msg(100, "req-a", "hello"))
	require.Equal(t, OutcomeReplaced, outcome)

	entries := s.Entries(1)
	require.Len(t, entries, 2)
	assert.Equal(t, KindConfirmed, entries[0].Kind)
	assert.Equal(t, int64(100), entries[0].ServerID)
	assert.Equal(t, KindOptimistic, entries[1].Kind, "unrelated entry untouched")
}

func TestReconcileIdempotent(t *testing.T) {
	s := NewStore()
	s.AddOptimistic(1, msg(0, "req-a", "hello"))
	s.AddOptimistic(1, msg(0, "req-b", "world"))

	confirmed := msg(100, "req-a", "hello")
	require.Equal(t, OutcomeReplaced, s.Reconcile(1, confirmed))
	require.Equal(t, OutcomeReplaced, s.Reconcile(1, confirmed))

	require.Equal(t, 2, s.Len(1), "duplicate confirmation must not add entries")
	entries := s.Entries(1)
	assert.Equal(t, int64(100), entries[0].ServerID, "entry stays at its original position")
}

func TestReconcileMatchesByServerID(t *testing.T) {
	s := NewStore()
	require.Equal(t, OutcomeInserted, s.Reconcile(1, msg(100, "", "hello")))

	edited := msg(100, "", "hello (edited)")
	require.Equal(t, OutcomeReplaced, s.Reconcile(1, edited))
	require.Equal(t, 1, s.Len(1))
	assert.Equal(t, "hello (edited)", s.Messages(1)[0].Content)
}

func TestReconcileInsertsUnknown(t *testing.T) {
	s := NewStore()
	require.Equal(t, OutcomeInserted, s.Reconcile(1, msg(100, "", "first")))
	require.Equal(t, OutcomeInserted, s.Reconcile(1, msg(101, "", "second")))

	msgs := s.Messages(1)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}

func TestReconcilePrefersClientRequestID(t *testing.T) {
	s := NewStore()
	s.AddOptimistic(1, msg(0, "req-a", "optimistic"))
	require.Equal(t, OutcomeInserted, s.Reconcile(1, msg(100, "", "other")))

	// Same server id as the confirmed entry, but the client request id
	// points at the optimistic one; the request id must win.
	push := msg(100, "req-a", "confirmed")
	require.Equal(t, OutcomeReplaced, s.Reconcile(1, push))
	entries := s.Entries(1)
	assert.Equal(t, "confirmed", entries[0].Message.Content)
	assert.Equal(t, "other", entries[1].Message.Content)
}

func TestRoomsAreIndependent(t *testing.T) {
	s := NewStore()
	s.AddOptimistic(1, msg(0, "req-a", "one"))
	s.Reconcile(2, msg(200, "", "two"))

	assert.Equal(t, 1, s.Len(1))
	assert.Equal(t, 1, s.Len(2))
	assert.Empty(t, s.Messages(3))
}

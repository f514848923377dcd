// Package cache holds the per-room message lists the router reconciles
// server pushes against. Entries carry a tagged identity: optimistic ones
// match by client request id, confirmed ones by server id.
package cache

import (
	"sync"

	"main/internal/schema"
)

// EntryKind tags the identity an entry currently answers to.
type EntryKind uint8

const (
	// KindOptimistic marks a locally added message awaiting confirmation.
	KindOptimistic EntryKind = iota
	// KindConfirmed marks a server-confirmed message.
	KindConfirmed
)

// Entry is one cached message.
type Entry struct {
	Kind            EntryKind
	ClientRequestID string
	ServerID        int64
	Message         schema.Message
}

// Outcome reports what Reconcile did with a server push.
type Outcome uint8

const (
	// OutcomeReplaced means an existing entry was confirmed in place.
	OutcomeReplaced Outcome = iota
	// OutcomeInserted means the push was appended as a new entry.
	OutcomeInserted
)

// Store keeps insertion-ordered message lists keyed by room.
type Store struct {
	mu    sync.Mutex
	rooms map[int64][]Entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{rooms: make(map[int64][]Entry)}
}

// AddOptimistic appends a locally sent message before server confirmation.
func (s *Store) AddOptimistic(roomID int64, msg schema.Message) {
	if s == nil || msg.ClientRequestID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = append(s.rooms[roomID], Entry{
		Kind:            KindOptimistic,
		ClientRequestID: msg.ClientRequestID,
		Message:         msg,
	})
}

// Reconcile folds a server-confirmed message into the room list. Matching is
// attempted by client request id first, then by server id; a match is
// replaced in place, preserving list position, and marked confirmed.
// Reconciling the same confirmation twice leaves exactly one entry.
func (s *Store) Reconcile(roomID int64, msg schema.Message) Outcome {
	if s == nil {
		return OutcomeInserted
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.rooms[roomID]
	idx := -1
	if msg.ClientRequestID != "" {
		for i := range entries {
			if entries[i].ClientRequestID == msg.ClientRequestID {
				idx = i
				break
			}
		}
	}
	if idx < 0 && msg.ID != 0 {
		for i := range entries {
			if entries[i].Kind == KindConfirmed && entries[i].ServerID == msg.ID {
				idx = i
				break
			}
		}
	}

	confirmed := Entry{
		Kind:            KindConfirmed,
		ClientRequestID: msg.ClientRequestID,
		ServerID:        msg.ID,
		Message:         msg,
	}
	if idx >= 0 {
		entries[idx] = confirmed
		return OutcomeReplaced
	}
	s.rooms[roomID] = append(entries, confirmed)
	return OutcomeInserted
}

// Messages returns a snapshot of the room's cached messages in order.
func (s *Store) Messages(roomID int64) []schema.Message {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.rooms[roomID]
	out := make([]schema.Message, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

// Entries returns a snapshot of the room's entries, for inspection.
func (s *Store) Entries(roomID int64) []Entry {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.rooms[roomID]...)
}

// Len reports the number of cached entries for the room.
func (s *Store) Len(roomID int64) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[roomID])
}

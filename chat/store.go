package chat

import (
	"strings"
	"sync"

	"github.com/onnwee/chatfeed/telemetry"
)

// DefaultRetention is the number of messages a Store keeps by default.
const DefaultRetention = 100

// Store is a bounded, insertion-ordered list of messages with unique ids.
// Appending beyond the limit evicts the oldest messages.
type Store struct {
	channel  string
	limit    int
	notifier Notifier

	mu   sync.RWMutex
	msgs []Message
	ids  map[string]struct{}
	seq  uint64
}

// NewStore creates an empty store. A non-positive limit uses DefaultRetention.
func NewStore(channel string, limit int, n Notifier) *Store {
	if limit <= 0 {
		limit = DefaultRetention
	}
	return &Store{
		channel:  channel,
		limit:    limit,
		notifier: n,
		ids:      make(map[string]struct{}),
	}
}

func (s *Store) emit(ev StoreEvent) {
	s.seq++
	ev.Seq = s.seq
	ev.Channel = s.channel
	if s.notifier != nil {
		s.notifier.Notify(ev)
	}
}

// Append adds m at the end. A message whose id is already retained is
// dropped and Append reports false.
func (s *Store) Append(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[m.ID]; dup {
		return false
	}
	s.msgs = append(s.msgs, m)
	s.ids[m.ID] = struct{}{}
	s.emit(StoreEvent{Kind: EventAppended, Message: &m})

	if excess := len(s.msgs) - s.limit; excess > 0 {
		evicted := make([]string, 0, excess)
		for _, old := range s.msgs[:excess] {
			delete(s.ids, old.ID)
			evicted = append(evicted, old.ID)
		}
		// copy so the backing array does not keep evicted messages alive
		s.msgs = append([]Message(nil), s.msgs[excess:]...)
		s.emit(StoreEvent{Kind: EventEvicted, IDs: evicted})
	}
	telemetry.SetStoreSize(s.channel, len(s.msgs))
	return true
}

// RemoveByID removes the message with the given id and reports whether one existed.
func (s *Store) RemoveByID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return false
	}
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			last := len(s.msgs) - 1
			copy(s.msgs[i:], s.msgs[i+1:])
			s.msgs[last] = Message{}
			s.msgs = s.msgs[:last]
			break
		}
	}
	delete(s.ids, id)
	s.emit(StoreEvent{Kind: EventRemovedID, IDs: []string{id}})
	telemetry.SetStoreSize(s.channel, len(s.msgs))
	return true
}

// RemoveByUser removes every message sent by username (case-insensitive)
// and returns how many were removed.
func (s *Store) RemoveByUser(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.msgs[:0]
	var removed []string
	for _, m := range s.msgs {
		if strings.EqualFold(m.Username, username) {
			removed = append(removed, m.ID)
			delete(s.ids, m.ID)
			continue
		}
		kept = append(kept, m)
	}
	// zero the tail so dropped messages can be collected
	for i := len(kept); i < len(s.msgs); i++ {
		s.msgs[i] = Message{}
	}
	s.msgs = kept
	if len(removed) > 0 {
		s.emit(StoreEvent{Kind: EventRemovedUser, Username: strings.ToLower(username), IDs: removed})
		telemetry.SetStoreSize(s.channel, len(s.msgs))
	}
	return len(removed)
}

// Clear removes every message and returns how many were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.msgs)
	s.msgs = nil
	s.ids = make(map[string]struct{})
	if n > 0 {
		s.emit(StoreEvent{Kind: EventCleared})
		telemetry.SetStoreSize(s.channel, 0)
	}
	return n
}

// Snapshot returns the retained messages, oldest first.
func (s *Store) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.msgs...)
}

// SnapshotSeq returns the retained messages together with the sequence
// number of the last emitted event, so a subscriber can discard events it
// already saw in the snapshot.
func (s *Store) SnapshotSeq() ([]Message, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.msgs...), s.seq
}

// Len returns the number of retained messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Limit returns the retention bound.
func (s *Store) Limit() int { return s.limit }

package chat

import (
	"fmt"
	"testing"
)

type recorder struct{ events []StoreEvent }

func (r *recorder) Notify(ev StoreEvent) { r.events = append(r.events, ev) }

func msg(id, user string) Message { return Message{ID: id, Username: user} }

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestStoreEvictsOldestBeyondLimit(t *testing.T) {
	rec := &recorder{}
	s := NewStore("chan", 3, rec)
	for i := 1; i <= 5; i++ {
		s.Append(msg(fmt.Sprint(i), "u"))
	}
	if got := ids(s.Snapshot()); fmt.Sprint(got) != "[3 4 5]" {
		t.Errorf("Snapshot() = %v, want [3 4 5]", got)
	}
	if s.Len() != 3 || s.Limit() != 3 {
		t.Errorf("Len() = %d, Limit() = %d", s.Len(), s.Limit())
	}

	var evicted []string
	for i, ev := range rec.events {
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d", i, ev.Seq)
		}
		if ev.Channel != "chan" {
			t.Errorf("event %d channel = %q", i, ev.Channel)
		}
		if ev.Kind == EventEvicted {
			evicted = append(evicted, ev.IDs...)
		}
	}
	if fmt.Sprint(evicted) != "[1 2]" {
		t.Errorf("evicted = %v, want [1 2]", evicted)
	}
}

func TestStoreDropsDuplicateIDs(t *testing.T) {
	s := NewStore("chan", 10, nil)
	if !s.Append(msg("a", "u1")) {
		t.Fatal("first append rejected")
	}
	if s.Append(Message{ID: "a", Username: "u2", Text: "other"}) {
		t.Error("duplicate id accepted")
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Username != "u1" {
		t.Errorf("Snapshot() = %+v", snap)
	}

	// an evicted id may be reused
	s2 := NewStore("chan", 1, nil)
	s2.Append(msg("a", "u"))
	s2.Append(msg("b", "u"))
	if !s2.Append(msg("a", "u")) {
		t.Error("id of an evicted message should be accepted again")
	}
}

func TestStoreRemoveByID(t *testing.T) {
	rec := &recorder{}
	s := NewStore("chan", 10, rec)
	s.Append(msg("a", "u"))
	s.Append(msg("b", "u"))
	s.Append(msg("c", "u"))

	if !s.RemoveByID("b") {
		t.Fatal("RemoveByID(b) = false")
	}
	if got := ids(s.Snapshot()); fmt.Sprint(got) != "[a c]" {
		t.Errorf("Snapshot() = %v", got)
	}
	n := len(rec.events)
	if s.RemoveByID("missing") {
		t.Error("RemoveByID(missing) = true")
	}
	if s.Len() != 2 || len(rec.events) != n {
		t.Error("removing an unknown id must be a no-op")
	}
	last := rec.events[n-1]
	if last.Kind != EventRemovedID || fmt.Sprint(last.IDs) != "[b]" {
		t.Errorf("last event = %+v", last)
	}
}

func TestStoreRemoveByIDReleasesTail(t *testing.T) {
	s := NewStore("chan", 10, nil)
	for _, id := range []string{"a", "b", "c"} {
		s.Append(Message{ID: id, Username: "u", Text: "text " + id})
	}
	s.RemoveByID("b")

	if got := fmt.Sprint(ids(s.Snapshot())); got != "[a c]" {
		t.Fatalf("Snapshot() = %s", got)
	}
	tail := s.msgs[len(s.msgs):cap(s.msgs)]
	if len(tail) == 0 {
		t.Fatal("expected spare capacity after removal")
	}
	if tail[0].ID != "" || tail[0].Text != "" {
		t.Errorf("removed slot still holds %+v", tail[0])
	}
}

func TestStoreRemoveByUserIsCaseInsensitive(t *testing.T) {
	rec := &recorder{}
	s := NewStore("chan", 10, rec)
	s.Append(msg("1", "Spammer"))
	s.Append(msg("2", "alice"))
	s.Append(msg("3", "spammer"))
	s.Append(msg("4", "bob"))
	s.Append(msg("5", "SPAMMER"))

	if n := s.RemoveByUser("spammer"); n != 3 {
		t.Errorf("RemoveByUser() = %d, want 3", n)
	}
	if got := ids(s.Snapshot()); fmt.Sprint(got) != "[2 4]" {
		t.Errorf("Snapshot() = %v, want [2 4]", got)
	}
	last := rec.events[len(rec.events)-1]
	if last.Kind != EventRemovedUser || last.Username != "spammer" || len(last.IDs) != 3 {
		t.Errorf("last event = %+v", last)
	}
	if n := s.RemoveByUser("nobody"); n != 0 {
		t.Errorf("RemoveByUser(nobody) = %d", n)
	}
	// removed ids are free again
	if !s.Append(msg("1", "x")) {
		t.Error("id of removed message rejected")
	}
}

func TestStoreClear(t *testing.T) {
	rec := &recorder{}
	s := NewStore("chan", 0, rec)
	if s.Limit() != DefaultRetention {
		t.Errorf("Limit() = %d, want default %d", s.Limit(), DefaultRetention)
	}
	s.Append(msg("a", "u"))
	s.Append(msg("b", "u"))
	if n := s.Clear(); n != 2 {
		t.Errorf("Clear() = %d", n)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d", s.Len())
	}
	if rec.events[len(rec.events)-1].Kind != EventCleared {
		t.Error("missing cleared event")
	}
	before := len(rec.events)
	s.Clear()
	if len(rec.events) != before {
		t.Error("clearing an empty store must not emit")
	}
	snap, seq := s.SnapshotSeq()
	if len(snap) != 0 || seq != uint64(before) {
		t.Errorf("SnapshotSeq() = %v, %d", snap, seq)
	}
}

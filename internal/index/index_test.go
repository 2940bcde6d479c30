package index

import (
	"testing"
	"time"

	"github.com/facilitydesk/chatsync/internal/clock"
	"github.com/facilitydesk/chatsync/internal/store"
)

const self = "42"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id, from, to, text string, ts time.Time, st store.Status) store.Message {
	conv := from
	if from == self {
		conv = to
	}
	return store.Message{ID: id, ConversationID: conv, SenderID: from, ReceiverID: to, Text: text, Timestamp: ts, Status: st}
}

func testIndex(t *testing.T) (*Index, *store.Store) {
	t.Helper()
	s := store.New(clock.NewManual(t0), store.DefaultOptions())
	return New(s, self), s
}

func TestRecomputeDerivation(t *testing.T) {
	x, s := testIndex(t)
	s.UpsertFromHistory([]store.Message{
		msg("1", "7", self, "a", t0, store.StatusDelivered),
		msg("2", self, "7", "b", t0.Add(time.Minute), store.StatusSent),
		msg("3", "7", self, "c", t0.Add(30*time.Second), store.StatusRead),
		msg("4", "8", self, "d", t0.Add(2*time.Minute), store.StatusDelivered),
		msg("5", "8", self, "e", t0.Add(-time.Minute), store.StatusDelivered),
	})

	convs := x.Recompute()
	if len(convs) != 2 {
		t.Fatalf("conversations = %d, want 2", len(convs))
	}

	// Property: last message is the max timestamp, unread counts non-own non-read.
	for _, c := range convs {
		var max time.Time
		unread := 0
		for _, m := range s.Messages(c.CounterpartID) {
			if m.Timestamp.After(max) {
				max = m.Timestamp
			}
			if m.SenderID != self && m.Status != store.StatusRead {
				unread++
			}
		}
		if !c.LastMessage.Timestamp.Equal(max) {
			t.Errorf("%s last = %v, want %v", c.CounterpartID, c.LastMessage.Timestamp, max)
		}
		if c.UnreadCount != unread {
			t.Errorf("%s unread = %d, want %d", c.CounterpartID, c.UnreadCount, unread)
		}
	}

	if convs[0].CounterpartID != "8" || convs[0].LastMessage.Text != "d" {
		t.Errorf("first = %+v, want conversation 8", convs[0])
	}
	if convs[1].UnreadCount != 1 || convs[1].MessageCount != 3 {
		t.Errorf("conversation 7 = %+v", convs[1])
	}
}

func TestRecomputeTieBreak(t *testing.T) {
	x, s := testIndex(t)
	s.ApplyInbound(msg("1", "9", self, "x", t0, store.StatusDelivered))
	s.ApplyInbound(msg("2", "10", self, "y", t0, store.StatusDelivered))
	s.ApplyInbound(msg("3", "11", self, "z", t0, store.StatusDelivered))

	convs := x.Recompute()
	want := []string{"10", "11", "9"}
	for i, id := range want {
		if convs[i].CounterpartID != id {
			t.Errorf("convs[%d] = %s, want %s", i, convs[i].CounterpartID, id)
		}
	}
}

func TestLastMessageTieFavoursLaterInsert(t *testing.T) {
	x, s := testIndex(t)
	s.ApplyInbound(msg("1", "7", self, "first", t0, store.StatusDelivered))
	s.ApplyInbound(msg("2", "7", self, "second", t0, store.StatusDelivered))

	x.Recompute()
	c, ok := x.Conversation("7")
	if !ok || c.LastMessage.ID != "2" {
		t.Errorf("last = %+v, want id 2", c.LastMessage)
	}
}

func TestOptimisticScenario(t *testing.T) {
	x, s := testIndex(t)
	tempID := s.InsertOptimistic(store.Draft{ConversationID: "7", SenderID: self, Text: "hi"})
	s.Reconcile(tempID, store.Message{ID: "99", Text: "hi", Timestamp: t0.Add(time.Second)})

	convs := x.Recompute()
	if len(convs) != 1 || convs[0].CounterpartID != "7" || convs[0].LastMessage.Text != "hi" {
		t.Fatalf("conversations = %+v", convs)
	}
	if convs[0].LastMessage.ID != "99" || convs[0].UnreadCount != 0 {
		t.Errorf("conversation = %+v", convs[0])
	}
}

func TestProfiles(t *testing.T) {
	x, s := testIndex(t)
	s.ApplyInbound(msg("1", "7", self, "a", t0, store.StatusDelivered))
	s.ApplyInbound(msg("2", "8", self, "b", t0, store.StatusDelivered))

	x.Remember(Profile{ID: "7", DisplayName: "Ana", AvatarRef: "ana.png"})
	x.Remember(Profile{ID: "7", DisplayName: ""})
	x.Recompute()

	c, _ := x.Conversation("7")
	if c.DisplayName != "Ana" || c.AvatarRef != "ana.png" {
		t.Errorf("profile = %+v", c)
	}
	c, _ = x.Conversation("8")
	if c.DisplayName != "8" {
		t.Errorf("fallback name = %q, want counterpart id", c.DisplayName)
	}
}

func TestMarkConversationRead(t *testing.T) {
	x, s := testIndex(t)
	s.ApplyInbound(msg("1", "7", self, "a", t0, store.StatusDelivered))
	s.ApplyInbound(msg("2", "7", self, "b", t0.Add(time.Second), store.StatusDelivered))
	s.ApplyInbound(msg("3", "8", self, "c", t0, store.StatusDelivered))
	x.Recompute()
	if x.UnreadTotal() != 3 {
		t.Fatalf("unread total = %d, want 3", x.UnreadTotal())
	}

	if n := x.MarkConversationRead("7"); n != 2 {
		t.Errorf("marked = %d, want 2", n)
	}
	c, _ := x.Conversation("7")
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", c.UnreadCount)
	}
	if x.UnreadTotal() != 1 {
		t.Errorf("unread total = %d, want 1", x.UnreadTotal())
	}
}

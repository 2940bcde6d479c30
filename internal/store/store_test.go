package store

import (
	"testing"
	"time"

	"github.com/facilitydesk/chatsync/internal/clock"
)

const self = "42"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testStore(t *testing.T) (*Store, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	return New(clk, DefaultOptions()), clk
}

func inbound(id, from, to, text string, ts time.Time) Message {
	conv := from
	if from == self {
		conv = to
	}
	return Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       from,
		ReceiverID:     to,
		Text:           text,
		Timestamp:      ts,
		Status:         StatusDelivered,
	}
}

// Optimistic insert then reconcile leaves one entry under the server id.
func TestOptimisticReconcile(t *testing.T) {
	s, _ := testStore(t)

	tempID := s.InsertOptimistic(Draft{ConversationID: "7", SenderID: self, Text: "hi"})
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	m, ok := s.Get(tempID)
	if !ok || m.Status != StatusSending || !m.Provisional {
		t.Fatalf("optimistic = %+v, want sending provisional", m)
	}

	serverTS := t0.Add(2 * time.Second)
	if !s.Reconcile(tempID, Message{ID: "99", Text: "hi", Timestamp: serverTS}) {
		t.Fatal("Reconcile() = false")
	}

	msgs := s.Messages("7")
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	got := msgs[0]
	if got.ID != "99" || got.Status != StatusSent || !got.Timestamp.Equal(serverTS) {
		t.Errorf("reconciled = %+v", got)
	}
	if got.Provisional {
		t.Error("reconciled message still provisional")
	}
	if s.PendingTemp(tempID) {
		t.Error("temp id still pending")
	}

	// The temp id stays addressable during the grace window, resolving to the
	// same logical entry.
	if m, ok := s.Get(tempID); !ok || m.ID != "99" {
		t.Errorf("Get(temp) = %+v,%v want id 99", m, ok)
	}
}

func TestReconcileAliasExpires(t *testing.T) {
	s, clk := testStore(t)
	tempID := s.InsertOptimistic(Draft{ConversationID: "7", SenderID: self, Text: "hi"})
	s.Reconcile(tempID, Message{ID: "99"})

	clk.Advance(DefaultOptions().AliasGrace + time.Second)
	if _, ok := s.Get(tempID); ok {
		t.Error("temp id still resolves after the grace window")
	}
	if _, ok := s.Get("99"); !ok {
		t.Error("server id lost")
	}
}

func TestReconcileUnknownIsNoop(t *testing.T) {
	s, _ := testStore(t)
	if s.Reconcile("tmp-missing", Message{ID: "1"}) {
		t.Error("Reconcile(unknown) = true")
	}
	tempID := s.InsertOptimistic(Draft{ConversationID: "7", SenderID: self, Text: "a"})
	s.Reconcile(tempID, Message{ID: "5"})
	if s.Reconcile(tempID, Message{ID: "6"}) {
		t.Error("second Reconcile() = true")
	}
	if _, ok := s.Get("6"); ok {
		t.Error("second reconcile rekeyed the entry")
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

// History may deliver the server copy before the echo reconciles the temp id.
func TestReconcileAfterHistoryAdopted(t *testing.T) {
	s, _ := testStore(t)
	tempID := s.InsertOptimistic(Draft{ConversationID: "7", SenderID: self, Text: "hi"})

	res := s.UpsertFromHistory([]Message{inbound("99", self, "7", "hi", t0.Add(time.Second))})
	if res.Adopted != 1 || res.Inserted != 0 {
		t.Fatalf("merge = %+v, want 1 adopted", res)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}

	// Adoption already consumed the pending temp id.
	if s.Reconcile(tempID, Message{ID: "99"}) {
		t.Error("Reconcile() after adoption = true")
	}
	if m, ok := s.Get(tempID); !ok || m.ID != "99" {
		t.Errorf("Get(temp) = %+v,%v", m, ok)
	}
}

// The echo reconciles to an id an inbound push already inserted.
func TestReconcileFoldsIntoExisting(t *testing.T) {
	s, _ := testStore(t)
	tempID := s.InsertOptimistic(Draft{ConversationID: "7", SenderID: self, Text: "hi"})
	// Different text defeats content matching so the push inserts.
	s.ApplyInbound(inbound("99", self, "7", "hi (edited)", t0))
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}

	if !s.Reconcile(tempID, Message{ID: "99", Status: StatusDelivered}) {
		t.Fatal("Reconcile() = false")
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	m, _ := s.Get(tempID)
	if m.ID != "99" || m.Status != StatusDelivered {
		t.Errorf("folded = %+v", m)
	}
}

func TestApplyInboundIdempotent(t *testing.T) {
	s, _ := testStore(t)
	m := inbound("101", "7", self, "hey", t0)

	if !s.ApplyInbound(m) {
		t.Fatal("first ApplyInbound() = false")
	}
	if s.ApplyInbound(m) {
		t.Error("replay ApplyInbound() = true")
	}
	if got := len(s.Messages("7")); got != 1 {
		t.Fatalf("messages = %d, want 1", got)
	}
}

func TestApplyInboundNeverRegresses(t *testing.T) {
	tests := []struct {
		name  string
		first Status
		then  Status
		want  Status
	}{
		{"delivered then read", StatusDelivered, StatusRead, StatusRead},
		{"read then delivered", StatusRead, StatusDelivered, StatusRead},
		{"read then sent", StatusRead, StatusSent, StatusRead},
		{"sent then delivered", StatusSent, StatusDelivered, StatusDelivered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := testStore(t)
			m := inbound("101", "7", self, "hey", t0)
			m.Status = tt.first
			s.ApplyInbound(m)
			m.Status = tt.then
			s.ApplyInbound(m)

			got, _ := s.Get("101")
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestApplyReceipt(t *testing.T) {
	s, _ := testStore(t)
	tempID := s.InsertOptimistic(Draft{ConversationID: "7", SenderID: self, Text: "x"})
	s.Reconcile(tempID, Message{ID: "99"})

	if !s.ApplyReceipt("99", StatusDelivered) {
		t.Fatal("ApplyReceipt(delivered) = false")
	}
	if !s.ApplyReceipt(tempID, StatusRead) {
		t.Fatal("ApplyReceipt via temp alias = false")
	}
	if s.ApplyReceipt("99", StatusDelivered) {
		t.Error("ApplyReceipt regressed read")
	}
	if s.ApplyReceipt("unknown", StatusRead) {
		t.Error("ApplyReceipt(unknown) = true")
	}
	if m, _ := s.Get("99"); m.Status != StatusRead {
		t.Errorf("status = %s, want read", m.Status)
	}
}

func TestApplyInboundDefaultsToDelivered(t *testing.T) {
	s, _ := testStore(t)
	m := inbound("101", "7", self, "hey", t0)
	m.Status = ""
	s.ApplyInbound(m)
	got, _ := s.Get("101")
	if got.Status != StatusDelivered {
		t.Errorf("status = %q, want delivered", got.Status)
	}
}

// A push without a server id that exactly matches a history row is not duplicated.
func TestApplyInboundProvisionalExactCopy(t *testing.T) {
	s, _ := testStore(t)
	s.UpsertFromHistory([]Message{inbound("500", "7", self, "yo", t0)})

	push := inbound("push-abc", "7", self, "yo", t0)
	push.Provisional = true
	if s.ApplyInbound(push) {
		t.Error("exact copy was inserted")
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	// Replays of the provisional push resolve through the alias.
	if s.ApplyInbound(push) {
		t.Error("replayed provisional push was inserted")
	}
}

// A new push repeating the text of an earlier history row is a new message.
func TestApplyInboundSameTextAfterHistory(t *testing.T) {
	s, _ := testStore(t)
	old := inbound("99", "7", self, "thanks", t0)
	old.Status = StatusRead
	s.UpsertFromHistory([]Message{old})

	push := inbound("push-abc", "7", self, "thanks", t0.Add(time.Minute))
	push.Provisional = true
	if !s.ApplyInbound(push) {
		t.Fatal("new push was folded into the history row")
	}
	msgs := s.Messages("7")
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[1].ID != "push-abc" || msgs[1].Status != StatusDelivered {
		t.Errorf("push = %+v, want delivered push-abc", msgs[1])
	}
}

// Two pushes with the same text but different message ids are two messages.
// History later adopts each of them once.
func TestApplyInboundDistinctMessageIDs(t *testing.T) {
	s, _ := testStore(t)
	for i, id := range []string{"a1", "a2"} {
		push := inbound(id, "7", self, "ok", t0.Add(time.Duration(i)*30*time.Second))
		push.Provisional = true
		if !s.ApplyInbound(push) {
			t.Fatalf("push %s was not inserted", id)
		}
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}

	res := s.UpsertFromHistory([]Message{
		inbound("100", "7", self, "ok", t0),
		inbound("101", "7", self, "ok", t0.Add(30*time.Second)),
	})
	if res.Adopted != 2 || res.Inserted != 0 || s.Len() != 2 {
		t.Fatalf("merge = %+v len = %d, want 2 adopted, len 2", res, s.Len())
	}
	for _, id := range []string{"100", "101"} {
		if m, ok := s.Get(id); !ok || m.Provisional {
			t.Errorf("%s = %+v, %v", id, m, ok)
		}
	}
}

// And the reverse: history adopts a provisional push instead of duplicating it.
func TestHistoryAdoptsProvisionalPush(t *testing.T) {
	s, _ := testStore(t)
	push := inbound("push-abc", "7", self, "yo", t0.Add(time.Second))
	push.Provisional = true
	s.ApplyInbound(push)

	res := s.UpsertFromHistory([]Message{inbound("500", "7", self, "yo", t0)})
	if res.Adopted != 1 || s.Len() != 1 {
		t.Fatalf("merge = %+v len = %d, want 1 adopted, len 1", res, s.Len())
	}
	m, ok := s.Get("500")
	if !ok || m.Provisional || !m.Timestamp.Equal(t0) {
		t.Errorf("adopted = %+v", m)
	}
}

func TestHistoryNeverRemovesPendingSends(t *testing.T) {
	s, _ := testStore(t)
	tempID := s.InsertOptimistic(Draft{ConversationID: "7", SenderID: self, Text: "unsent"})
	s.MarkFailed(tempID)

	res := s.UpsertFromHistory([]Message{
		inbound("1", "7", self, "older", t0.Add(-time.Hour)),
		inbound("2", self, "7", "reply", t0.Add(-time.Minute*59)),
	})
	if res.Inserted != 2 {
		t.Fatalf("inserted = %d, want 2", res.Inserted)
	}
	if m, ok := s.Get(tempID); !ok || m.Status != StatusFailed {
		t.Errorf("failed send = %+v,%v want kept", m, ok)
	}

	// A second, empty history batch still keeps everything.
	s.UpsertFromHistory(nil)
	if s.Len() != 3 {
		t.Errorf("len = %d, want 3", s.Len())
	}
}

func TestHistoryUpdateIsIdempotent(t *testing.T) {
	s, _ := testStore(t)
	batch := []Message{
		inbound("1", "7", self, "a", t0),
		inbound("2", "7", self, "b", t0.Add(time.Second)),
		{ID: "", ConversationID: "7"},
	}
	first := s.UpsertFromHistory(batch)
	if first.Inserted != 2 || first.Skipped != 1 {
		t.Fatalf("first = %+v", first)
	}
	second := s.UpsertFromHistory(batch)
	if second.Changed() {
		t.Errorf("second = %+v, want unchanged", second)
	}

	s.MarkRead("7", self)
	third := s.UpsertFromHistory(batch)
	if third.Changed() {
		t.Errorf("third = %+v, want unchanged", third)
	}
	if m, _ := s.Get("1"); m.Status != StatusRead {
		t.Errorf("history regressed read to %s", m.Status)
	}
}

func TestMessagesOrdering(t *testing.T) {
	s, _ := testStore(t)
	s.ApplyInbound(inbound("c", "7", self, "third", t0.Add(2*time.Second)))
	s.ApplyInbound(inbound("a", "7", self, "first", t0))
	s.ApplyInbound(inbound("b1", "7", self, "tie-1", t0.Add(time.Second)))
	s.ApplyInbound(inbound("b2", "7", self, "tie-2", t0.Add(time.Second)))

	got := s.Messages("7")
	want := []string{"a", "b1", "b2", "c"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("messages[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Errorf("messages[%d] before messages[%d]", i, i-1)
		}
	}
}

// The sorted cache must be invalidated by mutations.
func TestMessagesCacheInvalidation(t *testing.T) {
	s, _ := testStore(t)
	s.ApplyInbound(inbound("b", "7", self, "later", t0.Add(time.Minute)))
	_ = s.Messages("7")

	s.ApplyInbound(inbound("a", "7", self, "earlier", t0))
	got := s.Messages("7")
	if len(got) != 2 || got[0].ID != "a" {
		t.Fatalf("messages = %+v, want a first", got)
	}

	s.MarkRead("7", self)
	for _, m := range s.Messages("7") {
		if m.Status != StatusRead {
			t.Errorf("%s status = %s, want read", m.ID, m.Status)
		}
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	s, _ := testStore(t)
	m := inbound("1", "7", self, "a", t0)
	m.Attachment = &Attachment{Name: "f.pdf"}
	s.ApplyInbound(m)

	got := s.Messages("7")
	got[0].Text = "mutated"
	got[0].Attachment.Name = "mutated"

	again, _ := s.Get("1")
	if again.Text != "a" || again.Attachment.Name != "f.pdf" {
		t.Errorf("store observed caller mutation: %+v", again)
	}
}

func TestSendStatusTransitions(t *testing.T) {
	s, _ := testStore(t)
	id := s.InsertOptimistic(Draft{ConversationID: "7", SenderID: self, Text: "x"})

	if s.MarkSending(id) {
		t.Error("MarkSending from sending = true")
	}
	if !s.MarkFailed(id) {
		t.Fatal("MarkFailed() = false")
	}
	if s.MarkSent(id) {
		t.Error("MarkSent from failed = true")
	}
	if !s.MarkSending(id) {
		t.Fatal("MarkSending() = false")
	}
	if !s.MarkSent(id) {
		t.Fatal("MarkSent() = false")
	}
	m, _ := s.Get(id)
	if m.Status != StatusSent {
		t.Errorf("status = %s, want sent", m.Status)
	}
	// Still pending: the echo can reconcile it.
	if !s.PendingTemp(id) {
		t.Error("sent message no longer pending")
	}
}

func TestMarkReadSkipsOwn(t *testing.T) {
	s, _ := testStore(t)
	s.ApplyInbound(inbound("1", "7", self, "a", t0))
	s.ApplyInbound(inbound("2", self, "7", "b", t0.Add(time.Second)))
	s.ApplyInbound(inbound("3", "8", self, "c", t0))

	if n := s.MarkRead("7", self); n != 1 {
		t.Errorf("MarkRead = %d, want 1", n)
	}
	if m, _ := s.Get("2"); m.Status == StatusRead {
		t.Error("own message marked read")
	}
	if m, _ := s.Get("3"); m.Status == StatusRead {
		t.Error("other conversation marked read")
	}
	if n := s.MarkRead("7", self); n != 0 {
		t.Errorf("second MarkRead = %d, want 0", n)
	}
}

func TestRemove(t *testing.T) {
	s, _ := testStore(t)
	id := s.InsertOptimistic(Draft{ConversationID: "7", SenderID: self, Text: "x"})
	s.MarkFailed(id)

	if _, ok := s.Remove(id); !ok {
		t.Fatal("Remove() = false")
	}
	if s.Len() != 0 || len(s.Messages("7")) != 0 {
		t.Error("entry still present")
	}
	if s.PendingTemp(id) {
		t.Error("removed temp id still pending")
	}
	if _, ok := s.Remove(id); ok {
		t.Error("second Remove() = true")
	}
}

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/facilitydesk/chatsync/internal/api"
	"github.com/facilitydesk/chatsync/internal/index"
	"github.com/facilitydesk/chatsync/internal/store"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAgo(t *testing.T) {
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "-"},
		{now.Add(-10 * time.Second), "now"},
		{now.Add(-5 * time.Minute), "5m"},
		{now.Add(-3 * time.Hour), "3h"},
		{now.Add(-50 * time.Hour), "2d"},
	}
	for _, tt := range tests {
		if got := ago(tt.t, now); got != tt.want {
			t.Errorf("ago(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a\n  b\tc", 0); got != "a b c" {
		t.Errorf("oneLine = %q", got)
	}
	if got := oneLine("abcdef", 4); got != "abc…" {
		t.Errorf("oneLine = %q", got)
	}
}

func TestPrintConversations(t *testing.T) {
	var buf bytes.Buffer
	printConversations(&buf, []index.Conversation{
		{CounterpartID: "7", DisplayName: "Ana", UnreadCount: 2, LastMessage: store.Message{Text: "hi", Timestamp: now.Add(-2 * time.Minute)}},
	}, now)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output:\n%s", buf.String())
	}
	if fields := strings.Fields(lines[1]); strings.Join(fields, " ") != "7 Ana 2 hi 2m" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestPrintThreadMarksOwnStatus(t *testing.T) {
	var buf bytes.Buffer
	printThread(&buf, api.Thread{Typing: true, Messages: []store.Message{
		{ID: "1", SenderID: "7", SenderName: "Ana", Text: "hi", Timestamp: now},
		{ID: "tmp-1", SenderID: "42", Text: "yo", Status: store.StatusFailed, Timestamp: now},
	}}, "42")
	out := buf.String()
	if !strings.Contains(out, "Ana") || !strings.Contains(out, "yo [failed]  (tmp-1)") {
		t.Errorf("output:\n%s", out)
	}
	if !strings.HasSuffix(out, "... typing\n") {
		t.Errorf("typing line missing:\n%s", out)
	}
}

func TestPrintEventSortsPayload(t *testing.T) {
	var buf bytes.Buffer
	printEvent(&buf, api.Event{Kind: "conn.state_changed", OccurredAt: now, Payload: map[string]any{"to": "connected", "from": "connecting"}})
	if out := buf.String(); !strings.Contains(out, "from=connecting to=connected") {
		t.Errorf("output = %q", out)
	}
}

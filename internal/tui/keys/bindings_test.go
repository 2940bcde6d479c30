package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestHandleEventViewFirst(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'r', Description: "Refresh", Handler: func() { got = "global" }})
	r.AddView("thread", &Action{Key: tcell.KeyRune, Rune: 'r', Description: "Retry", Handler: func() { got = "view" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)
	if !r.HandleEvent("thread", ev) || got != "view" {
		t.Errorf("thread: got %q", got)
	}
	if !r.HandleEvent("conversations", ev) || got != "global" {
		t.Errorf("conversations: got %q", got)
	}
	if r.HandleEvent("thread", tcell.NewEventKey(tcell.KeyRune, 'z', tcell.ModNone)) {
		t.Error("unbound key handled")
	}
}

func TestHandleEventSpecialKey(t *testing.T) {
	r := NewRegistry()
	called := false
	r.AddGlobal(&Action{Key: tcell.KeyF5, Description: "Refresh", Handler: func() { called = true }})

	if !r.HandleEvent("x", tcell.NewEventKey(tcell.KeyF5, 0, tcell.ModNone)) || !called {
		t.Error("F5 not handled")
	}
}

func TestHints(t *testing.T) {
	r := NewRegistry()
	noop := func() {}
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true, Handler: noop})
	r.AddGlobal(&Action{Key: tcell.KeyF5, Description: "Refresh", Visible: true, Handler: noop})
	r.AddView("thread", &Action{Key: tcell.KeyEscape, Label: "Esc", Description: "Back", Visible: true, Handler: noop})
	r.AddView("thread", &Action{Key: tcell.KeyRune, Rune: 'h', Description: "hidden", Handler: noop})

	got := r.Hints("thread")
	want := []Hint{{"Esc", "Back"}, {"q", "Quit"}, {"F5", "Refresh"}}
	if len(got) != len(want) {
		t.Fatalf("hints = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hint %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/rivo/tview"

	"github.com/facilitydesk/chatsync/internal/tui/keys"
	"github.com/facilitydesk/chatsync/internal/tui/model"
)

func TestPagesStack(t *testing.T) {
	p := NewPages()
	p.Register("list", "Conversations", tview.NewBox())
	p.Register("thread", "Thread", tview.NewBox())

	var trail []string
	p.SetOnChange(func(tr []string) { trail = tr })

	p.Reset("list")
	p.Push("thread")
	p.SetTitle("thread", "Ana")
	if p.Current() != "thread" || strings.Join(trail, ">") != "Conversations>Ana" {
		t.Errorf("current = %q, trail = %v", p.Current(), trail)
	}
	if got := p.Pop(); got != "thread" {
		t.Errorf("Pop() = %q", got)
	}
	if got := p.Pop(); got != "" {
		t.Errorf("root popped: %q", got)
	}
	if p.Current() != "list" {
		t.Errorf("current = %q", p.Current())
	}
}

func TestMenuUpdate(t *testing.T) {
	m := NewMenu(DefaultTheme())
	m.Update([]keys.Hint{{Key: "q", Description: "Quit"}, {Key: "Esc", Description: "Back"}})
	text := m.GetText(true)
	if !strings.Contains(text, "<q> Quit") || !strings.Contains(text, "<Esc> Back") {
		t.Errorf("menu = %q", text)
	}
}

func TestFlashBarClears(t *testing.T) {
	fb := NewFlashBar(DefaultTheme())
	fb.Update(&model.FlashMessage{Text: "saved", Level: model.FlashErr})
	if got := fb.GetText(true); !strings.Contains(got, "saved") {
		t.Errorf("flash = %q", got)
	}
	fb.Update(nil)
	if got := fb.GetText(true); got != "" {
		t.Errorf("flash after clear = %q", got)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m"},
		{5 * time.Minute, "5m"},
		{time.Hour + 2*time.Minute, "1h2m"},
		{26 * time.Hour, "26h0m"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.d); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

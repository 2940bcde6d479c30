package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// ProfileData holds daemon information for display.
type ProfileData struct {
	Profile       string
	SelfID        string
	State         string
	Conversations int
	Unread        int
	Uptime        time.Duration
}

// ProfileInfo displays profile metadata in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates a new profile info panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the profile info.
func (pi *ProfileInfo) Update(data ProfileData) {
	pi.Clear()

	fg := ColorName(pi.theme.FgColor)
	counter := ColorName(pi.theme.CounterColor)

	selfID := data.SelfID
	if selfID == "" {
		selfID = "-"
	}

	rows := []struct {
		label string
		value string
	}{
		{"Profile:", data.Profile},
		{"Self:", selfID},
		{"State:", data.State},
		{"Chats:", fmt.Sprint(data.Conversations)},
		{"Unread:", fmt.Sprint(data.Unread)},
		{"Uptime:", FormatUptime(data.Uptime)},
	}
	for i, r := range rows {
		if i > 0 {
			_, _ = fmt.Fprint(pi, "\n")
		}
		_, _ = fmt.Fprintf(pi, "[%s::b]%-8s[-:-:-] [%s]%s[-]", fg, r.label, counter, tview.Escape(r.value))
	}
}

// FormatUptime renders d as "1h2m" or "5m".
func FormatUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

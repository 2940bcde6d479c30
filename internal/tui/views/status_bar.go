package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/facilitydesk/chatsync/internal/api"
	"github.com/facilitydesk/chatsync/internal/status"
	"github.com/facilitydesk/chatsync/internal/tui/ui"
)

// StatusBar displays the profile and the connection state. A failed
// connection shows a red banner until the user reconnects; failed messages
// of the open thread are counted next to it.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
	state   api.State
	failed  int
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(st api.State) {
	sb.state = st
	sb.render()
}

// SetFailed sets how many messages of the open thread failed.
func (sb *StatusBar) SetFailed(n int) {
	sb.failed = n
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line())
}

func (sb *StatusBar) line() string {
	var b strings.Builder
	fmt.Fprintf(&b, " [::b]%s[-:-:-] | ", tview.Escape(sb.profile))

	label := sb.state.Label
	if label == "" {
		label = string(sb.state.State)
	}
	color := sb.theme.OfflineColor
	if sb.state.State == status.Connected {
		color = sb.theme.ConnectedColor
	}
	fmt.Fprintf(&b, "[%s]%s[-]", ui.ColorName(color), tview.Escape(label))

	if sb.state.State == status.Failed {
		fmt.Fprintf(&b, " [%s:%s:b] connection lost, press c to reconnect [-:-:-]",
			ui.ColorName(sb.theme.BannerFg), ui.ColorName(sb.theme.BannerBg))
	}
	if sb.failed > 0 {
		noun := "message"
		if sb.failed > 1 {
			noun = "messages"
		}
		fmt.Fprintf(&b, " [%s::b]%d %s not sent (r retry, x discard)[-:-:-]",
			ui.ColorName(sb.theme.FailedColor), sb.failed, noun)
	}
	return b.String()
}

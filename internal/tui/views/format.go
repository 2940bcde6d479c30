package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/facilitydesk/chatsync/internal/store"
	"github.com/facilitydesk/chatsync/internal/tui/ui"
)

// statusGlyph renders the delivery status of an outgoing message.
func statusGlyph(theme *ui.Theme, s store.Status) string {
	switch s {
	case store.StatusSending:
		return fmt.Sprintf("[%s]…[-]", ui.ColorName(theme.PendingColor))
	case store.StatusSent:
		return fmt.Sprintf("[%s]✓[-]", ui.ColorName(theme.ReceiptColor))
	case store.StatusDelivered:
		return fmt.Sprintf("[%s]✓✓[-]", ui.ColorName(theme.ReceiptColor))
	case store.StatusRead:
		return fmt.Sprintf("[%s::b]✓✓[-:-:-]", ui.ColorName(theme.ReadColor))
	case store.StatusFailed:
		return fmt.Sprintf("[%s::b]![-:-:-]", ui.ColorName(theme.FailedColor))
	default:
		return ""
	}
}

// formatTimestamp shows the time of day for today and the date otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("01/02")
	}
	return t.Format("2006-01-02")
}

// preview is the one-line summary of a message for the conversation list.
func preview(m store.Message) string {
	text := m.Text
	if text == "" && m.Attachment != nil {
		text = "[" + m.Attachment.Name + "]"
	}
	return tview.Escape(truncate(sanitizeForTerminal(text), 60))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

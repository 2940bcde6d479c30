package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/facilitydesk/chatsync/internal/index"
	"github.com/facilitydesk/chatsync/internal/tui/ui"
)

// ConversationList is the main conversation table, newest activity first.
type ConversationList struct {
	*tview.Table
	theme  *ui.Theme
	selfID string
	convs  []index.Conversation
	now    func() time.Time
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
		now:   time.Now,
	}
}

// SetSelf sets the local user id, used to prefix own last messages.
func (cl *ConversationList) SetSelf(selfID string) {
	cl.selfID = selfID
}

// Update refreshes the list and keeps the cursor on the same conversation.
func (cl *ConversationList) Update(convs []index.Conversation) {
	selected := cl.Selected()
	cl.convs = convs
	cl.render()
	for i, c := range convs {
		if c.CounterpartID == selected {
			cl.Select(i+1, 0)
			return
		}
	}
	if len(convs) > 0 {
		row, _ := cl.GetSelection()
		if row < 1 || row > len(convs) {
			cl.Select(1, 0)
		}
	}
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 3},
		{" TIME", 0},
		{" UNREAD", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	now := cl.now()
	unreadTotal := 0
	for i, c := range cl.convs {
		row := i + 1
		fg := cl.theme.FgColor
		badge := ""
		if c.UnreadCount > 0 {
			fg = cl.theme.UnreadColor
			badge = fmt.Sprintf("(%d)", c.UnreadCount)
			unreadTotal += c.UnreadCount
		}

		last := preview(c.LastMessage)
		if cl.selfID != "" && c.LastMessage.FromSelf(cl.selfID) {
			last = "You: " + last
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(displayName(c)))).SetExpansion(1).SetTextColor(fg))
		cl.SetCell(row, 1, tview.NewTableCell(" "+last).SetExpansion(3).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(c.LastMessage.Timestamp, now)).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(badge).SetTextColor(cl.theme.UnreadColor).SetAlign(tview.AlignRight))
	}

	if unreadTotal > 0 {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) [%s]%d unread[-] ", len(cl.convs), ui.ColorName(cl.theme.UnreadColor), unreadTotal))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// Selected returns the counterpart id of the highlighted row.
func (cl *ConversationList) Selected() string {
	row, _ := cl.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(cl.convs) {
		return ""
	}
	return cl.convs[idx].CounterpartID
}

// displayName falls back to the counterpart id when no name is known.
func displayName(c index.Conversation) string {
	if name := strings.TrimSpace(c.DisplayName); name != "" {
		return name
	}
	return c.CounterpartID
}

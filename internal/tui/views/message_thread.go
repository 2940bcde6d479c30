package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/facilitydesk/chatsync/internal/api"
	"github.com/facilitydesk/chatsync/internal/store"
	"github.com/facilitydesk/chatsync/internal/tui/ui"
)

// MessageThread displays one conversation, a typing line and the composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	table    *tview.Table
	typing   *tview.TextView
	composer *Composer
	selfID   string
	name     string
	messages []store.Message
	now      func() time.Time
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Messages ")
	table.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)

	composer := NewComposer(theme)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(table, 0, 1, true).
		AddItem(typing, 1, 0, false).
		AddItem(composer, 3, 0, false)

	return &MessageThread{
		Flex:     flex,
		theme:    theme,
		table:    table,
		typing:   typing,
		composer: composer,
		now:      time.Now,
	}
}

// SetSelf sets the local user id, used to tell own messages apart.
func (mt *MessageThread) SetSelf(selfID string) {
	mt.selfID = selfID
}

// SetName updates the counterpart name and title.
func (mt *MessageThread) SetName(name string) {
	mt.name = name
	mt.table.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(name))))
}

// Update renders the thread, oldest first. The cursor follows the newest
// message unless the user moved it up.
func (mt *MessageThread) Update(th api.Thread) {
	row, _ := mt.table.GetSelection()
	atEnd := len(mt.messages) == 0 || row >= len(mt.messages)-1
	mt.messages = th.Messages

	mt.table.Clear()
	now := mt.now()
	for i, m := range th.Messages {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		color := mt.theme.PeerColor
		glyph := ""
		if mt.selfID != "" && m.FromSelf(mt.selfID) {
			sender = "You"
			color = mt.theme.SelfColor
			glyph = statusGlyph(mt.theme, m.Status)
		}
		text := tview.Escape(sanitizeForTerminal(m.Text))
		if m.Attachment != nil {
			text += fmt.Sprintf(" [%s][%s][-]", ui.ColorName(mt.theme.ReceiptColor), tview.Escape(m.Attachment.Name))
		}

		mt.table.SetCell(i, 0, tview.NewTableCell(formatTimestamp(m.Timestamp, now)).SetTextColor(mt.theme.FgColor))
		mt.table.SetCell(i, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(sender))).SetTextColor(color).SetAttributes(tcell.AttrBold))
		mt.table.SetCell(i, 2, tview.NewTableCell(" "+text).SetExpansion(1).SetTextColor(mt.theme.FgColor))
		mt.table.SetCell(i, 3, tview.NewTableCell(glyph).SetAlign(tview.AlignRight))
	}
	if atEnd && len(th.Messages) > 0 {
		mt.table.Select(len(th.Messages)-1, 0)
	}

	mt.typing.Clear()
	if th.Typing {
		name := mt.name
		if name == "" {
			name = th.ConversationID
		}
		_, _ = fmt.Fprintf(mt.typing, " [%s::i]%s is typing...[-:-:-]", ui.ColorName(mt.theme.PendingColor), tview.Escape(sanitizeForTerminal(name)))
	}
}

// SelectedFailed returns the temporary id of the highlighted message when it
// failed to send.
func (mt *MessageThread) SelectedFailed() (string, bool) {
	row, _ := mt.table.GetSelection()
	if row < 0 || row >= len(mt.messages) {
		return "", false
	}
	m := mt.messages[row]
	if m.Status != store.StatusFailed {
		return "", false
	}
	return m.ID, true
}

// Messages returns the message table (for focus management).
func (mt *MessageThread) Messages() *tview.Table {
	return mt.table
}

// Composer returns the composer (for focus management and callbacks).
func (mt *MessageThread) Composer() *Composer {
	return mt.composer
}

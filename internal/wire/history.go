package wire

import (
	"fmt"
	"strings"
	"time"

	"github.com/facilitydesk/chatsync/internal/store"
	"github.com/tidwall/gjson"
)

// HistoryItem is one row of a history fetch.
type HistoryItem struct {
	ChatID       string
	Text         string
	CreatedAt    time.Time
	SenderID     string
	ReceiverID   string
	SenderName   string
	ReceiverName string
	SenderPic    string
	ReceiverPic  string
	Status       store.Status
	Attachment   *store.Attachment
	ReplyToID    string
}

// HistoryPage is a parsed history response.
type HistoryPage struct {
	Items []HistoryItem
	// Skipped counts rows dropped for lacking an id, participants or a timestamp.
	Skipped int
}

// ParseHistory decodes a fetchMaster.php response:
//
//	{"status": true, "data": [{"chat_id": ..., "message": ..., "created_at": ..., ...}]}
//
// A falsy status is reported as ErrMalformedPayload.
func ParseHistory(body []byte, loc *time.Location) (HistoryPage, error) {
	var page HistoryPage
	if !gjson.ValidBytes(body) {
		return page, fmt.Errorf("%w: invalid json", ErrMalformedPayload)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return page, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}
	if st := root.Get("status"); !statusOK(st) {
		msg := root.Get("message").String()
		if msg == "" {
			msg = st.Raw
		}
		return page, fmt.Errorf("%w: backend status %s", ErrMalformedPayload, msg)
	}

	data := root.Get("data")
	if !data.Exists() || data.Type == gjson.Null {
		return page, nil
	}
	if !data.IsArray() {
		return page, fmt.Errorf("%w: data is not an array", ErrMalformedPayload)
	}

	data.ForEach(func(_, row gjson.Result) bool {
		item := HistoryItem{
			ChatID:       field(row, "chat_id"),
			Text:         row.Get("message").String(),
			SenderID:     field(row, "sender_id"),
			ReceiverID:   field(row, "receiver_id"),
			SenderName:   row.Get("sender_name").String(),
			ReceiverName: row.Get("receiver_name").String(),
			SenderPic:    row.Get("sender_pic").String(),
			ReceiverPic:  row.Get("receiver_pic").String(),
			Status:       parseStatus(row.Get("status")),
			Attachment:   parseAttachment(row.Get("attachment")),
			ReplyToID:    field(row, "reply_to_id"),
		}
		ts, ok := ParseTimestamp(row.Get("created_at").String(), loc)
		if !ok || item.ChatID == "" || item.SenderID == "" || item.ReceiverID == "" {
			page.Skipped++
			return true
		}
		item.CreatedAt = ts
		if item.Status == "" && readFlag(row.Get("is_read")) {
			item.Status = store.StatusRead
		}
		page.Items = append(page.Items, item)
		return true
	})
	return page, nil
}

// ToMessage normalizes a history row for selfID.
func (h HistoryItem) ToMessage(selfID string) store.Message {
	conv, status := h.SenderID, h.Status
	if h.SenderID == selfID {
		conv = h.ReceiverID
		if status == "" {
			status = store.StatusSent
		}
	} else if status == "" || status == store.StatusSent {
		status = store.StatusDelivered
	}
	m := store.Message{
		ID:             h.ChatID,
		ConversationID: conv,
		SenderID:       h.SenderID,
		ReceiverID:     h.ReceiverID,
		SenderName:     h.SenderName,
		Text:           h.Text,
		Timestamp:      h.CreatedAt,
		Status:         status,
		ReplyToID:      h.ReplyToID,
	}
	if h.Attachment != nil {
		a := *h.Attachment
		m.Attachment = &a
	}
	return m
}

// Counterpart returns the other participant's id, display name and picture.
func (h HistoryItem) Counterpart(selfID string) (id, name, pic string) {
	if h.SenderID == selfID {
		return h.ReceiverID, h.ReceiverName, h.ReceiverPic
	}
	return h.SenderID, h.SenderName, h.SenderPic
}

func statusOK(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Int() != 0
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(r.Str)) {
		case "success", "ok", "true", "1":
			return true
		}
	}
	return false
}

func readFlag(r gjson.Result) bool {
	return r.Exists() && r.Bool()
}

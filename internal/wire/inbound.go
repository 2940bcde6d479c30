package wire

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/facilitydesk/chatsync/internal/store"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// ErrMalformedPayload is returned for frames that are not valid JSON objects
// or lack the fields their kind requires.
var ErrMalformedPayload = errors.New("malformed payload")

// Kind classifies an inbound frame.
type Kind string

const (
	KindMessage Kind = "message"
	KindReceipt Kind = "receipt"
	KindTyping  Kind = "typing"
	KindPong    Kind = "pong"
)

// pushNamespace seeds the deterministic ids of pushes that carry neither a
// server id nor a client id.
var pushNamespace = uuid.MustParse("0b6f2f55-8a4e-4d7c-9a53-7c1f3f1e6a10")

// Inbound is a parsed server->client frame.
type Inbound struct {
	Kind       Kind
	SenderID   string
	ReceiverID string
	Text       string
	// MessageID is the client temporary id echoed back by the server.
	MessageID string
	// ChatID is the server-assigned id. Empty on pushes sent before the
	// server persisted the message.
	ChatID     string
	SenderName string
	SenderPic  string
	Status     store.Status
	Timestamp  time.Time
	Attachment *store.Attachment
	ReplyToID  string
	Typing     bool

	// ReceivedAt is the local arrival time, also the timestamp fallback.
	ReceivedAt time.Time
}

// ParseInbound decodes a socket frame. Server payloads are loosely typed
// (ids arrive as numbers or strings), so fields are read with gjson rather
// than unmarshalled into a struct.
func ParseInbound(data []byte, receivedAt time.Time, loc *time.Location) (*Inbound, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedPayload)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}

	in := &Inbound{
		SenderID:   field(root, "sender_id"),
		ReceiverID: field(root, "receiver_id"),
		Text:       root.Get("message").String(),
		MessageID:  field(root, "message_id"),
		ChatID:     field(root, "chat_id"),
		SenderName: root.Get("sender_name").String(),
		SenderPic:  root.Get("sender_pic").String(),
		Status:     parseStatus(root.Get("status")),
		ReplyToID:  field(root, "reply_to_id"),
		Attachment: parseAttachment(root.Get("attachment")),
		ReceivedAt: receivedAt,
	}
	in.Timestamp = receivedAt
	if ts, ok := ParseTimestamp(root.Get("timestamp").String(), loc); ok {
		in.Timestamp = ts
	}

	switch typ := strings.ToLower(root.Get("type").String()); {
	case typ == "pong":
		in.Kind = KindPong
		return in, nil
	case typ == "typing":
		in.Kind = KindTyping
		in.Typing = !root.Get("typing").Exists() || root.Get("typing").Bool()
	case typ == "receipt" || (!root.Get("message").Exists() && in.Attachment == nil && in.Status != ""):
		in.Kind = KindReceipt
		if in.ChatID == "" && in.MessageID == "" {
			return nil, fmt.Errorf("%w: receipt without id", ErrMalformedPayload)
		}
		if in.Status == "" {
			return nil, fmt.Errorf("%w: receipt without status", ErrMalformedPayload)
		}
		return in, nil
	default:
		in.Kind = KindMessage
	}

	if in.SenderID == "" || in.ReceiverID == "" {
		return nil, fmt.Errorf("%w: missing sender_id or receiver_id", ErrMalformedPayload)
	}
	return in, nil
}

// ID returns the best available identity for the frame: the server id, the
// echoed client id, or a deterministic id derived from the content.
func (in *Inbound) ID() string {
	if in.ChatID != "" {
		return in.ChatID
	}
	if in.MessageID != "" {
		return in.MessageID
	}
	key := strings.Join([]string{in.SenderID, in.ReceiverID, in.Text, in.Timestamp.UTC().Format(time.RFC3339Nano)}, "\x00")
	return "push-" + uuid.NewSHA1(pushNamespace, []byte(key)).String()
}

// Counterpart returns the other participant relative to selfID.
func (in *Inbound) Counterpart(selfID string) string {
	if in.SenderID == selfID {
		return in.ReceiverID
	}
	return in.SenderID
}

// ToMessage normalizes a message frame. The conversation is keyed by the
// counterpart. Own messages default to sent, others to delivered.
func (in *Inbound) ToMessage(selfID string) store.Message {
	m := store.Message{
		ID:             in.ID(),
		ConversationID: in.Counterpart(selfID),
		SenderID:       in.SenderID,
		ReceiverID:     in.ReceiverID,
		SenderName:     in.SenderName,
		Text:           in.Text,
		Timestamp:      in.Timestamp,
		Status:         in.Status,
		ReplyToID:      in.ReplyToID,
		Provisional:    in.ChatID == "",
	}
	if in.Attachment != nil {
		a := *in.Attachment
		m.Attachment = &a
	}
	if in.SenderID == selfID {
		m.TempID = in.MessageID
	}
	if !m.Status.Valid() || m.Status.Rank() < store.StatusSent.Rank() {
		if in.SenderID == selfID {
			m.Status = store.StatusSent
		} else {
			m.Status = store.StatusDelivered
		}
	}
	return m
}

// field reads an id-like value that may be a JSON number or string.
func field(root gjson.Result, path string) string {
	r := root.Get(path)
	if !r.Exists() || r.Type == gjson.Null {
		return ""
	}
	return strings.TrimSpace(r.String())
}

func parseStatus(r gjson.Result) store.Status {
	switch strings.ToLower(strings.TrimSpace(r.String())) {
	case "sent":
		return store.StatusSent
	case "delivered":
		return store.StatusDelivered
	case "read", "seen":
		return store.StatusRead
	default:
		return ""
	}
}

func parseAttachment(r gjson.Result) *store.Attachment {
	if !r.IsObject() {
		return nil
	}
	a := &store.Attachment{
		Name: r.Get("name").String(),
		Type: r.Get("type").String(),
		Size: r.Get("size").Int(),
		URL:  r.Get("url").String(),
	}
	if a.Name == "" && a.URL == "" {
		return nil
	}
	return a
}

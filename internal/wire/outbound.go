package wire

import (
	"encoding/json"

	"github.com/facilitydesk/chatsync/internal/store"
)

// Outbound is the client->server frame for a chat message. MessageID carries
// the client temporary id so the server echo can be matched to it.
type Outbound struct {
	SenderID   string            `json:"sender_id"`
	ReceiverID string            `json:"receiver_id"`
	Message    string            `json:"message"`
	MessageID  string            `json:"message_id"`
	Timestamp  string            `json:"timestamp"`
	Attachment *store.Attachment `json:"attachment,omitempty"`
	ReplyToID  string            `json:"reply_to_id,omitempty"`
}

// NewOutbound builds the send frame for an optimistic message.
func NewOutbound(m store.Message) Outbound {
	return Outbound{
		SenderID:   m.SenderID,
		ReceiverID: m.ConversationID,
		Message:    m.Text,
		MessageID:  m.ID,
		Timestamp:  FormatTimestamp(m.Timestamp),
		Attachment: m.Attachment,
		ReplyToID:  m.ReplyToID,
	}
}

// Typing is the typing indicator frame.
type Typing struct {
	Type       string `json:"type"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Typing     bool   `json:"typing"`
}

// NewTyping builds a typing frame from sender to receiver.
func NewTyping(senderID, receiverID string, typing bool) Typing {
	return Typing{Type: "typing", SenderID: senderID, ReceiverID: receiverID, Typing: typing}
}

type ping struct {
	Type string `json:"type"`
}

// Ping returns the heartbeat frame.
func Ping() []byte {
	b, _ := json.Marshal(ping{Type: "ping"})
	return b
}

// Encode serializes any outbound frame.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}

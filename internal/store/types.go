package store

import "time"

// Status is the delivery state of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Rank orders statuses for upgrade-only merges: failed < sending < sent < delivered < read.
// Unknown values rank below everything.
func (s Status) Rank() int {
	switch s {
	case StatusFailed:
		return 0
	case StatusSending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return s.Rank() >= 0 }

// MaxStatus returns the higher-ranked of a and b.
func MaxStatus(a, b Status) Status {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Attachment describes a file sent alongside a message. Uploading is done
// elsewhere; the store only carries the resulting reference.
type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Message is one entry of a two-party conversation.
type Message struct {
	ID             string      `json:"id"`
	TempID         string      `json:"temp_id,omitempty"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	ReceiverID     string      `json:"receiver_id"`
	SenderName     string      `json:"sender_name,omitempty"`
	Text           string      `json:"text"`
	Timestamp      time.Time   `json:"timestamp"`
	Status         Status      `json:"status"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	ReplyToID      string      `json:"reply_to_id,omitempty"`

	// Provisional is set while the id is not server-assigned (optimistic sends,
	// pushes without a chat id). A later history item may adopt the entry.
	Provisional bool `json:"provisional,omitempty"`
}

// FromSelf reports whether the message was authored by selfID.
func (m *Message) FromSelf(selfID string) bool {
	return m.SenderID == selfID
}

func (m Message) clone() Message {
	if m.Attachment != nil {
		a := *m.Attachment
		m.Attachment = &a
	}
	return m
}

// Draft is a locally authored message before it has an id.
type Draft struct {
	ConversationID string
	SenderID       string
	Text           string
	Attachment     *Attachment
	ReplyToID      string
}

// MergeResult summarizes a history merge.
type MergeResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Adopted  int `json:"adopted"`
	Skipped  int `json:"skipped"`
}

// Changed reports whether the merge mutated the store.
func (r MergeResult) Changed() bool {
	return r.Inserted+r.Updated+r.Adopted > 0
}

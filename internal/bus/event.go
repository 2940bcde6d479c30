package bus

import "time"

// Event kinds published on the bus. Subscribers filter by prefix ("conn.", "message.", ...).
const (
	ConnStateChanged = "conn.state_changed"
	ConnReconnecting = "conn.reconnecting"
	ConnInbound      = "conn.inbound"

	MessageUpserted   = "message.upserted"
	MessageReconciled = "message.reconciled"
	MessageSendFailed = "message.send_failed"
	MessageRemoved    = "message.removed"

	ConversationUpdated = "conversation.updated"

	HistoryMerged = "sync.history_merged"
	HistoryFailed = "sync.history_failed"

	TypingLocal  = "typing.local"
	TypingRemote = "typing.remote"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageRef identifies a message touched by a store mutation.
type MessageRef struct {
	ConversationID string `json:"conversation_id"`
	ID             string `json:"id"`
	TempID         string `json:"temp_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

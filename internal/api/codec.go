package api

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/facilitydesk/chatsync/internal/index"
	"github.com/facilitydesk/chatsync/internal/status"
	"github.com/facilitydesk/chatsync/internal/store"
)

// State is the daemon snapshot returned by GetState.
type State struct {
	Profile           string       `json:"profile"`
	SelfID            string       `json:"self_id"`
	State             status.State `json:"state"`
	Label             string       `json:"label"`
	ReconnectAttempts int          `json:"reconnect_attempts"`
	UptimeMs          int64        `json:"uptime_ms"`
	Visible           bool         `json:"visible"`
	ActiveID          string       `json:"active_conversation_id,omitempty"`
	Conversations     int          `json:"conversation_count"`
	Unread            int          `json:"unread_total"`
}

// Thread is one conversation's messages plus the counterpart typing flag.
type Thread struct {
	ConversationID string          `json:"conversation_id"`
	Messages       []store.Message `json:"messages"`
	Typing         bool            `json:"typing"`
}

// SendRequest is the payload of Send.
type SendRequest struct {
	ConversationID string            `json:"conversation_id"`
	Text           string            `json:"text"`
	Attachment     *store.Attachment `json:"attachment,omitempty"`
	ReplyToID      string            `json:"reply_to_id,omitempty"`
}

// RefreshResult mirrors the coordinator's history merge summary.
type RefreshResult struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Adopted  int `json:"adopted"`
	Skipped  int `json:"skipped"`
}

// Event is one bus event forwarded by Watch.
type Event struct {
	ID         string         `json:"event_id"`
	Kind       string         `json:"kind"`
	OccurredAt time.Time      `json:"-"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type conversationList struct {
	Conversations []index.Conversation `json:"conversations"`
}

type sendResponse struct {
	TempID string `json:"temp_id"`
}

// toStruct converts a JSON-tagged value into a structpb.Struct. Scalars and
// slices are wrapped under "value".
func toStruct(v any) (*structpb.Struct, error) {
	if v == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		var scalar any
		if err := json.Unmarshal(raw, &scalar); err != nil {
			return nil, fmt.Errorf("encode %T: %w", v, err)
		}
		fields = map[string]any{"value": scalar}
	}
	return structpb.NewStruct(fields)
}

// fromStruct decodes a structpb.Struct into a JSON-tagged value.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("decode %T: empty payload", v)
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

func eventFromStruct(s *structpb.Struct) Event {
	fields := s.GetFields()
	evt := Event{
		ID:         fields["event_id"].GetStringValue(),
		Kind:       fields["kind"].GetStringValue(),
		OccurredAt: time.UnixMilli(int64(fields["occurred_at_unix_ms"].GetNumberValue())),
	}
	if p := fields["payload"].GetStructValue(); p != nil {
		evt.Payload = p.AsMap()
	}
	return evt
}

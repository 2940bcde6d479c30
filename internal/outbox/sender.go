package outbox

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/facilitydesk/chatsync/internal/bus"
	"github.com/facilitydesk/chatsync/internal/store"
	"github.com/facilitydesk/chatsync/internal/wire"
)

var (
	// ErrUnknownMessage is returned when the id does not address a message.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrNotFailed is returned when retrying or discarding a message that did not fail.
	ErrNotFailed = errors.New("message has not failed")
)

// Transmitter writes a frame to the message server.
type Transmitter interface {
	SendFrame(ctx context.Context, frame any) error
}

// Sender runs the optimistic send path: the message is in the store before
// the transmit is attempted, and a failed transmit leaves it visible as failed.
type Sender struct {
	store  *store.Store
	tx     Transmitter
	bus    *bus.Bus
	logger *zap.Logger
}

// NewSender creates a new outbox sender.
func NewSender(s *store.Store, tx Transmitter, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		store:  s,
		tx:     tx,
		bus:    b,
		logger: logger,
	}
}

// Send inserts the draft optimistically and transmits it. The temporary id is
// returned even when the transmit fails; the error is the transmit error.
func (s *Sender) Send(ctx context.Context, d store.Draft) (string, error) {
	tempID := s.Queue(d)
	err := s.Transmit(ctx, tempID)
	s.Settle(tempID, err)
	return tempID, err
}

// Retry re-sends a failed message.
func (s *Sender) Retry(ctx context.Context, tempID string) error {
	if err := s.Requeue(tempID); err != nil {
		return err
	}
	err := s.Transmit(ctx, tempID)
	s.Settle(tempID, err)
	return err
}

// Queue inserts the draft optimistically and returns its temporary id.
func (s *Sender) Queue(d store.Draft) string {
	tempID := s.store.InsertOptimistic(d)
	s.publish(bus.MessageUpserted, bus.MessageRef{ConversationID: d.ConversationID, ID: tempID, TempID: tempID})
	return tempID
}

// Requeue moves a failed message back to sending.
func (s *Sender) Requeue(tempID string) error {
	m, ok := s.store.Get(tempID)
	if !ok {
		return ErrUnknownMessage
	}
	if !s.store.MarkSending(tempID) {
		return ErrNotFailed
	}
	s.publish(bus.MessageUpserted, bus.MessageRef{ConversationID: m.ConversationID, ID: m.ID, TempID: tempID})
	return nil
}

// Transmit writes the message frame. It blocks on the transport and changes
// no store state, so callers may run it outside their own locks.
func (s *Sender) Transmit(ctx context.Context, tempID string) error {
	m, ok := s.store.Get(tempID)
	if !ok {
		return ErrUnknownMessage
	}
	return s.tx.SendFrame(ctx, wire.NewOutbound(m))
}

// Settle records the outcome of Transmit: sent on success, failed otherwise.
func (s *Sender) Settle(tempID string, err error) {
	m, ok := s.store.Get(tempID)
	if !ok {
		return
	}
	if err != nil {
		s.logger.Warn("failed to send message", zap.Error(err), zap.String("temp_id", tempID))
		s.store.MarkFailed(tempID)
		s.publish(bus.MessageSendFailed, bus.MessageRef{
			ConversationID: m.ConversationID,
			ID:             m.ID,
			TempID:         tempID,
			Error:          err.Error(),
		})
		return
	}

	// The echo may already have reconciled the entry; MarkSent is then a no-op.
	s.store.MarkSent(tempID)
	s.logger.Info("message sent", zap.String("temp_id", tempID), zap.String("conversation_id", m.ConversationID))
	s.publish(bus.MessageUpserted, bus.MessageRef{ConversationID: m.ConversationID, ID: m.ID, TempID: tempID})
}

// Discard removes a failed message.
func (s *Sender) Discard(id string) error {
	m, ok := s.store.Get(id)
	if !ok {
		return ErrUnknownMessage
	}
	if m.Status != store.StatusFailed {
		return ErrNotFailed
	}
	if _, ok := s.store.Remove(id); !ok {
		return ErrUnknownMessage
	}
	s.logger.Info("discarded failed message", zap.String("id", m.ID))
	s.publish(bus.MessageRemoved, bus.MessageRef{ConversationID: m.ConversationID, ID: m.ID, TempID: m.TempID})
	return nil
}

func (s *Sender) publish(kind string, ref bus.MessageRef) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Payload: ref})
}

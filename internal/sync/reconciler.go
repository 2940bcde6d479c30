package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/facilitydesk/chatsync/internal/bus"
	"github.com/facilitydesk/chatsync/internal/index"
	"github.com/facilitydesk/chatsync/internal/store"
	"github.com/facilitydesk/chatsync/internal/wire"
)

// HistoryResult is the payload of bus.HistoryMerged.
type HistoryResult struct {
	store.MergeResult
	Fetched int `json:"fetched"`
}

// HandleInbound applies one parsed socket frame. Echoes of our own sends
// reconcile the pending optimistic entry; everything else goes through the
// idempotent inbound merge. The conversation index is recomputed after every
// message, whichever conversation it belongs to.
func (c *Coordinator) HandleInbound(in *wire.Inbound) {
	self, ok := c.self()
	if !ok || in == nil {
		return
	}

	switch in.Kind {
	case wire.KindTyping:
		if in.ReceiverID == self && c.remote != nil {
			c.remote.Observe(in.SenderID, in.Typing)
		}
		return
	case wire.KindReceipt:
		c.applyReceipt(in)
		return
	case wire.KindMessage:
	default:
		return
	}

	if in.SenderID != self && in.ReceiverID != self {
		c.logger.Debug("ignoring message for another user",
			zap.String("sender_id", in.SenderID),
			zap.String("receiver_id", in.ReceiverID),
		)
		return
	}

	m := in.ToMessage(self)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if in.SenderID == self && in.MessageID != "" && c.store.PendingTemp(in.MessageID) {
		server := m
		if in.ChatID == "" {
			server.ID = in.MessageID
		}
		if c.store.Reconcile(in.MessageID, server) {
			c.logger.Debug("reconciled send", zap.String("temp_id", in.MessageID), zap.String("id", server.ID))
			c.publish(bus.MessageReconciled, bus.MessageRef{ConversationID: m.ConversationID, ID: server.ID, TempID: in.MessageID})
		}
	} else {
		inserted := c.store.ApplyInbound(m)
		c.publish(bus.MessageUpserted, bus.MessageRef{ConversationID: m.ConversationID, ID: m.ID})
		if inserted {
			c.logger.Debug("inbound message", zap.String("conversation_id", m.ConversationID), zap.String("id", m.ID))
		}
	}

	if in.SenderID != self {
		c.index.Remember(index.Profile{ID: in.SenderID, DisplayName: in.SenderName, AvatarRef: in.SenderPic})
		if c.isWatching(m.ConversationID) {
			c.store.MarkRead(m.ConversationID, self)
		}
	}
	c.recomputeLocked()
}

func (c *Coordinator) applyReceipt(in *wire.Inbound) {
	id := in.ChatID
	if id == "" {
		id = in.MessageID
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.store.ApplyReceipt(id, in.Status) {
		return
	}
	m, _ := c.store.Get(id)
	c.publish(bus.MessageUpserted, bus.MessageRef{ConversationID: m.ConversationID, ID: m.ID})
	c.recomputeLocked()
}

// Refresh fetches the full history and merges it. Failures are logged and
// published; the next periodic tick is the retry. A result that arrives after
// Stop is discarded.
func (c *Coordinator) Refresh(ctx context.Context) (HistoryResult, error) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return HistoryResult{}, ErrNotStarted
	}
	gen, self := c.gen, c.selfID
	c.mu.Unlock()

	page, err := c.history.Fetch(ctx, self)
	if err != nil {
		if c.current(gen) {
			c.logger.Error("history refresh failed", zap.Error(err))
			c.publish(bus.HistoryFailed, err.Error())
		}
		return HistoryResult{}, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.current(gen) {
		c.logger.Debug("discarding history fetched before stop")
		return HistoryResult{}, nil
	}

	msgs := make([]store.Message, 0, len(page.Items))
	for _, item := range page.Items {
		msgs = append(msgs, item.ToMessage(self))
		id, name, pic := item.Counterpart(self)
		c.index.Remember(index.Profile{ID: id, DisplayName: name, AvatarRef: pic})
	}
	res := HistoryResult{MergeResult: c.store.UpsertFromHistory(msgs), Fetched: len(page.Items)}
	res.Skipped += page.Skipped

	if _, active := c.View(); c.isWatching(active) {
		c.store.MarkRead(active, self)
	}
	c.recomputeLocked()

	c.logger.Info("history merged",
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("adopted", res.Adopted),
		zap.Int("skipped", res.Skipped),
	)
	c.publish(bus.HistoryMerged, res)
	return res, nil
}

// refreshAsync runs a refresh unless one is already in flight.
func (c *Coordinator) refreshAsync(ctx context.Context) {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	defer c.refreshing.Store(false)
	_, _ = c.Refresh(ctx)
}

func (c *Coordinator) armRefreshLocked(gen uint64) {
	c.timer = c.clk.AfterFunc(c.opts.RefreshInterval, func() { c.tick(gen) })
}

func (c *Coordinator) tick(gen uint64) {
	c.mu.Lock()
	if !c.started || c.gen != gen {
		c.mu.Unlock()
		return
	}
	visible, ctx := c.visible, c.ctx
	c.armRefreshLocked(gen)
	c.mu.Unlock()

	if !visible {
		c.logger.Debug("skipping refresh while hidden")
		return
	}
	go c.refreshAsync(ctx)
}

func (c *Coordinator) isWatching(conversationID string) bool {
	visible, active := c.View()
	return visible && active != "" && active == conversationID
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/facilitydesk/chatsync/internal/bus"
	"github.com/facilitydesk/chatsync/internal/clock"
	"github.com/facilitydesk/chatsync/internal/conn"
	"github.com/facilitydesk/chatsync/internal/index"
	"github.com/facilitydesk/chatsync/internal/outbox"
	"github.com/facilitydesk/chatsync/internal/status"
	"github.com/facilitydesk/chatsync/internal/store"
	"github.com/facilitydesk/chatsync/internal/typing"
	"github.com/facilitydesk/chatsync/internal/wire"
)

var (
	// ErrNotReady is returned by Send when there is nothing to queue and the
	// connection is not open.
	ErrNotReady = errors.New("not ready")
	// ErrEmptyMessage is returned by Send for a draft with neither text nor attachment.
	ErrEmptyMessage = errors.New("empty message")
	// ErrNotStarted is returned by operations that need a running coordinator.
	ErrNotStarted = errors.New("coordinator not started")
)

// Connection is the part of the ConnectionManager the coordinator drives.
type Connection interface {
	Connect()
	Disconnect()
	Reconnect()
	State() status.Snapshot
	SendFrame(ctx context.Context, frame any) error
}

// HistorySource fetches the full message history.
type HistorySource interface {
	Fetch(ctx context.Context, selfID string) (wire.HistoryPage, error)
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Conn    Connection
	History HistorySource
	Store   *store.Store
	Index   *index.Index
	Outbox  *outbox.Sender
	Typing  *typing.Signal
	Remote  *typing.Tracker
	Clock   clock.Clock
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// Options tunes the coordinator.
type Options struct {
	RefreshInterval time.Duration
}

// Coordinator is the only component that touches both the connection and the
// message store. Inbound frames arrive through the bus and are applied by a
// single consumer goroutine; every store mutation runs under writeMu so the
// store and the conversation index have one logical writer.
type Coordinator struct {
	conn    Connection
	history HistorySource
	store   *store.Store
	index   *index.Index
	outbox  *outbox.Sender
	typing  *typing.Signal
	remote  *typing.Tracker
	clk     clock.Clock
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options

	writeMu gosync.Mutex

	mu      gosync.Mutex
	started bool
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	timer   clock.Timer
	selfID  string
	visible bool
	active  string

	refreshing atomic.Bool
}

// New creates a coordinator. It does nothing until Start.
func New(d Deps, opts Options) *Coordinator {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 30 * time.Second
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Coordinator{
		conn:    d.Conn,
		history: d.History,
		store:   d.Store,
		index:   d.Index,
		outbox:  d.Outbox,
		typing:  d.Typing,
		remote:  d.Remote,
		clk:     d.Clock,
		bus:     d.Bus,
		logger:  d.Logger,
		opts:    opts,
		visible: true,
	}
}

// Start connects, subscribes to connection events, runs an immediate history
// refresh and arms the periodic one.
func (c *Coordinator) Start(ctx context.Context, selfID string) error {
	if selfID == "" {
		return fmt.Errorf("start: empty self id")
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.gen++
	gen := c.gen
	c.selfID = selfID
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	runCtx, done := c.ctx, c.done
	c.index.SetSelf(selfID)
	ch, unsub := c.bus.Subscribe("conn.", 256)
	c.armRefreshLocked(gen)
	c.mu.Unlock()

	go c.loop(runCtx, ch, unsub, done)
	c.logger.Info("sync coordinator started", zap.String("self_id", selfID))

	c.conn.Connect()
	go c.refreshAsync(runCtx)
	return nil
}

// Stop cancels every timer and subscription and disconnects. A history fetch
// still in flight is discarded when it resolves.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.gen++
	c.cancel()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	done := c.done
	c.mu.Unlock()

	<-done
	if c.typing != nil {
		c.typing.Stop()
	}
	if c.remote != nil {
		c.remote.Stop()
	}
	c.conn.Disconnect()
	c.logger.Info("sync coordinator stopped")
}

func (c *Coordinator) loop(ctx context.Context, ch <-chan bus.Event, unsub func(), done chan struct{}) {
	defer close(done)
	defer unsub()

	connectedBefore := false
	for {
		select {
		case evt := <-ch:
			switch evt.Kind {
			case bus.ConnInbound:
				if in, ok := evt.Payload.(*wire.Inbound); ok {
					c.HandleInbound(in)
				}
			case bus.ConnStateChanged:
				change, ok := evt.Payload.(status.StatusChange)
				if !ok || change.To != status.Connected {
					continue
				}
				// Pushes may have been missed while the socket was down.
				if connectedBefore {
					go c.refreshAsync(ctx)
				}
				connectedBefore = true
			}
		case <-ctx.Done():
			return
		}
	}
}

// Send queues a message optimistically and transmits it. A transmit failure
// leaves the message in the store as failed; the temporary id is returned
// together with the error so the caller can offer a retry.
func (c *Coordinator) Send(ctx context.Context, conversationID, text string, attachment *store.Attachment, replyToID string) (string, error) {
	self, ok := c.self()
	if !ok {
		return "", ErrNotStarted
	}
	if conversationID == "" {
		return "", fmt.Errorf("send: empty conversation id")
	}
	if strings.TrimSpace(text) == "" && attachment == nil {
		if c.conn.State().State != status.Connected {
			return "", ErrNotReady
		}
		return "", ErrEmptyMessage
	}

	c.writeMu.Lock()
	tempID := c.outbox.Queue(store.Draft{
		ConversationID: conversationID,
		SenderID:       self,
		Text:           text,
		Attachment:     attachment,
		ReplyToID:      replyToID,
	})
	c.recomputeLocked()
	c.writeMu.Unlock()

	err := c.transmit(ctx, tempID)
	if errors.Is(err, conn.ErrNotConnected) {
		return tempID, fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return tempID, err
}

// Retry re-sends a failed message.
func (c *Coordinator) Retry(ctx context.Context, tempID string) error {
	if _, ok := c.self(); !ok {
		return ErrNotStarted
	}
	c.writeMu.Lock()
	err := c.outbox.Requeue(tempID)
	if err == nil {
		c.recomputeLocked()
	}
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	err = c.transmit(ctx, tempID)
	if errors.Is(err, conn.ErrNotConnected) {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return err
}

// transmit writes a queued message without holding writeMu, so inbound
// frames and history merges keep flowing while the socket write is pending.
func (c *Coordinator) transmit(ctx context.Context, tempID string) error {
	err := c.outbox.Transmit(ctx, tempID)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.outbox.Settle(tempID, err)
	c.recomputeLocked()
	return err
}

// Discard removes a failed message.
func (c *Coordinator) Discard(id string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.outbox.Discard(id); err != nil {
		return err
	}
	c.recomputeLocked()
	return nil
}

// MarkConversationRead marks all incoming messages of a conversation read.
func (c *Coordinator) MarkConversationRead(conversationID string) int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	n := c.index.MarkConversationRead(conversationID)
	if n > 0 {
		c.publishConversations()
	}
	return n
}

// SetVisible records whether the presentation layer is in the foreground.
// Periodic refreshes are skipped while hidden; becoming visible refreshes
// immediately and marks the active conversation read.
func (c *Coordinator) SetVisible(visible bool) {
	c.mu.Lock()
	was := c.visible
	c.visible = visible
	active, started, ctx := c.active, c.started, c.ctx
	c.mu.Unlock()

	if !visible || was || !started {
		return
	}
	if active != "" {
		c.MarkConversationRead(active)
	}
	go c.refreshAsync(ctx)
}

// SetActiveConversation records which conversation the user is looking at.
// Its incoming messages are marked read while the view is visible.
func (c *Coordinator) SetActiveConversation(conversationID string) {
	c.mu.Lock()
	c.active = conversationID
	visible := c.visible
	c.mu.Unlock()

	if visible && conversationID != "" {
		c.MarkConversationRead(conversationID)
	}
}

// Keystroke feeds the local typing signal.
func (c *Coordinator) Keystroke(conversationID string) {
	if c.typing != nil {
		c.typing.Keystroke(conversationID)
	}
}

// Reconnect is the manual recovery from the failed state.
func (c *Coordinator) Reconnect() error {
	if _, ok := c.self(); !ok {
		return ErrNotStarted
	}
	c.conn.Reconnect()
	return nil
}

// Messages returns the sorted snapshot of one conversation.
func (c *Coordinator) Messages(conversationID string) []store.Message {
	return c.store.Messages(conversationID)
}

// Message returns one message by server or temporary id.
func (c *Coordinator) Message(id string) (store.Message, bool) {
	return c.store.Get(id)
}

// Conversations returns the sorted conversation list.
func (c *Coordinator) Conversations() []index.Conversation {
	return c.index.Conversations()
}

// ConnectionState returns the current connection state.
func (c *Coordinator) ConnectionState() status.Snapshot {
	return c.conn.State()
}

// Typing reports whether the counterpart of a conversation is typing.
func (c *Coordinator) Typing(conversationID string) bool {
	return c.remote != nil && c.remote.Typing(conversationID)
}

// View returns the presentation flags.
func (c *Coordinator) View() (visible bool, active string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible, c.active
}

// Self returns the local user id, empty before Start.
func (c *Coordinator) Self() string {
	self, _ := c.self()
	return self
}

func (c *Coordinator) self() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID, c.started
}

// current reports whether gen is still the live generation.
func (c *Coordinator) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && c.gen == gen
}

func (c *Coordinator) recomputeLocked() {
	c.index.Recompute()
	c.publishConversations()
}

func (c *Coordinator) publishConversations() {
	c.bus.Publish(bus.Event{Kind: bus.ConversationUpdated})
}

func (c *Coordinator) publish(kind string, payload any) {
	c.bus.Publish(bus.Event{Kind: kind, Payload: payload})
}

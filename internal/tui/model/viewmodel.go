package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/facilitydesk/chatsync/internal/api"
	"github.com/facilitydesk/chatsync/internal/index"
	"github.com/facilitydesk/chatsync/internal/store"
)

// Daemon is the part of the daemon API the TUI drives. *api.Client satisfies it.
type Daemon interface {
	GetState(ctx context.Context) (api.State, error)
	ListConversations(ctx context.Context) ([]index.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) (api.Thread, error)
	Send(ctx context.Context, req api.SendRequest) (string, error)
	Retry(ctx context.Context, tempID string) error
	Discard(ctx context.Context, id string) error
	Reconnect(ctx context.Context) error
	Refresh(ctx context.Context) (api.RefreshResult, error)
	SetVisible(ctx context.Context, visible bool) error
	SetActive(ctx context.Context, conversationID string) error
	Typing(ctx context.Context, conversationID string) error
}

// Events is a stream of daemon events, as returned by api.Client.Watch.
type Events interface {
	Recv() (api.Event, error)
}

// ErrNoConversation is returned by thread actions while no conversation is open.
var ErrNoConversation = errors.New("no conversation open")

// ErrNoFailed is returned by retry/discard when the open thread has no failed message.
var ErrNoFailed = errors.New("no failed message")

// ViewModel caches daemon snapshots and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	daemon   Daemon
	state    api.State
	convs    []index.Conversation
	thread   api.Thread
	activeID string
	Flash    Flash

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{
		daemon:    d,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadState fetches the daemon snapshot.
func (vm *ViewModel) LoadState(ctx context.Context) error {
	st, err := vm.daemon.GetState(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.state = st
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadConversations fetches the conversation list.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	convs, err := vm.daemon.ListConversations(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.convs = convs
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadThread fetches the open conversation's messages. It is a no-op while
// no conversation is open.
func (vm *ViewModel) LoadThread(ctx context.Context) error {
	id := vm.ActiveID()
	if id == "" {
		return nil
	}
	th, err := vm.daemon.ListMessages(ctx, id)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.activeID == id {
		vm.thread = th
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadAll refreshes every snapshot and returns the first error.
func (vm *ViewModel) LoadAll(ctx context.Context) error {
	return errors.Join(vm.LoadState(ctx), vm.LoadConversations(ctx), vm.LoadThread(ctx))
}

// Open makes conversationID the active conversation. The daemon marks it read.
func (vm *ViewModel) Open(ctx context.Context, conversationID string) error {
	if err := vm.daemon.SetActive(ctx, conversationID); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.activeID = conversationID
	vm.thread = api.Thread{ConversationID: conversationID}
	vm.mu.Unlock()
	return errors.Join(vm.LoadThread(ctx), vm.LoadConversations(ctx))
}

// Close leaves the open conversation.
func (vm *ViewModel) Close(ctx context.Context) error {
	vm.mu.Lock()
	vm.activeID = ""
	vm.thread = api.Thread{}
	vm.mu.Unlock()
	vm.signalRefresh()
	return vm.daemon.SetActive(ctx, "")
}

// SetVisible reports whether the terminal is in the foreground.
func (vm *ViewModel) SetVisible(ctx context.Context, visible bool) error {
	return vm.daemon.SetVisible(ctx, visible)
}

// Send sends text to the open conversation. A refused send stays in the
// thread as failed; the flash says so.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	id := vm.ActiveID()
	if id == "" {
		return ErrNoConversation
	}
	tempID, err := vm.daemon.Send(ctx, api.SendRequest{ConversationID: id, Text: text})
	if err != nil {
		if tempID != "" {
			vm.Flash.Warn("Not sent, press r to retry: " + err.Error())
		} else {
			vm.Flash.Err(err)
		}
	}
	return errors.Join(err, vm.LoadThread(ctx))
}

// Keystroke reports composer activity for the typing indicator.
func (vm *ViewModel) Keystroke(ctx context.Context) error {
	id := vm.ActiveID()
	if id == "" {
		return nil
	}
	return vm.daemon.Typing(ctx, id)
}

// Retry re-sends one failed message.
func (vm *ViewModel) Retry(ctx context.Context, tempID string) error {
	if err := vm.daemon.Retry(ctx, tempID); err != nil {
		vm.Flash.Err(fmt.Errorf("retry: %w", err))
		return err
	}
	vm.Flash.Info("Message re-sent")
	return vm.LoadThread(ctx)
}

// RetryLastFailed re-sends the newest failed message of the open thread.
func (vm *ViewModel) RetryLastFailed(ctx context.Context) error {
	m, err := vm.lastFailed()
	if err != nil {
		return err
	}
	return vm.Retry(ctx, m.ID)
}

// DiscardLastFailed drops the newest failed message of the open thread.
func (vm *ViewModel) DiscardLastFailed(ctx context.Context) error {
	m, err := vm.lastFailed()
	if err != nil {
		return err
	}
	if err := vm.daemon.Discard(ctx, m.ID); err != nil {
		vm.Flash.Err(fmt.Errorf("discard: %w", err))
		return err
	}
	vm.Flash.Info("Message discarded")
	return vm.LoadThread(ctx)
}

func (vm *ViewModel) lastFailed() (store.Message, error) {
	if vm.ActiveID() == "" {
		return store.Message{}, ErrNoConversation
	}
	failed := vm.Failed()
	if len(failed) == 0 {
		return store.Message{}, ErrNoFailed
	}
	return failed[len(failed)-1], nil
}

// Reconnect asks the daemon to reconnect now.
func (vm *ViewModel) Reconnect(ctx context.Context) error {
	if err := vm.daemon.Reconnect(ctx); err != nil {
		vm.Flash.Err(fmt.Errorf("reconnect: %w", err))
		return err
	}
	vm.Flash.Info("Reconnecting...")
	return vm.LoadState(ctx)
}

// Refresh runs a history refresh and reloads the snapshots.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	res, err := vm.daemon.Refresh(ctx)
	if err != nil {
		vm.Flash.Err(fmt.Errorf("refresh: %w", err))
		return err
	}
	vm.Flash.Info(fmt.Sprintf("Refreshed: %d fetched, %d new", res.Fetched, res.Inserted+res.Adopted))
	return vm.LoadAll(ctx)
}

// Listen reloads the snapshots an event touches until the stream ends.
// Connection events reload the state, message and sync events reload the
// list and the open thread.
func (vm *ViewModel) Listen(ctx context.Context, events Events) error {
	for {
		evt, err := events.Recv()
		if err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(evt.Kind, "conn."):
			_ = vm.LoadState(ctx)
		case strings.HasPrefix(evt.Kind, "typing."):
			_ = vm.LoadThread(ctx)
		default:
			_ = vm.LoadConversations(ctx)
			_ = vm.LoadThread(ctx)
		}
	}
}

// State returns a snapshot of the daemon state.
func (vm *ViewModel) State() api.State {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.state
}

// Conversations returns a snapshot of the conversation list.
func (vm *ViewModel) Conversations() []index.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.convs
}

// Thread returns a snapshot of the open conversation.
func (vm *ViewModel) Thread() api.Thread {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.thread
}

// ActiveID returns the open conversation id, empty when none is open.
func (vm *ViewModel) ActiveID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeID
}

// Conversation looks up one entry of the cached list.
func (vm *ViewModel) Conversation(id string) (index.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.convs {
		if c.CounterpartID == id {
			return c, true
		}
	}
	return index.Conversation{}, false
}

// Failed returns the failed messages of the open thread, oldest first.
func (vm *ViewModel) Failed() []store.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	var out []store.Message
	for _, m := range vm.thread.Messages {
		if m.Status == store.StatusFailed {
			out = append(out, m)
		}
	}
	return out
}

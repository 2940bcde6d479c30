package typing

import (
	"sync"
	"time"

	"github.com/facilitydesk/chatsync/internal/bus"
	"github.com/facilitydesk/chatsync/internal/clock"
)

// Change is the payload of bus.TypingLocal and bus.TypingRemote.
type Change struct {
	ConversationID string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

// EmitFunc delivers a local typing change to the server.
type EmitFunc func(conversationID string, typing bool)

type localState struct {
	debounce clock.Timer
	clear    clock.Timer
	active   bool
}

// Signal turns local keystrokes into typing indications: once keystrokes
// pause for the debounce interval the conversation is flagged as typing, and
// the flag clears on its own after the clear interval.
type Signal struct {
	clk      clock.Clock
	emit     EmitFunc
	bus      *bus.Bus
	debounce time.Duration
	clear    time.Duration

	mu    sync.Mutex
	convs map[string]*localState
}

// NewSignal creates a Signal. emit may be nil when only bus events are wanted.
func NewSignal(clk clock.Clock, emit EmitFunc, b *bus.Bus, debounce, clear time.Duration) *Signal {
	if clk == nil {
		clk = clock.Real()
	}
	if debounce <= 0 {
		debounce = time.Second
	}
	if clear <= 0 {
		clear = 2 * time.Second
	}
	return &Signal{
		clk:      clk,
		emit:     emit,
		bus:      b,
		debounce: debounce,
		clear:    clear,
		convs:    make(map[string]*localState),
	}
}

// Keystroke records local typing activity in a conversation.
func (s *Signal) Keystroke(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID == "" {
		return
	}
	st := s.convs[conversationID]
	if st == nil {
		st = &localState{}
		s.convs[conversationID] = st
	}
	if st.debounce != nil {
		st.debounce.Stop()
	}
	if st.clear != nil {
		st.clear.Stop()
		st.clear = nil
	}
	st.debounce = s.clk.AfterFunc(s.debounce, func() { s.fire(conversationID, st) })
}

// Active reports whether a typing indication is currently raised.
func (s *Signal) Active(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.convs[conversationID]
	return st != nil && st.active
}

// Stop cancels every pending timer. Raised indications are not cleared remotely.
func (s *Signal) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.convs {
		if st.debounce != nil {
			st.debounce.Stop()
		}
		if st.clear != nil {
			st.clear.Stop()
		}
		delete(s.convs, id)
	}
}

func (s *Signal) fire(conversationID string, st *localState) {
	s.mu.Lock()
	if s.convs[conversationID] != st {
		s.mu.Unlock()
		return
	}
	st.debounce = nil
	raise := !st.active
	st.active = true
	st.clear = s.clk.AfterFunc(s.clear, func() { s.lower(conversationID, st) })
	s.mu.Unlock()

	if raise {
		s.notify(conversationID, true)
	}
}

func (s *Signal) lower(conversationID string, st *localState) {
	s.mu.Lock()
	if s.convs[conversationID] != st || !st.active {
		s.mu.Unlock()
		return
	}
	st.active = false
	st.clear = nil
	delete(s.convs, conversationID)
	s.mu.Unlock()

	s.notify(conversationID, false)
}

func (s *Signal) notify(conversationID string, typing bool) {
	if s.emit != nil {
		s.emit(conversationID, typing)
	}
	if s.bus != nil {
		s.bus.Publish(bus.Event{Kind: bus.TypingLocal, Payload: Change{ConversationID: conversationID, Typing: typing}})
	}
}

// Tracker holds the remote typing state per conversation. A typing frame
// keeps the flag up until the clear interval passes without another one.
type Tracker struct {
	clk   clock.Clock
	bus   *bus.Bus
	clear time.Duration

	mu     sync.Mutex
	gen    uint64
	remote map[string]remoteState
}

type remoteState struct {
	timer clock.Timer
	gen   uint64
}

// NewTracker creates a Tracker.
func NewTracker(clk clock.Clock, b *bus.Bus, clear time.Duration) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	if clear <= 0 {
		clear = 2 * time.Second
	}
	return &Tracker{clk: clk, bus: b, clear: clear, remote: make(map[string]remoteState)}
}

// Observe applies a remote typing frame.
func (t *Tracker) Observe(conversationID string, typing bool) {
	t.mu.Lock()
	prev, was := t.remote[conversationID]
	if was {
		prev.timer.Stop()
		delete(t.remote, conversationID)
	}
	if typing {
		t.gen++
		gen := t.gen
		t.remote[conversationID] = remoteState{
			timer: t.clk.AfterFunc(t.clear, func() { t.expire(conversationID, gen) }),
			gen:   gen,
		}
	}
	t.mu.Unlock()

	if was != typing {
		t.publish(conversationID, typing)
	}
}

// Typing reports whether the counterpart is typing.
func (t *Tracker) Typing(conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.remote[conversationID]
	return ok
}

// Stop cancels every pending timer.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, st := range t.remote {
		st.timer.Stop()
		delete(t.remote, id)
	}
}

func (t *Tracker) expire(conversationID string, gen uint64) {
	t.mu.Lock()
	if st, ok := t.remote[conversationID]; !ok || st.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.remote, conversationID)
	t.mu.Unlock()
	t.publish(conversationID, false)
}

func (t *Tracker) publish(conversationID string, typing bool) {
	if t.bus != nil {
		t.bus.Publish(bus.Event{Kind: bus.TypingRemote, Payload: Change{ConversationID: conversationID, Typing: typing}})
	}
}

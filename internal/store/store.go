package store

import (
	"sort"
	"sync"
	"time"

	"github.com/facilitydesk/chatsync/internal/clock"
	"github.com/google/uuid"
)

// Options tunes reconciliation behaviour.
type Options struct {
	// AliasGrace is how long a reconciled temporary id keeps resolving to its entry.
	AliasGrace time.Duration
	// MatchWindow bounds the timestamp distance for matching an unconfirmed entry
	// against a server copy of the same message.
	MatchWindow time.Duration
}

// DefaultOptions returns the tuning used by the daemon when none is configured.
func DefaultOptions() Options {
	return Options{
		AliasGrace:  5 * time.Minute,
		MatchWindow: 2 * time.Minute,
	}
}

type entry struct {
	msg Message
	seq uint64
}

type alias struct {
	target  string
	expires time.Time
}

// Store is the in-memory, de-duplicated message set. It is safe for concurrent
// use; reads return copies so callers never observe later mutations.
type Store struct {
	mu   sync.Mutex
	clk  clock.Clock
	opts Options

	seq     uint64
	byID    map[string]*entry
	byConv  map[string][]*entry
	pending map[string]string // temp id -> current id while awaiting reconciliation
	aliases map[string]alias
	sorted  map[string][]Message

	newID func() string
}

// New creates an empty store.
func New(clk clock.Clock, opts Options) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	def := DefaultOptions()
	if opts.AliasGrace <= 0 {
		opts.AliasGrace = def.AliasGrace
	}
	if opts.MatchWindow <= 0 {
		opts.MatchWindow = def.MatchWindow
	}
	return &Store{
		clk:     clk,
		opts:    opts,
		byID:    make(map[string]*entry),
		byConv:  make(map[string][]*entry),
		pending: make(map[string]string),
		aliases: make(map[string]alias),
		sorted:  make(map[string][]Message),
		newID:   func() string { return "tmp-" + uuid.NewString() },
	}
}

// Get returns the message addressed by id, following reconciliation aliases.
func (s *Store) Get(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.resolveLocked(id)
	if e == nil {
		return Message{}, false
	}
	return e.msg.clone(), true
}

// Messages returns the conversation in canonical order: ascending timestamp,
// ties by insertion order. The sorted view is cached until the next mutation.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, ok := s.sorted[conversationID]
	if !ok {
		entries := append([]*entry(nil), s.byConv[conversationID]...)
		sort.Slice(entries, func(i, j int) bool {
			a, b := entries[i], entries[j]
			if a.msg.Timestamp.Equal(b.msg.Timestamp) {
				return a.seq < b.seq
			}
			return a.msg.Timestamp.Before(b.msg.Timestamp)
		})
		cached = make([]Message, len(entries))
		for i, e := range entries {
			cached[i] = e.msg
		}
		s.sorted[conversationID] = cached
	}

	out := make([]Message, len(cached))
	for i, m := range cached {
		out[i] = m.clone()
	}
	return out
}

// All returns every message in insertion order.
func (s *Store) All() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]*entry, 0, len(s.byID))
	for _, e := range s.byID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]Message, len(entries))
	for i, e := range entries {
		out[i] = e.msg.clone()
	}
	return out
}

// Len returns the number of logical messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// PendingTemp reports whether tempID is still awaiting reconciliation.
func (s *Store) PendingTemp(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[tempID]
	return ok
}

// Remove deletes the message addressed by id. Used for explicit user deletes
// and discarding failed sends.
func (s *Store) Remove(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.resolveLocked(id)
	if e == nil {
		return Message{}, false
	}
	s.dropLocked(e)
	for k, a := range s.aliases {
		if a.target == e.msg.ID {
			delete(s.aliases, k)
		}
	}
	return e.msg.clone(), true
}

func (s *Store) resolveLocked(id string) *entry {
	if id == "" {
		return nil
	}
	if e, ok := s.byID[id]; ok {
		return e
	}
	if cur, ok := s.pending[id]; ok {
		return s.byID[cur]
	}
	a, ok := s.aliases[id]
	if !ok {
		return nil
	}
	if s.clk.Now().After(a.expires) {
		delete(s.aliases, id)
		return nil
	}
	return s.byID[a.target]
}

func (s *Store) insertLocked(m Message) *entry {
	s.seq++
	e := &entry{msg: m.clone(), seq: s.seq}
	s.byID[m.ID] = e
	s.byConv[m.ConversationID] = append(s.byConv[m.ConversationID], e)
	s.invalidateLocked(m.ConversationID)
	return e
}

func (s *Store) dropLocked(e *entry) {
	delete(s.byID, e.msg.ID)
	if e.msg.TempID != "" {
		delete(s.pending, e.msg.TempID)
	}
	conv := s.byConv[e.msg.ConversationID]
	for i, c := range conv {
		if c == e {
			conv = append(conv[:i], conv[i+1:]...)
			break
		}
	}
	if len(conv) == 0 {
		delete(s.byConv, e.msg.ConversationID)
	} else {
		s.byConv[e.msg.ConversationID] = conv
	}
	s.invalidateLocked(e.msg.ConversationID)
}

// rekeyLocked moves e to a server id and leaves the old id behind as an alias.
func (s *Store) rekeyLocked(e *entry, id string) {
	old := e.msg.ID
	if old == id {
		return
	}
	delete(s.byID, old)
	e.msg.ID = id
	s.byID[id] = e
	s.aliasLocked(old, id)
}

func (s *Store) aliasLocked(from, to string) {
	if from == "" || from == to {
		return
	}
	s.aliases[from] = alias{target: to, expires: s.clk.Now().Add(s.opts.AliasGrace)}
	s.pruneAliasesLocked()
}

func (s *Store) pruneAliasesLocked() {
	now := s.clk.Now()
	for k, a := range s.aliases {
		if now.After(a.expires) {
			delete(s.aliases, k)
		}
	}
}

func (s *Store) invalidateLocked(conversationID string) {
	delete(s.sorted, conversationID)
}

// matchLocked finds an entry in m's conversation that is the same message as m
// (same sender and text, timestamps within the match window). When
// provisionalOnly is set only unconfirmed entries qualify. The closest
// timestamp wins; insertion order breaks ties.
func (s *Store) matchLocked(m Message, provisionalOnly bool) *entry {
	if m.Timestamp.IsZero() {
		return nil
	}
	var best *entry
	var bestDist time.Duration
	for _, e := range s.byConv[m.ConversationID] {
		if provisionalOnly && !e.msg.Provisional {
			continue
		}
		if e.msg.SenderID != m.SenderID || e.msg.Text != m.Text || tempConflict(e.msg, m) {
			continue
		}
		dist := e.msg.Timestamp.Sub(m.Timestamp)
		if dist < 0 {
			dist = -dist
		}
		if dist > s.opts.MatchWindow {
			continue
		}
		if best == nil || dist < bestDist {
			best, bestDist = e, dist
		}
	}
	return best
}

// exactLocked finds a server-confirmed entry with m's sender, text and
// timestamp. Pushes without a server id match nothing looser.
func (s *Store) exactLocked(m Message) *entry {
	if m.Timestamp.IsZero() {
		return nil
	}
	for _, e := range s.byConv[m.ConversationID] {
		if e.msg.Provisional || tempConflict(e.msg, m) {
			continue
		}
		if e.msg.SenderID == m.SenderID && e.msg.Text == m.Text && e.msg.Timestamp.Equal(m.Timestamp) {
			return e
		}
	}
	return nil
}

// tempConflict reports whether a and b carry different client message ids.
func tempConflict(a, b Message) bool {
	return a.TempID != "" && b.TempID != "" && a.TempID != b.TempID
}

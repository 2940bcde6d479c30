package index

import (
	"sort"
	"sync"

	"github.com/facilitydesk/chatsync/internal/store"
)

// Profile is what the backend tells us about a counterpart.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

// Conversation is the derived summary of all messages exchanged with one
// counterpart. It is never mutated on its own.
type Conversation struct {
	CounterpartID string        `json:"counterpart_id"`
	DisplayName   string        `json:"display_name"`
	AvatarRef     string        `json:"avatar_ref,omitempty"`
	LastMessage   store.Message `json:"last_message"`
	UnreadCount   int           `json:"unread_count"`
	MessageCount  int           `json:"message_count"`
}

// Index derives the conversation list from the message store.
type Index struct {
	store *store.Store

	mu       sync.RWMutex
	selfID   string
	convs    []Conversation
	profiles map[string]Profile
}

// New creates an index over s. Call Recompute after the store changes.
func New(s *store.Store, selfID string) *Index {
	return &Index{
		store:    s,
		selfID:   selfID,
		profiles: make(map[string]Profile),
	}
}

// SetSelf changes the local user id used to tell own messages apart.
func (x *Index) SetSelf(selfID string) {
	x.mu.Lock()
	x.selfID = selfID
	x.mu.Unlock()
}

// Self returns the local user id.
func (x *Index) Self() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.selfID
}

// Remember merges counterpart details. Empty fields keep the known value.
func (x *Index) Remember(p Profile) {
	if p.ID == "" {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	cur := x.profiles[p.ID]
	cur.ID = p.ID
	if p.DisplayName != "" {
		cur.DisplayName = p.DisplayName
	}
	if p.AvatarRef != "" {
		cur.AvatarRef = p.AvatarRef
	}
	x.profiles[p.ID] = cur
}

// Recompute rebuilds the conversation list in one pass over the store and
// returns it. Conversations are ordered by last message time, newest first,
// ties by counterpart id.
func (x *Index) Recompute() []Conversation {
	msgs := x.store.All()

	x.mu.Lock()
	defer x.mu.Unlock()

	byID := make(map[string]*Conversation)
	order := make([]string, 0)
	for _, m := range msgs {
		c, ok := byID[m.ConversationID]
		if !ok {
			c = &Conversation{CounterpartID: m.ConversationID, LastMessage: m}
			byID[m.ConversationID] = c
			order = append(order, m.ConversationID)
		} else if !m.Timestamp.Before(c.LastMessage.Timestamp) {
			// All is in insertion order, so equal timestamps favour the later insert.
			c.LastMessage = m
		}
		c.MessageCount++
		if !m.FromSelf(x.selfID) && m.Status != store.StatusRead {
			c.UnreadCount++
		}
	}

	convs := make([]Conversation, 0, len(order))
	for _, id := range order {
		c := byID[id]
		p := x.profiles[id]
		c.DisplayName = p.DisplayName
		if c.DisplayName == "" {
			c.DisplayName = id
		}
		c.AvatarRef = p.AvatarRef
		convs = append(convs, *c)
	}
	sort.Slice(convs, func(i, j int) bool {
		a, b := convs[i].LastMessage.Timestamp, convs[j].LastMessage.Timestamp
		if a.Equal(b) {
			return convs[i].CounterpartID < convs[j].CounterpartID
		}
		return a.After(b)
	})

	x.convs = convs
	return cloneAll(convs)
}

// Conversations returns the list as of the last Recompute.
func (x *Index) Conversations() []Conversation {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return cloneAll(x.convs)
}

// Conversation returns one entry as of the last Recompute.
func (x *Index) Conversation(counterpartID string) (Conversation, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, c := range x.convs {
		if c.CounterpartID == counterpartID {
			return clone(c), true
		}
	}
	return Conversation{}, false
}

// MarkConversationRead marks every incoming message of the conversation read
// and recomputes. Returns how many messages changed.
func (x *Index) MarkConversationRead(counterpartID string) int {
	n := x.store.MarkRead(counterpartID, x.Self())
	if n > 0 {
		x.Recompute()
	}
	return n
}

// UnreadTotal sums unread counts across conversations.
func (x *Index) UnreadTotal() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := 0
	for _, c := range x.convs {
		n += c.UnreadCount
	}
	return n
}

func cloneAll(convs []Conversation) []Conversation {
	out := make([]Conversation, len(convs))
	for i, c := range convs {
		out[i] = clone(c)
	}
	return out
}

func clone(c Conversation) Conversation {
	if c.LastMessage.Attachment != nil {
		a := *c.LastMessage.Attachment
		c.LastMessage.Attachment = &a
	}
	return c
}

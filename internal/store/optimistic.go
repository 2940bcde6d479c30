package store

// InsertOptimistic adds a locally authored message before the server has seen
// it and returns its temporary id.
func (s *Store) InsertOptimistic(d Draft) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	m := Message{
		ID:             id,
		TempID:         id,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		ReceiverID:     d.ConversationID,
		Text:           d.Text,
		Timestamp:      s.clk.Now(),
		Status:         StatusSending,
		ReplyToID:      d.ReplyToID,
		Provisional:    true,
	}
	if d.Attachment != nil {
		a := *d.Attachment
		m.Attachment = &a
	}
	s.insertLocked(m)
	s.pending[id] = id
	return id
}

// MarkSent records a successful transmit. The entry stays pending so the
// server echo can still reconcile it.
func (s *Store) MarkSent(tempID string) bool {
	return s.transitionPending(tempID, StatusSending, StatusSent)
}

// MarkFailed records a failed transmit.
func (s *Store) MarkFailed(tempID string) bool {
	return s.transitionPending(tempID, StatusSending, StatusFailed)
}

// MarkSending moves a failed entry back to sending for a retry.
func (s *Store) MarkSending(tempID string) bool {
	return s.transitionPending(tempID, StatusFailed, StatusSending)
}

func (s *Store) transitionPending(tempID string, from, to Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.pending[tempID]
	if !ok {
		return false
	}
	e := s.byID[cur]
	if e == nil || e.msg.Status != from {
		return false
	}
	e.msg.Status = to
	s.invalidateLocked(e.msg.ConversationID)
	return true
}

// MarkRead sets every message in the conversation not authored by selfID to
// read and returns how many changed.
func (s *Store) MarkRead(conversationID, selfID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.byConv[conversationID] {
		if e.msg.FromSelf(selfID) || e.msg.Status == StatusRead {
			continue
		}
		e.msg.Status = StatusRead
		n++
	}
	if n > 0 {
		s.invalidateLocked(conversationID)
	}
	return n
}

package store

// UpsertFromHistory merges a full or partial history fetch. Known ids get the
// server-authoritative fields; unknown ids first try to adopt an unconfirmed
// local entry of the same message, otherwise they are inserted. Nothing is
// removed, so pending optimistic sends survive a history that predates them.
func (s *Store) UpsertFromHistory(msgs []Message) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res MergeResult
	for _, m := range msgs {
		if m.ID == "" || m.ConversationID == "" {
			res.Skipped++
			continue
		}
		m.Provisional = false
		if !m.Status.Valid() {
			m.Status = StatusDelivered
		}

		if e := s.resolveLocked(m.ID); e != nil {
			if s.mergeServerLocked(e, m) {
				res.Updated++
			}
			continue
		}
		if e := s.matchLocked(m, true); e != nil {
			s.adoptLocked(e, m)
			res.Adopted++
			continue
		}
		s.insertLocked(m)
		res.Inserted++
	}
	return res
}

// ApplyInbound merges a socket-pushed message. Replays of a known id only
// upgrade its status. New messages are inserted as delivered unless the
// payload already carries a higher status.
func (s *Store) ApplyInbound(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" || m.ConversationID == "" {
		return false
	}
	if m.Status.Rank() < StatusSent.Rank() {
		m.Status = StatusDelivered
	}

	if e := s.resolveLocked(m.ID); e != nil {
		s.mergeInboundLocked(e, m)
		return false
	}

	if m.Provisional {
		// No server id on the push. Only an exact copy already stored under
		// its server id counts as the same message; anything looser is left
		// to history adoption, which consumes each provisional entry once.
		if e := s.exactLocked(m); e != nil {
			s.aliasLocked(m.ID, e.msg.ID)
			s.mergeInboundLocked(e, m)
			return false
		}
	} else if e := s.matchLocked(m, true); e != nil {
		s.adoptLocked(e, m)
		return false
	}

	s.insertLocked(m)
	return true
}

// ApplyReceipt upgrades the status of the message addressed by id. Returns
// false when the id is unknown or the status would not move up.
func (s *Store) ApplyReceipt(id string, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.resolveLocked(id)
	if e == nil || status.Rank() <= e.msg.Status.Rank() {
		return false
	}
	e.msg.Status = status
	s.invalidateLocked(e.msg.ConversationID)
	return true
}

// Reconcile replaces the optimistic entry tempID with the server-confirmed
// message. Unknown or already reconciled temp ids are a no-op.
func (s *Store) Reconcile(tempID string, server Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.pending[tempID]
	if !ok {
		return false
	}
	e := s.byID[cur]
	delete(s.pending, tempID)
	if e == nil {
		return false
	}

	status := MaxStatus(StatusSent, server.Status)

	if server.ID == "" || server.ID == e.msg.ID {
		e.msg.Status = MaxStatus(e.msg.Status, status)
		if !server.Timestamp.IsZero() {
			e.msg.Timestamp = server.Timestamp
		}
		s.invalidateLocked(e.msg.ConversationID)
		return true
	}

	if other := s.resolveLocked(server.ID); other != nil && other != e {
		// The server copy arrived first (history or push). Fold into it.
		s.dropLocked(e)
		s.aliasLocked(tempID, other.msg.ID)
		server.Status = status
		s.mergeServerLocked(other, server)
		if other.msg.TempID == "" {
			other.msg.TempID = tempID
		}
		return true
	}

	s.rekeyLocked(e, server.ID)
	if !server.Timestamp.IsZero() {
		e.msg.Timestamp = server.Timestamp
	}
	e.msg.Status = MaxStatus(e.msg.Status, status)
	e.msg.Provisional = false
	s.invalidateLocked(e.msg.ConversationID)
	return true
}

// adoptLocked gives an unconfirmed entry the server's identity.
func (s *Store) adoptLocked(e *entry, m Message) {
	if e.msg.TempID != "" {
		delete(s.pending, e.msg.TempID)
	}
	s.rekeyLocked(e, m.ID)
	if m.Status.Rank() < StatusSent.Rank() {
		m.Status = StatusSent
	}
	s.mergeServerLocked(e, m)
}

// mergeServerLocked applies fields the server is authoritative for. Status
// only moves up. Returns whether anything changed.
func (s *Store) mergeServerLocked(e *entry, m Message) bool {
	before := e.msg
	if !m.Timestamp.IsZero() {
		e.msg.Timestamp = m.Timestamp
	}
	if m.Text != "" {
		e.msg.Text = m.Text
	}
	if m.SenderName != "" {
		e.msg.SenderName = m.SenderName
	}
	if m.ReceiverID != "" {
		e.msg.ReceiverID = m.ReceiverID
	}
	if m.Attachment != nil {
		a := *m.Attachment
		e.msg.Attachment = &a
	}
	if m.ReplyToID != "" {
		e.msg.ReplyToID = m.ReplyToID
	}
	e.msg.Status = MaxStatus(e.msg.Status, m.Status)
	e.msg.Provisional = false

	changed := !sameMessage(before, e.msg)
	if changed {
		s.invalidateLocked(e.msg.ConversationID)
	}
	return changed
}

// mergeInboundLocked handles a replayed push: status upgrade plus filling in
// fields the existing entry lacks.
func (s *Store) mergeInboundLocked(e *entry, m Message) {
	before := e.msg
	e.msg.Status = MaxStatus(e.msg.Status, m.Status)
	if e.msg.SenderName == "" {
		e.msg.SenderName = m.SenderName
	}
	if e.msg.Attachment == nil && m.Attachment != nil {
		a := *m.Attachment
		e.msg.Attachment = &a
	}
	if e.msg.Provisional && !m.Provisional {
		e.msg.Provisional = false
		if !m.Timestamp.IsZero() {
			e.msg.Timestamp = m.Timestamp
		}
	}
	if !sameMessage(before, e.msg) {
		s.invalidateLocked(e.msg.ConversationID)
	}
}

func sameMessage(a, b Message) bool {
	if (a.Attachment == nil) != (b.Attachment == nil) {
		return false
	}
	if a.Attachment != nil && *a.Attachment != *b.Attachment {
		return false
	}
	return a.ID == b.ID &&
		a.Text == b.Text &&
		a.SenderName == b.SenderName &&
		a.ReceiverID == b.ReceiverID &&
		a.ReplyToID == b.ReplyToID &&
		a.Status == b.Status &&
		a.Provisional == b.Provisional &&
		a.Timestamp.Equal(b.Timestamp)
}

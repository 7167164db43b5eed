package chat

import "event-chat/internal/models"

// Reconciler merges messages from the initial snapshot, live pushes and HTTP
// polls into one list. Messages keep arrival order and are never removed.
type Reconciler struct {
	viewerID string

	messages []models.ChatMessage
	index    map[models.MessageID]int

	// clientId -> position of an optimistic message awaiting its server id
	pending map[string]int

	readRequested map[models.MessageID]struct{}

	// readers already counted per message
	readers map[models.MessageID]map[string]struct{}
}

func NewReconciler(viewerID string) *Reconciler {
	return &Reconciler{
		viewerID:      viewerID,
		index:         make(map[models.MessageID]int),
		pending:       make(map[string]int),
		readRequested: make(map[models.MessageID]struct{}),
		readers:       make(map[models.MessageID]map[string]struct{}),
	}
}

// ApplySnapshot merges a full message list. Known ids are updated in place,
// unknown ids are appended in snapshot order. It returns how many messages
// were added.
func (r *Reconciler) ApplySnapshot(msgs []models.ChatMessage) int {
	added := 0
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if i, ok := r.index[m.ID]; ok {
			r.merge(i, m)
			continue
		}
		if r.insert(m) {
			added++
		}
	}
	return added
}

// ApplyIncoming adds a single pushed message. A message whose id was already
// seen is ignored.
func (r *Reconciler) ApplyIncoming(m models.ChatMessage) bool {
	if m.ID == "" {
		return false
	}
	if _, ok := r.index[m.ID]; ok {
		return false
	}
	return r.insert(m)
}

func (r *Reconciler) insert(m models.ChatMessage) bool {
	m.Delivery = models.DeliveryCommitted
	if m.IsDeleted {
		m.Content = ""
	}
	if m.ClientId != "" {
		if i, ok := r.pending[m.ClientId]; ok {
			delete(r.pending, m.ClientId)
			r.messages[i] = m
			r.index[m.ID] = i
			return true
		}
	}
	r.index[m.ID] = len(r.messages)
	r.messages = append(r.messages, m)
	return true
}

func (r *Reconciler) merge(i int, m models.ChatMessage) {
	cur := &r.messages[i]
	if m.IsDeleted && !cur.IsDeleted {
		cur.IsDeleted = true
		cur.Content = ""
	}
	if !cur.IsDeleted && m.Content != "" {
		cur.Content = m.Content
	}
	if m.ReadCount > cur.ReadCount {
		cur.ReadCount = m.ReadCount
	}
	if m.IsReadByViewer {
		cur.IsReadByViewer = true
	}
}

// ApplyDeleted soft-deletes a message in place.
func (r *Reconciler) ApplyDeleted(id models.MessageID) bool {
	i, ok := r.index[id]
	if !ok || r.messages[i].IsDeleted {
		return false
	}
	r.messages[i].IsDeleted = true
	r.messages[i].Content = ""
	return true
}

// ApplyReadReceipt records that readerID read the message. An empty readerID
// means the viewer. When the server supplies readCount it wins, otherwise
// the count is incremented once per distinct reader.
func (r *Reconciler) ApplyReadReceipt(id models.MessageID, readerID string, readCount *int) bool {
	i, ok := r.index[id]
	if !ok {
		return false
	}
	m := &r.messages[i]
	if readerID == "" {
		readerID = r.viewerID
	}
	byViewer := readerID == r.viewerID
	seen := r.markReader(id, readerID) || (byViewer && m.IsReadByViewer)

	changed := false
	if byViewer && !m.IsReadByViewer {
		m.IsReadByViewer = true
		changed = true
	}
	switch {
	case readCount != nil:
		if m.ReadCount != *readCount {
			m.ReadCount = *readCount
			changed = true
		}
	case !seen:
		m.ReadCount++
		changed = true
	}
	return changed
}

// markReader reports whether readerID was already counted for id.
func (r *Reconciler) markReader(id models.MessageID, readerID string) bool {
	set, ok := r.readers[id]
	if !ok {
		set = make(map[string]struct{})
		r.readers[id] = set
	}
	if _, dup := set[readerID]; dup {
		return true
	}
	set[readerID] = struct{}{}
	return false
}

// TakeReadRequests returns ids of other authors' messages the viewer has not
// read yet. Each id is returned at most once for the reconciler's lifetime.
func (r *Reconciler) TakeReadRequests() []models.MessageID {
	var ids []models.MessageID
	for _, m := range r.messages {
		if m.ID == "" || m.AuthorId == r.viewerID || m.IsDeleted || m.IsReadByViewer {
			continue
		}
		if _, ok := r.readRequested[m.ID]; ok {
			continue
		}
		r.readRequested[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	return ids
}

// AddPending inserts an optimistic local message keyed by its client nonce.
func (r *Reconciler) AddPending(m models.ChatMessage) {
	m.ID = ""
	m.Delivery = models.DeliveryPending
	r.pending[m.ClientId] = len(r.messages)
	r.messages = append(r.messages, m)
}

// Commit replaces the pending message with the server's copy. If the server
// copy already arrived through another source the local placeholder is
// dropped instead.
func (r *Reconciler) Commit(clientID string, m models.ChatMessage) bool {
	i, ok := r.pending[clientID]
	if !ok {
		if m.ID != "" {
			return r.ApplyIncoming(m)
		}
		return false
	}
	delete(r.pending, clientID)
	if _, seen := r.index[m.ID]; seen || m.ID == "" {
		r.removeAt(i)
		return true
	}
	m.ClientId = clientID
	m.Delivery = models.DeliveryCommitted
	r.messages[i] = m
	r.index[m.ID] = i
	return true
}

// RollBack marks a pending message as failed. The message stays visible so
// the viewer can retry it.
func (r *Reconciler) RollBack(clientID string) bool {
	i, ok := r.pending[clientID]
	if !ok {
		return false
	}
	r.messages[i].Delivery = models.DeliveryRolledBack
	return true
}

// PendingClientIDs lists optimistic messages still awaiting the server, in
// display order.
func (r *Reconciler) PendingClientIDs() []string {
	var out []string
	for _, m := range r.messages {
		if m.Delivery != models.DeliveryPending {
			continue
		}
		if _, ok := r.pending[m.ClientId]; ok {
			out = append(out, m.ClientId)
		}
	}
	return out
}

// Pending returns the optimistic message for a client nonce.
func (r *Reconciler) Pending(clientID string) (models.ChatMessage, bool) {
	i, ok := r.pending[clientID]
	if !ok {
		return models.ChatMessage{}, false
	}
	return r.messages[i], true
}

// Retry flips a rolled back message back to pending.
func (r *Reconciler) Retry(clientID string) bool {
	i, ok := r.pending[clientID]
	if !ok || r.messages[i].Delivery != models.DeliveryRolledBack {
		return false
	}
	r.messages[i].Delivery = models.DeliveryPending
	return true
}

// removeAt only ever removes unconfirmed local placeholders.
func (r *Reconciler) removeAt(i int) {
	r.messages = append(r.messages[:i], r.messages[i+1:]...)
	for id, j := range r.index {
		if j > i {
			r.index[id] = j - 1
		}
	}
	for cid, j := range r.pending {
		if j > i {
			r.pending[cid] = j - 1
		}
	}
}

func (r *Reconciler) Len() int {
	return len(r.messages)
}

// Messages returns a copy of the list in display order.
func (r *Reconciler) Messages() []models.ChatMessage {
	out := make([]models.ChatMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// ScrollPolicy decides whether the view follows new messages.
type ScrollPolicy struct {
	Threshold int
}

const DefaultScrollThreshold = 100

// ShouldFollow reports whether the viewport is close enough to the bottom
// that a new message should scroll it down.
func (p ScrollPolicy) ShouldFollow(scrollTop, viewportHeight, contentHeight int) bool {
	return contentHeight-(scrollTop+viewportHeight) <= p.Threshold
}

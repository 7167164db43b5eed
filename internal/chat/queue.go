package chat

import "event-chat/internal/models"

// OutboundQueue buffers frames composed while the connection is not open.
type OutboundQueue struct {
	items []models.Outbound
}

func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{}
}

func (q *OutboundQueue) Enqueue(p models.Outbound) {
	q.items = append(q.items, p)
}

// Flush sends queued frames in FIFO order. If send fails the frame stays at
// the head of the queue and flushing stops.
func (q *OutboundQueue) Flush(send func(models.Outbound) error) (int, error) {
	sent := 0
	for len(q.items) > 0 {
		if err := send(q.items[0]); err != nil {
			return sent, err
		}
		q.items[0] = models.Outbound{}
		q.items = q.items[1:]
		sent++
	}
	q.items = nil
	return sent, nil
}

func (q *OutboundQueue) Len() int {
	return len(q.items)
}

// Items returns a copy of the queued frames, head first.
func (q *OutboundQueue) Items() []models.Outbound {
	out := make([]models.Outbound, len(q.items))
	copy(out, q.items)
	return out
}

func (q *OutboundQueue) Clear() {
	q.items = nil
}

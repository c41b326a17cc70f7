// -----------------------------------------------------------------------
// Outbox - ordered, bounded per-user server message queue
// -----------------------------------------------------------------------

package session

import (
	"sync"

	"github.com/ternarybob/jobpilot/internal/models"
)

const defaultOutboxSize = 256

// Outbox holds server messages for one user in emission order. Each message is
// consumed once, either by the live subscriber or by a short-poll Drain.
type Outbox struct {
	mu      sync.Mutex
	seq     uint64
	queue   []models.ServerMessage
	size    int
	dropped uint64
	ready   chan struct{}
	sub     *subscription
}

type subscription struct {
	ch   chan models.ServerMessage
	stop chan struct{}
	once sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.stop) })
}

// NewOutbox creates an outbox holding at most size undelivered messages
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = defaultOutboxSize
	}
	return &Outbox{
		size:  size,
		ready: make(chan struct{}, 1),
	}
}

// Push appends a message and assigns its sequence number. When the queue is
// full the oldest checkpoint frame is evicted first, then the oldest message.
func (o *Outbox) Push(msgType, jobID string, payload interface{}) models.ServerMessage {
	o.mu.Lock()
	o.seq++
	msg := models.ServerMessage{
		Seq:     o.seq,
		Type:    msgType,
		JobID:   jobID,
		Payload: payload,
	}
	if len(o.queue) >= o.size {
		o.evict()
	}
	o.queue = append(o.queue, msg)
	o.mu.Unlock()

	o.signal()
	return msg
}

func (o *Outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

func (o *Outbox) evict() {
	o.dropped++
	for i, m := range o.queue {
		if m.Type == models.MsgCheckpointFrame {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			return
		}
	}
	o.queue = o.queue[1:]
}

// Drain removes and returns up to max queued messages in order (all when max <= 0)
func (o *Outbox) Drain(max int) []models.ServerMessage {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(o.queue)
	if max > 0 && max < n {
		n = max
	}
	out := make([]models.ServerMessage, n)
	copy(out, o.queue[:n])
	o.queue = append(o.queue[:0], o.queue[n:]...)
	return out
}

// Len returns the number of undelivered messages
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Dropped returns how many messages were evicted because the queue was full
func (o *Outbox) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// LastSeq returns the sequence number of the most recent message
func (o *Outbox) LastSeq() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seq
}

func (o *Outbox) peek() (models.ServerMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return models.ServerMessage{}, false
	}
	return o.queue[0], true
}

// ack removes the head if it is still the delivered message
func (o *Outbox) ack(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) > 0 && o.queue[0].Seq == seq {
		o.queue = o.queue[1:]
	}
}

// Subscribe attaches the live subscriber, replacing (and closing) any previous one.
// The returned cancel is safe to call more than once; it reports whether this
// subscription was still the attached one.
func (o *Outbox) Subscribe() (<-chan models.ServerMessage, func() bool) {
	sub := &subscription{
		ch:   make(chan models.ServerMessage),
		stop: make(chan struct{}),
	}

	o.mu.Lock()
	previous := o.sub
	o.sub = sub
	o.mu.Unlock()

	if previous != nil {
		previous.close()
	}

	go o.pump(sub)

	cancel := func() bool {
		o.mu.Lock()
		current := o.sub == sub
		if current {
			o.sub = nil
		}
		o.mu.Unlock()
		sub.close()
		return current
	}
	return sub.ch, cancel
}

// Attached reports whether a live subscriber is connected
func (o *Outbox) Attached() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sub != nil
}

// pump hands queued messages to sub one at a time; a message leaves the queue
// only once the subscriber has received it.
func (o *Outbox) pump(sub *subscription) {
	defer func() {
		close(sub.ch)
		// pass on a wakeup this pump may have swallowed
		o.signal()
	}()

	for {
		select {
		case <-sub.stop:
			return
		default:
		}

		msg, ok := o.peek()
		if !ok {
			select {
			case <-o.ready:
				continue
			case <-sub.stop:
				return
			}
		}

		select {
		case sub.ch <- msg:
			o.ack(msg.Seq)
		case <-sub.stop:
			return
		}
	}
}

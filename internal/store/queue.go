package store

import (
	"context"
	"sync"
)

// UpdateKind identifies which notification channel an update came from
type UpdateKind int

const (
	KindGameStatus UpdateKind = iota
	KindChat
	KindOpponentConnected
)

func (k UpdateKind) String() string {
	switch k {
	case KindGameStatus:
		return "game_status"
	case KindChat:
		return "chat"
	case KindOpponentConnected:
		return "opponent_connected"
	default:
		return "unknown"
	}
}

// Update is one dequeued notification. Payload is an opaque short string:
// "0"/"1" for opponent_connected, empty otherwise.
type Update struct {
	Kind    UpdateKind
	Key     string
	Payload string
}

// UpdateQueue is an unbounded FIFO feeding the single update consumer.
// Notifications must never be dropped on enqueue, so the queue grows as
// needed rather than applying backpressure to the listener.
type UpdateQueue struct {
	mu     sync.Mutex
	items  []Update
	signal chan struct{}
}

// NewUpdateQueue creates an empty queue
func NewUpdateQueue() *UpdateQueue {
	return &UpdateQueue{signal: make(chan struct{}, 1)}
}

// Put appends an update. It never blocks.
func (q *UpdateQueue) Put(u Update) {
	q.mu.Lock()
	q.items = append(q.items, u)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Get removes and returns the oldest update, blocking until one is
// available or ctx is done. Cancellation is only observed here, never
// mid-dispatch.
func (q *UpdateQueue) Get(ctx context.Context) (Update, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			u := q.items[0]
			q.items = q.items[1:]
			if len(q.items) > 0 {
				// keep the signal hot for the next Get
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return u, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the number of queued updates
func (q *UpdateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

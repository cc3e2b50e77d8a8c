package controller

import "sync"

// sendQueue is an unbounded FIFO of outbound audio chunks. The capture
// callback pushes without ever blocking; a dedicated drain goroutine pops.
// Wire order equals capture order because there is exactly one producer and
// one consumer per session.
type sendQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  [][]byte
	closed bool
}

func newSendQueue() *sendQueue {
	q := &sendQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends b to the queue. Pushes after close are dropped.
func (q *sendQueue) push(b []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, b)
	q.cond.Signal()
	return true
}

// pop blocks until an item is available or the queue is closed and drained.
// The second return value is false only when no more items will ever arrive.
func (q *sendQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	b := q.items[0]
	q.items = q.items[1:]
	return b, true
}

// close marks the queue closed. Items already queued may still be popped.
func (q *sendQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

package tetherlib

import (
	"sync"
	"time"
)

// pendingAck tracks one send that still awaits a receipt from the peer.
type pendingAck struct {
	expiry time.Time     // deadline for the receipt; zero means none
	done   chan struct{} // closed when the entry resolves
	err    error         // outcome; written before done is closed
}

// ackTracker correlates outstanding sends with inbound acknowledgements.
// Acknowledgements carry no identifier, so the oldest outstanding send
// owns the next one to arrive.
type ackTracker struct {
	mu sync.Mutex
	q  []*pendingAck
}

// expect appends a new entry. Callers must call it in the same order the
// owning connection accepts sends.
func (t *ackTracker) expect(now time.Time, timeout time.Duration) *pendingAck {
	pa := &pendingAck{done: make(chan struct{})}
	if timeout > 0 {
		pa.expiry = now.Add(timeout)
	}

	t.mu.Lock()
	t.q = append(t.q, pa)
	t.mu.Unlock()

	return pa
}

// ack resolves the oldest outstanding entry. It reports false if nothing
// was outstanding, which the caller must treat as a protocol violation.
func (t *ackTracker) ack() bool {
	t.mu.Lock()
	if len(t.q) == 0 {
		t.mu.Unlock()
		return false
	}
	pa := t.q[0]
	t.q = t.q[1:]
	t.mu.Unlock()

	close(pa.done)
	return true
}

// expire fails every outstanding entry once any deadline has passed. One
// stale entry poisons the whole queue: order is the only correlation, so
// nothing behind a timed-out send can be matched anymore. The scan covers
// the whole queue, not just the head, so a short deadline queued behind a
// long one is still caught.
func (t *ackTracker) expire(now time.Time) bool {
	t.mu.Lock()
	stale := false
	for _, pa := range t.q {
		if !pa.expiry.IsZero() && !now.Before(pa.expiry) {
			stale = true
			break
		}
	}
	if !stale {
		t.mu.Unlock()
		return false
	}
	drained := t.q
	t.q = nil
	t.mu.Unlock()

	for _, pa := range drained {
		pa.err = ErrAckTimeout
		close(pa.done)
	}
	return true
}

// failAll drains the queue, failing every entry with err.
func (t *ackTracker) failAll(err error) {
	t.mu.Lock()
	drained := t.q
	t.q = nil
	t.mu.Unlock()

	for _, pa := range drained {
		pa.err = err
		close(pa.done)
	}
}

func (t *ackTracker) outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.q)
}

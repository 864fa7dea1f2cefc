package tetherlib

import (
	"context"
	"sync"
)

// Write is the handle for one logical outbound send. The underlying
// transport write fires on first observation and exactly once, no matter
// how many goroutines observe the handle; all of them share one outcome.
type Write struct {
	fire func() // starts the send, at most once
	once sync.Once
	done chan struct{} // closed when the send has fully resolved
	err  error         // outcome; written before done is closed
}

// Done starts the send if it has not started yet and returns a channel
// that is closed once the send resolved.
func (w *Write) Done() <-chan struct{} {
	w.once.Do(w.fire)
	return w.done
}

// Err reports the outcome of the send. It must only be read after the
// Done channel is closed.
func (w *Write) Err() error { return w.err }

// Wait starts the send if needed and blocks until it resolves or ctx is
// done.
func (w *Write) Wait(ctx context.Context) error {
	select {
	case <-w.Done():
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

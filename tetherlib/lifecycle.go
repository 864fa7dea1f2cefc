package tetherlib

import (
	"context"
	"sync"
)

// Lifecycle is the terminal signal of a connection. It fires exactly once,
// with an error when the connection failed or with a nil outcome after a
// graceful shutdown. Observers arriving after termination see the same
// outcome as everybody else.
type Lifecycle struct {
	mu   sync.Mutex
	dead bool
	err  error
	done chan struct{}
}

func newLifecycle() *Lifecycle {
	return &Lifecycle{done: make(chan struct{})}
}

// Done returns a channel that is closed once the connection terminated.
func (l *Lifecycle) Done() <-chan struct{} { return l.done }

// Err reports the terminal outcome. It is nil while the connection is
// still live and stays nil after a graceful shutdown.
func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Wait blocks until the connection terminates or ctx is done.
func (l *Lifecycle) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lifecycle) fail(err error) { l.terminate(err) }

func (l *Lifecycle) complete() { l.terminate(nil) }

func (l *Lifecycle) terminate(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dead {
		return
	}
	l.dead = true
	l.err = err
	close(l.done)
}

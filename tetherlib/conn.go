package tetherlib

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"
)

// Transport is the established duplex pipe a Conn drives. Inbound delivers
// decoded messages in arrival order on a single channel that closes when
// the read side terminates; Err reports the terminal read error afterwards
// and is nil when the stream ended cleanly. The channels returned by Write
// and Close receive exactly one value each. Close is called at most once
// by the connection.
type Transport interface {
	Inbound() <-chan Message
	Write(m Message) <-chan error
	Close() <-chan error
	Err() error
	Describe() string
}

var (
	// ErrAckTimeout fails a connection whose outstanding sends were not
	// acknowledged within their deadline.
	ErrAckTimeout = errors.New("acknowledgement timeout")

	// ErrUnexpectedAck fails a connection that received an acknowledgement
	// while no send was outstanding.
	ErrUnexpectedAck = errors.New("received acknowledgement while none expected")

	// ErrClosed resolves whatever is left outstanding when a connection
	// shuts down.
	ErrClosed = errors.New("connection closed")
)

// sweepInterval is the period of the acknowledgement deadline check.
const sweepInterval = 1 * time.Second

// inboundBacklog bounds messages decoded ahead of the caller draining
// Incoming.
const inboundBacklog = 128

var endpointNameRE = regexp.MustCompile(`^\[.*=>\s*(.*)\]$`)

// Conn exchanges messages over an established transport. Sends may demand
// an acknowledgement from the peer; acknowledgements carry no identifier,
// so they resolve outstanding sends strictly in order. Any break of that
// order, a missed deadline or an acknowledgement nobody waits for, is
// fatal to the whole connection and reported through Lifecycle.
type Conn struct {
	name      string
	transport Transport
	metrics   MetricsSink
	sched     DeadlineScheduler

	tracker ackTracker
	life    *Lifecycle

	in    chan Message
	start time.Time
	stop  sync.Once
}

// NewConn wraps an established transport. The connection immediately
// starts consuming the transport's inbound stream and checking
// acknowledgement deadlines once per second.
func NewConn(name string, transport Transport, metrics MetricsSink) *Conn {
	return NewConnWithScheduler(name, transport, metrics, NewTimerScheduler())
}

// NewConnWithScheduler is NewConn with the deadline scheduler supplied by
// the caller. The connection owns the scheduler: Shutdown cancels it.
func NewConnWithScheduler(name string, transport Transport, metrics MetricsSink, sched DeadlineScheduler) *Conn {
	if metrics == nil {
		metrics = NopSink
	}

	c := &Conn{
		name:      descriptiveName(name, transport.Describe()),
		transport: transport,
		metrics:   metrics,
		sched:     sched,
		life:      newLifecycle(),
		in:        make(chan Message, inboundBacklog),
		start:     time.Now(),
	}

	go c.readLoop()
	c.scheduleSweep()
	c.metrics.ConnectionOpened()

	return c
}

// descriptiveName reduces a "[local => remote]" endpoint descriptor to its
// remote half; any other shape is used verbatim.
func descriptiveName(name, endpoint string) string {
	if m := endpointNameRE.FindStringSubmatch(endpoint); m != nil {
		endpoint = m[1]
	}
	return name + "=>" + endpoint
}

// Name returns "<logical name>=><remote endpoint>".
func (c *Conn) Name() string { return c.name }

// Lifecycle returns the terminal signal of this connection.
func (c *Conn) Lifecycle() *Lifecycle { return c.life }

// Submit sends m without demanding a receipt. The transport write fires
// when the returned handle is first observed, and exactly once no matter
// how often it is observed.
func (c *Conn) Submit(m Message) *Write {
	return c.compose(m, nil)
}

// SubmitWithAck sends m and demands an acknowledgement within timeout;
// timeout <= 0 means no deadline. The send joins the acknowledgement
// queue now, in call order, even though the write itself fires lazily.
// The handle resolves once the write completed and the matching
// acknowledgement arrived, in that order. A missed deadline fails the
// connection, not just this send.
func (c *Conn) SubmitWithAck(m Message, timeout time.Duration) *Write {
	return c.compose(m, c.tracker.expect(c.sched.Now(), timeout))
}

// Acknowledge sends the receipt marker resolving the oldest send the peer
// still awaits an acknowledgement for.
func (c *Conn) Acknowledge() *Write {
	return c.Submit(Acknowledgement{})
}

// Incoming returns the inbound message stream. Acknowledgements are
// consumed internally and never surface here. The channel closes when the
// transport's read side terminates. Callers must drain it.
func (c *Conn) Incoming() <-chan Message { return c.in }

func (c *Conn) compose(m Message, ack *pendingAck) *Write {
	w := &Write{done: make(chan struct{})}
	w.fire = func() {
		res := c.transport.Write(m)
		c.metrics.MessageSent(m.Kind(), 1)

		go func() {
			err := <-res
			if err == nil && ack != nil {
				<-ack.done
				err = ack.err
			}
			w.err = err
			close(w.done)
		}()
	}
	return w
}

func (c *Conn) readLoop() {
	defer close(c.in)

	for m := range c.transport.Inbound() {
		if m.Kind() == KindAcknowledgement {
			if !c.tracker.ack() {
				c.fail(ErrUnexpectedAck)
			}
			continue
		}

		// Count only what actually reaches the caller: a message dropped
		// here during teardown was never surfaced.
		select {
		case c.in <- m:
			c.metrics.MessageReceived(m.Kind(), 1)
		case <-c.life.Done():
			return
		}
	}

	// The read side is gone, so no acknowledgement can arrive anymore.
	if err := c.transport.Err(); err != nil {
		c.fail(err)
	} else {
		c.tracker.failAll(ErrClosed)
	}
}

func (c *Conn) fail(err error) {
	c.tracker.failAll(err)
	c.life.fail(err)
}

func (c *Conn) scheduleSweep() {
	c.sched.ScheduleOnce(sweepInterval, c.sweep)
}

// sweep fails the connection once any outstanding acknowledgement deadline
// passed and reschedules itself otherwise. It runs for the lifetime of the
// connection, even while nothing is outstanding.
func (c *Conn) sweep() {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("acknowledgement sweep: %v", r)
			log.Printf("tether: %v [%s]", err, c.name)
			c.fail(err)
		}
	}()

	if c.tracker.expire(c.sched.Now()) {
		c.life.fail(ErrAckTimeout)
		return
	}
	c.scheduleSweep()
}

// Shutdown tears the connection down: it records the connection counters,
// stops the sweep, fails whatever is still outstanding with ErrClosed and
// closes the transport. The close outcome terminates the lifecycle signal,
// which completes cleanly unless closing failed. Repeated calls are no-ops.
func (c *Conn) Shutdown() {
	c.stop.Do(func() {
		c.metrics.ConnectionClosed()
		c.metrics.RecordConnectionDuration(c.start)

		c.sched.CancelAll()
		c.tracker.failAll(ErrClosed)

		if err := <-c.transport.Close(); err != nil {
			c.life.fail(err)
		} else {
			c.life.complete()
		}
	})
}

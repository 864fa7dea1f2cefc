package tetherlib

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MetricsSink receives connection and message counters. Implementations
// must be safe for concurrent use.
type MetricsSink interface {
	ConnectionOpened()
	ConnectionClosed()
	RecordConnectionDuration(start time.Time)
	MessageSent(kind Kind, count int)
	MessageReceived(kind Kind, count int)
}

// NopSink discards all measurements.
var NopSink MetricsSink = nopSink{}

type nopSink struct{}

func (nopSink) ConnectionOpened()                  {}
func (nopSink) ConnectionClosed()                  {}
func (nopSink) RecordConnectionDuration(time.Time) {}
func (nopSink) MessageSent(Kind, int)              {}
func (nopSink) MessageReceived(Kind, int)          {}

// no - nc equal the number of connections still open.
type Counters struct {
	no uint32 // number of connections opened
	nc uint32 // number of connections closed
	dt uint64 // accumulated connection time in nanoseconds

	sent [256]uint64 // outgoing messages by kind
	recv [256]uint64 // incoming messages by kind
}

func NewCounters() *Counters { return &Counters{} }

func (c *Counters) ConnectionOpened() { atomic.AddUint32(&c.no, 1) }
func (c *Counters) ConnectionClosed() { atomic.AddUint32(&c.nc, 1) }

func (c *Counters) RecordConnectionDuration(start time.Time) {
	atomic.AddUint64(&c.dt, uint64(time.Since(start)))
}

func (c *Counters) MessageSent(kind Kind, count int) {
	atomic.AddUint64(&c.sent[kind], uint64(count))
}

func (c *Counters) MessageReceived(kind Kind, count int) {
	atomic.AddUint64(&c.recv[kind], uint64(count))
}

func (c *Counters) Open() uint32 {
	return atomic.LoadUint32(&c.no) - atomic.LoadUint32(&c.nc)
}

func (c *Counters) Opened() uint32 { return atomic.LoadUint32(&c.no) }

func (c *Counters) Sent(kind Kind) uint64 { return atomic.LoadUint64(&c.sent[kind]) }

func (c *Counters) Received(kind Kind) uint64 { return atomic.LoadUint64(&c.recv[kind]) }

func (c *Counters) ConnectionTime() time.Duration {
	return time.Duration(atomic.LoadUint64(&c.dt))
}

func (c *Counters) JsonString() string {
	var sent, recv uint64
	for k := 0; k < 256; k++ {
		sent += atomic.LoadUint64(&c.sent[k])
		recv += atomic.LoadUint64(&c.recv[k])
	}
	return fmt.Sprintf("{\"Open\" = %d, \"Opened\" = %d, \"Sent\" = %d, \"Received\" = %d, \"ConnectionTime\" = \"%v\"}",
		c.Open(), c.Opened(), sent, recv, c.ConnectionTime())
}

package wirenet

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/TheSmallBoat/tether/tetherlib"
	"github.com/valyala/bytebufferpool"
)

// ErrEndpointClosed fails writes queued on or arriving at a closed endpoint.
var ErrEndpointClosed = errors.New("endpoint closed")

const readBufferSize = 4096

// readBacklog bounds frames decoded ahead of the consumer of Inbound.
const readBacklog = 128

// Endpoint adapts an established net.Conn to the tetherlib.Transport
// contract using length-prefixed datagram frames. A single writer
// goroutine flushes queued frames in order; a single reader goroutine
// decodes inbound frames.
type Endpoint struct {
	conn net.Conn

	in chan tetherlib.Message

	mu          sync.Mutex
	writerQueue []*pendingWrite
	writerCond  sync.Cond
	closed      bool
	readErr     error

	done   chan struct{} // closed when Close begins
	rdone  chan struct{} // closed when the read loop exited
	wdone  chan struct{} // closed when the write loop exited
	stop   sync.Once
	result chan error
}

// NewEndpoint starts the read and write loops over conn. The endpoint
// assumes exclusive ownership of conn.
func NewEndpoint(conn net.Conn) *Endpoint {
	e := &Endpoint{
		conn:   conn,
		in:     make(chan tetherlib.Message, readBacklog),
		done:   make(chan struct{}),
		rdone:  make(chan struct{}),
		wdone:  make(chan struct{}),
		result: make(chan error, 1),
	}
	e.writerCond.L = &e.mu

	go e.readLoop()
	go e.writeLoop()

	return e
}

func (e *Endpoint) Inbound() <-chan tetherlib.Message { return e.in }

// Describe returns "[local => remote]".
func (e *Endpoint) Describe() string {
	return fmt.Sprintf("[%s => %s]", e.conn.LocalAddr(), e.conn.RemoteAddr())
}

// Err reports the terminal read error. It is nil until Inbound closed and
// stays nil when the stream ended cleanly or because Close was called.
func (e *Endpoint) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readErr
}

// Write frames m and queues it for the writer goroutine. The returned
// channel receives exactly one value: nil once the frame reached the
// socket, or the write error. A datagram exceeding MaxFrameSize fails
// with ErrFrameTooLarge without touching the wire.
func (e *Endpoint) Write(m tetherlib.Message) <-chan error {
	buf := bytebufferpool.Get()

	switch v := m.(type) {
	case Datagram:
		// The frame is the kind byte plus the body, so a body at the cap
		// already overflows what readFrame accepts on the other side.
		if len(v.Body) >= MaxFrameSize {
			bytebufferpool.Put(buf)
			return failedWrite(ErrFrameTooLarge)
		}
		buf.B = v.AppendTo(buf.B)
	case tetherlib.Acknowledgement:
		buf.B = Datagram{Code: tetherlib.KindAcknowledgement}.AppendTo(buf.B)
	default:
		bytebufferpool.Put(buf)
		return failedWrite(fmt.Errorf("unsupported message type %T", m))
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		bytebufferpool.Put(buf)
		return failedWrite(ErrEndpointClosed)
	}
	pw := pendingWritePool.acquire(buf)
	res := pw.res
	e.writerQueue = append(e.writerQueue, pw)
	e.mu.Unlock()

	e.writerCond.Signal()

	return res
}

// Close stops both loops, fails still queued writes and closes the socket.
// The returned channel receives the close outcome once; Close must be
// called at most once per endpoint.
func (e *Endpoint) Close() <-chan error {
	e.stop.Do(func() {
		close(e.done)

		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.writerCond.Signal()

		go func() {
			err := e.conn.Close()
			<-e.rdone
			<-e.wdone
			e.result <- err
		}()
	})
	return e.result
}

func failedWrite(err error) <-chan error {
	res := make(chan error, 1)
	res <- err
	return res
}

func (e *Endpoint) readLoop() {
	defer close(e.rdone)
	defer close(e.in)

	r := bufio.NewReaderSize(e.conn, readBufferSize)

	for {
		kind, body, err := readFrame(r)
		if err != nil {
			e.setReadErr(err)
			return
		}

		var m tetherlib.Message
		if kind == tetherlib.KindAcknowledgement {
			m = tetherlib.Acknowledgement{}
		} else {
			m = Datagram{Code: kind, Body: body}
		}

		select {
		case e.in <- m:
		case <-e.done:
			return
		}
	}
}

// setReadErr records why the stream ended. A clean EOF and the teardown
// caused by our own Close do not count as failures.
func (e *Endpoint) setReadErr(err error) {
	if err == io.EOF {
		return
	}
	select {
	case <-e.done:
		return
	default:
	}

	e.mu.Lock()
	e.readErr = err
	e.mu.Unlock()
}

func (e *Endpoint) writeLoop() {
	defer close(e.wdone)

	var queue []*pendingWrite

	for {
		e.mu.Lock()
		for !e.closed && len(e.writerQueue) == 0 {
			e.writerCond.Wait()
		}
		closed := e.closed
		queue, e.writerQueue = e.writerQueue, queue[:0]
		e.mu.Unlock()

		for _, pw := range queue {
			var err error
			if closed {
				err = ErrEndpointClosed
			} else {
				_, err = e.conn.Write(pw.buf.B)
			}
			bytebufferpool.Put(pw.buf)
			pw.res <- err
			pendingWritePool.release(pw)
		}

		if closed {
			e.mu.Lock()
			empty := len(e.writerQueue) == 0
			e.mu.Unlock()
			if empty {
				return
			}
		}
	}
}

package tetherlib

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCountersConcurrent(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCounters()

	n := 8
	m := 1024

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()

			c.ConnectionOpened()
			for j := 0; j < m; j++ {
				c.MessageSent(0x01, 1)
				c.MessageReceived(0x02, 2)
			}
			c.RecordConnectionDuration(time.Now().Add(-time.Millisecond))
			c.ConnectionClosed()
		}()
	}
	wg.Wait()

	require.EqualValues(t, 0, c.Open())
	require.EqualValues(t, n, c.Opened())
	require.EqualValues(t, n*m, c.Sent(0x01))
	require.EqualValues(t, 2*n*m, c.Received(0x02))
	require.True(t, c.ConnectionTime() >= time.Duration(n)*time.Millisecond)

	t.Logf("%s", c.JsonString())
}

func TestNopSinkDoesNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	NopSink.ConnectionOpened()
	NopSink.MessageSent(0x01, 1)
	NopSink.MessageReceived(0x01, 1)
	NopSink.RecordConnectionDuration(time.Now())
	NopSink.ConnectionClosed()
}

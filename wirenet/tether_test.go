package wirenet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TheSmallBoat/tether/tetherlib"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestConnExchangeOverTCP(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := pair(t)

	counters := tetherlib.NewCounters()

	client := tetherlib.NewConn("client", a, counters)
	server := tetherlib.NewConn("server", b, counters)

	w := client.SubmitWithAck(Datagram{Code: 0x01, Body: []byte("hello")}, 5*time.Second)

	res := make(chan error, 1)
	go func() { res <- w.Wait(context.Background()) }()

	m := <-server.Incoming()
	require.Equal(t, "hello", string(m.(Datagram).Body))
	require.NoError(t, server.Acknowledge().Wait(context.Background()))

	require.NoError(t, <-res)

	client.Shutdown()
	server.Shutdown()

	require.NoError(t, client.Lifecycle().Err())
	require.NoError(t, server.Lifecycle().Err())

	// The closed stream orders the counter reads after the last bump.
	_, ok := <-server.Incoming()
	require.False(t, ok)

	require.EqualValues(t, 1, counters.Sent(0x01))
	require.EqualValues(t, 1, counters.Received(0x01))
	require.EqualValues(t, 1, counters.Sent(tetherlib.KindAcknowledgement))
	require.EqualValues(t, 0, counters.Open())
}

func TestConnAckPumpOverTCP(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := pair(t)

	client := tetherlib.NewConn("pump", a, nil)
	server := tetherlib.NewConn("sink", b, nil)

	served := make(chan struct{})
	go func() {
		defer close(served)
		for range server.Incoming() {
			require.NoError(t, server.Acknowledge().Wait(context.Background()))
		}
	}()

	n := 4
	m := 256
	c := uint32(n * m)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			for j := 0; j < m; j++ {
				msg := Datagram{Code: 0x05, Body: []byte(fmt.Sprintf("[%d] hello %d", i, j))}
				require.NoError(t, client.SubmitWithAck(msg, 5*time.Second).Wait(context.Background()))
				atomic.AddUint32(&c, ^uint32(0))
			}
		}(i)
	}

	wg.Wait()
	require.EqualValues(t, 0, atomic.LoadUint32(&c))

	client.Shutdown()
	<-served
	server.Shutdown()

	require.NoError(t, client.Lifecycle().Err())
	require.NoError(t, server.Lifecycle().Err())
}

func TestConnNameOverTCP(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := pair(t)

	client := tetherlib.NewConn("client", a, nil)
	server := tetherlib.NewConn("server", b, nil)
	defer client.Shutdown()
	defer server.Shutdown()

	// The endpoint descriptor collapses to the remote address.
	require.Regexp(t, `^client=>.+:\d+$`, client.Name())
	require.Regexp(t, `^server=>.+:\d+$`, server.Name())
	require.NotContains(t, client.Name(), "[")
	require.NotContains(t, client.Name(), "]")
}

func BenchmarkConnSubmitWithAck(b *testing.B) {
	ea, eb := pair(b)

	client := tetherlib.NewConn("pump", ea, nil)
	server := tetherlib.NewConn("sink", eb, nil)

	served := make(chan struct{})
	go func() {
		defer close(served)
		for range server.Incoming() {
			if err := server.Acknowledge().Wait(context.Background()); err != nil {
				return
			}
		}
	}()

	defer func() {
		client.Shutdown()
		<-served
		server.Shutdown()
	}()

	buf := make([]byte, 1400)

	b.SetBytes(int64(len(buf)))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		err := client.SubmitWithAck(Datagram{Code: 0x01, Body: buf}, 5*time.Second).Wait(context.Background())
		if err != nil {
			b.Fatal(err)
		}
	}
}

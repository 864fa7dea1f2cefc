package tetherlib

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLifecycleFirstOutcomeWins(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newLifecycle()

	select {
	case <-l.Done():
		t.Fatal("lifecycle terminated before anything happened")
	default:
	}
	require.NoError(t, l.Err())

	first := errors.New("first")
	l.fail(first)
	l.complete()
	l.fail(errors.New("second"))

	<-l.Done()
	require.Equal(t, first, l.Err())
	require.Equal(t, first, l.Wait(context.Background()))
}

func TestLifecycleCompletesCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newLifecycle()
	l.complete()
	l.fail(errors.New("too late"))

	require.NoError(t, l.Err())
	require.NoError(t, l.Wait(context.Background()))
}

func TestLifecycleWaitHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newLifecycle()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Equal(t, context.DeadlineExceeded, l.Wait(ctx))
}

package tomorrowland

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitResolved[V, E any](t *testing.T, p *Promise[V, E], timeout time.Duration) (*V, *E) {
	t.Helper()
	var value *V
	var err *E
	require.Eventually(t, func() bool {
		var resolved bool
		value, err, resolved = p.TryGetResult()
		return resolved
	}, timeout, 5*time.Millisecond)
	return value, err
}

func TestDelay_AdoptsOutcomeAfterDelay(t *testing.T) {
	p, r := WithResolver[int, error]()
	c := p.Delay(Immediate(), 30*time.Millisecond)

	start := time.Now()
	r.Fulfill(7)

	_, _, resolved := c.TryGetResult()
	assert.False(t, resolved, "the delayed child must not adopt before the delay elapses")

	value, err := waitResolved(t, c, time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.Nil(t, err)
	require.NotNil(t, value)
	assert.Equal(t, 7, *value)
	runtime.KeepAlive(p)
}

func TestDelay_CancelShortCircuits(t *testing.T) {
	p, r := WithResolver[int, error]()
	c := p.Delay(Immediate(), time.Hour)
	r.Fulfill(1)

	c.RequestCancel()

	value, err, resolved := c.TryGetResult()
	require.True(t, resolved)
	assert.Nil(t, value)
	assert.Nil(t, err)
	runtime.KeepAlive(p)
}

func TestTimeout_ResolvesWithinDeadline(t *testing.T) {
	p, r := WithResolver[int, error]()
	c := Timeout(p, Immediate(), time.Hour)
	r.Fulfill(5)

	value, err, resolved := c.TryGetResult()
	require.True(t, resolved)
	require.Nil(t, err)
	require.NotNil(t, value)
	assert.Equal(t, 5, *value)
	runtime.KeepAlive(p)
}

func TestTimeout_WrapsRejection(t *testing.T) {
	cause := errors.New("boom")
	p, r := WithResolver[int, error]()
	c := Timeout(p, Immediate(), time.Hour)
	r.Reject(cause)

	_, err, resolved := c.TryGetResult()
	require.True(t, resolved)
	require.NotNil(t, err)
	te := *err
	assert.False(t, te.TimedOut())
	rejected, ok := te.Rejected()
	require.True(t, ok)
	assert.Equal(t, cause, rejected)
	assert.ErrorIs(t, te, cause)
	runtime.KeepAlive(p)
}

func TestTimeout_RejectsTimedOutAndCancelsSource(t *testing.T) {
	p, r := WithResolver[int, error]()
	c := Timeout(p, Immediate(), 30*time.Millisecond)

	_, err := waitResolved(t, c, time.Second)
	require.NotNil(t, err)
	assert.True(t, (*err).TimedOut())
	_, rejectedOK := (*err).Rejected()
	assert.False(t, rejectedOK)

	// The handler-less source is cancelled outright by the issued request.
	require.Eventually(t, func() bool {
		_, _, resolved := p.TryGetResult()
		return resolved
	}, time.Second, 5*time.Millisecond)
	value, perr, _ := p.TryGetResult()
	assert.Nil(t, value)
	assert.Nil(t, perr)
	runtime.KeepAlive(r)
}

func TestTimeout_CatchChainsOverTimeoutError(t *testing.T) {
	p, r := WithResolver[int, error]()
	c := Timeout(p, Immediate(), 20*time.Millisecond)

	caught := make(chan *TimeoutError[error], 1)
	c.Catch(Immediate(), func(e *TimeoutError[error]) { caught <- e })

	select {
	case e := <-caught:
		assert.True(t, e.TimedOut())
	case <-time.After(time.Second):
		t.Fatal("timeout rejection never delivered")
	}
	runtime.KeepAlive(r)
}

func TestTimeoutError_Messages(t *testing.T) {
	timedOut := newTimedOutError[error]()
	assert.Contains(t, timedOut.Error(), "timed out")
	assert.Nil(t, timedOut.Unwrap())

	wrapped := newWrappedTimeoutError(errors.New("cause"))
	assert.Equal(t, "cause", wrapped.Error())
	require.NotNil(t, wrapped.Unwrap())
	assert.Equal(t, "cause", wrapped.Unwrap().Error())
}

func TestAfterDelayConstructors(t *testing.T) {
	t.Run("fulfilled", func(t *testing.T) {
		start := time.Now()
		p := NewFulfilledAfter[int, error](Immediate(), 9, 30*time.Millisecond)
		value, err := waitResolved(t, p, time.Second)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		require.Nil(t, err)
		require.NotNil(t, value)
		assert.Equal(t, 9, *value)
	})

	t.Run("rejected", func(t *testing.T) {
		p := NewRejectedAfter[int, error](Immediate(), errors.New("late"), 20*time.Millisecond)
		value, err := waitResolved(t, p, time.Second)
		assert.Nil(t, value)
		require.NotNil(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		p := NewCancelledAfter[int, error](Immediate(), 20*time.Millisecond)
		value, err := waitResolved(t, p, time.Second)
		assert.Nil(t, value)
		assert.Nil(t, err)
	})

	t.Run("cancel before the timer fires", func(t *testing.T) {
		p := NewFulfilledAfter[int, error](Immediate(), 9, time.Hour)
		p.RequestCancel()
		value, err, resolved := p.TryGetResult()
		require.True(t, resolved)
		assert.Nil(t, value)
		assert.Nil(t, err)
	})
}

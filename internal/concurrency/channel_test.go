package concurrency

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitUntil(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestBufferedChannelCapacityInvariant(t *testing.T) {
	c := NewChannel[int](2)
	require.NoError(t, c.Send(1))
	require.NoError(t, c.Send(2))
	assert.Equal(t, 2, c.Len())

	ok, err := c.TrySend(3)
	require.NoError(t, err)
	assert.False(t, ok, "send into a full buffered channel must not block or succeed")

	v, ok := c.Receive()
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestRendezvousHandoffOrdering(t *testing.T) {
	c := NewChannel[int](0)
	var sendDone sync.WaitGroup
	sendDone.Add(2)
	var sentOrder []int
	var mu sync.Mutex

	go func() {
		defer sendDone.Done()
		require.NoError(t, c.Send(10))
		mu.Lock()
		sentOrder = append(sentOrder, 10)
		mu.Unlock()
	}()

	v1, ok := c.Receive()
	require.True(t, ok)
	assert.Equal(t, 10, v1)

	go func() {
		defer sendDone.Done()
		require.NoError(t, c.Send(20))
		mu.Lock()
		sentOrder = append(sentOrder, 20)
		mu.Unlock()
	}()

	v2, ok := c.Receive()
	require.True(t, ok)
	assert.Equal(t, 20, v2)

	sendDone.Wait()
	assert.Equal(t, []int{10, 20}, sentOrder)

	c.Close()
	_, ok = c.Receive()
	assert.False(t, ok)
}

func TestCloseUnblocksPendingRendezvousSend(t *testing.T) {
	c := NewChannel[int](0)
	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(1) }()

	time.Sleep(20 * time.Millisecond) // let the sender park on the handoff
	c.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not unblock after Close")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	c := NewChannel[int](1)
	c.Close()
	err := c.Send(1)
	assert.ErrorIs(t, err, ErrClosed)
	c.Close() // idempotent, must not panic or block
}

func TestBufferedDrainAfterClose(t *testing.T) {
	c := NewChannel[string](4)
	require.NoError(t, c.Send("a"))
	require.NoError(t, c.Send("b"))
	c.Close()

	v, ok := c.Receive()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = c.Receive()
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = c.Receive()
	assert.False(t, ok)
	// Once drained and closed, every further receive stays closed.
	_, ok = c.Receive()
	assert.False(t, ok)
}

func TestTryReceiveNonBlocking(t *testing.T) {
	c := NewChannel[int](2)
	_, ok, closed := c.TryReceive()
	assert.False(t, ok)
	assert.False(t, closed)

	require.NoError(t, c.Send(5))
	v, ok, closed := c.TryReceive()
	assert.True(t, ok)
	assert.False(t, closed)
	assert.Equal(t, 5, v)

	c.Close()
	_, ok, closed = c.TryReceive()
	assert.False(t, ok)
	assert.True(t, closed)
}

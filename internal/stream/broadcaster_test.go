package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *Subscription, ctx context.Context) <-chan []string {
	t.Helper()
	out := make(chan []string, 1)
	go func() {
		var got []string
		for chunk := range s.Chunks(ctx) {
			got = append(got, string(chunk))
		}
		out <- got
	}()
	return out
}

func TestBroadcaster_FanOutInOrder(t *testing.T) {
	b := NewBroadcaster(8)

	s1, err := b.Subscribe()
	require.NoError(t, err)
	s2, err := b.Subscribe()
	require.NoError(t, err)
	assert.Equal(t, 2, b.Viewers())

	r1 := collect(t, s1, context.Background())
	r2 := collect(t, s2, context.Background())

	for _, c := range []string{"a", "b", "c"} {
		b.Publish([]byte(c))
	}
	b.Close()

	assert.Equal(t, []string{"a", "b", "c"}, <-r1)
	assert.Equal(t, []string{"a", "b", "c"}, <-r2)
	assert.Zero(t, b.Viewers())
}

func TestBroadcaster_SlowViewerDropsOldest(t *testing.T) {
	b := NewBroadcaster(2)
	s, err := b.Subscribe()
	require.NoError(t, err)

	for _, c := range []string{"1", "2", "3", "4"} {
		b.Publish([]byte(c))
	}
	b.Close()

	var got []string
	for chunk := range s.Chunks(context.Background()) {
		got = append(got, string(chunk))
	}
	assert.Equal(t, []string{"3", "4"}, got)
	assert.Equal(t, uint64(2), s.Dropped())
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster(1)
	b.Close()
	b.Close()

	_, err := b.Subscribe()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscription_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(1)
	s, err := b.Subscribe()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	res := collect(t, s, ctx)
	cancel()

	select {
	case <-res:
	case <-time.After(time.Second):
		t.Fatal("iteration did not stop on cancel")
	}
	assert.Zero(t, b.Viewers())

	// publishing to a departed viewer must not panic
	b.Publish([]byte("x"))
}

func TestSubscription_BreakUnsubscribes(t *testing.T) {
	b := NewBroadcaster(4)
	s, err := b.Subscribe()
	require.NoError(t, err)

	b.Publish([]byte("first"))
	b.Publish([]byte("second"))

	for chunk := range s.Chunks(context.Background()) {
		assert.Equal(t, "first", string(chunk))
		break
	}
	assert.Zero(t, b.Viewers())

	var rest int
	for range s.Chunks(context.Background()) {
		rest++
	}
	assert.Zero(t, rest, "a finished sequence does not restart")
}

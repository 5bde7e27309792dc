package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateQueueFIFO(t *testing.T) {
	q := NewUpdateQueue()
	q.Put(Update{Kind: KindGameStatus, Key: "a"})
	q.Put(Update{Kind: KindChat, Key: "b"})
	q.Put(Update{Kind: KindOpponentConnected, Key: "c", Payload: "1"})

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		u, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, u.Key)
	}
	assert.Equal(t, 0, q.Len())
}

func TestUpdateQueueGetBlocksUntilPut(t *testing.T) {
	q := NewUpdateQueue()

	got := make(chan Update, 1)
	go func() {
		u, err := q.Get(context.Background())
		if err == nil {
			got <- u
		}
	}()

	select {
	case <-got:
		t.Fatal("Get returned before anything was queued")
	case <-time.After(20 * time.Millisecond):
	}

	q.Put(Update{Kind: KindChat, Key: "k"})

	select {
	case u := <-got:
		assert.Equal(t, "k", u.Key)
	case <-time.After(time.Second):
		t.Fatal("Get did not observe the Put")
	}
}

func TestUpdateQueueGetHonorsContext(t *testing.T) {
	q := NewUpdateQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdateQueuePutNeverBlocks(t *testing.T) {
	q := NewUpdateQueue()
	for i := 0; i < 10000; i++ {
		q.Put(Update{Kind: KindGameStatus, Key: "burst"})
	}
	assert.Equal(t, 10000, q.Len())

	// every queued update is still retrievable
	ctx := context.Background()
	for i := 0; i < 10000; i++ {
		_, err := q.Get(ctx)
		require.NoError(t, err)
	}
}

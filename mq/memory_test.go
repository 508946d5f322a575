package mq

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMemoryMQDeliversInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	q := NewMemoryMQ(16, zap.NewNop())

	var mu sync.Mutex
	var got []uint64
	require.NoError(t, q.Subscribe(func(_ context.Context, ev LedgerEvent) error {
		mu.Lock()
		got = append(got, ev.PollID)
		mu.Unlock()
		return nil
	}))

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, q.Publish(context.Background(), NewEvent(EventPollStarted, "curation", i)))
	}
	q.Close()

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, got)
}

func TestMemoryMQRejectsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	q := NewMemoryMQ(1, zap.NewNop())
	q.Close()
	q.Close()

	err := q.Publish(context.Background(), NewEvent(EventEntrySettled, "curation", 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Subscribe(func(context.Context, LedgerEvent) error { return nil }), ErrClosed)
}

func TestNewFallsBackToMemory(t *testing.T) {
	b := New("redis", "", nil, zap.NewNop())
	defer b.Close()
	assert.Equal(t, "memory", b.Stats()["type"])
	require.NoError(t, b.Publish(context.Background(), NewEvent(EventPollStarted, "governance", 9)))
}

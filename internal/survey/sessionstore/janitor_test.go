package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestJanitorSweepsExpiredSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewMemory(time.Minute)
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, sampleSession("svy_a")))
	require.NoError(t, store.Put(ctx, sampleSession("svy_b")))
	assert.Equal(t, 2, store.Len())

	// Age one session past the TTL, then sweep directly: the ticker
	// cadence is not what is under test.
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, store.sweep())
	assert.Equal(t, 0, store.Len())

	j := NewJanitor(store, 10*time.Millisecond)
	j.Stop()
}

func TestJanitorStopTerminatesGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewMemory(time.Minute)
	j := NewJanitor(store, time.Hour)
	j.Stop()
}

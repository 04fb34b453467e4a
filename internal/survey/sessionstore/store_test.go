package sessionstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/survey"
)

func sampleSession(id string) *survey.Session {
	s := survey.NewSession(id, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	s.QuestionCount = 4
	s.LowBound = 800
	s.BandPerformance[1000] = &survey.BandPerf{Tested: 2, Correct: 2}
	s.History = append(s.History, survey.HistoryEntry{
		QuestionID: "q_abc", QuestionNumber: 1, Word: "bank", Rank: 520, Band: 1000, Correct: true,
	})
	return s
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory(time.Hour)
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, sampleSession("svy_mem")))
		got, err := store.Get(ctx, "svy_mem")
		require.NoError(t, err)
		assert.Equal(t, 4, got.QuestionCount)
		assert.Equal(t, 2, got.BandPerformance[1000].Correct)
		require.Len(t, got.History, 1)
		assert.Equal(t, "bank", got.History[0].Word)
	})

	t.Run("stored copy is isolated", func(t *testing.T) {
		sess := sampleSession("svy_iso")
		require.NoError(t, store.Put(ctx, sess))
		sess.QuestionCount = 99

		got, err := store.Get(ctx, "svy_iso")
		require.NoError(t, err)
		assert.Equal(t, 4, got.QuestionCount, "mutating the original must not touch the stored copy")
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := store.Get(ctx, "svy_absent")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrNotFound))
	})

	t.Run("expiry", func(t *testing.T) {
		expiring := NewMemory(time.Minute)
		now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
		expiring.now = func() time.Time { return now }

		require.NoError(t, expiring.Put(ctx, sampleSession("svy_exp")))
		now = now.Add(2 * time.Minute)

		_, err := expiring.Get(ctx, "svy_exp")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrNotFound))
	})

	t.Run("lock conflict and release", func(t *testing.T) {
		release, err := store.Acquire(ctx, "svy_lock")
		require.NoError(t, err)

		_, err = store.Acquire(ctx, "svy_lock")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrConflict))

		release()
		release2, err := store.Acquire(ctx, "svy_lock")
		require.NoError(t, err, "lock must be retakable after release")
		release2()
	})
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedis(client, time.Hour)
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, sampleSession("svy_red")))
		got, err := store.Get(ctx, "svy_red")
		require.NoError(t, err)
		assert.Equal(t, 4, got.QuestionCount)
		assert.Equal(t, 800, got.LowBound)
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := store.Get(ctx, "svy_absent")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrNotFound))
	})

	t.Run("ttl expires sessions", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, sampleSession("svy_ttl")))
		mr.FastForward(2 * time.Hour)

		_, err := store.Get(ctx, "svy_ttl")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrNotFound))
	})

	t.Run("lock conflict and release", func(t *testing.T) {
		release, err := store.Acquire(ctx, "svy_lock")
		require.NoError(t, err)

		_, err = store.Acquire(ctx, "svy_lock")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrConflict))

		release()
		release2, err := store.Acquire(ctx, "svy_lock")
		require.NoError(t, err)
		release2()
	})

	t.Run("stale lock expires", func(t *testing.T) {
		_, err := store.Acquire(ctx, "svy_stale")
		require.NoError(t, err)

		mr.FastForward(lockTTL + time.Second)
		release, err := store.Acquire(ctx, "svy_stale")
		require.NoError(t, err, "a crashed holder's lock must expire")
		release()
	})
}

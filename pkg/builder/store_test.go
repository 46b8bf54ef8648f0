package builder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behaviour every Store backend must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	p1 := "p1-" + uuid.NewString()
	p2 := "p2-" + uuid.NewString()

	t.Run("get before create is not found", func(t *testing.T) {
		_, err := s.Get(ctx, p2)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("apply before create is not found", func(t *testing.T) {
		_, err := s.Apply(ctx, p2, Advance(1, 25))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create starts building at zero", func(t *testing.T) {
		rec, err := s.Create(ctx, p1)
		require.NoError(t, err)
		assert.Equal(t, p1, rec.ProjectID)
		assert.Equal(t, StatusBuilding, rec.Status)
		assert.Equal(t, 0, rec.Progress)
		assert.Empty(t, rec.Log)
		assert.NotZero(t, rec.Generation)

		got, err := s.Get(ctx, p1)
		require.NoError(t, err)
		assert.Equal(t, rec.Generation, got.Generation)
	})

	t.Run("apply and restart", func(t *testing.T) {
		first, err := s.Create(ctx, p1)
		require.NoError(t, err)
		_, err = s.Apply(ctx, p1, Advance(first.Generation, 50, "half"))
		require.NoError(t, err)
		done, err := s.Apply(ctx, p1, Complete(first.Generation, "done"))
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, done.Status)
		assert.Equal(t, "half\ndone\n", done.Log)

		second, err := s.Create(ctx, p1)
		require.NoError(t, err)
		assert.Greater(t, second.Generation, first.Generation)
		assert.Equal(t, StatusBuilding, second.Status)
		assert.Equal(t, 0, second.Progress)
		assert.Empty(t, second.Log)

		_, err = s.Apply(ctx, p1, Advance(first.Generation, 75, "stale"))
		require.ErrorIs(t, err, ErrStaleGeneration)
		got, err := s.Get(ctx, p1)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Progress)
		assert.Empty(t, got.Log)
	})

	t.Run("projects are isolated", func(t *testing.T) {
		a, err := s.Create(ctx, p1)
		require.NoError(t, err)
		_, err = s.Apply(ctx, p1, Advance(a.Generation, 25, "a"))
		require.NoError(t, err)

		b, err := s.Create(ctx, p2)
		require.NoError(t, err)
		assert.Equal(t, 0, b.Progress)

		got, err := s.Get(ctx, p1)
		require.NoError(t, err)
		assert.Equal(t, 25, got.Progress)
		assert.Equal(t, "a\n", got.Log)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, p1))
		_, err := s.Get(ctx, p1)
		require.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, s.Delete(ctx, p1))
	})
}

func TestMemStore(t *testing.T) {
	storeContract(t, NewMemStore())
}

func TestMemStoreGetReturnsCopy(t *testing.T) {
	s := NewMemStore()
	rec, err := s.Create(context.Background(), "p1")
	require.NoError(t, err)

	got, err := s.Get(context.Background(), "p1")
	require.NoError(t, err)
	got.Progress = 99

	again, err := s.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, rec.Progress, again.Progress)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore("redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storeContract(t, s)
}

func TestRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore("not a url", 0)
	require.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("STUDIO_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("STUDIO_TEST_DATABASE_URL not set")
	}
	s, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storeContract(t, s)
}

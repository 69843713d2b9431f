package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository"
	"lovetrack-backend/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo counts reads that reach the underlying repository.
type countingRepo struct {
	repository.CoupleRepository
	reads atomic.Int32
}

func (r *countingRepo) GetByID(ctx context.Context, id string) (*models.Couple, error) {
	r.reads.Add(1)
	return r.CoupleRepository.GetByID(ctx, id)
}

func setup(t *testing.T) (*CoupleCache, *countingRepo) {
	t.Helper()
	backing := &countingRepo{CoupleRepository: memory.NewCoupleRepository()}
	c, err := NewCoupleCache(backing, 100, time.Minute)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	code := "123456"
	require.NoError(t, c.Create(context.Background(), &models.Couple{
		ID:          "c1",
		CreatedAt:   time.Now(),
		CreatedBy:   "u1",
		Members:     []string{"u1"},
		StartDate:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		PairingCode: &code,
	}))
	return c, backing
}

// warm reads the couple until ristretto has admitted it.
func warm(t *testing.T, c *CoupleCache) {
	t.Helper()
	_, err := c.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	c.cache.Wait()
}

func TestCoupleCacheServesRepeatedReads(t *testing.T) {
	c, backing := setup(t)
	warm(t, c)

	before := backing.reads.Load()
	for range 5 {
		got, err := c.GetByID(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", got.ID)
	}
	assert.Equal(t, before, backing.reads.Load())
}

func TestCoupleCacheReturnsCopies(t *testing.T) {
	c, _ := setup(t)
	warm(t, c)

	got, err := c.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	got.Members = append(got.Members, "intruder")

	again, err := c.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, again.Members)
}

func TestCoupleCacheInvalidatesOnMutation(t *testing.T) {
	ctx := context.Background()

	t.Run("join", func(t *testing.T) {
		c, _ := setup(t)
		warm(t, c)

		ok, err := c.ConsumePairingCode(ctx, "c1", "123456", "u2")
		require.NoError(t, err)
		require.True(t, ok)

		got, err := c.GetByID(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2"}, got.Members)
	})

	t.Run("replace code", func(t *testing.T) {
		c, _ := setup(t)
		warm(t, c)

		old, next := "123456", "654321"
		ok, err := c.ReplacePairingCode(ctx, "c1", &old, &next, nil)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := c.GetByID(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, got.PairingCode)
		assert.Equal(t, "654321", *got.PairingCode)
	})

	t.Run("set field", func(t *testing.T) {
		c, _ := setup(t)
		warm(t, c)

		require.NoError(t, c.SetField(ctx, "c1", "note", "blob"))
		got, err := c.GetByID(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "blob", got.Fields["note"])
	})

	t.Run("delete field", func(t *testing.T) {
		c, _ := setup(t)
		require.NoError(t, c.SetField(ctx, "c1", "note", "blob"))
		warm(t, c)

		require.NoError(t, c.DeleteField(ctx, "c1", "note"))
		got, err := c.GetByID(ctx, "c1")
		require.NoError(t, err)
		assert.NotContains(t, got.Fields, "note")
	})
}

func TestCoupleCacheDoesNotCacheMisses(t *testing.T) {
	c, backing := setup(t)

	_, err := c.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
	c.cache.Wait()

	before := backing.reads.Load()
	_, err = c.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, before+1, backing.reads.Load())
}

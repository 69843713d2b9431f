// Package cache provides a read-through couple cache in front of any
// repository.CoupleRepository.
package cache

import (
	"context"
	"fmt"
	"time"

	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository"

	"github.com/dgraph-io/ristretto"
)

const DefaultTTL = 30 * time.Second

// CoupleCache decorates a CoupleRepository. Reads by id are served from
// ristretto; every mutation drops the entry before returning.
//
// A Set that ristretto buffers can land after a concurrent Del, so an entry may
// be stale for at most ttl. Membership only grows, which means a stale entry
// can deny a new member access but never grant it to a non-member.
type CoupleCache struct {
	repository.CoupleRepository

	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCoupleCache sizes the cache for roughly maxEntries couples.
func NewCoupleCache(next repository.CoupleRepository, maxEntries int64, ttl time.Duration) (*CoupleCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// entries are counted, not weighed
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create couple cache: %w", err)
	}
	return &CoupleCache{CoupleRepository: next, cache: c, ttl: ttl}, nil
}

func (c *CoupleCache) GetByID(ctx context.Context, id string) (*models.Couple, error) {
	if v, ok := c.cache.Get(id); ok {
		return v.(*models.Couple).Clone(), nil
	}
	couple, err := c.CoupleRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(id, couple.Clone(), 1, c.ttl)
	return couple, nil
}

func (c *CoupleCache) ConsumePairingCode(ctx context.Context, coupleID, code, memberID string) (bool, error) {
	ok, err := c.CoupleRepository.ConsumePairingCode(ctx, coupleID, code, memberID)
	c.cache.Del(coupleID)
	return ok, err
}

func (c *CoupleCache) ReplacePairingCode(ctx context.Context, coupleID string, old, code *string, expiresAt *time.Time) (bool, error) {
	ok, err := c.CoupleRepository.ReplacePairingCode(ctx, coupleID, old, code, expiresAt)
	c.cache.Del(coupleID)
	return ok, err
}

func (c *CoupleCache) SetField(ctx context.Context, coupleID, name, blob string) error {
	err := c.CoupleRepository.SetField(ctx, coupleID, name, blob)
	c.cache.Del(coupleID)
	return err
}

func (c *CoupleCache) DeleteField(ctx context.Context, coupleID, name string) error {
	err := c.CoupleRepository.DeleteField(ctx, coupleID, name)
	c.cache.Del(coupleID)
	return err
}

// Invalidate drops the cached copy of a couple
func (c *CoupleCache) Invalidate(coupleID string) {
	c.cache.Del(coupleID)
}

// Close stops ristretto's background goroutines
func (c *CoupleCache) Close() {
	c.cache.Close()
}

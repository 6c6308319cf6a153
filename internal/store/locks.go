package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/strata-db/strata/internal/model"
)

// cellLocks is the in-process pessimistic lock table for the update
// protocol. One lock guards each cell; holding it is what makes the
// read-merge-write sequence on a cell's current version safe against
// concurrent update calls. Entries are only ever added, like the series
// cache: a cell identity is valid for the whole process lifetime.
type cellLocks struct {
	mu    sync.Mutex
	locks map[lockKey]chan struct{}
}

// lockKey is the comparable form of a cell key used for map lookup.
type lockKey struct {
	batch, tenant, series uuid.UUID
	validUnixNano         int64
}

func newCellLocks() *cellLocks {
	return &cellLocks{locks: make(map[lockKey]chan struct{})}
}

func (c *cellLocks) lockFor(k model.CellKey) chan struct{} {
	lk := lockKey{
		batch:         k.BatchID,
		tenant:        k.TenantID,
		series:        k.SeriesID,
		validUnixNano: k.ValidTime.UnixNano(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[lk]
	if !ok {
		l = make(chan struct{}, 1)
		c.locks[lk] = l
	}
	return l
}

// acquire locks every distinct cell in keys, always in the total order
// defined by model.CellKey.Compare regardless of caller-supplied order.
// Two concurrent calls over overlapping cell sets therefore acquire locks
// in the same relative order and cannot deadlock against each other.
//
// Blocks until all locks are held or ctx expires. On failure every lock
// already held is released before returning, and the returned error wraps
// ctx.Err so the caller can surface it as retryable.
func (c *cellLocks) acquire(ctx context.Context, keys []model.CellKey) (release func(), err error) {
	ordered := make([]model.CellKey, len(keys))
	copy(ordered, keys)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Compare(ordered[j]) < 0 })

	held := make([]chan struct{}, 0, len(ordered))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	var prev *model.CellKey
	for i := range ordered {
		k := ordered[i]
		if prev != nil && prev.Equal(k) {
			continue // duplicate cell, already held
		}
		prev = &ordered[i]

		l := c.lockFor(k)
		select {
		case l <- struct{}{}:
			held = append(held, l)
		case <-ctx.Done():
			releaseHeld()
			return nil, fmt.Errorf("acquire lock on %s: %w", k, ctx.Err())
		}
	}

	return releaseHeld, nil
}

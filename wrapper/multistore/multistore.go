// Package multistore provides a tiered responsecache.Store that cascades
// through several backends with automatic fallback and promotion.
package multistore

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandrolain/responsecache"
)

// Store implements a multi-tiered strategy where tiers are ordered from
// fastest/smallest (first) to slowest/largest (last). On reads it searches
// each tier in order and promotes found entries to faster tiers. On writes it
// stores to all tiers.
//
// Example use case:
//   - Tier 1: freecache (fast, small, volatile)
//   - Tier 2: Redis (medium speed, larger, persistent)
//   - Tier 3: PostgreSQL (slower, largest, highly persistent)
type Store struct {
	tiers []responsecache.Store
	clock responsecache.Clock
}

// New creates a Store with the specified tiers, fastest first. At least one
// tier must be provided, and all tiers must be non-nil and unique.
func New(tiers ...responsecache.Store) (*Store, error) {
	if len(tiers) == 0 {
		return nil, errors.New("multistore: at least one tier is required")
	}

	seen := make(map[responsecache.Store]bool)
	for _, tier := range tiers {
		if tier == nil {
			return nil, errors.New("multistore: tier cannot be nil")
		}
		if seen[tier] {
			return nil, errors.New("multistore: duplicate tier")
		}
		seen[tier] = true
	}

	return &Store{tiers: tiers, clock: responsecache.SystemClock}, nil
}

// Get returns the entry from the fastest tier holding it and promotes it to
// every faster tier. A failing tier is skipped; its error is returned only
// when no other tier has the entry.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	var firstErr error
	for i, tier := range s.tiers {
		entry, found, err := tier.Get(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if found {
			s.promote(ctx, id, entry, i)
			return entry, true, nil
		}
	}
	return responsecache.Entry{}, false, firstErr
}

// Set stores the entry in all tiers with a single modification time, so
// every tier ages the entry identically. A failing tier does not stop the
// others; the tier errors are joined.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	entry = entry.Stamp(s.clock.Now())
	var errs []error
	for i, tier := range s.tiers {
		if err := tier.Set(ctx, id, entry); err != nil {
			errs = append(errs, fmt.Errorf("multistore tier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// promote writes the entry to all tiers faster than foundAt. It is best
// effort: failures are logged and otherwise ignored.
func (s *Store) promote(ctx context.Context, id string, entry responsecache.Entry, foundAt int) {
	for i := 0; i < foundAt; i++ {
		if err := s.tiers[i].Set(ctx, id, entry); err != nil {
			responsecache.GetLogger().Debug("multistore promotion failed", "id", id, "tier", i, "error", err)
		}
	}
}

// Tiers returns the number of tiers.
func (s *Store) Tiers() int {
	return len(s.tiers)
}


package redis

import (
	"context"

	"github.com/mcplist/directory/internal/domain"
	"github.com/mcplist/directory/internal/repository"
	"github.com/mcplist/directory/pkg/breaker"
)

// GuardedCache routes cache reads and writes through a circuit breaker. While
// the breaker is open they fail fast with breaker.ErrOpen and callers fall
// back to the database. Invalidations always reach Redis so an open breaker
// cannot leave a stale entry behind.
type GuardedCache struct {
	next    repository.SummaryCache
	breaker *breaker.Breaker
}

// NewGuardedCache wraps next with b.
func NewGuardedCache(next repository.SummaryCache, b *breaker.Breaker) *GuardedCache {
	return &GuardedCache{next: next, breaker: b}
}

func (g *GuardedCache) GetReviewStats(ctx context.Context, itemID string) (*domain.ReviewStats, error) {
	return breaker.Execute(g.breaker, func() (*domain.ReviewStats, error) {
		return g.next.GetReviewStats(ctx, itemID)
	})
}

func (g *GuardedCache) SetReviewStats(ctx context.Context, stats domain.ReviewStats) error {
	return g.breaker.Do(func() error {
		return g.next.SetReviewStats(ctx, stats)
	})
}

func (g *GuardedCache) InvalidateReviewStats(ctx context.Context, itemID string) error {
	return g.next.InvalidateReviewStats(ctx, itemID)
}

func (g *GuardedCache) GetVoteCounts(ctx context.Context, itemID string) (*domain.VoteCounts, error) {
	return breaker.Execute(g.breaker, func() (*domain.VoteCounts, error) {
		return g.next.GetVoteCounts(ctx, itemID)
	})
}

func (g *GuardedCache) SetVoteCounts(ctx context.Context, counts domain.VoteCounts) error {
	return g.breaker.Do(func() error {
		return g.next.SetVoteCounts(ctx, counts)
	})
}

func (g *GuardedCache) InvalidateVoteCounts(ctx context.Context, itemID string) error {
	return g.next.InvalidateVoteCounts(ctx, itemID)
}

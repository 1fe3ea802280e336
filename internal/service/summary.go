package service

import (
	"context"
	"log/slog"

	"github.com/mcplist/directory/internal/domain"
	"github.com/mcplist/directory/internal/repository"
)

// summaries reads derived rows through the optional cache. Cache failures
// are logged and never fail a request.
type summaries struct {
	cache  repository.SummaryCache
	logger *slog.Logger
}

func (s summaries) reviewStats(ctx context.Context, itemID string, load func(context.Context, string) (domain.ReviewStats, error)) (domain.ReviewStats, error) {
	if s.cache != nil {
		cached, err := s.cache.GetReviewStats(ctx, itemID)
		switch {
		case err != nil:
			s.cacheError(ctx, "get", itemID, err)
			summaryCacheRequests.WithLabelValues("review_stats", "error").Inc()
		case cached != nil:
			summaryCacheRequests.WithLabelValues("review_stats", "hit").Inc()
			return *cached, nil
		default:
			summaryCacheRequests.WithLabelValues("review_stats", "miss").Inc()
		}
	}

	stats, err := load(ctx, itemID)
	if err != nil {
		return stats, err
	}
	s.storeReviewStats(ctx, stats)
	return stats, nil
}

func (s summaries) voteCounts(ctx context.Context, itemID string, load func(context.Context, string) (domain.VoteCounts, error)) (domain.VoteCounts, error) {
	if s.cache != nil {
		cached, err := s.cache.GetVoteCounts(ctx, itemID)
		switch {
		case err != nil:
			s.cacheError(ctx, "get", itemID, err)
			summaryCacheRequests.WithLabelValues("vote_counts", "error").Inc()
		case cached != nil:
			summaryCacheRequests.WithLabelValues("vote_counts", "hit").Inc()
			return *cached, nil
		default:
			summaryCacheRequests.WithLabelValues("vote_counts", "miss").Inc()
		}
	}

	counts, err := load(ctx, itemID)
	if err != nil {
		return counts, err
	}
	s.storeVoteCounts(ctx, counts)
	return counts, nil
}

func (s summaries) storeReviewStats(ctx context.Context, stats domain.ReviewStats) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetReviewStats(ctx, stats); err != nil {
		s.cacheError(ctx, "set", stats.ItemID, err)
	}
}

func (s summaries) storeVoteCounts(ctx context.Context, counts domain.VoteCounts) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetVoteCounts(ctx, counts); err != nil {
		s.cacheError(ctx, "set", counts.ItemID, err)
	}
}

// refreshReviewStats caches stats committed by a write. When the refresh
// fails the entry is dropped so an older version is not served.
func (s summaries) refreshReviewStats(ctx context.Context, stats domain.ReviewStats) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetReviewStats(ctx, stats); err != nil {
		s.cacheError(ctx, "set", stats.ItemID, err)
		s.invalidateReviewStats(ctx, stats.ItemID)
	}
}

func (s summaries) refreshVoteCounts(ctx context.Context, counts domain.VoteCounts) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetVoteCounts(ctx, counts); err != nil {
		s.cacheError(ctx, "set", counts.ItemID, err)
		s.invalidateVoteCounts(ctx, counts.ItemID)
	}
}

func (s summaries) invalidateReviewStats(ctx context.Context, itemID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateReviewStats(ctx, itemID); err != nil {
		s.cacheError(ctx, "invalidate", itemID, err)
	}
}

func (s summaries) invalidateVoteCounts(ctx context.Context, itemID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateVoteCounts(ctx, itemID); err != nil {
		s.cacheError(ctx, "invalidate", itemID, err)
	}
}

func (s summaries) cacheError(ctx context.Context, op, itemID string, err error) {
	s.logger.WarnContext(ctx, "summary cache "+op+" failed",
		slog.String("item_id", itemID),
		slog.String("error", err.Error()),
	)
}

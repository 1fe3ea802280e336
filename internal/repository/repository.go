package repository

import (
	"context"

	"github.com/mcplist/directory/internal/domain"
)

// ReviewRepository persists reviews together with the per-item ReviewStats
// they feed. Every write updates both in a single transaction.
type ReviewRepository interface {
	// Submit inserts the author's review for the item, or overwrites it when
	// one exists, and returns the updated stats. created is false on overwrite.
	Submit(ctx context.Context, review *domain.Review) (stats domain.ReviewStats, created bool, err error)

	// Delete removes the author's review and returns the updated stats. It
	// returns apperrors.ErrNotFound when the author has no review.
	Delete(ctx context.Context, itemID, userID string) (domain.ReviewStats, error)

	// ListByItem returns one page of reviews, newest first, and the total count.
	ListByItem(ctx context.Context, itemID string, limit, offset int) ([]domain.Review, int, error)

	// GetStats returns the stored stats, or an all-zero record when none exist.
	GetStats(ctx context.Context, itemID string) (domain.ReviewStats, error)

	// GetByAuthor returns apperrors.ErrNotFound when the author has no review.
	GetByAuthor(ctx context.Context, itemID, userID string) (*domain.Review, error)
}

// VoteRepository persists votes together with the per-item VoteCounts.
type VoteRepository interface {
	// Cast applies action to the caller's vote, recounts the item and returns
	// the counts and the caller's resulting vote (nil when none).
	Cast(ctx context.Context, itemID, userID string, action domain.VoteAction) (domain.VoteCounts, *domain.Direction, error)

	// GetCounts returns the stored counts, or zeros when none exist.
	GetCounts(ctx context.Context, itemID string) (domain.VoteCounts, error)

	// GetUserVote returns nil when the user has not voted on the item.
	GetUserVote(ctx context.Context, itemID, userID string) (*domain.Direction, error)
}

// SummaryCache is a read-through cache of the derived per-item rows. Gets
// return nil on a miss. Invalidate drops an item's entry so the next read
// goes to the database.
type SummaryCache interface {
	GetReviewStats(ctx context.Context, itemID string) (*domain.ReviewStats, error)
	SetReviewStats(ctx context.Context, stats domain.ReviewStats) error
	InvalidateReviewStats(ctx context.Context, itemID string) error
	GetVoteCounts(ctx context.Context, itemID string) (*domain.VoteCounts, error)
	SetVoteCounts(ctx context.Context, counts domain.VoteCounts) error
	InvalidateVoteCounts(ctx context.Context, itemID string) error
}

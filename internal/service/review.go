package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mcplist/directory/internal/domain"
	"github.com/mcplist/directory/internal/identity"
	"github.com/mcplist/directory/internal/repository"
	apperrors "github.com/mcplist/directory/pkg/errors"
	"github.com/mcplist/directory/pkg/pagination"
)

// ReviewEventPublisher receives review events after commit.
type ReviewEventPublisher interface {
	PublishReviewSubmitted(ctx context.Context, review *domain.Review, stats domain.ReviewStats, created bool) error
	PublishReviewDeleted(ctx context.Context, itemID, userID string, stats domain.ReviewStats) error
}

// SubmitReviewInput holds the parameters for submitting a review.
type SubmitReviewInput struct {
	ItemID  string
	Author  identity.Identity
	Rating  int
	Title   string
	Content string
}

// SubmitReviewResult is the outcome of a submit. Created is false when an
// existing review was overwritten.
type SubmitReviewResult struct {
	Review  *domain.Review
	Stats   domain.ReviewStats
	Created bool
}

// ReviewPage is one page of an item's reviews with its stats.
type ReviewPage struct {
	Reviews    []domain.Review    `json:"reviews"`
	Stats      domain.ReviewStats `json:"stats"`
	Pagination pagination.Meta    `json:"pagination"`
}

// ReviewService implements the business logic for reviews and their stats.
type ReviewService struct {
	repo      repository.ReviewRepository
	events    ReviewEventPublisher
	summaries summaries
	logger    *slog.Logger
}

// NewReviewService creates a new review service. cache may be nil.
func NewReviewService(repo repository.ReviewRepository, cache repository.SummaryCache, events ReviewEventPublisher, logger *slog.Logger) *ReviewService {
	return &ReviewService{
		repo:      repo,
		events:    events,
		summaries: summaries{cache: cache, logger: logger},
		logger:    logger,
	}
}

// Submit creates the author's review of an item or overwrites the existing
// one, and returns the item's updated stats.
func (s *ReviewService) Submit(ctx context.Context, input *SubmitReviewInput) (*SubmitReviewResult, error) {
	if input.Author.UserID == "" {
		return nil, apperrors.Unauthorized("Authentication required")
	}
	if input.ItemID == "" {
		return nil, apperrors.InvalidInput("itemId is required")
	}
	if !domain.ValidRating(input.Rating) {
		return nil, apperrors.InvalidInput("rating must be an integer between 1 and 5")
	}
	if utf8.RuneCountInString(input.Title) > domain.MaxTitleLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("title must be at most %d characters", domain.MaxTitleLength))
	}
	if utf8.RuneCountInString(input.Content) > domain.MaxContentLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("content must be at most %d characters", domain.MaxContentLength))
	}

	now := time.Now().UTC()
	review := &domain.Review{
		ID:           uuid.New().String(),
		ItemID:       input.ItemID,
		UserID:       input.Author.UserID,
		UserName:     input.Author.DisplayName(),
		UserImageURL: domain.OptionalText(input.Author.ImageURL),
		Rating:       input.Rating,
		Title:        domain.OptionalText(input.Title),
		Content:      domain.OptionalText(input.Content),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.summaries.invalidateReviewStats(ctx, review.ItemID)
	stats, created, err := s.repo.Submit(ctx, review)
	if err != nil {
		return nil, apperrors.Storage("Failed to submit review", err)
	}

	s.summaries.refreshReviewStats(ctx, stats)
	if err := s.events.PublishReviewSubmitted(ctx, review, stats, created); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.submitted event",
			slog.String("item_id", review.ItemID),
			slog.String("error", err.Error()),
		)
	}

	op := "update"
	if created {
		op = "create"
	}
	reviewsWritten.WithLabelValues(op).Inc()

	s.logger.InfoContext(ctx, "review submitted",
		slog.String("review_id", review.ID),
		slog.String("item_id", review.ItemID),
		slog.String("user_id", review.UserID),
		slog.Int("rating", review.Rating),
		slog.Bool("created", created),
		slog.Int("review_count", stats.ReviewCount),
	)

	return &SubmitReviewResult{Review: review, Stats: stats, Created: created}, nil
}

// Delete removes the author's review of an item and returns the updated stats.
func (s *ReviewService) Delete(ctx context.Context, itemID, userID string) (domain.ReviewStats, error) {
	if userID == "" {
		return domain.ReviewStats{}, apperrors.Unauthorized("Authentication required")
	}
	if itemID == "" {
		return domain.ReviewStats{}, apperrors.InvalidInput("itemId is required")
	}

	s.summaries.invalidateReviewStats(ctx, itemID)
	stats, err := s.repo.Delete(ctx, itemID, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.ReviewStats{}, apperrors.NotFound("Review not found")
		}
		return domain.ReviewStats{}, apperrors.Storage("Failed to delete review", err)
	}

	s.summaries.refreshReviewStats(ctx, stats)
	if err := s.events.PublishReviewDeleted(ctx, itemID, userID, stats); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.deleted event",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
	reviewsWritten.WithLabelValues("delete").Inc()

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("item_id", itemID),
		slog.String("user_id", userID),
		slog.Int("review_count", stats.ReviewCount),
	)

	return stats, nil
}

// List returns one page of an item's reviews, newest first, with its stats.
func (s *ReviewService) List(ctx context.Context, itemID string, page pagination.Params) (*ReviewPage, error) {
	if itemID == "" {
		return nil, apperrors.InvalidInput("itemId is required")
	}

	reviews, total, err := s.repo.ListByItem(ctx, itemID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	stats, err := s.Stats(ctx, itemID)
	if err != nil {
		return nil, err
	}

	return &ReviewPage{
		Reviews:    reviews,
		Stats:      stats,
		Pagination: pagination.NewMeta(page, total),
	}, nil
}

// Stats returns the item's review stats, all zero when it has none.
func (s *ReviewService) Stats(ctx context.Context, itemID string) (domain.ReviewStats, error) {
	if itemID == "" {
		return domain.ReviewStats{}, apperrors.InvalidInput("itemId is required")
	}

	stats, err := s.summaries.reviewStats(ctx, itemID, s.repo.GetStats)
	if err != nil {
		return domain.ReviewStats{}, fmt.Errorf("get review stats: %w", err)
	}
	return stats, nil
}

// GetOwn returns the caller's review of the item, or nil when there is none
// or the caller is anonymous.
func (s *ReviewService) GetOwn(ctx context.Context, itemID, userID string) (*domain.Review, error) {
	if userID == "" {
		return nil, nil
	}
	if itemID == "" {
		return nil, apperrors.InvalidInput("itemId is required")
	}

	review, err := s.repo.GetByAuthor(ctx, itemID, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get own review: %w", err)
	}
	return review, nil
}

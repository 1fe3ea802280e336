package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mcplist/directory/internal/domain"
	"github.com/mcplist/directory/internal/repository"
	apperrors "github.com/mcplist/directory/pkg/errors"
)

// VoteEventPublisher receives vote events after commit.
type VoteEventPublisher interface {
	PublishVoteCast(ctx context.Context, itemID, userID string, vote *domain.Direction, counts domain.VoteCounts) error
}

// CastVoteResult is the item's tally after a vote plus the caller's
// resulting vote (nil when none).
type CastVoteResult struct {
	Counts   domain.VoteCounts
	UserVote *domain.Direction
}

// VoteService implements the business logic for voting.
type VoteService struct {
	repo      repository.VoteRepository
	events    VoteEventPublisher
	summaries summaries
	logger    *slog.Logger
}

// NewVoteService creates a new vote service. cache may be nil.
func NewVoteService(repo repository.VoteRepository, cache repository.SummaryCache, events VoteEventPublisher, logger *slog.Logger) *VoteService {
	return &VoteService{
		repo:      repo,
		events:    events,
		summaries: summaries{cache: cache, logger: logger},
		logger:    logger,
	}
}

// Cast applies voteType ("up", "down" or "remove") to the caller's vote on
// the item. Voting the same direction twice removes the vote.
func (s *VoteService) Cast(ctx context.Context, itemID, userID, voteType string) (*CastVoteResult, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("Authentication required")
	}
	if itemID == "" {
		return nil, apperrors.InvalidInput("itemId is required")
	}
	action, ok := domain.ParseVoteAction(voteType)
	if !ok {
		return nil, apperrors.InvalidInput("voteType must be 'up', 'down', or 'remove'")
	}

	s.summaries.invalidateVoteCounts(ctx, itemID)
	counts, vote, err := s.repo.Cast(ctx, itemID, userID, action)
	if err != nil {
		return nil, apperrors.Storage("Failed to submit vote", err)
	}

	s.summaries.refreshVoteCounts(ctx, counts)
	if err := s.events.PublishVoteCast(ctx, itemID, userID, vote, counts); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish vote.cast event",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
	votesCast.WithLabelValues(string(action)).Inc()

	result := "none"
	if vote != nil {
		result = string(*vote)
	}
	s.logger.InfoContext(ctx, "vote cast",
		slog.String("item_id", itemID),
		slog.String("user_id", userID),
		slog.String("action", string(action)),
		slog.String("user_vote", result),
		slog.Int("score", counts.Score),
	)

	return &CastVoteResult{Counts: counts, UserVote: vote}, nil
}

// Counts returns the item's tally, zero when nobody has voted.
func (s *VoteService) Counts(ctx context.Context, itemID string) (domain.VoteCounts, error) {
	if itemID == "" {
		return domain.VoteCounts{}, apperrors.InvalidInput("itemId is required")
	}

	counts, err := s.summaries.voteCounts(ctx, itemID, s.repo.GetCounts)
	if err != nil {
		return domain.VoteCounts{}, fmt.Errorf("get vote counts: %w", err)
	}
	return counts, nil
}

// UserVote returns the caller's vote on the item, or nil when there is none
// or the caller is anonymous.
func (s *VoteService) UserVote(ctx context.Context, itemID, userID string) (*domain.Direction, error) {
	if userID == "" {
		return nil, nil
	}
	if itemID == "" {
		return nil, apperrors.InvalidInput("itemId is required")
	}

	vote, err := s.repo.GetUserVote(ctx, itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("get user vote: %w", err)
	}
	return vote, nil
}

package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcplist/directory/internal/domain"
	pkgkafka "github.com/mcplist/directory/pkg/kafka"
	"github.com/mcplist/directory/pkg/logger"
)

// Topics for directory domain events.
var (
	TopicReviewSubmitted = pkgkafka.Topic("review", "submitted")
	TopicReviewDeleted   = pkgkafka.Topic("review", "deleted")
	TopicVoteCast        = pkgkafka.Topic("vote", "cast")
)

const (
	AggregateTypeItem = "item"
	SourceDirectory   = "directory-service"
)

// publishTimeout bounds each publish made after a committed write.
const publishTimeout = 2 * time.Second

// ReviewSubmittedData is the payload for review.submitted.
type ReviewSubmittedData struct {
	ReviewID string             `json:"review_id"`
	ItemID   string             `json:"item_id"`
	UserID   string             `json:"user_id"`
	Rating   int                `json:"rating"`
	Created  bool               `json:"created"`
	Stats    domain.ReviewStats `json:"stats"`
}

// ReviewDeletedData is the payload for review.deleted.
type ReviewDeletedData struct {
	ItemID string             `json:"item_id"`
	UserID string             `json:"user_id"`
	Stats  domain.ReviewStats `json:"stats"`
}

// VoteCastData is the payload for vote.cast. UserVote is null when the
// caller's vote was removed.
type VoteCastData struct {
	ItemID   string            `json:"item_id"`
	UserID   string            `json:"user_id"`
	UserVote *domain.Direction `json:"user_vote"`
	Counts   domain.VoteCounts `json:"counts"`
}

// Publisher is the topic-level surface Producer needs from pkg/kafka.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes directory domain events. A Producer with a nil
// publisher drops every event, which is how events are disabled.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishReviewSubmitted publishes a review.submitted event.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, review *domain.Review, stats domain.ReviewStats, created bool) error {
	return p.publish(ctx, TopicReviewSubmitted, review.ItemID, ReviewSubmittedData{
		ReviewID: review.ID,
		ItemID:   review.ItemID,
		UserID:   review.UserID,
		Rating:   review.Rating,
		Created:  created,
		Stats:    stats,
	})
}

// PublishReviewDeleted publishes a review.deleted event.
func (p *Producer) PublishReviewDeleted(ctx context.Context, itemID, userID string, stats domain.ReviewStats) error {
	return p.publish(ctx, TopicReviewDeleted, itemID, ReviewDeletedData{
		ItemID: itemID,
		UserID: userID,
		Stats:  stats,
	})
}

// PublishVoteCast publishes a vote.cast event.
func (p *Producer) PublishVoteCast(ctx context.Context, itemID, userID string, vote *domain.Direction, counts domain.VoteCounts) error {
	return p.publish(ctx, TopicVoteCast, itemID, VoteCastData{
		ItemID:   itemID,
		UserID:   userID,
		UserVote: vote,
		Counts:   counts,
	})
}

func (p *Producer) publish(ctx context.Context, topic, itemID string, data any) error {
	if p.kafka == nil {
		return nil
	}

	evt, err := pkgkafka.NewEvent(topic, itemID, AggregateTypeItem, SourceDirectory, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	evt.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	// The publish outlives a cancelled request.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.kafka.Publish(pubCtx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("item_id", itemID),
	)

	return nil
}

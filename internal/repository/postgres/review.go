package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mcplist/directory/internal/domain"
	"github.com/mcplist/directory/pkg/database"
	apperrors "github.com/mcplist/directory/pkg/errors"
)

const reviewColumns = `id, item_id, user_id, user_name, user_image_url, rating, title, content,
		helpful_count, created_at, updated_at`

const statsColumns = `item_id, review_count, average_rating, rating_1_count, rating_2_count,
		rating_3_count, rating_4_count, rating_5_count, version, updated_at`

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Submit writes the review and folds it into the item's stats. The stats row
// is locked for the duration of the transaction so concurrent writers on the
// same item are serialized.
func (r *ReviewRepository) Submit(ctx context.Context, review *domain.Review) (stats domain.ReviewStats, created bool, err error) {
	ctx, end := database.TraceQuery(ctx, "SubmitReview", "tx reviews,review_stats")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return stats, false, fmt.Errorf("begin submit review: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := lockReviewStats(ctx, tx, review.ItemID)
	if err != nil {
		return stats, false, err
	}

	var (
		existingID      string
		oldRating       int
		existingCreated time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT id, rating, created_at
		FROM reviews
		WHERE item_id = $1 AND user_id = $2`,
		review.ItemID, review.UserID,
	).Scan(&existingID, &oldRating, &existingCreated)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		created = true
		_, err = tx.Exec(ctx, `
			INSERT INTO reviews (id, item_id, user_id, user_name, user_image_url, rating, title, content, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			review.ID,
			review.ItemID,
			review.UserID,
			review.UserName,
			review.UserImageURL,
			review.Rating,
			review.Title,
			review.Content,
			review.CreatedAt,
			review.UpdatedAt,
		)
		if err != nil {
			return stats, false, fmt.Errorf("insert review: %w", err)
		}
		stats = current.Apply(&review.Rating, nil)

	case err != nil:
		return stats, false, fmt.Errorf("get existing review: %w", err)

	default:
		review.ID = existingID
		review.CreatedAt = existingCreated
		_, err = tx.Exec(ctx, `
			UPDATE reviews
			SET rating = $1, title = $2, content = $3, user_name = $4, user_image_url = $5, updated_at = $6
			WHERE id = $7`,
			review.Rating,
			review.Title,
			review.Content,
			review.UserName,
			review.UserImageURL,
			review.UpdatedAt,
			review.ID,
		)
		if err != nil {
			return stats, false, fmt.Errorf("update review: %w", err)
		}
		stats = current.Apply(&review.Rating, &oldRating)
	}

	if err = saveReviewStats(ctx, tx, &stats); err != nil {
		return stats, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return stats, false, fmt.Errorf("commit submit review: %w", err)
	}

	return stats, created, nil
}

// Delete removes the author's review and takes it out of the item's stats.
func (r *ReviewRepository) Delete(ctx context.Context, itemID, userID string) (stats domain.ReviewStats, err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteReview", "tx reviews,review_stats")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("begin delete review: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := lockReviewStats(ctx, tx, itemID)
	if err != nil {
		return stats, err
	}

	var oldRating int
	err = tx.QueryRow(ctx, `
		DELETE FROM reviews
		WHERE item_id = $1 AND user_id = $2
		RETURNING rating`,
		itemID, userID,
	).Scan(&oldRating)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stats, apperrors.ErrNotFound
		}
		return stats, fmt.Errorf("delete review: %w", err)
	}

	stats = current.Apply(nil, &oldRating)
	if err = saveReviewStats(ctx, tx, &stats); err != nil {
		return stats, err
	}

	if err = tx.Commit(ctx); err != nil {
		return stats, fmt.Errorf("commit delete review: %w", err)
	}

	return stats, nil
}

// ListByItem returns reviews for an item, newest first, with the total count.
func (r *ReviewRepository) ListByItem(ctx context.Context, itemID string, limit, offset int) (reviews []domain.Review, total int, err error) {
	ctx, end := database.TraceQuery(ctx, "ListReviews", "reviews")
	defer func() { end(err) }()

	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reviews WHERE item_id = $1`, itemID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE item_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		itemID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}

	if reviews == nil {
		reviews = []domain.Review{}
	}

	return reviews, total, nil
}

// GetStats returns the item's stats, or zeros when nobody has reviewed it.
func (r *ReviewRepository) GetStats(ctx context.Context, itemID string) (stats domain.ReviewStats, err error) {
	ctx, end := database.TraceQuery(ctx, "GetReviewStats", "review_stats")
	defer func() { end(err) }()

	row := r.pool.QueryRow(ctx, `SELECT `+statsColumns+` FROM review_stats WHERE item_id = $1`, itemID)
	stats, err = scanReviewStats(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EmptyReviewStats(itemID), nil
		}
		return stats, fmt.Errorf("get review stats: %w", err)
	}

	return stats, nil
}

// GetByAuthor retrieves the review a user wrote for an item.
func (r *ReviewRepository) GetByAuthor(ctx context.Context, itemID, userID string) (review *domain.Review, err error) {
	ctx, end := database.TraceQuery(ctx, "GetReviewByAuthor", "reviews")
	defer func() { end(err) }()

	row := r.pool.QueryRow(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE item_id = $1 AND user_id = $2`,
		itemID, userID,
	)
	review, err = scanReview(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get review by author: %w", err)
	}

	return review, nil
}

// lockReviewStats makes sure the item has a stats row and locks it.
func lockReviewStats(ctx context.Context, tx pgx.Tx, itemID string) (domain.ReviewStats, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO review_stats (item_id)
		VALUES ($1)
		ON CONFLICT (item_id) DO NOTHING`,
		itemID,
	)
	if err != nil {
		return domain.ReviewStats{}, fmt.Errorf("ensure review stats: %w", err)
	}

	row := tx.QueryRow(ctx, `SELECT `+statsColumns+` FROM review_stats WHERE item_id = $1 FOR UPDATE`, itemID)
	stats, err := scanReviewStats(row)
	if err != nil {
		return domain.ReviewStats{}, fmt.Errorf("lock review stats: %w", err)
	}

	return stats, nil
}

// saveReviewStats upserts stats and bumps its version. Version and UpdatedAt
// are refreshed from the database.
func saveReviewStats(ctx context.Context, tx pgx.Tx, stats *domain.ReviewStats) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO review_stats (item_id, review_count, average_rating,
			rating_1_count, rating_2_count, rating_3_count, rating_4_count, rating_5_count,
			version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, NOW())
		ON CONFLICT (item_id) DO UPDATE SET
			review_count = EXCLUDED.review_count,
			average_rating = EXCLUDED.average_rating,
			rating_1_count = EXCLUDED.rating_1_count,
			rating_2_count = EXCLUDED.rating_2_count,
			rating_3_count = EXCLUDED.rating_3_count,
			rating_4_count = EXCLUDED.rating_4_count,
			rating_5_count = EXCLUDED.rating_5_count,
			version = review_stats.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING version, updated_at`,
		stats.ItemID,
		stats.ReviewCount,
		stats.AverageRating,
		stats.Rating1Count,
		stats.Rating2Count,
		stats.Rating3Count,
		stats.Rating4Count,
		stats.Rating5Count,
	).Scan(&stats.Version, &stats.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save review stats: %w", err)
	}

	return nil
}

func scanReview(row pgx.Row) (*domain.Review, error) {
	var rv domain.Review
	err := row.Scan(
		&rv.ID,
		&rv.ItemID,
		&rv.UserID,
		&rv.UserName,
		&rv.UserImageURL,
		&rv.Rating,
		&rv.Title,
		&rv.Content,
		&rv.HelpfulCount,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

func scanReviewStats(row pgx.Row) (domain.ReviewStats, error) {
	var s domain.ReviewStats
	err := row.Scan(
		&s.ItemID,
		&s.ReviewCount,
		&s.AverageRating,
		&s.Rating1Count,
		&s.Rating2Count,
		&s.Rating3Count,
		&s.Rating4Count,
		&s.Rating5Count,
		&s.Version,
		&s.UpdatedAt,
	)
	return s, err
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mcplist/directory/internal/domain"
	"github.com/mcplist/directory/pkg/database"
)

// VoteRepository implements repository.VoteRepository using PostgreSQL.
type VoteRepository struct {
	pool database.DBTX
}

// NewVoteRepository creates a new PostgreSQL-backed vote repository.
func NewVoteRepository(pool database.DBTX) *VoteRepository {
	return &VoteRepository{pool: pool}
}

// Cast applies a vote action and recounts the item's votes from scratch
// inside one transaction. The counts row stays locked until commit.
func (r *VoteRepository) Cast(ctx context.Context, itemID, userID string, action domain.VoteAction) (counts domain.VoteCounts, userVote *domain.Direction, err error) {
	ctx, end := database.TraceQuery(ctx, "CastVote", "tx votes,vote_counts")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return counts, nil, fmt.Errorf("begin cast vote: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO vote_counts (item_id)
		VALUES ($1)
		ON CONFLICT (item_id) DO NOTHING`,
		itemID,
	)
	if err != nil {
		return counts, nil, fmt.Errorf("ensure vote counts: %w", err)
	}

	var version int64
	err = tx.QueryRow(ctx, `SELECT version FROM vote_counts WHERE item_id = $1 FOR UPDATE`, itemID).Scan(&version)
	if err != nil {
		return counts, nil, fmt.Errorf("lock vote counts: %w", err)
	}

	current, err := loadUserVote(ctx, tx, itemID, userID)
	if err != nil {
		return counts, nil, err
	}

	next, op := domain.NextVote(current, action)
	switch op {
	case domain.VoteInsert:
		_, err = tx.Exec(ctx, `
			INSERT INTO votes (id, item_id, user_id, vote_type, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())`,
			uuid.NewString(), itemID, userID, string(*next),
		)
	case domain.VoteUpdate:
		_, err = tx.Exec(ctx, `
			UPDATE votes
			SET vote_type = $1, updated_at = NOW()
			WHERE item_id = $2 AND user_id = $3`,
			string(*next), itemID, userID,
		)
	case domain.VoteDelete:
		_, err = tx.Exec(ctx, `DELETE FROM votes WHERE item_id = $1 AND user_id = $2`, itemID, userID)
	}
	if err != nil {
		return counts, nil, fmt.Errorf("%s vote: %w", op, err)
	}

	var up, down int
	err = tx.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN vote_type = 'up' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN vote_type = 'down' THEN 1 ELSE 0 END), 0)
		FROM votes
		WHERE item_id = $1`,
		itemID,
	).Scan(&up, &down)
	if err != nil {
		return counts, nil, fmt.Errorf("recount votes: %w", err)
	}

	counts = domain.NewVoteCounts(itemID, up, down)
	err = tx.QueryRow(ctx, `
		INSERT INTO vote_counts (item_id, upvotes, downvotes, score, version, updated_at)
		VALUES ($1, $2, $3, $4, 1, NOW())
		ON CONFLICT (item_id) DO UPDATE SET
			upvotes = EXCLUDED.upvotes,
			downvotes = EXCLUDED.downvotes,
			score = EXCLUDED.score,
			version = vote_counts.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING version, updated_at`,
		counts.ItemID, counts.Upvotes, counts.Downvotes, counts.Score,
	).Scan(&counts.Version, &counts.UpdatedAt)
	if err != nil {
		return counts, nil, fmt.Errorf("save vote counts: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return counts, nil, fmt.Errorf("commit cast vote: %w", err)
	}

	return counts, next, nil
}

// GetCounts returns the item's vote counts, or zeros when nobody has voted.
func (r *VoteRepository) GetCounts(ctx context.Context, itemID string) (counts domain.VoteCounts, err error) {
	ctx, end := database.TraceQuery(ctx, "GetVoteCounts", "vote_counts")
	defer func() { end(err) }()

	err = r.pool.QueryRow(ctx, `
		SELECT item_id, upvotes, downvotes, score, version, updated_at
		FROM vote_counts
		WHERE item_id = $1`,
		itemID,
	).Scan(&counts.ItemID, &counts.Upvotes, &counts.Downvotes, &counts.Score, &counts.Version, &counts.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewVoteCounts(itemID, 0, 0), nil
		}
		return counts, fmt.Errorf("get vote counts: %w", err)
	}

	return counts, nil
}

// GetUserVote returns the user's vote on the item, or nil.
func (r *VoteRepository) GetUserVote(ctx context.Context, itemID, userID string) (vote *domain.Direction, err error) {
	ctx, end := database.TraceQuery(ctx, "GetUserVote", "votes")
	defer func() { end(err) }()

	return loadUserVote(ctx, r.pool, itemID, userID)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadUserVote(ctx context.Context, q queryRower, itemID, userID string) (*domain.Direction, error) {
	var voteType string
	err := q.QueryRow(ctx, `SELECT vote_type FROM votes WHERE item_id = $1 AND user_id = $2`, itemID, userID).Scan(&voteType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user vote: %w", err)
	}

	d := domain.Direction(voteType)
	return &d, nil
}

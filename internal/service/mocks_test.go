package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/mcplist/directory/internal/domain"
	"github.com/mcplist/directory/internal/repository"
	redisrepo "github.com/mcplist/directory/internal/repository/redis"
	apperrors "github.com/mcplist/directory/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- testify mocks ---

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) Submit(ctx context.Context, review *domain.Review) (domain.ReviewStats, bool, error) {
	args := m.Called(ctx, review)
	return args.Get(0).(domain.ReviewStats), args.Bool(1), args.Error(2)
}

func (m *mockReviewRepository) Delete(ctx context.Context, itemID, userID string) (domain.ReviewStats, error) {
	args := m.Called(ctx, itemID, userID)
	return args.Get(0).(domain.ReviewStats), args.Error(1)
}

func (m *mockReviewRepository) ListByItem(ctx context.Context, itemID string, limit, offset int) ([]domain.Review, int, error) {
	args := m.Called(ctx, itemID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Review), args.Int(1), args.Error(2)
}

func (m *mockReviewRepository) GetStats(ctx context.Context, itemID string) (domain.ReviewStats, error) {
	args := m.Called(ctx, itemID)
	return args.Get(0).(domain.ReviewStats), args.Error(1)
}

func (m *mockReviewRepository) GetByAuthor(ctx context.Context, itemID, userID string) (*domain.Review, error) {
	args := m.Called(ctx, itemID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

type mockSummaryCache struct {
	mock.Mock
}

func (m *mockSummaryCache) GetReviewStats(ctx context.Context, itemID string) (*domain.ReviewStats, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReviewStats), args.Error(1)
}

func (m *mockSummaryCache) SetReviewStats(ctx context.Context, stats domain.ReviewStats) error {
	return m.Called(ctx, stats).Error(0)
}

func (m *mockSummaryCache) GetVoteCounts(ctx context.Context, itemID string) (*domain.VoteCounts, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VoteCounts), args.Error(1)
}

func (m *mockSummaryCache) SetVoteCounts(ctx context.Context, counts domain.VoteCounts) error {
	return m.Called(ctx, counts).Error(0)
}

func (m *mockSummaryCache) InvalidateReviewStats(ctx context.Context, itemID string) error {
	return m.Called(ctx, itemID).Error(0)
}

func (m *mockSummaryCache) InvalidateVoteCounts(ctx context.Context, itemID string) error {
	return m.Called(ctx, itemID).Error(0)
}

// --- real Redis cache with injectable failures ---

var errFlakyCache = errors.New("redis: transient failure")

func newRedisSummaryCache(t *testing.T) *redisrepo.SummaryCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisrepo.NewSummaryCache(client, time.Minute)
}

// flakySummaryCache fails the next failSets writes and failInvalidates
// deletes, then passes through.
type flakySummaryCache struct {
	repository.SummaryCache
	failSets        int
	failInvalidates int
}

func (f *flakySummaryCache) failSet() bool {
	if f.failSets > 0 {
		f.failSets--
		return true
	}
	return false
}

func (f *flakySummaryCache) failInvalidate() bool {
	if f.failInvalidates > 0 {
		f.failInvalidates--
		return true
	}
	return false
}

func (f *flakySummaryCache) SetReviewStats(ctx context.Context, stats domain.ReviewStats) error {
	if f.failSet() {
		return errFlakyCache
	}
	return f.SummaryCache.SetReviewStats(ctx, stats)
}

func (f *flakySummaryCache) SetVoteCounts(ctx context.Context, counts domain.VoteCounts) error {
	if f.failSet() {
		return errFlakyCache
	}
	return f.SummaryCache.SetVoteCounts(ctx, counts)
}

func (f *flakySummaryCache) InvalidateReviewStats(ctx context.Context, itemID string) error {
	if f.failInvalidate() {
		return errFlakyCache
	}
	return f.SummaryCache.InvalidateReviewStats(ctx, itemID)
}

func (f *flakySummaryCache) InvalidateVoteCounts(ctx context.Context, itemID string) error {
	if f.failInvalidate() {
		return errFlakyCache
	}
	return f.SummaryCache.InvalidateVoteCounts(ctx, itemID)
}

// --- recording event publisher ---

type recordedEvents struct {
	submitted []bool
	deleted   []string
	votes     []*domain.Direction
	err       error
}

func (r *recordedEvents) PublishReviewSubmitted(_ context.Context, _ *domain.Review, _ domain.ReviewStats, created bool) error {
	r.submitted = append(r.submitted, created)
	return r.err
}

func (r *recordedEvents) PublishReviewDeleted(_ context.Context, _, userID string, _ domain.ReviewStats) error {
	r.deleted = append(r.deleted, userID)
	return r.err
}

func (r *recordedEvents) PublishVoteCast(_ context.Context, _, _ string, vote *domain.Direction, _ domain.VoteCounts) error {
	r.votes = append(r.votes, vote)
	return r.err
}

// --- in-memory repositories following the same aggregation rules ---

type memReviewRepository struct {
	mu      sync.Mutex
	reviews map[string]map[string]domain.Review
	stats   map[string]domain.ReviewStats
}

func newMemReviewRepository() *memReviewRepository {
	return &memReviewRepository{
		reviews: map[string]map[string]domain.Review{},
		stats:   map[string]domain.ReviewStats{},
	}
}

func (m *memReviewRepository) current(itemID string) domain.ReviewStats {
	if s, ok := m.stats[itemID]; ok {
		return s
	}
	return domain.EmptyReviewStats(itemID)
}

func (m *memReviewRepository) save(s domain.ReviewStats) domain.ReviewStats {
	s.Version++
	m.stats[s.ItemID] = s
	return s
}

func (m *memReviewRepository) Submit(_ context.Context, review *domain.Review) (domain.ReviewStats, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byUser := m.reviews[review.ItemID]
	if byUser == nil {
		byUser = map[string]domain.Review{}
		m.reviews[review.ItemID] = byUser
	}

	stats := m.current(review.ItemID)
	existing, ok := byUser[review.UserID]
	if ok {
		review.ID, review.CreatedAt = existing.ID, existing.CreatedAt
		stats = stats.Apply(&review.Rating, &existing.Rating)
	} else {
		stats = stats.Apply(&review.Rating, nil)
	}
	byUser[review.UserID] = *review

	return m.save(stats), !ok, nil
}

func (m *memReviewRepository) Delete(_ context.Context, itemID, userID string) (domain.ReviewStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.reviews[itemID][userID]
	if !ok {
		return domain.ReviewStats{}, apperrors.ErrNotFound
	}
	delete(m.reviews[itemID], userID)

	return m.save(m.current(itemID).Apply(nil, &existing.Rating)), nil
}

func (m *memReviewRepository) ListByItem(_ context.Context, itemID string, limit, offset int) ([]domain.Review, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.Review{}
	for _, rv := range m.reviews[itemID] {
		out = append(out, rv)
	}
	total := len(out)
	if offset >= total {
		return []domain.Review{}, total, nil
	}
	return out[offset:min(total, offset+limit)], total, nil
}

func (m *memReviewRepository) GetStats(_ context.Context, itemID string) (domain.ReviewStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(itemID), nil
}

func (m *memReviewRepository) GetByAuthor(_ context.Context, itemID, userID string) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rv, ok := m.reviews[itemID][userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &rv, nil
}

func (m *memReviewRepository) rowCount(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reviews[itemID])
}

type memVoteRepository struct {
	mu    sync.Mutex
	votes map[string]map[string]domain.Direction
}

func newMemVoteRepository() *memVoteRepository {
	return &memVoteRepository{votes: map[string]map[string]domain.Direction{}}
}

func (m *memVoteRepository) Cast(_ context.Context, itemID, userID string, action domain.VoteAction) (domain.VoteCounts, *domain.Direction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byUser := m.votes[itemID]
	if byUser == nil {
		byUser = map[string]domain.Direction{}
		m.votes[itemID] = byUser
	}

	var current *domain.Direction
	if d, ok := byUser[userID]; ok {
		current = &d
	}

	next, op := domain.NextVote(current, action)
	switch op {
	case domain.VoteInsert, domain.VoteUpdate:
		byUser[userID] = *next
	case domain.VoteDelete:
		delete(byUser, userID)
	}

	return m.recount(itemID), next, nil
}

func (m *memVoteRepository) recount(itemID string) domain.VoteCounts {
	var up, down int
	for _, d := range m.votes[itemID] {
		switch d {
		case domain.Up:
			up++
		case domain.Down:
			down++
		}
	}
	return domain.NewVoteCounts(itemID, up, down)
}

func (m *memVoteRepository) GetCounts(_ context.Context, itemID string) (domain.VoteCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recount(itemID), nil
}

func (m *memVoteRepository) GetUserVote(_ context.Context, itemID, userID string) (*domain.Direction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.votes[itemID][userID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *memVoteRepository) rows(itemID string) map[string]domain.Direction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.votes[itemID]
}

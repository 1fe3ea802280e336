package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcplist/directory/internal/domain"
)

const (
	reviewStatsPrefix = "directory:review_stats:"
	voteCountsPrefix  = "directory:vote_counts:"

	defaultTTL = 5 * time.Minute
)

// setIfNewer stores an entry only when its version is above the cached one,
// so a slow writer cannot overwrite a newer summary.
var setIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// SummaryCache implements repository.SummaryCache using Redis hashes.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache creates a Redis-backed cache whose entries expire after ttl.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &SummaryCache{client: client, ttl: ttl}
}

type reviewStatsEntry struct {
	ReviewCount   int     `json:"review_count"`
	AverageRating float64 `json:"average_rating"`
	Buckets       [5]int  `json:"buckets"`
}

type voteCountsEntry struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}

// GetReviewStats returns nil on a cache miss.
func (c *SummaryCache) GetReviewStats(ctx context.Context, itemID string) (*domain.ReviewStats, error) {
	var entry reviewStatsEntry
	version, ok, err := c.get(ctx, reviewStatsPrefix+itemID, &entry)
	if err != nil || !ok {
		return nil, err
	}

	stats := domain.ReviewStats{
		ItemID:        itemID,
		ReviewCount:   entry.ReviewCount,
		AverageRating: entry.AverageRating,
		Rating1Count:  entry.Buckets[0],
		Rating2Count:  entry.Buckets[1],
		Rating3Count:  entry.Buckets[2],
		Rating4Count:  entry.Buckets[3],
		Rating5Count:  entry.Buckets[4],
		Version:       version,
	}
	return &stats, nil
}

// SetReviewStats caches stats unless a newer version is already cached.
func (c *SummaryCache) SetReviewStats(ctx context.Context, stats domain.ReviewStats) error {
	entry := reviewStatsEntry{
		ReviewCount:   stats.ReviewCount,
		AverageRating: stats.AverageRating,
		Buckets:       stats.Histogram(),
	}
	return c.set(ctx, reviewStatsPrefix+stats.ItemID, stats.Version, entry)
}

// InvalidateReviewStats deletes the item's cached stats.
func (c *SummaryCache) InvalidateReviewStats(ctx context.Context, itemID string) error {
	return c.del(ctx, reviewStatsPrefix+itemID)
}

// GetVoteCounts returns nil on a cache miss.
func (c *SummaryCache) GetVoteCounts(ctx context.Context, itemID string) (*domain.VoteCounts, error) {
	var entry voteCountsEntry
	version, ok, err := c.get(ctx, voteCountsPrefix+itemID, &entry)
	if err != nil || !ok {
		return nil, err
	}

	counts := domain.NewVoteCounts(itemID, entry.Upvotes, entry.Downvotes)
	counts.Version = version
	return &counts, nil
}

// SetVoteCounts caches counts unless a newer version is already cached.
func (c *SummaryCache) SetVoteCounts(ctx context.Context, counts domain.VoteCounts) error {
	entry := voteCountsEntry{Upvotes: counts.Upvotes, Downvotes: counts.Downvotes}
	return c.set(ctx, voteCountsPrefix+counts.ItemID, counts.Version, entry)
}

// InvalidateVoteCounts deletes the item's cached counts.
func (c *SummaryCache) InvalidateVoteCounts(ctx context.Context, itemID string) error {
	return c.del(ctx, voteCountsPrefix+itemID)
}

func (c *SummaryCache) del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (c *SummaryCache) get(ctx context.Context, key string, dst any) (int64, bool, error) {
	fields, err := c.client.HMGet(ctx, key, "version", "data").Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis hmget %s: %w", key, err)
	}

	rawVersion, _ := fields[0].(string)
	data, _ := fields[1].(string)
	if rawVersion == "" || data == "" {
		return 0, false, nil
	}

	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached version %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return 0, false, fmt.Errorf("unmarshal cached %s: %w", key, err)
	}

	return version, true, nil
}

func (c *SummaryCache) set(ctx context.Context, key string, version int64, entry any) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	err = setIfNewer.Run(ctx, c.client, []string{key}, version, string(data), c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

package domain

import (
	"time"
)

// Rating bounds and optional text limits for a review.
const (
	MinRating        = 1
	MaxRating        = 5
	MaxTitleLength   = 100
	MaxContentLength = 1000
)

// Review is one user's rating of one item. Author name and avatar are copied
// from the identity at write time and are not refreshed when the profile
// changes later.
type Review struct {
	ID           string    `json:"id"`
	ItemID       string    `json:"item_id"`
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name"`
	UserImageURL *string   `json:"user_image_url"`
	Rating       int       `json:"rating"`
	Title        *string   `json:"title"`
	Content      *string   `json:"content"`
	HelpfulCount int       `json:"helpful_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ReviewStats is the per-item summary derived from all of the item's reviews.
// ReviewCount always equals the sum of the five rating buckets.
type ReviewStats struct {
	ItemID        string    `json:"item_id"`
	ReviewCount   int       `json:"review_count"`
	AverageRating float64   `json:"average_rating"`
	Rating1Count  int       `json:"rating_1_count"`
	Rating2Count  int       `json:"rating_2_count"`
	Rating3Count  int       `json:"rating_3_count"`
	Rating4Count  int       `json:"rating_4_count"`
	Rating5Count  int       `json:"rating_5_count"`
	Version       int64     `json:"-"`
	UpdatedAt     time.Time `json:"-"`
}

// EmptyReviewStats is the summary of an item nobody has reviewed.
func EmptyReviewStats(itemID string) ReviewStats {
	return ReviewStats{ItemID: itemID}
}

// ValidRating reports whether r is an allowed star rating.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// Histogram returns the bucket counts, index 0 holding one-star reviews.
func (s ReviewStats) Histogram() [5]int {
	return [5]int{s.Rating1Count, s.Rating2Count, s.Rating3Count, s.Rating4Count, s.Rating5Count}
}

func (s *ReviewStats) setHistogram(h [5]int) {
	s.Rating1Count, s.Rating2Count, s.Rating3Count, s.Rating4Count, s.Rating5Count = h[0], h[1], h[2], h[3], h[4]
}

// Apply returns the stats after one review write. oldRating is the rating the
// author had before (nil for a first review), newRating the rating after (nil
// for a deletion). Out-of-range ratings are ignored. Counters never go below
// zero.
func (s ReviewStats) Apply(newRating, oldRating *int) ReviewStats {
	h := s.Histogram()
	count := s.ReviewCount

	if oldRating != nil && ValidRating(*oldRating) {
		i := *oldRating - 1
		h[i] = max(0, h[i]-1)
		if newRating == nil {
			count = max(0, count-1)
		}
	}

	if newRating != nil && ValidRating(*newRating) {
		h[*newRating-1]++
		if oldRating == nil {
			count++
		}
	}

	out := s
	out.setHistogram(h)
	out.ReviewCount = count
	out.AverageRating = average(h, count)
	return out
}

// Consistent reports whether the count matches the histogram and the average
// matches the weighted mean of the buckets.
func (s ReviewStats) Consistent() bool {
	h := s.Histogram()
	sum := 0
	for _, n := range h {
		if n < 0 {
			return false
		}
		sum += n
	}
	return sum == s.ReviewCount && s.AverageRating == average(h, s.ReviewCount)
}

func average(h [5]int, count int) float64 {
	if count == 0 {
		return 0
	}
	total := 0
	for i, n := range h {
		total += n * (i + 1)
	}
	return float64(total) / float64(count)
}

// OptionalText maps an empty string to nil so blank titles and bodies are
// stored as NULL.
func OptionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

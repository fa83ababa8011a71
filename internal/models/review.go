package models

import "time"

type Review struct {
	ID         string     `json:"id" db:"id"`
	BusinessID string     `json:"businessId" db:"business_id"`
	UserID     string     `json:"userId" db:"user_id"`
	UserName   string     `json:"userName" db:"user_name"`
	Rating     int        `json:"rating" db:"rating"`
	Comment    string     `json:"comment" db:"comment"`
	Reply      string     `json:"reply,omitempty" db:"reply"`
	RepliedAt  *time.Time `json:"repliedAt,omitempty" db:"replied_at"`
	Hidden     bool       `json:"hidden" db:"hidden"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" db:"updated_at"`
}

// Rating is the aggregate shown to clients.
type Rating struct {
	Avg   float64 `json:"ratingAvg" db:"rating_avg"`
	Count int     `json:"ratingCount" db:"rating_count"`
}

// RatingTotals is the exact aggregate kept on the business row. The average is
// derived from it on every write and never fed back into the arithmetic.
type RatingTotals struct {
	Sum   int `db:"rating_sum"`
	Count int `db:"rating_count"`
}

// Apply folds a rating change into the totals. old or new may be 0 for insert and delete.
func (t RatingTotals) Apply(oldRating, newRating int) RatingTotals {
	if oldRating > 0 {
		t.Sum -= oldRating
		t.Count--
	}
	if newRating > 0 {
		t.Sum += newRating
		t.Count++
	}
	if t.Count <= 0 {
		return RatingTotals{}
	}
	return t
}

// Rating returns the rounded average for display.
func (t RatingTotals) Rating() Rating {
	if t.Count <= 0 {
		return Rating{}
	}
	return Rating{Avg: RoundRating(float64(t.Sum) / float64(t.Count)), Count: t.Count}
}

// RoundRating keeps two decimals.
func RoundRating(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

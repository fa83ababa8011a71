package models

import "time"

type Promotion struct {
	ID              string    `json:"id" db:"id"`
	BusinessID      string    `json:"businessId" db:"business_id"`
	Title           string    `json:"title" db:"title"`
	Description     string    `json:"description" db:"description"`
	DiscountPercent int       `json:"discountPercent" db:"discount_percent"`
	StartsAt        time.Time `json:"startsAt" db:"starts_at"`
	EndsAt          time.Time `json:"endsAt" db:"ends_at"`
	Active          bool      `json:"active" db:"active"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// LiveAt reports whether the promotion is shown to visitors at t.
func (p Promotion) LiveAt(t time.Time) bool {
	return p.Active && !t.Before(p.StartsAt) && t.Before(p.EndsAt)
}

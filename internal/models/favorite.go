package models

import "time"

type Favorite struct {
	UserID     string    `json:"userId" db:"user_id"`
	BusinessID string    `json:"businessId" db:"business_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

type FavoriteState struct {
	Favorite bool `json:"favorite"`
	Count    int  `json:"count"`
}

type FavoriteBusiness struct {
	BusinessSummary
	FavoritedAt time.Time `json:"favoritedAt" db:"favorited_at"`
}

package models

type Plan struct {
	ID            string  `json:"id" db:"id"`
	Name          string  `json:"name" db:"name"`
	Description   string  `json:"description" db:"description"`
	PriceUYU      float64 `json:"priceUyu" db:"price_uyu"`
	MaxImages     int     `json:"maxImages" db:"max_images"`
	MaxPromotions int     `json:"maxPromotions" db:"max_promotions"`
	Featured      bool    `json:"featured" db:"featured"`
	Active        bool    `json:"active" db:"active"`
	SortOrder     int     `json:"sortOrder" db:"sort_order"`
}

// DefaultPlan applies to businesses with no plan assigned.
var DefaultPlan = Plan{Name: "free", MaxImages: 3, MaxPromotions: 1, Active: true}

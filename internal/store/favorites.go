package store

import (
	"context"

	"tucomercio/internal/models"

	"github.com/jmoiron/sqlx"
)

// SetFavorite adds or removes the favorite and adjusts favorites_count in the same
// transaction. want nil toggles. Repeating an add or remove leaves the count unchanged.
func (s *Store) SetFavorite(ctx context.Context, userID, businessID string, want *bool) (models.FavoriteState, error) {
	var state models.FavoriteState
	err := s.withTx(ctx, "set_favorite", func(tx *sqlx.Tx) error {
		var current int
		if err := tx.GetContext(ctx, &current,
			`SELECT favorites_count FROM businesses WHERE id = $1 FOR UPDATE`, businessID); err != nil {
			return mapErr("lock_business", "business", businessID, err)
		}

		var exists bool
		if err := tx.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND business_id = $2)`, userID, businessID); err != nil {
			return mapErr("favorite_exists", "favorite", businessID, err)
		}

		target := !exists
		if want != nil {
			target = *want
		}

		switch {
		case target && !exists:
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO favorites (user_id, business_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, businessID); err != nil {
				return mapErr("add_favorite", "favorite", businessID, err)
			}
			current++
		case !target && exists:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM favorites WHERE user_id = $1 AND business_id = $2`, userID, businessID); err != nil {
				return mapErr("remove_favorite", "favorite", businessID, err)
			}
			if current > 0 {
				current--
			}
		default:
			state = models.FavoriteState{Favorite: exists, Count: current}
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE businesses SET favorites_count = $2 WHERE id = $1`, businessID, current); err != nil {
			return mapErr("save_favorites_count", "business", businessID, err)
		}
		state = models.FavoriteState{Favorite: target, Count: current}
		return nil
	})
	return state, err
}

func (s *Store) IsFavorite(ctx context.Context, userID, businessID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND business_id = $2)`, userID, businessID)
	return exists, mapErr("is_favorite", "favorite", businessID, err)
}

// ListFavorites returns the user's favorite approved businesses, most recent first.
func (s *Store) ListFavorites(ctx context.Context, userID string) ([]models.FavoriteBusiness, error) {
	out := []models.FavoriteBusiness{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT b.id, b.name, b.slug, b.category, b.city, b.logo_url, b.rating_avg, b.rating_count,
			b.favorites_count, b.featured, f.created_at AS favorited_at
		FROM favorites f
		JOIN businesses b ON b.id = f.business_id
		WHERE f.user_id = $1 AND b.status = 'approved'
		ORDER BY f.created_at DESC`, userID)
	if err != nil {
		return nil, mapErr("list_favorites", "favorite", userID, err)
	}
	return out, nil
}

package store

import (
	"context"
	"time"

	"tucomercio/internal/models"

	"github.com/jmoiron/sqlx"
)

const reviewColumns = `id, business_id, user_id, user_name, rating, comment, reply, replied_at, hidden, created_at, updated_at`

// ReviewChange is the result of a review write with the business aggregate after it.
type ReviewChange struct {
	Review  models.Review
	Rating  models.Rating
	Created bool
}

// lockRating takes the business row lock. Every review write locks the business
// before any review row.
func lockRating(ctx context.Context, tx *sqlx.Tx, businessID string) (models.RatingTotals, error) {
	var t models.RatingTotals
	err := tx.GetContext(ctx, &t, `SELECT rating_sum, rating_count FROM businesses WHERE id = $1 FOR UPDATE`, businessID)
	return t, mapErr("lock_business", "business", businessID, err)
}

func saveRating(ctx context.Context, tx *sqlx.Tx, businessID string, t models.RatingTotals) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE businesses SET rating_sum = $2, rating_count = $3, rating_avg = $4 WHERE id = $1`,
		businessID, t.Sum, t.Count, t.Rating().Avg)
	return mapErr("save_rating", "business", businessID, err)
}

// reviewBusiness reads the owning business without locking the review row.
func reviewBusiness(ctx context.Context, tx *sqlx.Tx, id string) (string, error) {
	var businessID string
	err := tx.GetContext(ctx, &businessID, `SELECT business_id FROM reviews WHERE id = $1`, id)
	return businessID, mapErr("get_review", "review", id, err)
}

// visibleRating is the rating a review contributes to the aggregate.
func visibleRating(r *models.Review) int {
	if r == nil || r.Hidden {
		return 0
	}
	return r.Rating
}

// UpsertReview writes the caller's single review for the business and folds the change into the aggregate.
func (s *Store) UpsertReview(ctx context.Context, r models.Review) (*ReviewChange, error) {
	var change ReviewChange
	err := s.withTx(ctx, "upsert_review", func(tx *sqlx.Tx) error {
		totals, err := lockRating(ctx, tx, r.BusinessID)
		if err != nil {
			return err
		}

		var existing models.Review
		err = tx.GetContext(ctx, &existing, `SELECT `+reviewColumns+` FROM reviews
			WHERE business_id = $1 AND user_id = $2 FOR UPDATE`, r.BusinessID, r.UserID)
		found := err == nil
		if err != nil && !isNoRows(err) {
			return mapErr("get_review", "review", r.ID, err)
		}

		var old *models.Review
		if found {
			old = &existing
			r.ID = existing.ID
			r.CreatedAt = existing.CreatedAt
			r.Reply = existing.Reply
			r.RepliedAt = existing.RepliedAt
			r.Hidden = existing.Hidden
			_, err = tx.ExecContext(ctx, `
				UPDATE reviews SET rating = $2, comment = $3, user_name = $4, updated_at = $5 WHERE id = $1`,
				r.ID, r.Rating, r.Comment, r.UserName, r.UpdatedAt)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO reviews (id, business_id, user_id, user_name, rating, comment, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				r.ID, r.BusinessID, r.UserID, r.UserName, r.Rating, r.Comment, r.CreatedAt, r.UpdatedAt)
		}
		if err != nil {
			return mapErr("upsert_review", "review", r.ID, err)
		}

		totals = totals.Apply(visibleRating(old), visibleRating(&r))
		if err := saveRating(ctx, tx, r.BusinessID, totals); err != nil {
			return err
		}
		change = ReviewChange{Review: r, Rating: totals.Rating(), Created: !found}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// DeleteReview removes the review and its contribution to the aggregate.
func (s *Store) DeleteReview(ctx context.Context, id string) (*ReviewChange, error) {
	var change ReviewChange
	err := s.withTx(ctx, "delete_review", func(tx *sqlx.Tx) error {
		businessID, err := reviewBusiness(ctx, tx, id)
		if err != nil {
			return err
		}
		totals, err := lockRating(ctx, tx, businessID)
		if err != nil {
			return err
		}
		r, err := s.lockReview(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id); err != nil {
			return mapErr("delete_review", "review", id, err)
		}
		totals = totals.Apply(visibleRating(r), 0)
		if err := saveRating(ctx, tx, r.BusinessID, totals); err != nil {
			return err
		}
		change = ReviewChange{Review: *r, Rating: totals.Rating()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// SetReviewHidden toggles moderation; hidden reviews do not count toward the aggregate.
func (s *Store) SetReviewHidden(ctx context.Context, id string, hidden bool) (*ReviewChange, error) {
	var change ReviewChange
	err := s.withTx(ctx, "set_review_hidden", func(tx *sqlx.Tx) error {
		businessID, err := reviewBusiness(ctx, tx, id)
		if err != nil {
			return err
		}
		totals, err := lockRating(ctx, tx, businessID)
		if err != nil {
			return err
		}
		r, err := s.lockReview(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.Hidden != hidden {
			before := visibleRating(r)
			r.Hidden = hidden
			totals = totals.Apply(before, visibleRating(r))
			if _, err := tx.ExecContext(ctx, `UPDATE reviews SET hidden = $2 WHERE id = $1`, id, hidden); err != nil {
				return mapErr("set_review_hidden", "review", id, err)
			}
			if err := saveRating(ctx, tx, r.BusinessID, totals); err != nil {
				return err
			}
		}
		change = ReviewChange{Review: *r, Rating: totals.Rating()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &change, nil
}

func (s *Store) lockReview(ctx context.Context, tx *sqlx.Tx, id string) (*models.Review, error) {
	var r models.Review
	if err := tx.GetContext(ctx, &r, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, mapErr("lock_review", "review", id, err)
	}
	return &r, nil
}

func (s *Store) ReplyReview(ctx context.Context, id, text string, at time.Time) (*models.Review, error) {
	var r models.Review
	err := s.db.GetContext(ctx, &r, `
		UPDATE reviews SET reply = $2, replied_at = $3 WHERE id = $1
		RETURNING `+reviewColumns, id, text, at)
	if err != nil {
		return nil, mapErr("reply_review", "review", id, err)
	}
	return &r, nil
}

func (s *Store) GetReview(ctx context.Context, id string) (*models.Review, error) {
	var r models.Review
	if err := s.db.GetContext(ctx, &r, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id); err != nil {
		return nil, mapErr("get_review", "review", id, err)
	}
	return &r, nil
}

// ListReviewsForBusiness returns newest first. Hidden reviews are included only for moderators.
func (s *Store) ListReviewsForBusiness(ctx context.Context, businessID string, includeHidden bool, page, size int) (models.Page[models.Review], error) {
	page, size = models.NormalizePage(page, size)
	out := models.Page[models.Review]{Page: page, PageSize: size, Items: []models.Review{}}

	where := ` WHERE business_id = $1`
	if !includeHidden {
		where += ` AND NOT hidden`
	}
	total, err := count(ctx, s.db, `SELECT COUNT(*) FROM reviews`+where, businessID)
	if err != nil {
		return out, mapErr("count_reviews", "review", businessID, err)
	}
	out.Total = total

	err = s.db.SelectContext(ctx, &out.Items, `SELECT `+reviewColumns+` FROM reviews`+where+
		` ORDER BY created_at DESC LIMIT $2 OFFSET $3`, businessID, size, (page-1)*size)
	if err != nil {
		return out, mapErr("list_reviews", "review", businessID, err)
	}
	return out, nil
}

func (s *Store) ListReviewsByUser(ctx context.Context, userID string) ([]models.Review, error) {
	out := []models.Review{}
	err := s.db.SelectContext(ctx, &out, `SELECT `+reviewColumns+` FROM reviews WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapErr("list_user_reviews", "review", userID, err)
	}
	return out, nil
}

package store

import (
	"context"
	"time"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/models"

	"github.com/jmoiron/sqlx"
)

const promotionColumns = `id, business_id, title, description, discount_percent, starts_at, ends_at, active, created_at`

// CreatePromotion inserts p unless the business already has max active promotions.
// The business row lock serializes concurrent creates for the same business.
func (s *Store) CreatePromotion(ctx context.Context, p *models.Promotion, max int, now time.Time) error {
	return s.withTx(ctx, "create_promotion", func(tx *sqlx.Tx) error {
		var id string
		if err := tx.GetContext(ctx, &id, `SELECT id FROM businesses WHERE id = $1 FOR UPDATE`, p.BusinessID); err != nil {
			return mapErr("lock_business", "business", p.BusinessID, err)
		}

		var active int
		if err := tx.GetContext(ctx, &active, `
			SELECT COUNT(*) FROM promotions WHERE business_id = $1 AND active AND ends_at > $2`,
			p.BusinessID, now); err != nil {
			return mapErr("count_promotions", "promotion", p.BusinessID, err)
		}
		if p.Active && active >= max {
			return errors.NewPlanLimitReachedError("promotions", max)
		}

		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO promotions (`+promotionColumns+`)
			VALUES (:id, :business_id, :title, :description, :discount_percent, :starts_at, :ends_at, :active, :created_at)`, p)
		return mapErr("create_promotion", "promotion", p.ID, err)
	})
}

// UpdatePromotion rewrites p, re-checking the limit when it becomes active.
func (s *Store) UpdatePromotion(ctx context.Context, p *models.Promotion, max int, now time.Time) error {
	return s.withTx(ctx, "update_promotion", func(tx *sqlx.Tx) error {
		var id string
		if err := tx.GetContext(ctx, &id, `SELECT id FROM businesses WHERE id = $1 FOR UPDATE`, p.BusinessID); err != nil {
			return mapErr("lock_business", "business", p.BusinessID, err)
		}

		if p.Active && p.EndsAt.After(now) {
			var others int
			if err := tx.GetContext(ctx, &others, `
				SELECT COUNT(*) FROM promotions WHERE business_id = $1 AND active AND ends_at > $2 AND id <> $3`,
				p.BusinessID, now, p.ID); err != nil {
				return mapErr("count_promotions", "promotion", p.BusinessID, err)
			}
			if others >= max {
				return errors.NewPlanLimitReachedError("promotions", max)
			}
		}

		res, err := tx.NamedExecContext(ctx, `
			UPDATE promotions SET title = :title, description = :description, discount_percent = :discount_percent,
				starts_at = :starts_at, ends_at = :ends_at, active = :active
			WHERE id = :id AND business_id = :business_id`, p)
		if err != nil {
			return mapErr("update_promotion", "promotion", p.ID, err)
		}
		return requireRow(res, "promotion", p.ID)
	})
}

func (s *Store) GetPromotion(ctx context.Context, id string) (*models.Promotion, error) {
	var p models.Promotion
	if err := s.db.GetContext(ctx, &p, `SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id); err != nil {
		return nil, mapErr("get_promotion", "promotion", id, err)
	}
	return &p, nil
}

func (s *Store) DeletePromotion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM promotions WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete_promotion", "promotion", id, err)
	}
	return requireRow(res, "promotion", id)
}

// ListPromotions returns the business promotions. A non-nil liveAt keeps only those running then.
func (s *Store) ListPromotions(ctx context.Context, businessID string, liveAt *time.Time) ([]models.Promotion, error) {
	out := []models.Promotion{}
	var err error
	if liveAt != nil {
		err = s.db.SelectContext(ctx, &out, `SELECT `+promotionColumns+` FROM promotions
			WHERE business_id = $1 AND active AND starts_at <= $2 AND ends_at > $2
			ORDER BY ends_at`, businessID, *liveAt)
	} else {
		err = s.db.SelectContext(ctx, &out, `SELECT `+promotionColumns+` FROM promotions
			WHERE business_id = $1 ORDER BY created_at DESC`, businessID)
	}
	if err != nil {
		return nil, mapErr("list_promotions", "promotion", businessID, err)
	}
	return out, nil
}

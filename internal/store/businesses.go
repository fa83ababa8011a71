package store

import (
	"context"
	"fmt"
	"strings"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/models"

	"github.com/jmoiron/sqlx"
)

const businessColumns = `id, owner_id, name, slug, description, category, department, city, address, phone,
	whatsapp, email, website, instagram, facebook, logo_url, images, schedule, status, status_reason,
	plan_id, featured, rating_avg, rating_count, favorites_count, view_count, created_at, updated_at`

const summaryColumns = `id, name, slug, category, city, logo_url, rating_avg, rating_count, favorites_count, featured`

// CreateBusiness inserts b with a unique slug derived from b.Slug and links the owner profile.
func (s *Store) CreateBusiness(ctx context.Context, b *models.Business) error {
	return s.withTx(ctx, "create_business", func(tx *sqlx.Tx) error {
		var existing int
		if err := tx.GetContext(ctx, &existing, `SELECT COUNT(*) FROM businesses WHERE owner_id = $1`, b.OwnerID); err != nil {
			return mapErr("create_business", "business", b.ID, err)
		}
		if existing > 0 {
			return errors.NewConflictError("owner already has a business")
		}

		var taken []string
		if err := tx.SelectContext(ctx, &taken,
			`SELECT slug FROM businesses WHERE slug = $1 OR slug LIKE $1 || '-%'`, b.Slug); err != nil {
			return mapErr("create_business", "business", b.ID, err)
		}
		b.Slug = UniqueSlug(b.Slug, taken)

		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO businesses (id, owner_id, name, slug, description, category, department, city, address,
				phone, whatsapp, email, website, instagram, facebook, logo_url, images, schedule, status, plan_id,
				featured, created_at, updated_at)
			VALUES (:id, :owner_id, :name, :slug, :description, :category, :department, :city, :address,
				:phone, :whatsapp, :email, :website, :instagram, :facebook, :logo_url, :images, :schedule, :status,
				:plan_id, :featured, :created_at, :updated_at)`, b)
		if err != nil {
			return mapErr("create_business", "business", b.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users SET business_id = $2, role = CASE WHEN role = 'superadmin' THEN role ELSE 'business' END
			WHERE id = $1`, b.OwnerID, b.ID)
		return mapErr("create_business", "user", b.OwnerID, err)
	})
}

// UniqueSlug returns base, or base-N with the smallest N not in taken.
func UniqueSlug(base string, taken []string) string {
	used := make(map[string]bool, len(taken))
	for _, t := range taken {
		used[t] = true
	}
	if !used[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !used[candidate] {
			return candidate
		}
	}
}

func (s *Store) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	var b models.Business
	if err := s.db.GetContext(ctx, &b, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id); err != nil {
		return nil, mapErr("get_business", "business", id, err)
	}
	return &b, nil
}

func (s *Store) GetBusinessBySlug(ctx context.Context, slug string) (*models.Business, error) {
	var b models.Business
	if err := s.db.GetContext(ctx, &b, `SELECT `+businessColumns+` FROM businesses WHERE slug = $1`, slug); err != nil {
		return nil, mapErr("get_business_by_slug", "business", slug, err)
	}
	return &b, nil
}

func (s *Store) GetBusinessByOwner(ctx context.Context, ownerID string) (*models.Business, error) {
	var b models.Business
	if err := s.db.GetContext(ctx, &b, `SELECT `+businessColumns+` FROM businesses WHERE owner_id = $1`, ownerID); err != nil {
		return nil, mapErr("get_business_by_owner", "business", ownerID, err)
	}
	return &b, nil
}

// UpdateBusiness writes the owner-editable profile fields.
func (s *Store) UpdateBusiness(ctx context.Context, b *models.Business) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE businesses SET name = :name, description = :description, category = :category,
			department = :department, city = :city, address = :address, phone = :phone, whatsapp = :whatsapp,
			email = :email, website = :website, instagram = :instagram, facebook = :facebook,
			logo_url = :logo_url, images = :images, schedule = :schedule, updated_at = :updated_at
		WHERE id = :id`, b)
	if err != nil {
		return mapErr("update_business", "business", b.ID, err)
	}
	return requireRow(res, "business", b.ID)
}

// SetBusinessStatus moves the business to next only when it is still in from.
func (s *Store) SetBusinessStatus(ctx context.Context, id string, from, next models.BusinessStatus, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE businesses SET status = $3, status_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, next, reason)
	if err != nil {
		return mapErr("set_business_status", "business", id, err)
	}
	if err := requireRow(res, "business", id); err != nil {
		return errors.NewConflictError("business status changed concurrently")
	}
	return nil
}

func (s *Store) SetBusinessPlan(ctx context.Context, id string, planID *string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE businesses SET plan_id = $2, updated_at = NOW() WHERE id = $1`, id, planID)
	if err != nil {
		return mapErr("set_business_plan", "business", id, err)
	}
	return requireRow(res, "business", id)
}

func (s *Store) SetBusinessFeatured(ctx context.Context, id string, featured bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE businesses SET featured = $2, updated_at = NOW() WHERE id = $1`, id, featured)
	if err != nil {
		return mapErr("set_business_featured", "business", id, err)
	}
	return requireRow(res, "business", id)
}

// DeleteBusiness removes the business; reviews, favorites, chats and promotions cascade.
func (s *Store) DeleteBusiness(ctx context.Context, id string) error {
	return s.withTx(ctx, "delete_business", func(tx *sqlx.Tx) error {
		var ownerID string
		if err := tx.GetContext(ctx, &ownerID, `SELECT owner_id FROM businesses WHERE id = $1 FOR UPDATE`, id); err != nil {
			return mapErr("delete_business", "business", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM businesses WHERE id = $1`, id); err != nil {
			return mapErr("delete_business", "business", id, err)
		}
		_, err := tx.ExecContext(ctx, `UPDATE users SET role = 'user' WHERE id = $1 AND role = 'business'`, ownerID)
		return mapErr("delete_business", "user", ownerID, err)
	})
}

// ListBusinesses returns summaries ordered featured first, then by rating.
func (s *Store) ListBusinesses(ctx context.Context, f models.BusinessFilter) (models.Page[models.BusinessSummary], error) {
	f.Normalize()
	out := models.Page[models.BusinessSummary]{Page: f.Page, PageSize: f.PageSize, Items: []models.BusinessSummary{}}

	var a args
	conds := []string{}
	if f.Status != "" {
		conds = append(conds, "status = "+a.add(f.Status))
	}
	if f.Category != "" {
		conds = append(conds, "category = "+a.add(f.Category))
	}
	if f.Department != "" {
		conds = append(conds, "department = "+a.add(f.Department))
	}
	if f.City != "" {
		conds = append(conds, "city = "+a.add(f.City))
	}
	if f.Featured != nil {
		conds = append(conds, "featured = "+a.add(*f.Featured))
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		p := a.add("%" + escapeLike(text) + "%")
		conds = append(conds, fmt.Sprintf("(name ILIKE %[1]s OR description ILIKE %[1]s OR category ILIKE %[1]s OR city ILIKE %[1]s)", p))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	total, err := count(ctx, s.db, `SELECT COUNT(*) FROM businesses`+where, a...)
	if err != nil {
		return out, mapErr("count_businesses", "business", "", err)
	}
	out.Total = total

	query := `SELECT ` + summaryColumns + ` FROM businesses` + where +
		` ORDER BY featured DESC, rating_avg DESC, rating_count DESC, name ASC` +
		` LIMIT ` + a.add(f.PageSize) + ` OFFSET ` + a.add((f.Page-1)*f.PageSize)
	if err := s.db.SelectContext(ctx, &out.Items, query, a...); err != nil {
		return out, mapErr("list_businesses", "business", "", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// AddBusinessViews adds flushed view counters to the persistent totals.
func (s *Store) AddBusinessViews(ctx context.Context, views map[string]int64) error {
	if len(views) == 0 {
		return nil
	}
	return s.withTx(ctx, "add_business_views", func(tx *sqlx.Tx) error {
		for id, n := range views {
			if _, err := tx.ExecContext(ctx,
				`UPDATE businesses SET view_count = view_count + $2 WHERE id = $1`, id, n); err != nil {
				return mapErr("add_business_views", "business", id, err)
			}
		}
		return nil
	})
}

// AssignBusinessOwner hands businessID to userID. The previous owner goes back to a plain user.
func (s *Store) AssignBusinessOwner(ctx context.Context, businessID, userID string) error {
	return s.withTx(ctx, "assign_business_owner", func(tx *sqlx.Tx) error {
		var previous string
		if err := tx.GetContext(ctx, &previous,
			`SELECT owner_id FROM businesses WHERE id = $1 FOR UPDATE`, businessID); err != nil {
			return mapErr("assign_business_owner", "business", businessID, err)
		}
		if previous == userID {
			return nil
		}

		var owned int
		if err := tx.GetContext(ctx, &owned, `SELECT COUNT(*) FROM businesses WHERE owner_id = $1`, userID); err != nil {
			return mapErr("assign_business_owner", "business", businessID, err)
		}
		if owned > 0 {
			return errors.NewConflictError("user already owns a business")
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE businesses SET owner_id = $2, updated_at = NOW() WHERE id = $1`, businessID, userID); err != nil {
			return mapErr("assign_business_owner", "business", businessID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET business_id = NULL, role = CASE WHEN role = 'business' THEN 'user' ELSE role END
			WHERE id = $1`, previous); err != nil {
			return mapErr("assign_business_owner", "user", previous, err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE users SET business_id = $2, role = CASE WHEN role = 'superadmin' THEN role ELSE 'business' END
			WHERE id = $1`, userID, businessID)
		if err != nil {
			return mapErr("assign_business_owner", "user", userID, err)
		}
		return requireRow(res, "user", userID)
	})
}

package store

import (
	"context"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/models"
)

const planColumns = `id, name, description, price_uyu, max_images, max_promotions, featured, active, sort_order`

func (s *Store) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY sort_order, price_uyu`

	out := []models.Plan{}
	if err := s.db.SelectContext(ctx, &out, query); err != nil {
		return nil, mapErr("list_plans", "plan", "", err)
	}
	return out, nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var p models.Plan
	if err := s.db.GetContext(ctx, &p, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id); err != nil {
		return nil, mapErr("get_plan", "plan", id, err)
	}
	return &p, nil
}

func (s *Store) CreatePlan(ctx context.Context, p *models.Plan) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES (:id, :name, :description, :price_uyu, :max_images, :max_promotions, :featured, :active, :sort_order)`, p)
	if isUniqueViolation(err) {
		return errors.NewConflictError("plan name already exists")
	}
	return mapErr("create_plan", "plan", p.ID, err)
}

func (s *Store) UpdatePlan(ctx context.Context, p *models.Plan) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE plans SET name = :name, description = :description, price_uyu = :price_uyu,
			max_images = :max_images, max_promotions = :max_promotions, featured = :featured,
			active = :active, sort_order = :sort_order
		WHERE id = :id`, p)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflictError("plan name already exists")
		}
		return mapErr("update_plan", "plan", p.ID, err)
	}
	return requireRow(res, "plan", p.ID)
}

func (s *Store) DeactivatePlan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE plans SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return mapErr("deactivate_plan", "plan", id, err)
	}
	return requireRow(res, "plan", id)
}

// PlanForBusiness returns the business plan, or the default plan when none is assigned.
func (s *Store) PlanForBusiness(ctx context.Context, businessID string) (models.Plan, error) {
	var p models.Plan
	err := s.db.GetContext(ctx, &p, `
		SELECT p.id, p.name, p.description, p.price_uyu, p.max_images, p.max_promotions, p.featured, p.active, p.sort_order
		FROM businesses b JOIN plans p ON p.id = b.plan_id
		WHERE b.id = $1`, businessID)
	if isNoRows(err) {
		return models.DefaultPlan, nil
	}
	if err != nil {
		return models.Plan{}, mapErr("plan_for_business", "plan", businessID, err)
	}
	return p, nil
}

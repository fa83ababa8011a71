package services

import (
	"context"
	"strings"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/models"

	"github.com/google/uuid"
)

type PlanStore interface {
	ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	CreatePlan(ctx context.Context, p *models.Plan) error
	UpdatePlan(ctx context.Context, p *models.Plan) error
	DeactivatePlan(ctx context.Context, id string) error
}

type Plans struct {
	store PlanStore
}

func NewPlans(st PlanStore) *Plans { return &Plans{store: st} }

func validatePlan(p *models.Plan) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errors.NewValidationFailedError("name is required")
	}
	if p.PriceUYU < 0 || p.MaxImages < 0 || p.MaxPromotions < 0 {
		return errors.NewValidationFailedError("price and limits cannot be negative")
	}
	return nil
}

// List returns active plans to everyone; superadmins may ask for all of them.
func (s *Plans) List(ctx context.Context, p auth.Principal, includeInactive bool) ([]models.Plan, error) {
	return s.store.ListPlans(ctx, !(includeInactive && p.IsSuperAdmin()))
}

func (s *Plans) Get(ctx context.Context, id string) (*models.Plan, error) {
	return s.store.GetPlan(ctx, id)
}

func (s *Plans) Create(ctx context.Context, p auth.Principal, plan models.Plan) (*models.Plan, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, err
	}
	if err := validatePlan(&plan); err != nil {
		return nil, err
	}
	plan.ID = uuid.NewString()
	if err := s.store.CreatePlan(ctx, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *Plans) Update(ctx context.Context, p auth.Principal, id string, plan models.Plan) (*models.Plan, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, err
	}
	if err := validatePlan(&plan); err != nil {
		return nil, err
	}
	plan.ID = id
	if err := s.store.UpdatePlan(ctx, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Deactivate hides the plan from new assignments. Businesses already on it keep its limits.
func (s *Plans) Deactivate(ctx context.Context, p auth.Principal, id string) error {
	if err := requireSuperAdmin(p); err != nil {
		return err
	}
	return s.store.DeactivatePlan(ctx, id)
}

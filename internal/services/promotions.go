package services

import (
	"context"
	"time"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/models"

	"github.com/google/uuid"
)

type PromotionStore interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	PlanForBusiness(ctx context.Context, businessID string) (models.Plan, error)
	CreatePromotion(ctx context.Context, p *models.Promotion, max int, now time.Time) error
	UpdatePromotion(ctx context.Context, p *models.Promotion, max int, now time.Time) error
	GetPromotion(ctx context.Context, id string) (*models.Promotion, error)
	DeletePromotion(ctx context.Context, id string) error
	ListPromotions(ctx context.Context, businessID string, liveAt *time.Time) ([]models.Promotion, error)
}

type PromotionInput struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DiscountPercent int       `json:"discountPercent"`
	StartsAt        time.Time `json:"startsAt"`
	EndsAt          time.Time `json:"endsAt"`
	Active          bool      `json:"active"`
}

func (in PromotionInput) validate() error {
	if err := required("title", in.Title); err != nil {
		return err
	}
	if in.DiscountPercent < 0 || in.DiscountPercent > 100 {
		return errors.NewValidationFailedError("discountPercent must be between 0 and 100")
	}
	if !in.EndsAt.After(in.StartsAt) {
		return errors.NewValidationFailedError("endsAt must be after startsAt")
	}
	return nil
}

type Promotions struct {
	store PromotionStore
	now   func() time.Time
}

func NewPromotions(st PromotionStore) *Promotions { return &Promotions{store: st, now: utcNow} }

func (s *Promotions) owned(ctx context.Context, p auth.Principal, businessID string) (models.Plan, error) {
	if err := requireUser(p); err != nil {
		return models.Plan{}, err
	}
	b, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return models.Plan{}, err
	}
	if !canManage(p, b) {
		return models.Plan{}, errors.NewForbiddenError("only the owner can manage promotions")
	}
	return s.store.PlanForBusiness(ctx, businessID)
}

// Create adds a promotion; active promotions are capped by the plan.
func (s *Promotions) Create(ctx context.Context, p auth.Principal, businessID string, in PromotionInput) (*models.Promotion, error) {
	plan, err := s.owned(ctx, p, businessID)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	promo := &models.Promotion{
		ID:              uuid.NewString(),
		BusinessID:      businessID,
		Title:           in.Title,
		Description:     in.Description,
		DiscountPercent: in.DiscountPercent,
		StartsAt:        in.StartsAt.UTC(),
		EndsAt:          in.EndsAt.UTC(),
		Active:          in.Active,
		CreatedAt:       now,
	}
	if err := s.store.CreatePromotion(ctx, promo, plan.MaxPromotions, now); err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *Promotions) Update(ctx context.Context, p auth.Principal, promotionID string, in PromotionInput) (*models.Promotion, error) {
	promo, err := s.store.GetPromotion(ctx, promotionID)
	if err != nil {
		return nil, err
	}
	plan, err := s.owned(ctx, p, promo.BusinessID)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	promo.Title = in.Title
	promo.Description = in.Description
	promo.DiscountPercent = in.DiscountPercent
	promo.StartsAt = in.StartsAt.UTC()
	promo.EndsAt = in.EndsAt.UTC()
	promo.Active = in.Active
	if err := s.store.UpdatePromotion(ctx, promo, plan.MaxPromotions, s.now()); err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *Promotions) Delete(ctx context.Context, p auth.Principal, promotionID string) error {
	promo, err := s.store.GetPromotion(ctx, promotionID)
	if err != nil {
		return err
	}
	if _, err := s.owned(ctx, p, promo.BusinessID); err != nil {
		return err
	}
	return s.store.DeletePromotion(ctx, promotionID)
}

// ListForBusiness returns every promotion to the owner and superadmins, and only live ones to everybody else.
func (s *Promotions) ListForBusiness(ctx context.Context, p auth.Principal, businessID string) ([]models.Promotion, error) {
	b, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if canManage(p, b) {
		return s.store.ListPromotions(ctx, businessID, nil)
	}
	if b.Status != models.BusinessApproved {
		return nil, errors.NewNotFoundError("business", businessID)
	}
	now := s.now()
	return s.store.ListPromotions(ctx, businessID, &now)
}

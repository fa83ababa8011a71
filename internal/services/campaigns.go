package services

import (
	"context"
	"time"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/models"

	"github.com/google/uuid"
)

type CampaignStore interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	GetBusinessByOwner(ctx context.Context, ownerID string) (*models.Business, error)
	UserIDsByRole(ctx context.Context, roles ...models.Role) ([]string, error)
	CreateCampaign(ctx context.Context, c *models.Campaign) error
	UpdateCampaign(ctx context.Context, c *models.Campaign) error
	SetCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) error
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error)
	ListActiveCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error)
	UpsertParticipant(ctx context.Context, p models.CampaignParticipant) error
	GetParticipant(ctx context.Context, campaignID, businessID string) (*models.CampaignParticipant, error)
	SetParticipantStatus(ctx context.Context, campaignID, businessID string, status models.ParticipantStatus) error
	RemoveParticipant(ctx context.Context, campaignID, businessID string) error
}

type CampaignInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	BannerURL   string    `json:"bannerUrl"`
	StartsAt    time.Time `json:"startsAt"`
	EndsAt      time.Time `json:"endsAt"`
}

func (in CampaignInput) validate() error {
	if err := required("title", in.Title); err != nil {
		return err
	}
	if !in.StartsAt.IsZero() && !in.EndsAt.IsZero() && !in.EndsAt.After(in.StartsAt) {
		return errors.NewValidationFailedError("endsAt must be after startsAt")
	}
	return nil
}

func validDiscount(d int) error {
	if d < 0 || d > 100 {
		return errors.NewValidationFailedError("discount must be between 0 and 100")
	}
	return nil
}

type Campaigns struct {
	store  CampaignStore
	notify *Notifications
	log    logger.Logger
	now    func() time.Time
}

func NewCampaigns(st CampaignStore, notify *Notifications, log logger.Logger) *Campaigns {
	return &Campaigns{
		store:  st,
		notify: notify,
		log:    log.WithFields(map[string]interface{}{"service": "campaigns"}),
		now:    utcNow,
	}
}

func (s *Campaigns) Create(ctx context.Context, p auth.Principal, in CampaignInput) (*models.Campaign, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	c := &models.Campaign{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		BannerURL:    in.BannerURL,
		StartsAt:     in.StartsAt.UTC(),
		EndsAt:       in.EndsAt.UTC(),
		Status:       models.CampaignDraft,
		CreatedBy:    p.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Participants: []models.CampaignParticipant{},
	}
	if err := s.store.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Campaigns) Update(ctx context.Context, p auth.Principal, id string, in CampaignInput) (*models.Campaign, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CampaignArchived {
		return nil, errors.NewInvalidStateError(string(c.Status), "edit")
	}
	if c.Status == models.CampaignPublished && !in.EndsAt.After(in.StartsAt) {
		return nil, errors.NewValidationFailedError("published campaigns need endsAt after startsAt")
	}
	c.Title = in.Title
	c.Description = in.Description
	c.BannerURL = in.BannerURL
	c.StartsAt = in.StartsAt.UTC()
	c.EndsAt = in.EndsAt.UTC()
	c.UpdatedAt = s.now()
	if err := s.store.UpdateCampaign(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func approvedOwners(c *models.Campaign) []string {
	owners := []string{}
	for _, part := range c.Participants {
		if part.Status == models.ParticipantApproved {
			owners = append(owners, part.OwnerID)
		}
	}
	return owners
}

// Publish makes a draft visible and notifies the owners of the approved participants.
func (s *Campaigns) Publish(ctx context.Context, p auth.Principal, id string) (*models.Campaign, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, err
	}
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CampaignDraft {
		return nil, errors.NewInvalidStateError(string(c.Status), string(models.CampaignPublished))
	}
	if c.StartsAt.IsZero() || !c.EndsAt.After(c.StartsAt) {
		return nil, errors.NewValidationFailedError("endsAt must be after startsAt")
	}
	owners := approvedOwners(c)
	if len(owners) == 0 {
		return nil, errors.NewValidationFailedError("at least one approved participant is required")
	}

	if err := s.store.SetCampaignStatus(ctx, id, models.CampaignPublished); err != nil {
		return nil, err
	}
	c.Status = models.CampaignPublished

	if _, err := s.notify.FanOut(ctx, Draft{
		Type:     models.NotifyCampaign,
		Title:    "Tu comercio participa en " + c.Title,
		Body:     c.Description,
		Link:     "/campanas/" + c.ID,
		SenderID: p.UserID,
		Audience: models.AudienceBusiness,
	}, owners); err != nil {
		s.log.Error("campaign notification failed", map[string]interface{}{"campaignId": id, "error": err})
	}
	return c, nil
}

func (s *Campaigns) Archive(ctx context.Context, p auth.Principal, id string) error {
	if err := requireSuperAdmin(p); err != nil {
		return err
	}
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == models.CampaignArchived {
		return nil
	}
	return s.store.SetCampaignStatus(ctx, id, models.CampaignArchived)
}

func (s *Campaigns) openCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CampaignArchived || (!c.EndsAt.IsZero() && !s.now().Before(c.EndsAt)) {
		return nil, errors.NewInvalidStateError(string(c.Status), "join")
	}
	return c, nil
}

// AddParticipant enrolls an approved business directly.
func (s *Campaigns) AddParticipant(ctx context.Context, p auth.Principal, campaignID, businessID string, discount int) error {
	if err := requireSuperAdmin(p); err != nil {
		return err
	}
	if err := validDiscount(discount); err != nil {
		return err
	}
	if _, err := s.openCampaign(ctx, campaignID); err != nil {
		return err
	}
	b, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return err
	}
	if b.Status != models.BusinessApproved {
		return errors.NewValidationFailedError("only approved businesses can join campaigns")
	}
	return s.store.UpsertParticipant(ctx, models.CampaignParticipant{
		CampaignID: campaignID,
		BusinessID: businessID,
		Status:     models.ParticipantApproved,
		Discount:   discount,
		CreatedAt:  s.now(),
	})
}

// RequestJoin lets an owner apply with their business; superadmins are asked to review.
func (s *Campaigns) RequestJoin(ctx context.Context, p auth.Principal, campaignID string, discount int) error {
	if err := requireUser(p); err != nil {
		return err
	}
	if err := validDiscount(discount); err != nil {
		return err
	}
	c, err := s.openCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	b, err := s.store.GetBusinessByOwner(ctx, p.UserID)
	if err != nil {
		return err
	}
	if b.Status != models.BusinessApproved {
		return errors.NewValidationFailedError("only approved businesses can join campaigns")
	}
	if _, err := s.store.GetParticipant(ctx, campaignID, b.ID); err == nil {
		return errors.NewConflictError("business already applied to this campaign")
	} else if !errors.HasCode(err, errors.ErrCodeNotFound) {
		return err
	}

	if err := s.store.UpsertParticipant(ctx, models.CampaignParticipant{
		CampaignID: campaignID,
		BusinessID: b.ID,
		Status:     models.ParticipantPending,
		Discount:   discount,
		CreatedAt:  s.now(),
	}); err != nil {
		return err
	}

	admins, err := s.store.UserIDsByRole(ctx, models.RoleSuperAdmin)
	if err != nil {
		s.log.Warn("could not resolve admins", map[string]interface{}{"error": err})
		return nil
	}
	if _, err := s.notify.FanOut(ctx, Draft{
		Type:     models.NotifyCampaignRequest,
		Title:    b.Name + " quiere sumarse a " + c.Title,
		Link:     "/admin/campanas/" + c.ID,
		SenderID: p.UserID,
	}, admins); err != nil {
		s.log.Error("campaign request notification failed", map[string]interface{}{"campaignId": campaignID, "error": err})
	}
	return nil
}

func (s *Campaigns) ReviewParticipant(ctx context.Context, p auth.Principal, campaignID, businessID string, approve bool) error {
	if err := requireSuperAdmin(p); err != nil {
		return err
	}
	part, err := s.store.GetParticipant(ctx, campaignID, businessID)
	if err != nil {
		return err
	}
	status := models.ParticipantRejected
	if approve {
		status = models.ParticipantApproved
	}
	if part.Status == status {
		return nil
	}
	return s.store.SetParticipantStatus(ctx, campaignID, businessID, status)
}

// RemoveParticipant is open to superadmins and to the owner withdrawing their own business.
func (s *Campaigns) RemoveParticipant(ctx context.Context, p auth.Principal, campaignID, businessID string) error {
	if err := requireUser(p); err != nil {
		return err
	}
	if !p.IsSuperAdmin() {
		b, err := s.store.GetBusiness(ctx, businessID)
		if err != nil {
			return err
		}
		if b.OwnerID != p.UserID {
			return errors.NewForbiddenError("not your business")
		}
	}
	return s.store.RemoveParticipant(ctx, campaignID, businessID)
}

// ListActive returns what the public sees right now.
func (s *Campaigns) ListActive(ctx context.Context) ([]models.Campaign, error) {
	return s.store.ListActiveCampaigns(ctx, s.now())
}

func (s *Campaigns) List(ctx context.Context, p auth.Principal, status models.CampaignStatus) ([]models.Campaign, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, err
	}
	return s.store.ListCampaigns(ctx, status)
}

// Get shows any campaign to superadmins. Others see only running ones, listing approved
// participants whose business is approved too.
func (s *Campaigns) Get(ctx context.Context, p auth.Principal, id string) (*models.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsSuperAdmin() {
		return c, nil
	}
	if !c.ActiveAt(s.now()) {
		return nil, errors.NewNotFoundError("campaign", id)
	}
	visible := []models.CampaignParticipant{}
	for _, part := range c.Participants {
		if part.Status == models.ParticipantApproved && part.BusinessStatus == models.BusinessApproved {
			visible = append(visible, part)
		}
	}
	c.Participants = visible
	return c, nil
}

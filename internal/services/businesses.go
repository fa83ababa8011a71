package services

import (
	"context"
	"strings"
	"time"

	"tucomercio/internal/cache"
	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/models"
	"tucomercio/internal/storage"

	"github.com/google/uuid"
)

type BusinessStore interface {
	CreateBusiness(ctx context.Context, b *models.Business) error
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	GetBusinessBySlug(ctx context.Context, slug string) (*models.Business, error)
	GetBusinessByOwner(ctx context.Context, ownerID string) (*models.Business, error)
	UpdateBusiness(ctx context.Context, b *models.Business) error
	SetBusinessStatus(ctx context.Context, id string, from, next models.BusinessStatus, reason string) error
	SetBusinessPlan(ctx context.Context, id string, planID *string) error
	SetBusinessFeatured(ctx context.Context, id string, featured bool) error
	DeleteBusiness(ctx context.Context, id string) error
	ListBusinesses(ctx context.Context, f models.BusinessFilter) (models.Page[models.BusinessSummary], error)
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	PlanForBusiness(ctx context.Context, businessID string) (models.Plan, error)
	ListPromotions(ctx context.Context, businessID string, liveAt *time.Time) ([]models.Promotion, error)
}

// BusinessSearch answers public listings.
type BusinessSearch interface {
	Search(ctx context.Context, f models.BusinessFilter) (models.Page[models.BusinessSummary], error)
}

// ViewRecorder counts detail page views.
type ViewRecorder interface {
	Incr(ctx context.Context, businessID string) error
}

// Uploads presigns image uploads and removes replaced objects.
type Uploads interface {
	PresignUpload(ctx context.Context, businessID string, kind storage.Kind, contentType string, size int64) (*storage.Upload, error)
	KeyFromURL(url string) (string, bool)
	Delete(ctx context.Context, businessID, key string) error
}

type BusinessInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Department  string          `json:"department"`
	City        string          `json:"city"`
	Address     string          `json:"address"`
	Phone       string          `json:"phone"`
	WhatsApp    string          `json:"whatsapp"`
	Email       string          `json:"email"`
	Website     string          `json:"website"`
	Instagram   string          `json:"instagram"`
	Facebook    string          `json:"facebook"`
	LogoURL     string          `json:"logoUrl"`
	Images      []string        `json:"images"`
	Schedule    models.Schedule `json:"schedule"`
}

func (in BusinessInput) validate() error {
	for field, v := range map[string]string{
		"name":       in.Name,
		"category":   in.Category,
		"department": in.Department,
		"city":       in.City,
	} {
		if err := required(field, v); err != nil {
			return err
		}
	}
	if err := in.Schedule.Validate(); err != nil {
		return errors.NewValidationFailedError("schedule: " + err.Error())
	}
	return nil
}

func (in BusinessInput) applyTo(b *models.Business) {
	b.Name = strings.TrimSpace(in.Name)
	b.Description = in.Description
	b.Category = in.Category
	b.Department = in.Department
	b.City = in.City
	b.Address = in.Address
	b.Phone = in.Phone
	b.WhatsApp = in.WhatsApp
	b.Email = in.Email
	b.Website = in.Website
	b.Instagram = in.Instagram
	b.Facebook = in.Facebook
	b.LogoURL = in.LogoURL
	b.Images = append([]string{}, in.Images...)
	b.Schedule = in.Schedule
	if b.Schedule == nil {
		b.Schedule = models.Schedule{}
	}
}

// BusinessDetail is the public business page.
type BusinessDetail struct {
	*models.Business
	OpenNow    bool               `json:"openNow"`
	Promotions []models.Promotion `json:"promotions"`
}

type Businesses struct {
	store    BusinessStore
	search   BusinessSearch
	views    ViewRecorder
	uploads  Uploads
	index    IndexSync
	notify   *Notifications
	cache    *cache.Cache
	cacheTTL time.Duration
	loc      *time.Location
	log      logger.Logger
	now      func() time.Time
}

type BusinessDeps struct {
	Store    BusinessStore
	Search   BusinessSearch
	Views    ViewRecorder
	Uploads  Uploads
	Index    IndexSync
	Notify   *Notifications
	Cache    *cache.Cache
	CacheTTL time.Duration
	Location *time.Location
	Logger   logger.Logger
}

func NewBusinesses(d BusinessDeps) *Businesses {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Businesses{
		store:    d.Store,
		search:   d.Search,
		views:    d.Views,
		uploads:  d.Uploads,
		index:    d.Index,
		notify:   d.Notify,
		cache:    d.Cache,
		cacheTTL: d.CacheTTL,
		loc:      loc,
		log:      d.Logger.WithFields(map[string]interface{}{"service": "businesses"}),
		now:      utcNow,
	}
}

// List serves the public directory; only approved businesses are returned.
func (s *Businesses) List(ctx context.Context, f models.BusinessFilter) (models.Page[models.BusinessSummary], error) {
	f.Status = models.BusinessApproved
	f.Normalize()
	return s.search.Search(ctx, f)
}

// AdminList lists businesses in any status straight from Postgres.
func (s *Businesses) AdminList(ctx context.Context, p auth.Principal, f models.BusinessFilter) (models.Page[models.BusinessSummary], error) {
	if err := requireSuperAdmin(p); err != nil {
		return models.Page[models.BusinessSummary]{}, err
	}
	return s.store.ListBusinesses(ctx, f)
}

func (s *Businesses) load(ctx context.Context, idOrSlug string) (*models.Business, error) {
	return cache.Load(ctx, s.cache, cache.BusinessKey(idOrSlug), s.cacheTTL, func(ctx context.Context) (*models.Business, error) {
		if _, err := uuid.Parse(idOrSlug); err == nil {
			return s.store.GetBusiness(ctx, idOrSlug)
		}
		return s.store.GetBusinessBySlug(ctx, idOrSlug)
	})
}

func (s *Businesses) invalidate(ctx context.Context, b *models.Business) {
	s.cache.Delete(ctx, cache.BusinessKey(b.ID), cache.BusinessKey(b.Slug))
}

func (s *Businesses) sync(ctx context.Context, businessID string) {
	if err := s.index.SyncBusiness(ctx, businessID); err != nil {
		s.log.Error("search sync failed", map[string]interface{}{"businessId": businessID, "error": err})
	}
}

func canManage(p auth.Principal, b *models.Business) bool {
	return p.IsSuperAdmin() || (p.UserID != "" && p.UserID == b.OwnerID)
}

// Get returns the business page. Businesses that are not approved are visible to their owner and
// superadmins only. Views by anyone but the owner are counted.
func (s *Businesses) Get(ctx context.Context, p auth.Principal, idOrSlug string) (*BusinessDetail, error) {
	b, err := s.load(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BusinessApproved && !canManage(p, b) {
		return nil, errors.NewNotFoundError("business", idOrSlug)
	}

	if p.UserID != b.OwnerID {
		if err := s.views.Incr(ctx, b.ID); err != nil {
			s.log.Warn("view count failed", map[string]interface{}{"businessId": b.ID, "error": err})
		}
	}

	now := s.now()
	promos, err := s.store.ListPromotions(ctx, b.ID, &now)
	if err != nil {
		return nil, err
	}
	return &BusinessDetail{Business: b, OpenNow: b.Schedule.IsOpenAt(now, s.loc), Promotions: promos}, nil
}

// Mine returns the caller's own business.
func (s *Businesses) Mine(ctx context.Context, p auth.Principal) (*models.Business, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	return s.store.GetBusinessByOwner(ctx, p.UserID)
}

// Create registers the caller's business in pending status.
func (s *Businesses) Create(ctx context.Context, p auth.Principal, in BusinessInput) (*models.Business, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if max := models.DefaultPlan.MaxImages; len(in.Images) > max {
		return nil, errors.NewPlanLimitReachedError("images", max)
	}

	now := s.now()
	b := &models.Business{
		ID:        uuid.NewString(),
		OwnerID:   p.UserID,
		Slug:      Slugify(in.Name),
		Status:    models.BusinessPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.applyTo(b)

	if err := s.store.CreateBusiness(ctx, b); err != nil {
		return nil, err
	}
	s.cache.Delete(ctx, cache.ProfileKey(p.UserID))

	s.log.Info("business created", map[string]interface{}{
		"businessId": b.ID,
		"ownerId":    b.OwnerID,
		"slug":       b.Slug,
	})
	return b, nil
}

// Update rewrites the profile fields. The image count is capped by the business plan.
func (s *Businesses) Update(ctx context.Context, p auth.Principal, id string, in BusinessInput) (*models.Business, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	b, err := s.store.GetBusiness(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(p, b) {
		return nil, errors.NewForbiddenError("only the owner can edit this business")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	plan, err := s.store.PlanForBusiness(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(in.Images) > plan.MaxImages {
		return nil, errors.NewPlanLimitReachedError("images", plan.MaxImages)
	}

	previous := append([]string{b.LogoURL}, b.Images...)
	in.applyTo(b)
	b.UpdatedAt = s.now()
	if err := s.store.UpdateBusiness(ctx, b); err != nil {
		return nil, err
	}
	s.invalidate(ctx, b)
	s.removeObjects(ctx, b, previous)
	if b.Status == models.BusinessApproved {
		s.sync(ctx, b.ID)
	}
	return b, nil
}

var statusNotifications = map[models.BusinessStatus]struct {
	typ   models.NotificationType
	title string
}{
	models.BusinessApproved:  {models.NotifyBusinessApproved, "Tu comercio fue aprobado"},
	models.BusinessRejected:  {models.NotifyBusinessRejected, "Tu comercio fue rechazado"},
	models.BusinessSuspended: {models.NotifyBusinessSuspend, "Tu comercio fue suspendido"},
}

// SetStatus moves a business through moderation, notifies the owner and syncs the search index.
func (s *Businesses) SetStatus(ctx context.Context, p auth.Principal, id string, next models.BusinessStatus, reason string) (*models.Business, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, err
	}
	b, err := s.store.GetBusiness(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanTransition(next) {
		return nil, errors.NewInvalidStateError(string(b.Status), string(next))
	}
	if err := s.store.SetBusinessStatus(ctx, id, b.Status, next, reason); err != nil {
		return nil, err
	}

	previous := b.Status
	b.Status = next
	b.StatusReason = reason
	s.invalidate(ctx, b)
	s.sync(ctx, b.ID)

	if msg, ok := statusNotifications[next]; ok {
		body := b.Name
		if reason != "" {
			body += ": " + reason
		}
		if _, err := s.notify.FanOut(ctx, Draft{
			Type:     msg.typ,
			Title:    msg.title,
			Body:     body,
			Link:     "/portal/comercio",
			SenderID: p.UserID,
			Priority: models.PriorityHigh,
		}, []string{b.OwnerID}); err != nil {
			s.log.Error("status notification failed", map[string]interface{}{"businessId": id, "error": err})
		}
	}

	s.log.Info("business status changed", map[string]interface{}{
		"businessId": id,
		"from":       previous,
		"to":         next,
		"adminId":    p.UserID,
	})
	return b, nil
}

// AssignPlan sets or clears (planID nil) the business plan. Only active plans can be assigned.
func (s *Businesses) AssignPlan(ctx context.Context, p auth.Principal, id string, planID *string) error {
	if err := requireSuperAdmin(p); err != nil {
		return err
	}
	b, err := s.store.GetBusiness(ctx, id)
	if err != nil {
		return err
	}
	if planID != nil {
		plan, err := s.store.GetPlan(ctx, *planID)
		if err != nil {
			return err
		}
		if !plan.Active {
			return errors.NewValidationFailedError("plan is not active")
		}
	}
	if err := s.store.SetBusinessPlan(ctx, id, planID); err != nil {
		return err
	}
	s.invalidate(ctx, b)
	return nil
}

func (s *Businesses) SetFeatured(ctx context.Context, p auth.Principal, id string, featured bool) error {
	if err := requireSuperAdmin(p); err != nil {
		return err
	}
	b, err := s.store.GetBusiness(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SetBusinessFeatured(ctx, id, featured); err != nil {
		return err
	}
	s.invalidate(ctx, b)
	if b.Status == models.BusinessApproved {
		s.sync(ctx, id)
	}
	return nil
}

// Delete removes the business and everything hanging from it.
func (s *Businesses) Delete(ctx context.Context, p auth.Principal, id string) error {
	if err := requireSuperAdmin(p); err != nil {
		return err
	}
	b, err := s.store.GetBusiness(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBusiness(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, b)
	s.cache.Delete(ctx, cache.ProfileKey(b.OwnerID))
	s.sync(ctx, id)

	s.log.Info("business deleted", map[string]interface{}{"businessId": id, "adminId": p.UserID})
	return nil
}

// removeObjects deletes stored images that b no longer references.
func (s *Businesses) removeObjects(ctx context.Context, b *models.Business, previous []string) {
	kept := map[string]bool{b.LogoURL: true}
	for _, u := range b.Images {
		kept[u] = true
	}
	for _, u := range previous {
		if u == "" || kept[u] {
			continue
		}
		key, ok := s.uploads.KeyFromURL(u)
		if !ok {
			continue
		}
		if err := s.uploads.Delete(ctx, b.ID, key); err != nil {
			s.log.Warn("failed to delete replaced image", map[string]interface{}{"businessId": b.ID, "key": key, "error": err})
		}
	}
}

type UploadRequest struct {
	Kind        storage.Kind `json:"kind"`
	ContentType string       `json:"contentType"`
	Size        int64        `json:"size"`
}

// PresignUpload issues an upload URL for the business logo or a gallery image.
// Gallery uploads are refused once the plan image limit is reached.
func (s *Businesses) PresignUpload(ctx context.Context, p auth.Principal, id string, req UploadRequest) (*storage.Upload, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	b, err := s.store.GetBusiness(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(p, b) {
		return nil, errors.NewForbiddenError("only the owner can upload images")
	}
	if req.Kind == storage.KindGallery {
		plan, err := s.store.PlanForBusiness(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(b.Images) >= plan.MaxImages {
			return nil, errors.NewPlanLimitReachedError("images", plan.MaxImages)
		}
	}
	return s.uploads.PresignUpload(ctx, id, req.Kind, req.ContentType, req.Size)
}

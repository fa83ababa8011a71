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
	"tucomercio/internal/store"

	"github.com/google/uuid"
)

const maxReviewComment = 2000

type ReviewStore interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	UpsertReview(ctx context.Context, r models.Review) (*store.ReviewChange, error)
	DeleteReview(ctx context.Context, id string) (*store.ReviewChange, error)
	SetReviewHidden(ctx context.Context, id string, hidden bool) (*store.ReviewChange, error)
	ReplyReview(ctx context.Context, id, text string, at time.Time) (*models.Review, error)
	GetReview(ctx context.Context, id string) (*models.Review, error)
	ListReviewsForBusiness(ctx context.Context, businessID string, includeHidden bool, page, size int) (models.Page[models.Review], error)
	ListReviewsByUser(ctx context.Context, userID string) ([]models.Review, error)
}

type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// ReviewEvent is pushed on reviews:<businessId>.
type ReviewEvent struct {
	Review models.Review `json:"review"`
	Rating models.Rating `json:"rating"`
}

type Reviews struct {
	store  ReviewStore
	pub    Publisher
	notify *Notifications
	index  IndexSync
	cache  *cache.Cache
	log    logger.Logger
	now    func() time.Time
}

func NewReviews(st ReviewStore, pub Publisher, notify *Notifications, index IndexSync, c *cache.Cache, log logger.Logger) *Reviews {
	return &Reviews{
		store:  st,
		pub:    pub,
		notify: notify,
		index:  index,
		cache:  c,
		log:    log.WithFields(map[string]interface{}{"service": "reviews"}),
		now:    utcNow,
	}
}

// Upsert writes the caller's single review of an approved business. Only a first review notifies the owner.
func (s *Reviews) Upsert(ctx context.Context, p auth.Principal, businessID string, in ReviewInput) (*ReviewEvent, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, errors.NewValidationFailedError("rating must be between 1 and 5")
	}
	comment := strings.TrimSpace(in.Comment)
	if len([]rune(comment)) > maxReviewComment {
		return nil, errors.NewValidationFailedError("comment is too long")
	}

	b, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BusinessApproved {
		return nil, errors.NewNotFoundError("business", businessID)
	}
	if b.OwnerID == p.UserID {
		return nil, errors.NewForbiddenError("owners cannot review their own business")
	}

	now := s.now()
	change, err := s.store.UpsertReview(ctx, models.Review{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		UserID:     p.UserID,
		UserName:   p.Name,
		Rating:     in.Rating,
		Comment:    comment,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	ev := s.changed(ctx, b, change, models.EventReviewUpserted)
	if change.Created {
		if _, err := s.notify.FanOut(ctx, Draft{
			Type:     models.NotifyNewReview,
			Title:    "Nueva reseña",
			Body:     p.Name + " calificó " + b.Name + " con " + stars(in.Rating),
			Link:     "/comercio/" + b.Slug,
			SenderID: p.UserID,
		}, []string{b.OwnerID}); err != nil {
			s.log.Error("review notification failed", map[string]interface{}{"reviewId": change.Review.ID, "error": err})
		}
	}
	return ev, nil
}

func stars(n int) string {
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}

// changed refreshes caches and the index after the aggregate moved, then publishes the event.
func (s *Reviews) changed(ctx context.Context, b *models.Business, change *store.ReviewChange, typ string) *ReviewEvent {
	s.cache.Delete(ctx, cache.BusinessKey(b.ID), cache.BusinessKey(b.Slug))
	if b.Status == models.BusinessApproved {
		if err := s.index.SyncBusiness(ctx, b.ID); err != nil {
			s.log.Error("search sync failed", map[string]interface{}{"businessId": b.ID, "error": err})
		}
	}
	ev := &ReviewEvent{Review: change.Review, Rating: change.Rating}
	publish(ctx, s.pub, s.log, models.ReviewsTopic(b.ID), typ, ev)
	return ev
}

// Delete removes a review; allowed to its author and superadmins.
func (s *Reviews) Delete(ctx context.Context, p auth.Principal, reviewID string) error {
	if err := requireUser(p); err != nil {
		return err
	}
	r, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return err
	}
	if r.UserID != p.UserID && !p.IsSuperAdmin() {
		return errors.NewForbiddenError("only the author can delete this review")
	}
	b, err := s.store.GetBusiness(ctx, r.BusinessID)
	if err != nil {
		return err
	}
	change, err := s.store.DeleteReview(ctx, reviewID)
	if err != nil {
		return err
	}
	s.changed(ctx, b, change, models.EventReviewDeleted)
	return nil
}

// Reply stores the owner's answer and notifies the reviewer.
func (s *Reviews) Reply(ctx context.Context, p auth.Principal, reviewID, text string) (*models.Review, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" || len([]rune(text)) > maxReviewComment {
		return nil, errors.NewValidationFailedError("reply must be between 1 and 2000 characters")
	}
	r, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetBusiness(ctx, r.BusinessID)
	if err != nil {
		return nil, err
	}
	if b.OwnerID != p.UserID {
		return nil, errors.NewForbiddenError("only the business owner can reply")
	}

	updated, err := s.store.ReplyReview(ctx, reviewID, text, s.now())
	if err != nil {
		return nil, err
	}
	publish(ctx, s.pub, s.log, models.ReviewsTopic(b.ID), models.EventReviewUpserted,
		ReviewEvent{Review: *updated, Rating: models.Rating{Avg: b.RatingAvg, Count: b.RatingCount}})

	if _, err := s.notify.FanOut(ctx, Draft{
		Type:     models.NotifyReviewReply,
		Title:    b.Name + " respondió tu reseña",
		Body:     text,
		Link:     "/comercio/" + b.Slug,
		SenderID: p.UserID,
	}, []string{r.UserID}); err != nil {
		s.log.Error("reply notification failed", map[string]interface{}{"reviewId": reviewID, "error": err})
	}
	return updated, nil
}

// SetHidden is moderation; hidden reviews drop out of listings and the rating.
func (s *Reviews) SetHidden(ctx context.Context, p auth.Principal, reviewID string, hidden bool) (*ReviewEvent, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, err
	}
	r, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetBusiness(ctx, r.BusinessID)
	if err != nil {
		return nil, err
	}
	change, err := s.store.SetReviewHidden(ctx, reviewID, hidden)
	if err != nil {
		return nil, err
	}
	typ := models.EventReviewUpserted
	if hidden {
		typ = models.EventReviewDeleted
	}
	return s.changed(ctx, b, change, typ), nil
}

// ListForBusiness is newest first. Superadmins also see hidden reviews.
func (s *Reviews) ListForBusiness(ctx context.Context, p auth.Principal, businessID string, page, size int) (models.Page[models.Review], error) {
	return s.store.ListReviewsForBusiness(ctx, businessID, p.IsSuperAdmin(), page, size)
}

func (s *Reviews) ListMine(ctx context.Context, p auth.Principal) ([]models.Review, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	return s.store.ListReviewsByUser(ctx, p.UserID)
}

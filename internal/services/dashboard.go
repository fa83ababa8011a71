package services

import (
	"context"
	"time"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/models"

	"golang.org/x/sync/errgroup"
)

type StatsStore interface {
	CountBusinessesByStatus(ctx context.Context) (map[string]int, error)
	CountUsersByRole(ctx context.Context) (map[string]int, error)
	CountReviews(ctx context.Context) (int, error)
	CountOpenSupportChats(ctx context.Context) (int, error)
	CountActiveCampaigns(ctx context.Context, now time.Time) (int, error)
	CountUnreadChats(ctx context.Context, userID string) (int, error)
	GetBusinessByOwner(ctx context.Context, ownerID string) (*models.Business, error)
	ListPromotions(ctx context.Context, businessID string, liveAt *time.Time) ([]models.Promotion, error)
}

type AdminStats struct {
	BusinessesByStatus map[string]int `json:"businessesByStatus"`
	UsersByRole        map[string]int `json:"usersByRole"`
	Reviews            int            `json:"reviews"`
	OpenSupportChats   int            `json:"openSupportChats"`
	ActiveCampaigns    int            `json:"activeCampaigns"`
}

type BusinessStats struct {
	BusinessID       string  `json:"businessId"`
	Status           string  `json:"status"`
	Views            int64   `json:"views"`
	Favorites        int     `json:"favorites"`
	RatingAvg        float64 `json:"ratingAvg"`
	Reviews          int     `json:"reviews"`
	UnreadChats      int     `json:"unreadChats"`
	ActivePromotions int     `json:"activePromotions"`
}

type Dashboard struct {
	store StatsStore
	now   func() time.Time
}

func NewDashboard(st StatsStore) *Dashboard { return &Dashboard{store: st, now: utcNow} }

// AdminStats runs the counters concurrently.
func (s *Dashboard) AdminStats(ctx context.Context, p auth.Principal) (*AdminStats, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, err
	}
	var out AdminStats
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.BusinessesByStatus, err = s.store.CountBusinessesByStatus(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.UsersByRole, err = s.store.CountUsersByRole(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.Reviews, err = s.store.CountReviews(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.OpenSupportChats, err = s.store.CountOpenSupportChats(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.ActiveCampaigns, err = s.store.CountActiveCampaigns(ctx, s.now())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// BusinessStats is the owner's portal summary.
func (s *Dashboard) BusinessStats(ctx context.Context, p auth.Principal) (*BusinessStats, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	b, err := s.store.GetBusinessByOwner(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	out := &BusinessStats{
		BusinessID: b.ID,
		Status:     string(b.Status),
		Views:      b.ViewCount,
		Favorites:  b.FavoritesCount,
		RatingAvg:  b.RatingAvg,
		Reviews:    b.RatingCount,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.UnreadChats, err = s.store.CountUnreadChats(ctx, p.UserID)
		return err
	})
	g.Go(func() error {
		now := s.now()
		promos, err := s.store.ListPromotions(ctx, b.ID, &now)
		out.ActivePromotions = len(promos)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

package services

import (
	"context"

	"tucomercio/internal/cache"
	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/models"
)

type FavoriteStore interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	SetFavorite(ctx context.Context, userID, businessID string, want *bool) (models.FavoriteState, error)
	IsFavorite(ctx context.Context, userID, businessID string) (bool, error)
	ListFavorites(ctx context.Context, userID string) ([]models.FavoriteBusiness, error)
}

// FavoriteEvent is pushed on favorites:<userId>.
type FavoriteEvent struct {
	BusinessID string `json:"businessId"`
	models.FavoriteState
}

type Favorites struct {
	store FavoriteStore
	pub   Publisher
	cache *cache.Cache
	log   logger.Logger
}

func NewFavorites(st FavoriteStore, pub Publisher, c *cache.Cache, log logger.Logger) *Favorites {
	return &Favorites{store: st, pub: pub, cache: c, log: log.WithFields(map[string]interface{}{"service": "favorites"})}
}

func (s *Favorites) Toggle(ctx context.Context, p auth.Principal, businessID string) (models.FavoriteState, error) {
	return s.set(ctx, p, businessID, nil)
}

func (s *Favorites) Add(ctx context.Context, p auth.Principal, businessID string) (models.FavoriteState, error) {
	want := true
	return s.set(ctx, p, businessID, &want)
}

func (s *Favorites) Remove(ctx context.Context, p auth.Principal, businessID string) (models.FavoriteState, error) {
	want := false
	return s.set(ctx, p, businessID, &want)
}

func (s *Favorites) set(ctx context.Context, p auth.Principal, businessID string, want *bool) (models.FavoriteState, error) {
	if err := requireUser(p); err != nil {
		return models.FavoriteState{}, err
	}
	b, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return models.FavoriteState{}, err
	}
	// Removing stays possible after a business leaves the directory.
	if b.Status != models.BusinessApproved {
		on, err := s.store.IsFavorite(ctx, p.UserID, businessID)
		if err != nil {
			return models.FavoriteState{}, err
		}
		adding := !on
		if want != nil {
			adding = *want && !on
		}
		if adding {
			return models.FavoriteState{}, errors.NewNotFoundError("business", businessID)
		}
	}

	state, err := s.store.SetFavorite(ctx, p.UserID, businessID, want)
	if err != nil {
		return models.FavoriteState{}, err
	}
	s.cache.Delete(ctx, cache.BusinessKey(b.ID), cache.BusinessKey(b.Slug))
	publish(ctx, s.pub, s.log, models.FavoritesTopic(p.UserID), models.EventFavoriteChanged,
		FavoriteEvent{BusinessID: businessID, FavoriteState: state})
	return state, nil
}

func (s *Favorites) IsFavorite(ctx context.Context, p auth.Principal, businessID string) (bool, error) {
	if err := requireUser(p); err != nil {
		return false, err
	}
	return s.store.IsFavorite(ctx, p.UserID, businessID)
}

func (s *Favorites) List(ctx context.Context, p auth.Principal) ([]models.FavoriteBusiness, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	return s.store.ListFavorites(ctx, p.UserID)
}

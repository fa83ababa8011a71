package search

import (
	"context"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/models"
)

// BusinessLoader reads the current business row.
type BusinessLoader interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
}

// Syncer brings one business document in line with Postgres.
type Syncer struct {
	loader BusinessLoader
	index  *Index
}

func NewSyncer(loader BusinessLoader, index *Index) *Syncer {
	return &Syncer{loader: loader, index: index}
}

// SyncResult reports what the sync did.
type SyncResult string

const (
	SyncIndexed SyncResult = "indexed"
	SyncRemoved SyncResult = "removed"
)

// Sync indexes the business when approved and removes it otherwise, including when it was deleted.
func (s *Syncer) Sync(ctx context.Context, businessID string) (SyncResult, error) {
	b, err := s.loader.GetBusiness(ctx, businessID)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return SyncRemoved, s.index.RemoveBusiness(ctx, businessID)
		}
		return "", err
	}
	if b.Status != models.BusinessApproved {
		return SyncRemoved, s.index.RemoveBusiness(ctx, businessID)
	}
	return SyncIndexed, s.index.IndexBusiness(ctx, b)
}

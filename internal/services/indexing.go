package services

import (
	"context"

	"tucomercio/internal/common/camunda"
	"tucomercio/internal/search"
)

// IndexSync brings the search document of a business in line with Postgres.
type IndexSync interface {
	SyncBusiness(ctx context.Context, businessID string) error
}

// WorkflowIndexSync hands the sync to the business-indexing process so failures are retried by the engine.
type WorkflowIndexSync struct {
	Starter camunda.Starter
}

func (w WorkflowIndexSync) SyncBusiness(ctx context.Context, businessID string) error {
	_, err := w.Starter.StartProcess(ctx, camunda.ProcessBusinessIndexing, map[string]interface{}{
		"businessId": businessID,
	})
	return err
}

// DirectIndexSync updates Elasticsearch inline. Used when no workflow engine is configured.
type DirectIndexSync struct {
	Syncer *search.Syncer
}

func (d DirectIndexSync) SyncBusiness(ctx context.Context, businessID string) error {
	_, err := d.Syncer.Sync(ctx, businessID)
	return err
}

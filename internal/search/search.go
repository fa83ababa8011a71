// Package search indexes approved businesses in Elasticsearch and serves text search,
// falling back to Postgres when the cluster is unavailable.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/common/metrics"
	"tucomercio/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Lister is the Postgres listing used when Elasticsearch cannot answer.
type Lister interface {
	ListBusinesses(ctx context.Context, f models.BusinessFilter) (models.Page[models.BusinessSummary], error)
}

type Index struct {
	client   *elasticsearch.Client
	index    string
	fallback Lister
	log      logger.Logger
}

func New(client *elasticsearch.Client, index string, fallback Lister, log logger.Logger) *Index {
	return &Index{
		client:   client,
		index:    index,
		fallback: fallback,
		log:      log.WithFields(map[string]interface{}{"index": index}),
	}
}

type document struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Slug           string  `json:"slug"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	Department     string  `json:"department"`
	City           string  `json:"city"`
	LogoURL        string  `json:"logoUrl,omitempty"`
	Status         string  `json:"status"`
	Featured       bool    `json:"featured"`
	RatingAvg      float64 `json:"ratingAvg"`
	RatingCount    int     `json:"ratingCount"`
	FavoritesCount int     `json:"favoritesCount"`
}

func toDocument(b *models.Business) document {
	return document{
		ID:             b.ID,
		Name:           b.Name,
		Slug:           b.Slug,
		Description:    b.Description,
		Category:       b.Category,
		Department:     b.Department,
		City:           b.City,
		LogoURL:        b.LogoURL,
		Status:         string(b.Status),
		Featured:       b.Featured,
		RatingAvg:      b.RatingAvg,
		RatingCount:    b.RatingCount,
		FavoritesCount: b.FavoritesCount,
	}
}

func (d document) summary() models.BusinessSummary {
	return models.BusinessSummary{
		ID:             d.ID,
		Name:           d.Name,
		Slug:           d.Slug,
		Category:       d.Category,
		City:           d.City,
		LogoURL:        d.LogoURL,
		RatingAvg:      d.RatingAvg,
		RatingCount:    d.RatingCount,
		FavoritesCount: d.FavoritesCount,
		Featured:       d.Featured,
	}
}

// EnsureIndex creates the index with its mapping when missing.
func (x *Index) EnsureIndex(ctx context.Context) error {
	res, err := x.client.Indices.Exists([]string{x.index}, x.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return errors.NewSearchIndexFailedError("", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = x.client.Indices.Create(x.index,
		x.client.Indices.Create.WithContext(ctx),
		x.client.Indices.Create.WithBody(strings.NewReader(indexMapping)))
	if err != nil {
		return errors.NewSearchIndexFailedError("", err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(readBody(res), "resource_already_exists_exception") {
		return errors.NewSearchIndexFailedError("", fmt.Errorf("create index: %s", res.Status()))
	}
	x.log.Info("search index created", nil)
	return nil
}

// IndexBusiness upserts the business document.
func (x *Index) IndexBusiness(ctx context.Context, b *models.Business) error {
	body, err := json.Marshal(toDocument(b))
	if err != nil {
		return errors.NewInternalError(err)
	}
	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: b.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return errors.NewSearchIndexFailedError(b.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.NewSearchIndexFailedError(b.ID, fmt.Errorf("%s: %s", res.Status(), readBody(res)))
	}
	return nil
}

// RemoveBusiness deletes the document. A missing document is not an error.
func (x *Index) RemoveBusiness(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{Index: x.index, DocumentID: id}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return errors.NewSearchIndexFailedError(id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return errors.NewSearchIndexFailedError(id, fmt.Errorf("%s: %s", res.Status(), readBody(res)))
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a public search. Listings without text go straight to Postgres.
func (x *Index) Search(ctx context.Context, f models.BusinessFilter) (models.Page[models.BusinessSummary], error) {
	f.Normalize()
	f.Status = models.BusinessApproved
	if strings.TrimSpace(f.Text) == "" {
		return x.fallback.ListBusinesses(ctx, f)
	}

	page, err := x.query(ctx, f)
	if err != nil {
		x.log.Warn("search failed, falling back to postgres", map[string]interface{}{"error": err.Error()})
		metrics.SearchFallbacks.Inc()
		return x.fallback.ListBusinesses(ctx, f)
	}
	return page, nil
}

func (x *Index) query(ctx context.Context, f models.BusinessFilter) (models.Page[models.BusinessSummary], error) {
	out := models.Page[models.BusinessSummary]{Page: f.Page, PageSize: f.PageSize, Items: []models.BusinessSummary{}}

	body, err := json.Marshal(buildBusinessQuery(f))
	if err != nil {
		return out, errors.NewInternalError(err)
	}
	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.index),
		x.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return out, errors.NewSearchQueryFailedError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return out, errors.NewSearchQueryFailedError(fmt.Errorf("%s: %s", res.Status(), readBody(res)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return out, errors.NewSearchQueryFailedError(fmt.Errorf("decode response: %w", err))
	}
	out.Total = parsed.Hits.Total.Value
	for _, h := range parsed.Hits.Hits {
		out.Items = append(out.Items, h.Source.summary())
	}
	return out, nil
}

func readBody(res *esapi.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	return strings.TrimSpace(string(raw))
}

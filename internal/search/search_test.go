package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	calls int
	last  models.BusinessFilter
}

func (f *fakeLister) ListBusinesses(_ context.Context, filter models.BusinessFilter) (models.Page[models.BusinessSummary], error) {
	f.calls++
	f.last = filter
	return models.Page[models.BusinessSummary]{
		Items: []models.BusinessSummary{{ID: "pg-1", Name: "Desde Postgres"}},
		Total: 1, Page: filter.Page, PageSize: filter.PageSize,
	}, nil
}

func newTestIndex(t *testing.T, handler http.HandlerFunc) (*Index, *fakeLister) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	lister := &fakeLister{}
	return New(client, "businesses", lister, logger.NewTestLogger(t)), lister
}

func TestSearch_UsesElasticsearchForText(t *testing.T) {
	var gotBody map[string]interface{}
	idx, lister := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/businesses/_search", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":42},"hits":[
			{"_source":{"id":"b1","name":"Pizzería Don Juan","slug":"pizzeria-don-juan","city":"Montevideo","ratingAvg":4.5,"featured":true}}
		]}}`))
	})

	page, err := idx.Search(context.Background(), models.BusinessFilter{Text: "pizza", City: "Montevideo"})
	require.NoError(t, err)
	assert.Equal(t, 0, lister.calls)
	assert.Equal(t, 42, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "pizzeria-don-juan", page.Items[0].Slug)
	assert.True(t, page.Items[0].Featured)
	assert.Equal(t, float64(20), gotBody["size"])
}

func TestSearch_FallsBackWhenClusterFails(t *testing.T) {
	idx, lister := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	})

	page, err := idx.Search(context.Background(), models.BusinessFilter{Text: "pizza"})
	require.NoError(t, err)
	assert.Equal(t, 1, lister.calls)
	assert.Equal(t, models.BusinessApproved, lister.last.Status)
	assert.Equal(t, "pg-1", page.Items[0].ID)
}

func TestSearch_ListingWithoutTextSkipsElasticsearch(t *testing.T) {
	idx, lister := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})

	_, err := idx.Search(context.Background(), models.BusinessFilter{Category: "cafeterias", Status: models.BusinessPending})
	require.NoError(t, err)
	assert.Equal(t, 1, lister.calls)
	assert.Equal(t, models.BusinessApproved, lister.last.Status)
	assert.Equal(t, "cafeterias", lister.last.Category)
}

func TestIndexBusiness_PutsDocument(t *testing.T) {
	var doc document
	idx, _ := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/businesses/_doc/b1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := idx.IndexBusiness(context.Background(), &models.Business{
		ID: "b1", Name: "La Esquina", Category: "bares", Status: models.BusinessApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, "approved", doc.Status)
	assert.Equal(t, "bares", doc.Category)
}

func TestRemoveBusiness(t *testing.T) {
	t.Run("missing document is fine", func(t *testing.T) {
		idx, _ := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"result":"not_found"}`))
		})
		assert.NoError(t, idx.RemoveBusiness(context.Background(), "b1"))
	})

	t.Run("cluster error is reported", func(t *testing.T) {
		idx, _ := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad"}`))
		})
		err := idx.RemoveBusiness(context.Background(), "b1")
		assert.True(t, errors.HasCode(err, errors.ErrCodeSearchIndexFailed))
	})
}

func TestBuildBusinessQuery(t *testing.T) {
	featured := true
	q := buildBusinessQuery(models.BusinessFilter{
		Text: "  café ", Department: "Canelones", Featured: &featured, Page: 3, PageSize: 10,
	})

	assert.Equal(t, 20, q["from"])
	assert.Equal(t, 10, q["size"])

	boolQ := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := boolQ["must"].([]interface{})
	require.Len(t, must, 1)
	mm := must[0].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, "café", mm["query"])

	filter := boolQ["filter"].([]interface{})
	assert.Contains(t, filter, map[string]interface{}{"term": map[string]interface{}{"status": "approved"}})
	assert.Contains(t, filter, map[string]interface{}{"term": map[string]interface{}{"department": "Canelones"}})
	assert.Contains(t, filter, map[string]interface{}{"term": map[string]interface{}{"featured": true}})
	assert.Len(t, filter, 3)
}

type loaderFunc func(ctx context.Context, id string) (*models.Business, error)

func (f loaderFunc) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	return f(ctx, id)
}

func TestSyncer(t *testing.T) {
	var methods []string
	idx, _ := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	})

	businesses := map[string]*models.Business{
		"approved":  {ID: "approved", Status: models.BusinessApproved},
		"suspended": {ID: "suspended", Status: models.BusinessSuspended},
	}
	s := NewSyncer(loaderFunc(func(_ context.Context, id string) (*models.Business, error) {
		if b, ok := businesses[id]; ok {
			return b, nil
		}
		return nil, errors.NewNotFoundError("business", id)
	}), idx)

	tests := []struct {
		id     string
		want   SyncResult
		method string
	}{
		{"approved", SyncIndexed, http.MethodPut},
		{"suspended", SyncRemoved, http.MethodDelete},
		{"deleted", SyncRemoved, http.MethodDelete},
	}
	for _, tt := range tests {
		methods = nil
		got, err := s.Sync(context.Background(), tt.id)
		require.NoError(t, err, tt.id)
		assert.Equal(t, tt.want, got, tt.id)
		assert.Equal(t, []string{tt.method}, methods, tt.id)
	}
}

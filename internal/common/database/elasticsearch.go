package database

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"tucomercio/internal/common/config"
	"tucomercio/internal/common/errors"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticsearchClient holds the client and the business index name.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
	Index  string
}

// NewElasticsearch builds a client that retries gateway errors from the cluster.
func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		MaxRetries:    3,
	})
	if err != nil {
		return nil, errors.NewExternalServiceError("elasticsearch", err)
	}
	return &ElasticsearchClient{Client: es, Index: cfg.Index}, nil
}

// Ping checks cluster health. A red cluster counts as unavailable; yellow is
// normal for a single node.
func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.Client.Cluster.Health(c.Client.Cluster.Health.WithContext(ctx))
	if err != nil {
		return errors.NewExternalServiceError("elasticsearch", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.NewExternalServiceError("elasticsearch", fmt.Errorf("cluster health: %s", res.Status()))
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return errors.NewExternalServiceError("elasticsearch", fmt.Errorf("decode cluster health: %w", err))
	}
	if health.Status == "red" {
		return errors.NewExternalServiceError("elasticsearch", fmt.Errorf("cluster status is red"))
	}
	return nil
}

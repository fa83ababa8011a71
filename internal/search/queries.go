package search

import (
	"strings"

	"tucomercio/internal/models"
)

// buildBusinessQuery turns a public listing filter into an Elasticsearch bool query.
// Only approved businesses are ever matched.
func buildBusinessQuery(f models.BusinessFilter) map[string]interface{} {
	must := []interface{}{}
	filter := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"status": string(models.BusinessApproved)}},
	}

	if text := strings.TrimSpace(f.Text); text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     text,
				"fields":    []string{"name^3", "description^2", "category", "city"},
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		})
	}
	if len(must) == 0 {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	for field, value := range map[string]string{
		"category":   f.Category,
		"department": f.Department,
		"city":       f.City,
	} {
		if value != "" {
			filter = append(filter, map[string]interface{}{"term": map[string]interface{}{field: value}})
		}
	}
	if f.Featured != nil {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"featured": *f.Featured}})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filter,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"featured": "desc"},
			"_score",
			map[string]interface{}{"ratingAvg": "desc"},
		},
		"from": (f.Page - 1) * f.PageSize,
		"size": f.PageSize,
	}
}

// indexMapping keeps filter fields as keywords so term filters match exactly.
const indexMapping = `{
  "mappings": {
    "properties": {
      "id":             {"type": "keyword"},
      "name":           {"type": "text", "analyzer": "spanish"},
      "slug":           {"type": "keyword"},
      "description":    {"type": "text", "analyzer": "spanish"},
      "category":       {"type": "keyword"},
      "department":     {"type": "keyword"},
      "city":           {"type": "keyword"},
      "logoUrl":        {"type": "keyword", "index": false},
      "status":         {"type": "keyword"},
      "featured":       {"type": "boolean"},
      "ratingAvg":      {"type": "float"},
      "ratingCount":    {"type": "integer"},
      "favoritesCount": {"type": "integer"}
    }
  }
}`

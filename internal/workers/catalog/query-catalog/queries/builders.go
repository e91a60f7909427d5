// internal/workers/catalog/query-catalog/queries/builders.go
package queries

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var (
	ErrUnknownQueryType = errors.New("unknown query type")
	ErrMissingIndex     = errors.New("index name is required")
)

// CatalogQuery describes one search request against the university catalog.
type CatalogQuery struct {
	Index      string
	QueryType  string
	Filters    map[string]interface{}
	Pagination struct {
		From int
		Size int
	}
}

// BuildQuery assembles the Elasticsearch search request for a catalog query
// type.
func BuildQuery(cq CatalogQuery) (*esapi.SearchRequest, error) {
	if cq.Index == "" {
		return nil, ErrMissingIndex
	}

	var queryBody map[string]interface{}

	switch cq.QueryType {
	case "catalog_search":
		queryBody = buildCatalogSearchQuery(cq)
	case "similar_universities":
		queryBody = buildSimilarUniversitiesQuery(cq)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueryType, cq.QueryType)
	}

	body, _ := json.Marshal(queryBody)

	req := esapi.SearchRequest{
		Index:  []string{cq.Index},
		Body:   strings.NewReader(string(body)),
		From:   &cq.Pagination.From,
		Size:   &cq.Pagination.Size,
		Pretty: true,
	}

	return &req, nil
}

// buildCatalogSearchQuery builds the main catalog search dynamically from the
// provided filters.
func buildCatalogSearchQuery(cq CatalogQuery) map[string]interface{} {
	boolQuery := make(map[string]interface{})
	mustClauses := []interface{}{}
	filterClauses := []interface{}{}

	// Free-text search across name and descriptive fields
	if keywords, ok := cq.Filters["query"].(string); ok && keywords != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  keywords,
				"fields": []string{"name^3", "description^2", "city"},
				"type":   "best_fields",
			},
		})
	}

	// Institution type filter
	if instType, ok := cq.Filters["type"].(string); ok && instType != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"type": instType},
		})
	}

	// State filter
	if state, ok := cq.Filters["state"].(string); ok && state != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"state": state},
		})
	}

	// Acceptance-rate ceiling. Schools without a known rate still match: the
	// range clause sits inside a should with an exists-negation so unknowns
	// pass through.
	if maxRate, ok := coerceFloat(cq.Filters["maxAcceptanceRate"]); ok && maxRate > 0 {
		filterClauses = append(filterClauses, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{
						"range": map[string]interface{}{
							"acceptance_rate": map[string]interface{}{"lte": maxRate},
						},
					},
					map[string]interface{}{
						"bool": map[string]interface{}{
							"must_not": []interface{}{
								map[string]interface{}{
									"exists": map[string]interface{}{"field": "acceptance_rate"},
								},
							},
						},
					},
				},
				"minimum_should_match": 1,
			},
		})
	}

	if len(mustClauses) == 0 {
		mustClauses = append(mustClauses, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	boolQuery["must"] = mustClauses
	if len(filterClauses) > 0 {
		boolQuery["filter"] = filterClauses
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": boolQuery,
		},
	}

	// Sorting: missing values always sort last so N/A never floats to the
	// top of an ascending numeric sort.
	if sortBy, ok := cq.Filters["sortBy"].(string); ok {
		switch sortBy {
		case "rank":
			query["sort"] = []interface{}{
				map[string]interface{}{"us_news_rank": map[string]interface{}{"order": "asc", "missing": "_last"}},
			}
		case "acceptance_rate":
			query["sort"] = []interface{}{
				map[string]interface{}{"acceptance_rate": map[string]interface{}{"order": "asc", "missing": "_last"}},
			}
		case "tuition":
			query["sort"] = []interface{}{
				map[string]interface{}{"tuition": map[string]interface{}{"order": "asc", "missing": "_last"}},
			}
		case "name":
			query["sort"] = []interface{}{
				map[string]interface{}{"name.keyword": map[string]interface{}{"order": "asc"}},
			}
		}
	}

	return query
}

// buildSimilarUniversitiesQuery finds schools resembling a reference school
// by type, state and acceptance-rate band.
func buildSimilarUniversitiesQuery(cq CatalogQuery) map[string]interface{} {
	shouldClauses := []interface{}{}
	mustNotClauses := []interface{}{}

	if universityID, ok := cq.Filters["universityId"].(string); ok && universityID != "" {
		mustNotClauses = append(mustNotClauses, map[string]interface{}{
			"term": map[string]interface{}{"university_id": universityID},
		})
	}

	if instType, ok := cq.Filters["type"].(string); ok && instType != "" {
		shouldClauses = append(shouldClauses, map[string]interface{}{
			"term": map[string]interface{}{"type": instType},
		})
	}

	if state, ok := cq.Filters["state"].(string); ok && state != "" {
		shouldClauses = append(shouldClauses, map[string]interface{}{
			"term": map[string]interface{}{"state": state},
		})
	}

	if rate, ok := coerceFloat(cq.Filters["acceptanceRate"]); ok && rate > 0 {
		shouldClauses = append(shouldClauses, map[string]interface{}{
			"range": map[string]interface{}{
				"acceptance_rate": map[string]interface{}{
					"gte": rate - 10,
					"lte": rate + 10,
				},
			},
		})
	}

	boolQuery := map[string]interface{}{
		"should":               shouldClauses,
		"minimum_should_match": 1,
	}
	if len(mustNotClauses) > 0 {
		boolQuery["must_not"] = mustNotClauses
	}
	if len(shouldClauses) == 0 {
		boolQuery = map[string]interface{}{
			"must": []interface{}{map[string]interface{}{"match_all": map[string]interface{}{}}},
		}
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": boolQuery,
		},
	}
}

func coerceFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

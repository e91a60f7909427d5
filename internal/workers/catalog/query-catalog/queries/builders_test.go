// internal/workers/catalog/query-catalog/queries/builders_test.go
package queries

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, cq CatalogQuery) map[string]interface{} {
	req, err := BuildQuery(cq)
	require.NoError(t, err)

	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestBuildQuery_MissingIndex(t *testing.T) {
	_, err := BuildQuery(CatalogQuery{QueryType: "catalog_search"})
	assert.ErrorIs(t, err, ErrMissingIndex)
}

func TestBuildQuery_UnknownQueryType(t *testing.T) {
	_, err := BuildQuery(CatalogQuery{Index: "university-catalog", QueryType: "who_knows"})
	assert.ErrorIs(t, err, ErrUnknownQueryType)
}

func TestBuildCatalogSearch_TextQueryBoostsName(t *testing.T) {
	body := decodeBody(t, CatalogQuery{
		Index:     "university-catalog",
		QueryType: "catalog_search",
		Filters:   map[string]interface{}{"query": "engineering"},
	})

	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := boolQuery["must"].([]interface{})
	require.Len(t, must, 1)

	multiMatch := must[0].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, "engineering", multiMatch["query"])
	assert.Contains(t, multiMatch["fields"], "name^3")
}

func TestBuildCatalogSearch_NoFiltersIsMatchAll(t *testing.T) {
	body := decodeBody(t, CatalogQuery{
		Index:     "university-catalog",
		QueryType: "catalog_search",
		Filters:   map[string]interface{}{},
	})

	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := boolQuery["must"].([]interface{})
	require.Len(t, must, 1)
	assert.Contains(t, must[0].(map[string]interface{}), "match_all")
}

func TestBuildCatalogSearch_AcceptanceRateCeilingPassesUnknowns(t *testing.T) {
	body := decodeBody(t, CatalogQuery{
		Index:     "university-catalog",
		QueryType: "catalog_search",
		Filters:   map[string]interface{}{"maxAcceptanceRate": 25.0},
	})

	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	filters := boolQuery["filter"].([]interface{})
	require.Len(t, filters, 1)

	// The ceiling is a should of (rate <= max) OR (no rate field at all), so
	// schools with an unknown rate are not excluded.
	rateClause := filters[0].(map[string]interface{})["bool"].(map[string]interface{})
	should := rateClause["should"].([]interface{})
	require.Len(t, should, 2)
	assert.Contains(t, should[0].(map[string]interface{}), "range")
	assert.Contains(t, should[1].(map[string]interface{}), "bool")
}

func TestBuildCatalogSearch_TermFilters(t *testing.T) {
	body := decodeBody(t, CatalogQuery{
		Index:     "university-catalog",
		QueryType: "catalog_search",
		Filters: map[string]interface{}{
			"type":  "private",
			"state": "CA",
		},
	})

	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	filters := boolQuery["filter"].([]interface{})
	assert.Len(t, filters, 2)
}

func TestBuildCatalogSearch_NumericSortsPutMissingLast(t *testing.T) {
	for _, sortBy := range []string{"rank", "acceptance_rate", "tuition"} {
		t.Run(sortBy, func(t *testing.T) {
			body := decodeBody(t, CatalogQuery{
				Index:     "university-catalog",
				QueryType: "catalog_search",
				Filters:   map[string]interface{}{"sortBy": sortBy},
			})

			sorts := body["sort"].([]interface{})
			require.Len(t, sorts, 1)
			for _, spec := range sorts[0].(map[string]interface{}) {
				field := spec.(map[string]interface{})
				assert.Equal(t, "asc", field["order"])
				assert.Equal(t, "_last", field["missing"])
			}
		})
	}
}

func TestBuildSimilarUniversities_ExcludesReferenceSchool(t *testing.T) {
	body := decodeBody(t, CatalogQuery{
		Index:     "university-catalog",
		QueryType: "similar_universities",
		Filters: map[string]interface{}{
			"universityId":   "stanford-university",
			"type":           "private",
			"acceptanceRate": 4.0,
		},
	})

	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	mustNot := boolQuery["must_not"].([]interface{})
	require.Len(t, mustNot, 1)

	term := mustNot[0].(map[string]interface{})["term"].(map[string]interface{})
	assert.Equal(t, "stanford-university", term["university_id"])

	should := boolQuery["should"].([]interface{})
	assert.Len(t, should, 2)
}

// internal/models/query_types.go
package models

type QueryType string

const (
	QueryTypeCatalogSearch       QueryType = "catalog_search"
	QueryTypeSimilarUniversities QueryType = "similar_universities"
)

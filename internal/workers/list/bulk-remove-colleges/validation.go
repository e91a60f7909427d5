// internal/workers/list/bulk-remove-colleges/validation.go
package bulkremovecolleges

import "admissions-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"userEmail", "universityIds"},
		Properties: map[string]validation.Property{
			"userEmail": {
				Type:        "string",
				Description: "Email address of the list owner",
				MinLength:   intPtr(5),
				MaxLength:   intPtr(255),
			},
			"universityIds": {
				Type:        "array",
				Description: "Catalog identifiers to remove from the list",
			},
		},
		// Job variables carry other process state alongside this input
		AdditionalProperties: true,
	}
}

func intPtr(i int) *int {
	return &i
}

// internal/workers/list/toggle-college/validation.go
package togglecollege

import "admissions-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"userEmail", "universityId", "action"},
		Properties: map[string]validation.Property{
			"userEmail": {
				Type:        "string",
				Description: "Email address of the list owner",
				MinLength:   intPtr(5),
				MaxLength:   intPtr(255),
			},
			"universityId": {
				Type:        "string",
				Description: "Catalog identifier of the university",
				MinLength:   intPtr(1),
				MaxLength:   intPtr(200),
			},
			"name": {
				Type:        "string",
				Description: "Display name of the university",
				MaxLength:   intPtr(300),
			},
			"intendedMajor": {
				Type:        "string",
				Description: "Intended major for this application",
				MaxLength:   intPtr(200),
			},
			"action": {
				Type:        "string",
				Description: "List mutation to perform",
				Enum:        []string{ActionAdd, ActionRemove},
			},
		},
		// Job variables carry other process state alongside this input
		AdditionalProperties: true,
	}
}

func intPtr(i int) *int {
	return &i
}

// internal/workers/fit/parse-fit-response/models.go
package parsefitresponse

import "admissions-workers/internal/models"

type Input struct {
	UserEmail    string `json:"userEmail"`
	UniversityID string `json:"universityId"`
	// AgentResponse is whatever the agent produced: a raw string, a decoded
	// JSON object, or nothing at all.
	AgentResponse interface{} `json:"agentResponse"`
}

type Output struct {
	Record models.FitRecord `json:"fitRecord"`
	Source models.FitSource `json:"source"`
}

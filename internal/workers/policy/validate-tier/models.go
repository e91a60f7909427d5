// internal/workers/policy/validate-tier/models.go
package validatetier

type Input struct {
	UserEmail string `json:"userEmail"`
	Action    string `json:"action"`
	ListSize  int    `json:"listSize,omitempty"`
}

type Output struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	Detail           string `json:"detail,omitempty"`
	Tier             string `json:"tier"`
	CreditsRemaining int    `json:"creditsRemaining"`
	ListMax          int    `json:"listMax"`
}

// internal/workers/notification/notify-fit-complete/models.go
package notifyfitcomplete

type Input struct {
	UserEmail      string                 `json:"userEmail"`
	UniversityID   string                 `json:"universityId"`
	UniversityName string                 `json:"universityName,omitempty"`
	Outcome        string                 `json:"outcome"` // "complete", "error", "credits_required"
	Priority       string                 `json:"priority,omitempty"`
	FitCategory    string                 `json:"fitCategory,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"` // "sent", "failed", "disabled"
	EmailSent      bool   `json:"emailSent"`
	SMSSent        bool   `json:"smsSent"`
	SentAt         string `json:"sentAt"` // ISO 8601
}

// Terminal fit outcomes this worker reacts to
const (
	OutcomeComplete        = "complete"
	OutcomeError           = "error"
	OutcomeCreditsRequired = "credits_required"
)

// Statuses
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

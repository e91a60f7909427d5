// Package tiergate decides whether list and fit operations are permitted for
// a subscription tier. Decisions are pure: no network, no clock, no state
// beyond the arguments. Callers route denials by reason, since a credits
// shortfall leads to a credits purchase while a tier violation leads to a
// subscription upgrade.
package tiergate

import (
	"fmt"

	"admissions-workers/internal/models"
)

// Action is a gated operation.
type Action string

const (
	ActionAddCollege    Action = "add_college"
	ActionRemoveCollege Action = "remove_college"
	ActionBulkRemove    Action = "bulk_remove"
	ActionComputeFit    Action = "compute_fit"
	ActionBulkRefresh   Action = "bulk_refresh"
)

// Reason classifies a denial.
type Reason string

const (
	ReasonTierViolation       Reason = "TIER_VIOLATION"
	ReasonInsufficientCredits Reason = "INSUFFICIENT_CREDITS"
)

// Decision is the gate verdict. Reason and Detail are set only on denial.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason Reason, detail string) Decision {
	return Decision{Allowed: false, Reason: reason, Detail: detail}
}

// CreditCost returns the credits consumed by an action. Computing a single
// fit and refreshing the whole cache each spend one credit.
func CreditCost(action Action) int {
	switch action {
	case ActionComputeFit, ActionBulkRefresh:
		return 1
	}
	return 0
}

// Decide evaluates an action against the current tier, list size, and credit
// balance.
//
// Rules: the free tier caps the list at models.FreeListMax and never permits
// removal (free lists are permanent once earned). Paid tiers carry no list
// restrictions. Credit-consuming actions are denied when the balance cannot
// cover the cost, regardless of tier.
func Decide(tier models.Tier, listSize, creditsRemaining int, action Action) Decision {
	switch action {
	case ActionRemoveCollege, ActionBulkRemove:
		if !tier.IsPaid() {
			return deny(ReasonTierViolation, "free tier lists are permanent; removal requires a paid subscription")
		}

	case ActionAddCollege:
		if !tier.IsPaid() && listSize >= models.FreeListMax {
			return deny(ReasonTierViolation,
				fmt.Sprintf("free tier list limit of %d reached", models.FreeListMax))
		}
	}

	if cost := CreditCost(action); cost > 0 && creditsRemaining < cost {
		return deny(ReasonInsufficientCredits,
			fmt.Sprintf("action requires %d credit(s), %d remaining", cost, creditsRemaining))
	}

	return allow()
}

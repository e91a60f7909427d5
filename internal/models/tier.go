// internal/models/tier.go
package models

type Tier string

const (
	TierFree       Tier = "free"
	TierMonthly    Tier = "monthly"
	TierSeasonPass Tier = "season_pass"
)

// UnlimitedListMax marks a tier without a list-size cap.
const UnlimitedListMax = -1

const FreeListMax = 3

type TierState struct {
	Tier             Tier `json:"tier"`
	CreditsRemaining int  `json:"creditsRemaining"`
	ListMax          int  `json:"listMax"`
}

func (t Tier) IsPaid() bool {
	return t == TierMonthly || t == TierSeasonPass
}

// DefaultTierState is what an unknown user resolves to: free tier, no credits.
func DefaultTierState() TierState {
	return TierState{
		Tier:             TierFree,
		CreditsRemaining: 0,
		ListMax:          FreeListMax,
	}
}

// ListMaxFor returns the list cap for a tier.
func ListMaxFor(tier Tier) int {
	if tier.IsPaid() {
		return UnlimitedListMax
	}
	return FreeListMax
}

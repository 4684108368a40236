package graph

import "github.com/dkarpov/intake/internal/model"

// Tier boundaries are a fixed partition of the sequence-number range:
// tier 1 covers positions 1-5, tier 2 covers 6-8, tier 3 covers 9-13,
// tier 4 everything from 14 up.
const (
	tier1Max = 5
	tier2Max = 8
	tier3Max = 13
)

// TierOf maps a question's sequence number to its tier (1-4).
func TierOf(sequence int) int {
	switch {
	case sequence <= tier1Max:
		return 1
	case sequence <= tier2Max:
		return 2
	case sequence <= tier3Max:
		return 3
	default:
		return 4
	}
}

// MaxTier maps a subscription level to the highest reachable tier.
// Unknown levels get the STANDARD ceiling.
func MaxTier(level model.TierLevel) int {
	switch level {
	case model.TierEnterprise:
		return 4
	case model.TierPremium:
		return 3
	default:
		return 2
	}
}

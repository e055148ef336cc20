package model

// Tier is the routing class of an incoming request.
type Tier string

const (
	// TierQuick answers with a single lightweight worker.
	TierQuick Tier = "quick"
	// TierStandard runs one or two specialists in a single phase.
	TierStandard Tier = "standard"
	// TierFull runs the three-phase gather → assess-risk → decide pipeline.
	TierFull Tier = "full"
	// TierSpecial covers review requests served from the desk ledgers.
	TierSpecial Tier = "special"
)

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierQuick, TierStandard, TierFull, TierSpecial:
		return true
	default:
		return false
	}
}

// Rank orders tiers for rule evaluation; higher ranks are tried first.
func (t Tier) Rank() int {
	switch t {
	case TierSpecial:
		return 4
	case TierFull:
		return 3
	case TierStandard:
		return 2
	case TierQuick:
		return 1
	default:
		return 0
	}
}

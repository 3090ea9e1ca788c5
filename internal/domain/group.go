package domain

// ExitStrategy selects how a group's members are exited.
type ExitStrategy string

const (
	ExitStrategyIndividual ExitStrategy = "individual"
	ExitStrategyGrouped    ExitStrategy = "grouped"
)

// GroupStatus tracks whether a group is still accepting evaluations.
type GroupStatus string

const (
	GroupStatusActive  GroupStatus = "active"
	GroupStatusClosing GroupStatus = "closing"
)

// PositionGroup aggregates the open positions on one token.
type PositionGroup struct {
	TokenID           string
	Token             string
	MemberIDs         []string
	TotalExposure     float64
	AverageEntryPrice float64
	CombinedTargets   []float64
	ExitStrategy      ExitStrategy
	Status            GroupStatus
}

// Clone returns a deep copy.
func (g PositionGroup) Clone() PositionGroup {
	out := g
	out.MemberIDs = append([]string(nil), g.MemberIDs...)
	out.CombinedTargets = append([]float64(nil), g.CombinedTargets...)
	return out
}

package position

import (
	"math"
	"sort"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// GroupStore maintains one PositionGroup per token. It is not safe for
// concurrent use; the Registry serialises every call.
type GroupStore struct {
	groups map[string]*domain.PositionGroup
}

// NewGroupStore creates an empty GroupStore.
func NewGroupStore() *GroupStore {
	return &GroupStore{groups: make(map[string]*domain.PositionGroup)}
}

// Attach adds a position to its token's group, creating the group if needed.
func (s *GroupStore) Attach(pos domain.Position) {
	tokenID := pos.Signal.TokenID
	g, ok := s.groups[tokenID]
	if !ok {
		g = &domain.PositionGroup{
			TokenID:      tokenID,
			Token:        pos.Signal.Token,
			ExitStrategy: domain.ExitStrategyIndividual,
			Status:       domain.GroupStatusActive,
		}
		s.groups[tokenID] = g
	}
	for _, id := range g.MemberIDs {
		if id == pos.ID {
			return
		}
	}
	g.MemberIDs = append(g.MemberIDs, pos.ID)
}

// Detach removes a position from its token's group. The Registry calls it
// when a position turns terminal; the following Recompute deletes a group
// left without members.
func (s *GroupStore) Detach(positionID, tokenID string) {
	g, ok := s.groups[tokenID]
	if !ok {
		return
	}
	for i, id := range g.MemberIDs {
		if id == positionID {
			g.MemberIDs = append(g.MemberIDs[:i], g.MemberIDs[i+1:]...)
			return
		}
	}
}

// Recompute refreshes the aggregate fields of a token's group from the
// current member state. Members that are no longer open are dropped and a
// group without open members is deleted.
func (s *GroupStore) Recompute(tokenID string, lookup func(id string) (domain.Position, bool)) {
	g, ok := s.groups[tokenID]
	if !ok {
		return
	}

	var (
		members  []string
		exposure float64
		weighted float64
		priceSum float64
		targets  []float64
	)
	for _, id := range g.MemberIDs {
		pos, found := lookup(id)
		if !found || !pos.Status.Open() {
			continue
		}
		members = append(members, id)
		exposure += pos.RemainingAmount
		weighted += pos.EntryPrice() * pos.RemainingAmount
		priceSum += pos.EntryPrice()
		targets = append(targets, pos.Signal.Targets...)
	}

	if len(members) == 0 {
		delete(s.groups, tokenID)
		return
	}

	g.MemberIDs = members
	g.TotalExposure = exposure
	if exposure > 0 {
		g.AverageEntryPrice = weighted / exposure
	} else {
		g.AverageEntryPrice = priceSum / float64(len(members))
	}
	g.CombinedTargets = dedupSorted(targets)
	if len(members) > 1 {
		g.ExitStrategy = domain.ExitStrategyGrouped
	} else {
		g.ExitStrategy = domain.ExitStrategyIndividual
	}
}

// Get returns a copy of the group for tokenID.
func (s *GroupStore) Get(tokenID string) (domain.PositionGroup, bool) {
	g, ok := s.groups[tokenID]
	if !ok {
		return domain.PositionGroup{}, false
	}
	return g.Clone(), true
}

// List returns copies of every group ordered by token id.
func (s *GroupStore) List() []domain.PositionGroup {
	out := make([]domain.PositionGroup, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// SetStatus marks a group as closing or active.
func (s *GroupStore) SetStatus(tokenID string, status domain.GroupStatus) {
	if g, ok := s.groups[tokenID]; ok {
		g.Status = status
	}
}

const priceEpsilon = 1e-9

func dedupSorted(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if math.Abs(v-out[len(out)-1]) > priceEpsilon {
			out = append(out, v)
		}
	}
	return out
}

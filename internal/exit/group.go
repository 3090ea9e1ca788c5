package exit

import (
	"math"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// GroupDecision is the outcome of evaluating every member of a grouped
// token at one price.
type GroupDecision struct {
	// Full exits every member once, for Reason.
	Full        bool
	Reason      domain.ExitReason
	TriggeredBy string
	Level       float64
	// Partials holds the target exits propagated to members.
	Partials map[string]Decision
	// Individual holds per-member trailing stop exits.
	Individual map[string]Decision
}

// Empty reports whether nothing needs executing.
func (g GroupDecision) Empty() bool {
	return !g.Full && len(g.Partials) == 0 && len(g.Individual) == 0
}

// EvaluateGroup evaluates a grouped token. A time exit or stop loss on any
// member exits the whole group. A newly reached combined target exits every
// member holding it, each by its own ladder percentage. Trailing stops stay
// per member. Members are advanced in place like Evaluate.
func (e *Engine) EvaluateGroup(members []*domain.Position, combinedTargets []float64, price float64) GroupDecision {
	out := GroupDecision{
		Partials:   make(map[string]Decision),
		Individual: make(map[string]Decision),
	}
	now := e.now()

	for _, m := range members {
		if !now.Before(m.Signal.MaxExitTime) {
			out.Full, out.Reason, out.TriggeredBy = true, domain.ExitReasonTimeExit, m.ID
			return out
		}
	}

	for _, target := range combinedTargets {
		anyHit := false
		for _, m := range members {
			i := indexOf(m.Signal.Targets, target)
			if i < 0 || (i < len(m.TrailingStop.TargetsHit) && m.TrailingStop.TargetsHit[i]) {
				continue
			}
			if !targetReached(m.Signal.Direction, price, target) {
				continue
			}
			anyHit = true
			markHit(m, i, price)
			if pct := e.ExitPercentage(*m, i); pct > 0 {
				out.Partials[m.ID] = Decision{
					Kind:        KindPartial,
					Percentage:  pct,
					TargetIndex: i,
					TargetPrice: m.Signal.Targets[i],
					Reason:      domain.ExitReasonTargetHit,
					Level:       target,
				}
			}
		}
		if anyHit {
			break
		}
	}
	if len(out.Partials) > 0 {
		return out
	}

	for _, m := range members {
		if m.TrailingStop.Phase() == domain.PhaseGuarding &&
			stopBreached(m.Signal.Direction, price, m.Signal.StopLoss) {
			out.Full, out.Reason, out.TriggeredBy, out.Level = true, domain.ExitReasonStopLoss, m.ID, m.Signal.StopLoss
			return out
		}
	}

	for _, m := range members {
		if m.TrailingStop.Phase() != domain.PhaseTrailing {
			continue
		}
		if level, hit := trail(m, price); hit {
			out.Individual[m.ID] = full(domain.ExitReasonTrailingStop, level)
		}
	}
	return out
}

func indexOf(targets []float64, target float64) int {
	for i, t := range targets {
		if math.Abs(t-target) <= 1e-9 {
			return i
		}
	}
	return -1
}

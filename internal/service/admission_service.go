package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/position"
)

// AdmissionConfig holds the limits and policies applied to incoming signals.
type AdmissionConfig struct {
	MaxConcurrentPositions int
	MaxPositionsPerToken   int
	MaxTotalExposure       float64
	MaxTokenExposure       float64
	ConflictPolicy         domain.ConflictPolicy
	MergePolicy            domain.MergePolicy
	// MergePriceTolerance is the relative price distance under which a
	// same-direction signal may merge into an existing position.
	MergePriceTolerance float64
}

// AdmissionService decides whether and how a signal becomes a position.
// Callers serialise Evaluate per token; it reads group exposure and the
// result is only valid until the next mutation on that token.
type AdmissionService struct {
	registry *position.Registry
	cfg      AdmissionConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewAdmissionService creates an AdmissionService.
func NewAdmissionService(registry *position.Registry, cfg AdmissionConfig, logger *slog.Logger) *AdmissionService {
	if cfg.MergePriceTolerance <= 0 {
		cfg.MergePriceTolerance = 0.05
	}
	return &AdmissionService{
		registry: registry,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "admission")),
	}
}

// Evaluate runs the admission checks in order:
//  1. global concurrent position ceiling
//  2. per-token ceiling, with merge into a similar position when allowed
//  3. total and per-token exposure ceilings
//  4. opposing-direction conflict resolved by policy
func (s *AdmissionService) Evaluate(ctx context.Context, sig domain.Signal, size float64) domain.AdmissionDecision {
	if !sig.Direction.Tradable() {
		return s.cancel(ctx, sig, "hold signals do not open positions")
	}

	// Check 1: global ceiling. Tokens are admitted concurrently, so this is
	// a fast path; Registry.Create holds the hard cap.
	if s.cfg.MaxConcurrentPositions > 0 {
		if open := s.registry.OpenCount(); open >= s.cfg.MaxConcurrentPositions {
			return s.cancel(ctx, sig, fmt.Sprintf("max concurrent positions reached (%d/%d)", open, s.cfg.MaxConcurrentPositions))
		}
	}

	onToken := s.registry.ListByToken(sig.TokenID)

	// Check 2: per-token ceiling.
	if s.cfg.MaxPositionsPerToken > 0 && len(onToken) >= s.cfg.MaxPositionsPerToken {
		if s.cfg.MergePolicy == domain.MergeSimilar {
			if target, ok := s.mergeCandidate(onToken, sig); ok {
				s.logger.InfoContext(ctx, "admission: merging into existing position",
					slog.String("token_id", sig.TokenID),
					slog.String("position_id", target),
				)
				return domain.Merge{PositionID: target}
			}
		}
		return s.cancel(ctx, sig, fmt.Sprintf("max positions per token reached (%d/%d)", len(onToken), s.cfg.MaxPositionsPerToken))
	}

	// Check 3: exposure ceilings.
	if s.cfg.MaxTotalExposure > 0 {
		if total := s.registry.TotalExposure(); total+size > s.cfg.MaxTotalExposure {
			return s.cancel(ctx, sig, fmt.Sprintf("total exposure %.2f + %.2f exceeds max %.2f", total, size, s.cfg.MaxTotalExposure))
		}
	}
	if s.cfg.MaxTokenExposure > 0 {
		var tokenExposure float64
		for _, p := range onToken {
			tokenExposure += p.RemainingAmount
		}
		if tokenExposure+size > s.cfg.MaxTokenExposure {
			return s.cancel(ctx, sig, fmt.Sprintf("token exposure %.2f + %.2f exceeds max %.2f", tokenExposure, size, s.cfg.MaxTokenExposure))
		}
	}

	// Check 4: opposing direction.
	var opposing []domain.Position
	for _, p := range onToken {
		if p.Signal.Direction.Opposes(sig.Direction) {
			opposing = append(opposing, p)
		}
	}
	if len(opposing) == 0 {
		return domain.Separate{}
	}
	return s.resolveConflict(ctx, sig, opposing)
}

func (s *AdmissionService) resolveConflict(ctx context.Context, sig domain.Signal, opposing []domain.Position) domain.AdmissionDecision {
	ids := make([]string, 0, len(opposing))
	for _, p := range opposing {
		ids = append(ids, p.ID)
	}

	switch s.cfg.ConflictPolicy {
	case domain.ConflictFirstWins:
		return s.cancel(ctx, sig, "opposing position exists (first_wins)")

	case domain.ConflictPrioritizeLatest:
		return domain.Prioritize{Priority: float64(s.now().Unix()), Conflicting: ids}

	case domain.ConflictRiskBased:
		now := s.now()
		newScore := RiskScore(sig, now)
		existing := math.Inf(1)
		for _, p := range opposing {
			existing = math.Min(existing, RiskScore(p.Signal, now))
		}
		s.logger.InfoContext(ctx, "admission: risk-based conflict",
			slog.String("token_id", sig.TokenID),
			slog.Float64("new_score", newScore),
			slog.Float64("existing_score", existing),
		)
		if newScore < existing {
			return domain.Prioritize{Priority: existing - newScore, Conflicting: ids}
		}
		return s.cancel(ctx, sig, fmt.Sprintf("opposing position has lower risk (%.1f <= %.1f)", existing, newScore))

	default:
		return domain.Separate{}
	}
}

// mergeCandidate picks the same-direction position whose entry price is
// closest to the signal's, if within tolerance.
func (s *AdmissionService) mergeCandidate(onToken []domain.Position, sig domain.Signal) (string, bool) {
	best, bestDist := "", math.Inf(1)
	for _, p := range onToken {
		if p.Signal.Direction != sig.Direction {
			continue
		}
		dist := math.Abs(p.EntryPrice()-sig.CurrentPrice) / sig.CurrentPrice
		if dist <= s.cfg.MergePriceTolerance && dist < bestDist {
			best, bestDist = p.ID, dist
		}
	}
	return best, best != ""
}

func (s *AdmissionService) cancel(ctx context.Context, sig domain.Signal, reason string) domain.Cancel {
	s.logger.WarnContext(ctx, "admission: signal rejected",
		slog.String("signal_id", sig.ID),
		slog.String("token_id", sig.TokenID),
		slog.String("reason", reason),
	)
	return domain.Cancel{Reason: reason}
}

// RiskScore rates a signal from 0 (safest) to 100. A stop close to the
// price, few targets and a near deadline all raise the score.
func RiskScore(sig domain.Signal, now time.Time) float64 {
	if sig.CurrentPrice <= 0 {
		return 100
	}
	stopTerm := (1 - math.Abs(sig.CurrentPrice-sig.StopLoss)/sig.CurrentPrice) * 50
	targetTerm := math.Max(0, 30-10*float64(len(sig.Targets)))
	days := sig.MaxExitTime.Sub(now).Hours() / 24
	deadlineTerm := math.Max(0, 20-days)

	return math.Max(0, math.Min(100, stopTerm+targetTerm+deadlineTerm))
}

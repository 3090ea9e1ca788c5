package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/exit"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/metrics"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/notify"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/position"
)

// Lifecycle events are published live on EventsChannel and appended to
// EventsStream for consumers that need replay.
const (
	EventsChannel = "positions"
	EventsStream  = "positions:events"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ExecutionConfig controls how positions are entered and exited.
type ExecutionConfig struct {
	// BaseToken is what the vault holds outside of positions, e.g. USDC.
	BaseToken string
	// EntryPercentage is the share of the vault's base balance swapped on entry.
	EntryPercentage float64
	MaxSlippage     float64
	SwapTimeout     time.Duration
	// LockTTL and LockWait apply to the distributed per-token lock.
	LockTTL  time.Duration
	LockWait time.Duration
}

// PositionDeps are the collaborators of a PositionService. Bus, Audit,
// Notifier, Locks and Metrics are optional.
type PositionDeps struct {
	Registry  *position.Registry
	Admission *AdmissionService
	Engine    *exit.Engine
	Executor  domain.TradeExecutor
	Store     domain.PositionStore
	Prices    domain.PriceOracle
	Bus       domain.SignalBus
	Audit     domain.AuditStore
	Notifier  Notifier
	Locks     domain.LockManager
	Metrics   *metrics.Metrics
}

// PositionService drives positions through their lifecycle: admission,
// entry, partial and full exits, persistence and event fan-out.
type PositionService struct {
	registry  *position.Registry
	admission *AdmissionService
	engine    *exit.Engine
	executor  domain.TradeExecutor
	store     domain.PositionStore
	prices    domain.PriceOracle
	bus       domain.SignalBus
	audit     domain.AuditStore
	notifier  Notifier
	distLocks domain.LockManager
	metrics   *metrics.Metrics

	tokenLocks *position.TokenLocks
	cfg        ExecutionConfig
	logger     *slog.Logger
}

// NewPositionService creates a PositionService.
func NewPositionService(deps PositionDeps, cfg ExecutionConfig, logger *slog.Logger) *PositionService {
	if cfg.BaseToken == "" {
		cfg.BaseToken = "USDC"
	}
	if cfg.EntryPercentage <= 0 {
		cfg.EntryPercentage = 100
	}
	if cfg.SwapTimeout <= 0 {
		cfg.SwapTimeout = 60 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 10 * time.Second
	}
	return &PositionService{
		registry:   deps.Registry,
		admission:  deps.Admission,
		engine:     deps.Engine,
		executor:   deps.Executor,
		store:      deps.Store,
		prices:     deps.Prices,
		bus:        deps.Bus,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		distLocks:  deps.Locks,
		metrics:    deps.Metrics,
		tokenLocks: position.NewTokenLocks(),
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "position_service")),
	}
}

// AddSignal validates a signal, runs admission and carries out the
// decision. Rejections are reported in the outcome, never as errors.
func (s *PositionService) AddSignal(ctx context.Context, req domain.SignalRequest) domain.Outcome {
	sig := req.Signal
	if sig.ReceivedAt.IsZero() {
		sig.ReceivedAt = time.Now().UTC()
	}
	if err := sig.Validate(); err != nil {
		s.logger.WarnContext(ctx, "position_service: signal rejected",
			slog.String("signal_id", sig.ID),
			slog.String("error", err.Error()),
		)
		return domain.Outcome{Message: err.Error()}
	}
	if req.Size <= 0 {
		return domain.Outcome{Message: fmt.Sprintf("invalid size %v", req.Size)}
	}
	vault, err := normaliseVault(req.VaultAddress)
	if err != nil {
		return domain.Outcome{Message: err.Error()}
	}
	owner := position.Owner{Username: req.Username, VaultAddress: vault}

	unlock, err := s.LockToken(ctx, sig.TokenID)
	if err != nil {
		return domain.Outcome{Message: fmt.Sprintf("token %s busy: %v", sig.TokenID, err)}
	}
	defer unlock()

	decision := s.admission.Evaluate(ctx, sig, req.Size)
	s.metrics.Admission(string(decision.Kind()))

	var out domain.Outcome
	switch d := decision.(type) {
	case domain.Cancel:
		s.emit(ctx, "admission_rejected", map[string]any{
			"signal_id": sig.ID,
			"token_id":  sig.TokenID,
			"direction": string(sig.Direction),
			"username":  owner.Username,
			"reason":    d.Reason,
		})
		out = domain.Outcome{Message: d.Reason}
	case domain.Merge:
		out = s.merge(ctx, d.PositionID, sig, req.Size, owner)
	case domain.Prioritize:
		if err := s.closeConflicting(ctx, d.Conflicting, sig.CurrentPrice); err != nil {
			out = domain.Outcome{Message: fmt.Sprintf("could not close conflicting positions: %v", err)}
			break
		}
		out = s.open(ctx, sig, req.Size, owner)
	case domain.Separate:
		out = s.open(ctx, sig, req.Size, owner)
	default:
		out = domain.Outcome{Message: fmt.Sprintf("unhandled admission decision %T", decision)}
	}
	if out.Decision == "" {
		out.Decision = decision.Kind()
	}
	return out
}

// open creates a Pending position, executes the entry and activates it.
func (s *PositionService) open(ctx context.Context, sig domain.Signal, size float64, owner position.Owner) domain.Outcome {
	pos, err := s.registry.Create(sig, size, owner)
	if errors.Is(err, domain.ErrMaxPositions) {
		s.emit(ctx, "admission_rejected", map[string]any{
			"signal_id": sig.ID,
			"token_id":  sig.TokenID,
			"direction": string(sig.Direction),
			"username":  owner.Username,
			"reason":    err.Error(),
		})
		return domain.Outcome{Message: err.Error(), Decision: domain.DecisionCancel}
	}
	if err != nil {
		return domain.Outcome{Message: err.Error()}
	}
	s.persist(ctx, pos)

	from, to := legs(sig.Direction, true, s.cfg.BaseToken, sig.TokenID)
	res, err := s.swap(ctx, "entry", domain.SwapRequest{
		PositionID:  pos.ID,
		Vault:       owner.VaultAddress,
		FromToken:   from,
		ToToken:     to,
		Percentage:  s.cfg.EntryPercentage,
		MaxSlippage: s.cfg.MaxSlippage,
	})
	if err != nil {
		failed, failErr := s.registry.Fail(pos.ID, err.Error())
		if failErr != nil {
			s.logger.ErrorContext(ctx, "position_service: mark failed",
				slog.String("position_id", pos.ID),
				slog.String("error", failErr.Error()),
			)
		}
		s.persist(ctx, failed)
		s.emit(ctx, "position_failed", eventDetail(failed, map[string]any{"error": err.Error()}))
		s.alert(ctx, "position_failed", "Position entry failed",
			fmt.Sprintf("%s %s for %s: %v", sig.Direction, sig.Token, owner.Username, err))
		return domain.Outcome{PositionID: pos.ID, Message: fmt.Sprintf("entry execution failed: %v", err)}
	}

	active, err := s.registry.Activate(pos.ID, res.TxHash)
	if err != nil {
		return domain.Outcome{PositionID: pos.ID, Message: err.Error()}
	}
	s.engine.Register(active.ID)
	s.persist(ctx, active)
	s.emit(ctx, "position_opened", eventDetail(active, map[string]any{"tx_hash": res.TxHash}))

	s.logger.InfoContext(ctx, "position_service: position opened",
		slog.String("position_id", active.ID),
		slog.String("token_id", sig.TokenID),
		slog.String("direction", string(sig.Direction)),
		slog.Float64("entry_price", sig.CurrentPrice),
		slog.Float64("size", size),
	)
	return domain.Outcome{Success: true, PositionID: active.ID, Message: "position opened"}
}

// merge executes the additional entry and folds the signal into id.
func (s *PositionService) merge(ctx context.Context, id string, sig domain.Signal, size float64, owner position.Owner) domain.Outcome {
	from, to := legs(sig.Direction, true, s.cfg.BaseToken, sig.TokenID)
	res, err := s.swap(ctx, "entry", domain.SwapRequest{
		PositionID:  id,
		Vault:       owner.VaultAddress,
		FromToken:   from,
		ToToken:     to,
		Percentage:  s.cfg.EntryPercentage,
		MaxSlippage: s.cfg.MaxSlippage,
	})
	if err != nil {
		return domain.Outcome{PositionID: id, Message: fmt.Sprintf("merge entry execution failed: %v", err)}
	}

	merged, err := s.registry.Merge(id, sig, size)
	if err != nil {
		return domain.Outcome{PositionID: id, Message: err.Error()}
	}
	s.persist(ctx, merged)
	s.emit(ctx, "position_merged", eventDetail(merged, map[string]any{
		"merged_signal_id": sig.ID,
		"added_size":       size,
		"tx_hash":          res.TxHash,
	}))
	s.logger.InfoContext(ctx, "position_service: signal merged",
		slog.String("position_id", id),
		slog.String("signal_id", sig.ID),
		slog.Float64("added_size", size),
		slog.Float64("remaining", merged.RemainingAmount),
	)
	return domain.Outcome{Success: true, PositionID: id, Message: "merged into existing position"}
}

// closeConflicting fully exits every listed position before a prioritised
// signal is admitted.
func (s *PositionService) closeConflicting(ctx context.Context, ids []string, fallbackPrice float64) error {
	var errs []error
	for _, id := range ids {
		pos, ok := s.registry.Get(id)
		if !ok || !pos.Status.Open() {
			continue
		}
		price := s.currentPrice(ctx, pos.Signal.TokenID, fallbackPrice)
		if err := s.exitFully(ctx, pos, price, domain.ExitReasonPriority, 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClosePosition fully exits a position on request of the host process.
func (s *PositionService) ClosePosition(ctx context.Context, id string, reason domain.ExitReason) domain.Outcome {
	pos, ok := s.registry.Get(id)
	if !ok {
		return domain.Outcome{PositionID: id, Message: "position not found"}
	}
	if !pos.Status.Open() {
		return domain.Outcome{PositionID: id, Message: fmt.Sprintf("position already %s", pos.Status)}
	}
	if reason == "" {
		reason = domain.ExitReasonManual
	}

	unlock, err := s.LockToken(ctx, pos.Signal.TokenID)
	if err != nil {
		return domain.Outcome{PositionID: id, Message: fmt.Sprintf("token busy: %v", err)}
	}
	defer unlock()

	// The monitor may have exited it while we waited for the lock.
	pos, ok = s.registry.Get(id)
	if !ok {
		return domain.Outcome{PositionID: id, Message: "position not found"}
	}
	if !pos.Status.Open() {
		return domain.Outcome{PositionID: id, Message: fmt.Sprintf("position already %s", pos.Status)}
	}

	price := s.currentPrice(ctx, pos.Signal.TokenID, pos.EntryPrice())
	if err := s.exitFully(ctx, pos, price, reason, 0); err != nil {
		return domain.Outcome{PositionID: id, Message: err.Error()}
	}
	return domain.Outcome{Success: true, PositionID: id, Message: "position closed"}
}

// ApplyDecision carries out an engine decision for a position the caller
// has already evaluated. evaluated carries the advanced exit state, which is
// committed only when execution succeeds.
func (s *PositionService) ApplyDecision(ctx context.Context, evaluated domain.Position, d exit.Decision, price float64) error {
	switch d.Kind {
	case exit.KindNone:
		return s.commitState(ctx, evaluated)
	case exit.KindPartial:
		return s.exitPartially(ctx, evaluated, d, price)
	case exit.KindFull:
		return s.exitFully(ctx, evaluated, price, d.Reason, d.Level)
	default:
		return fmt.Errorf("position_service: unknown decision kind %q", d.Kind)
	}
}

// commitState persists trailing state changes such as a new peak.
func (s *PositionService) commitState(ctx context.Context, evaluated domain.Position) error {
	cur, ok := s.registry.Get(evaluated.ID)
	if !ok {
		return fmt.Errorf("position_service: position %s: %w", evaluated.ID, domain.ErrNotFound)
	}
	if sameState(cur.TrailingStop, evaluated.TrailingStop) {
		return nil
	}
	next, err := s.registry.Commit(evaluated.ID, func(p *domain.Position) error {
		p.TrailingStop = evaluated.TrailingStop
		return nil
	})
	if err != nil {
		return err
	}
	s.persist(ctx, next)
	return nil
}

func (s *PositionService) exitPartially(ctx context.Context, evaluated domain.Position, d exit.Decision, price float64) error {
	cur, err := s.current(evaluated.ID)
	if err != nil {
		return err
	}
	from, to := legs(cur.Signal.Direction, false, s.cfg.BaseToken, cur.Signal.TokenID)
	res, err := s.swap(ctx, "exit", domain.SwapRequest{
		PositionID:  cur.ID,
		Vault:       cur.VaultAddress,
		FromToken:   from,
		ToToken:     to,
		Percentage:  d.Percentage * s.vaultShare(cur),
		MaxSlippage: s.cfg.MaxSlippage,
	})
	if err != nil {
		return &domain.ExecutionError{PositionID: evaluated.ID, Err: err}
	}

	var rec domain.TargetExit
	next, err := s.registry.Commit(evaluated.ID, func(p *domain.Position) error {
		p.TrailingStop = evaluated.TrailingStop
		rec = s.engine.ApplyPartial(p, d, price, res.TxHash)
		return nil
	})
	if err != nil {
		return err
	}
	s.persist(ctx, next)
	s.metrics.Exit(string(domain.ExitReasonTargetHit), string(exit.KindPartial))

	s.emit(ctx, "target_hit", eventDetail(next, map[string]any{
		"target_index":  rec.TargetIndex,
		"target_price":  rec.TargetPrice,
		"exit_price":    rec.ActualExitPrice,
		"amount_exited": rec.AmountExited,
		"percentage":    rec.Percentage,
		"tx_hash":       res.TxHash,
	}))
	s.logger.InfoContext(ctx, "position_service: target hit",
		slog.String("position_id", next.ID),
		slog.Int("target_index", rec.TargetIndex),
		slog.Float64("amount_exited", rec.AmountExited),
		slog.Float64("remaining", next.RemainingAmount),
	)

	if next.Status.Terminal() {
		s.finished(ctx, next)
	}
	return nil
}

// exitFully swaps out everything left and closes the position. On swap
// failure nothing changes and the caller retries on a later tick.
func (s *PositionService) exitFully(ctx context.Context, evaluated domain.Position, price float64, reason domain.ExitReason, level float64) error {
	pos, err := s.current(evaluated.ID)
	if err != nil {
		return err
	}
	var txHash string
	if pos.Status == domain.PositionStatusActive && pos.RemainingAmount > 0 {
		from, to := legs(pos.Signal.Direction, false, s.cfg.BaseToken, pos.Signal.TokenID)
		res, err := s.swap(ctx, "exit", domain.SwapRequest{
			PositionID:  pos.ID,
			Vault:       pos.VaultAddress,
			FromToken:   from,
			ToToken:     to,
			Percentage:  100 * s.vaultShare(pos),
			MaxSlippage: s.cfg.MaxSlippage,
		})
		if err != nil {
			return &domain.ExecutionError{PositionID: pos.ID, Err: err}
		}
		txHash = res.TxHash
	}

	closed, err := s.registry.Close(pos.ID, price, reason, txHash)
	if err != nil {
		return err
	}
	s.persist(ctx, closed)
	s.metrics.Exit(string(reason), string(exit.KindFull))

	s.logger.InfoContext(ctx, "position_service: position exited",
		slog.String("position_id", closed.ID),
		slog.String("reason", string(reason)),
		slog.Float64("exit_price", price),
		slog.Float64("level", level),
	)
	s.finished(ctx, closed)
	return nil
}

// current returns the registry's copy of an open position. Exits act on it
// rather than on the caller's snapshot, which may predate a concurrent exit.
func (s *PositionService) current(id string) (domain.Position, error) {
	pos, ok := s.registry.Get(id)
	if !ok {
		return domain.Position{}, fmt.Errorf("position_service: position %s: %w", id, domain.ErrNotFound)
	}
	if !pos.Status.Open() {
		return pos, fmt.Errorf("position_service: position %s (%s): %w", id, pos.Status, domain.ErrPositionTerminal)
	}
	return pos, nil
}

// vaultShare is the fraction of the vault's balance of the sold asset that
// belongs to pos. Exit swaps are sized as a percentage of the vault balance,
// so other active positions of the same vault, token and direction must
// keep their part.
func (s *PositionService) vaultShare(pos domain.Position) float64 {
	var total float64
	for _, p := range s.registry.ListByToken(pos.Signal.TokenID) {
		if p.Status != domain.PositionStatusActive ||
			p.Signal.Direction != pos.Signal.Direction ||
			!strings.EqualFold(p.VaultAddress, pos.VaultAddress) {
			continue
		}
		total += p.RemainingAmount
	}
	if total <= 0 || pos.RemainingAmount >= total {
		return 1
	}
	return pos.RemainingAmount / total
}

// finished handles a position that just became terminal.
func (s *PositionService) finished(ctx context.Context, pos domain.Position) {
	s.engine.Unregister(pos.ID)

	event := "position_closed"
	if pos.Status == domain.PositionStatusExpired {
		event = "position_expired"
	}
	s.emit(ctx, event, eventDetail(pos, map[string]any{
		"exit_price":  pos.ExitPrice,
		"exit_reason": string(pos.ExitReason),
		"exited":      pos.ExitedAmount(),
	}))
	s.alert(ctx, event, notify.PositionTitle(pos), notify.PositionSummary(pos))
}

// FailStalePending fails Pending positions created before cutoff whose
// entry never confirmed.
func (s *PositionService) FailStalePending(ctx context.Context, cutoff time.Time) int {
	n := 0
	for _, pos := range s.registry.ListActive() {
		if pos.Status != domain.PositionStatusPending || !pos.CreatedAt.Before(cutoff) {
			continue
		}
		failed, err := s.registry.Fail(pos.ID, "entry not confirmed before timeout")
		if err != nil {
			continue
		}
		s.persist(ctx, failed)
		s.emit(ctx, "position_failed", eventDetail(failed, map[string]any{"error": failed.FailureReason}))
		n++
	}
	return n
}

// LockToken serialises lifecycle work on one token across goroutines and,
// when a LockManager is configured, across processes.
func (s *PositionService) LockToken(ctx context.Context, tokenID string) (func(), error) {
	unlockLocal, err := s.tokenLocks.Lock(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if s.distLocks == nil {
		return unlockLocal, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.LockWait)
	defer cancel()
	backoff := 50 * time.Millisecond
	for {
		unlockDist, err := s.distLocks.Acquire(waitCtx, "token:"+tokenID, s.cfg.LockTTL)
		if err == nil {
			return func() {
				unlockDist()
				unlockLocal()
			}, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			unlockLocal()
			return nil, fmt.Errorf("position_service: acquire lock %s: %w", tokenID, err)
		}
		select {
		case <-waitCtx.Done():
			unlockLocal()
			return nil, fmt.Errorf("position_service: acquire lock %s: %w", tokenID, domain.ErrLockHeld)
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Second)
	}
}

// swap runs a swap with a bounded timeout. It is detached from ctx
// cancellation so shutdown never abandons a submitted swap.
func (s *PositionService) swap(ctx context.Context, leg string, req domain.SwapRequest) (domain.SwapResult, error) {
	swapCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SwapTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.executor.Swap(swapCtx, req)
	s.metrics.SwapLatency(leg, time.Since(start))
	if err != nil {
		s.metrics.SwapFailed(leg)
		s.logger.WarnContext(ctx, "position_service: swap failed",
			slog.String("position_id", req.PositionID),
			slog.String("leg", leg),
			slog.String("from", req.FromToken),
			slog.String("to", req.ToToken),
			slog.Float64("percentage", req.Percentage),
			slog.String("error", err.Error()),
		)
		return domain.SwapResult{}, err
	}
	return res, nil
}

func (s *PositionService) currentPrice(ctx context.Context, tokenID string, fallback float64) float64 {
	if s.prices == nil {
		return fallback
	}
	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	price, err := s.prices.GetPrice(fetchCtx, tokenID)
	if err != nil || price <= 0 {
		return fallback
	}
	return price
}

// persist mirrors a position to the store. Failures are logged only; the
// registry stays authoritative.
func (s *PositionService) persist(ctx context.Context, pos domain.Position) {
	if s.store == nil || pos.ID == "" {
		return
	}
	if err := s.store.Upsert(ctx, pos, pos.Username, pos.VaultAddress); err != nil {
		perr := &domain.PersistenceError{Op: "upsert", ID: pos.ID, Err: err}
		s.logger.WarnContext(ctx, "position_service: persist failed",
			slog.String("position_id", pos.ID),
			slog.String("status", string(pos.Status)),
			slog.String("error", perr.Error()),
		)
	}
}

// emit publishes a lifecycle event on the bus and writes it to the audit log.
func (s *PositionService) emit(ctx context.Context, event string, detail map[string]any) {
	if s.bus != nil {
		payload := make(map[string]any, len(detail)+1)
		for k, v := range detail {
			payload[k] = v
		}
		payload["event"] = event
		evt, _ := json.Marshal(payload)
		if err := s.bus.Publish(ctx, EventsChannel, evt); err != nil {
			s.logger.WarnContext(ctx, "position_service: publish event failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, EventsStream, evt); err != nil {
			s.logger.WarnContext(ctx, "position_service: append event failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "position_service: audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *PositionService) alert(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "position_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func eventDetail(pos domain.Position, extra map[string]any) map[string]any {
	d := map[string]any{
		"position_id": pos.ID,
		"token":       pos.Signal.Token,
		"token_id":    pos.Signal.TokenID,
		"direction":   string(pos.Signal.Direction),
		"status":      string(pos.Status),
		"remaining":   pos.RemainingAmount,
		"username":    pos.Username,
	}
	for k, v := range extra {
		d[k] = v
	}
	return d
}

// legs returns the from/to tokens of a swap. Buy enters base->token and
// exits token->base; PutOptions is the mirror image.
func legs(dir domain.Direction, entry bool, base, token string) (string, string) {
	long := dir == domain.DirectionBuy
	if long == entry {
		return base, token
	}
	return token, base
}

func normaliseVault(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidVault, addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

func sameState(a, b domain.TrailingStopConfig) bool {
	if a.TP1Hit != b.TP1Hit || a.IsActive != b.IsActive ||
		a.PeakPrice != b.PeakPrice || a.LowestPrice != b.LowestPrice ||
		len(a.TargetsHit) != len(b.TargetsHit) {
		return false
	}
	for i := range a.TargetsHit {
		if a.TargetsHit[i] != b.TargetsHit[i] {
			return false
		}
	}
	return true
}

package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// DryRunExecutor simulates swaps without touching a chain. Each call
// returns a random transaction hash and prices the output from the oracle
// with a fixed slippage haircut. It can be told to fail the next N swaps.
type DryRunExecutor struct {
	prices    domain.PriceOracle
	baseToken string
	slippage  float64
	logger    *slog.Logger

	mu       sync.Mutex
	failNext int
	swaps    []domain.SwapRequest
}

// NewDryRunExecutor creates a DryRunExecutor. prices may be nil, in which
// case AmountOut is reported as the requested percentage.
func NewDryRunExecutor(prices domain.PriceOracle, baseToken string, slippage float64, logger *slog.Logger) *DryRunExecutor {
	return &DryRunExecutor{
		prices:    prices,
		baseToken: baseToken,
		slippage:  slippage,
		logger:    logger.With(slog.String("component", "dry_run_executor")),
	}
}

// FailNext makes the next n swaps return an error.
func (d *DryRunExecutor) FailNext(n int) {
	d.mu.Lock()
	d.failNext = n
	d.mu.Unlock()
}

// Swaps returns a copy of every request accepted so far.
func (d *DryRunExecutor) Swaps() []domain.SwapRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.SwapRequest, len(d.swaps))
	copy(out, d.swaps)
	return out
}

// Swap implements domain.TradeExecutor.
func (d *DryRunExecutor) Swap(ctx context.Context, req domain.SwapRequest) (domain.SwapResult, error) {
	if req.Percentage <= 0 || req.Percentage > 100 {
		return domain.SwapResult{}, fmt.Errorf("dry run: swap %s: %w", req.PositionID, domain.ErrInvalidPercentage)
	}
	if err := ctx.Err(); err != nil {
		return domain.SwapResult{}, fmt.Errorf("dry run: swap %s: %w", req.PositionID, err)
	}

	d.mu.Lock()
	if d.failNext > 0 {
		d.failNext--
		d.mu.Unlock()
		return domain.SwapResult{}, fmt.Errorf("dry run: swap %s: simulated failure", req.PositionID)
	}
	d.swaps = append(d.swaps, req)
	d.mu.Unlock()

	out := req.Percentage
	if d.prices != nil {
		token := req.FromToken
		if strings.EqualFold(token, d.baseToken) {
			token = req.ToToken
		}
		if price, err := d.prices.GetPrice(ctx, token); err == nil && price > 0 {
			if strings.EqualFold(req.FromToken, d.baseToken) {
				out = req.Percentage / price
			} else {
				out = req.Percentage * price
			}
		}
	}
	out *= 1 - d.slippage

	res := domain.SwapResult{
		TxHash:    "0x" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		AmountOut: out,
		FeeTier:   3000,
	}
	d.logger.DebugContext(ctx, "simulated swap",
		slog.String("position_id", req.PositionID),
		slog.String("from", req.FromToken),
		slog.String("to", req.ToToken),
		slog.Float64("percentage", req.Percentage),
		slog.String("tx_hash", res.TxHash),
	)
	return res, nil
}

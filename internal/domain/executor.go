package domain

import "context"

// SwapRequest asks the executor to move a percentage of the vault's
// FromToken balance into ToToken.
type SwapRequest struct {
	PositionID  string
	Vault       string
	FromToken   string
	ToToken     string
	Percentage  float64 // of the from-token balance, (0, 100]
	MaxSlippage float64 // fraction, e.g. 0.01
}

// SwapResult is the executor's confirmation.
type SwapResult struct {
	TxHash    string
	AmountOut float64
	FeeTier   int
}

// TradeExecutor performs swaps against a user's vault.
type TradeExecutor interface {
	Swap(ctx context.Context, req SwapRequest) (SwapResult, error)
}

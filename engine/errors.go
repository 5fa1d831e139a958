package engine

import "errors"

// Validation errors: the command is malformed and never reaches risk
// checking or the log. Reported synchronously, never retried here.
var (
	ErrUnsupportedInstrument = errors.New("unsupported instrument")
	ErrInvalidQuantity       = errors.New("quantity must be a positive integer")
	ErrMissingPrice          = errors.New("limit order requires a price")
	ErrMissingOrderID        = errors.New("order id required")
	ErrMissingCommandID      = errors.New("command id required")
	ErrMissingAccount        = errors.New("account id required")
	ErrDuplicateOrderID      = errors.New("order id already resting")
	ErrUnknownCommand        = errors.New("unknown command kind")
)

// ErrRecoveryInconsistent means replay produced an outcome diverging from
// the recorded one. Fatal: either non-determinism crept in or the log is
// corrupt. Recovery halts rather than proceeding on a wrong book.
var ErrRecoveryInconsistent = errors.New("recovery: replay diverged from recorded outcome")

// ReasonNoLiquidity is the recorded rejection reason for a market order
// whose remainder found no contra-side volume.
const ReasonNoLiquidity = "insufficient liquidity"

package model

import "errors"

// Pipeline error taxonomy. All but ErrInvariantViolation are recovered
// locally: warm-up gaps and bad snapshots suppress that tick's output, stale
// events are discarded, timeouts abort only the current tick's decision.
// "No signal" and "no trade" are ordinary values, not errors.
var (
	// ErrInsufficientData means an indicator's warm-up window is not yet
	// satisfied. Callers treat it as "no signal yet".
	ErrInsufficientData = errors.New("insufficient data for warm-up window")

	// ErrInvalidSnapshot means an order-book snapshot is malformed or empty;
	// microstructure metrics are skipped for that tick only.
	ErrInvalidSnapshot = errors.New("invalid order book snapshot")

	// ErrRiskRejected means a trade proposal failed a risk gate at reserve
	// time (for example the position cap). Logged, no trade.
	ErrRiskRejected = errors.New("trade rejected by risk gate")

	// ErrStaleEvent means a fill/close event arrived out of sequence and was
	// discarded without touching tracker state.
	ErrStaleEvent = errors.New("stale execution event")

	// ErrCollaboratorTimeout means an external call exceeded its deadline;
	// the current tick's trade decision is aborted, the pipeline continues.
	ErrCollaboratorTimeout = errors.New("collaborator call timed out")

	// ErrInvariantViolation means engine state would be corrupted (for
	// example a duplicate OPEN position without hedging). It is fatal for the
	// proposal involved and surfaces to the operator.
	ErrInvariantViolation = errors.New("position invariant violation")
)

package ledger

import "errors"

// Failure taxonomy for relayer calls. Callers branch with errors.Is.
var (
	// ErrUnavailable: transient network/5xx failure. Safe to retry with
	// backoff; the transaction was not accepted.
	ErrUnavailable = errors.New("relayer unavailable")

	// ErrRejected: the relayer declined the request (bad params,
	// insufficient funds). Permanent for this attempt; nothing was
	// mutated on-chain.
	ErrRejected = errors.New("relayer rejected request")

	// ErrTimeout: the deadline passed with the transaction's final state
	// unknown. Resolve by re-reading chain state, never by blind
	// re-submission.
	ErrTimeout = errors.New("relayer call timed out")
)

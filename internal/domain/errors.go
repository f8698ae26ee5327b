package domain

import "errors"

// Error taxonomy from the error-handling design. Components return (or
// wrap) one of these rather than ad-hoc strings so callers can classify
// failures with errors.Is. The dispatcher reports every handler error,
// whichever sentinel it wraps, as JSON-RPC internal error (-32603) with
// the error text as its message.
var (
	// ErrInputInvalid: missing/empty required parameter, out-of-range
	// numeric, unknown enum value.
	ErrInputInvalid = errors.New("input invalid")

	// ErrNotFound: unknown persona, conversation, or stream.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable: persona on cooldown, exhausted, or locked.
	ErrUnavailable = errors.New("is not available for interaction")

	// ErrBackendFailure: LLM backend error or timeout.
	ErrBackendFailure = errors.New("backend failure")

	// ErrStoreFailure: persistence error.
	ErrStoreFailure = errors.New("store failure")

	// ErrInternal: unclassified.
	ErrInternal = errors.New("internal error")
)

package config

import "errors"

// Sentinel errors, one per error kind in the taxonomy (spec §7). Callers and
// tests use errors.Is against these rather than matching strings.
var (
	ErrConfigInvalid       = errors.New("invalid gas station configuration")
	ErrNetworkTimeout      = errors.New("rpc call failed after retries")
	ErrSimulationFailed    = errors.New("constant-contract simulation failed")
	ErrInsufficientFunds   = errors.New("pool wallet cannot cover activation and delegation")
	ErrPermissionDenied    = errors.New("signing operation outside control allow-set")
	ErrBroadcastRejected   = errors.New("node rejected broadcast")
	ErrVerificationTimeout = errors.New("post-state could not be confirmed within budget")
	ErrCancelled           = errors.New("preparation cancelled")
	ErrPreparationTimeout  = errors.New("preparation exceeded overall timeout")

	ErrAllEndpointsFailed    = errors.New("all rpc endpoints failed")
	ErrNoEndpoints           = errors.New("no rpc endpoints configured")
	ErrCircuitOpen           = errors.New("circuit breaker is open")
	ErrCreateAccountUnsupported = errors.New("create_account mode not supported by configured client")
	ErrInvalidAddress        = errors.New("invalid TRON address")
	ErrKeyNotConfigured      = errors.New("required signing key not configured")
)

// ErrorKind identifies which taxonomy bucket an error entry belongs to.
type ErrorKind string

const (
	ErrorKindConfig               ErrorKind = "config"
	ErrorKindNetwork              ErrorKind = "network"
	ErrorKindSimulation           ErrorKind = "simulation"
	ErrorKindInsufficientFunds    ErrorKind = "insufficient_funds"
	ErrorKindPermission           ErrorKind = "permission"
	ErrorKindBroadcast            ErrorKind = "broadcast"
	ErrorKindVerificationTimeout  ErrorKind = "verification_timeout"
	ErrorKindCancelled            ErrorKind = "cancelled"
	ErrorKindTimeout              ErrorKind = "timeout"
)

// KindOf maps a sentinel error to its taxonomy kind. Falls back to
// ErrorKindNetwork for unrecognized errors since most unclassified
// failures in this codebase originate from RPC calls.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrConfigInvalid), errors.Is(err, ErrKeyNotConfigured), errors.Is(err, ErrCreateAccountUnsupported), errors.Is(err, ErrInvalidAddress):
		return ErrorKindConfig
	case errors.Is(err, ErrSimulationFailed):
		return ErrorKindSimulation
	case errors.Is(err, ErrInsufficientFunds):
		return ErrorKindInsufficientFunds
	case errors.Is(err, ErrPermissionDenied):
		return ErrorKindPermission
	case errors.Is(err, ErrBroadcastRejected):
		return ErrorKindBroadcast
	case errors.Is(err, ErrVerificationTimeout):
		return ErrorKindVerificationTimeout
	case errors.Is(err, ErrCancelled):
		return ErrorKindCancelled
	case errors.Is(err, ErrPreparationTimeout):
		return ErrorKindTimeout
	default:
		return ErrorKindNetwork
	}
}

// TransientError wraps an error that should be retried by the RPC client's
// fallback/rotation logic.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable.
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err (or something it wraps) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

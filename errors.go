package roukf

import "errors"

// Error taxonomy surfaced by the filter. Callers should use errors.Is against
// these sentinels rather than matching message strings.
var (
	// ErrDimMismatch marks a caller error: a buffer length or mapper
	// partition does not match nObs/nStates/nParams.
	ErrDimMismatch = errors.New("roukf: dimension mismatch")
	// ErrNotSPD marks a numerical failure: U is no longer symmetric
	// positive-definite, so its Cholesky factorization failed.
	ErrNotSPD = errors.New("roukf: covariance factor is not symmetric positive-definite")
	// ErrMapperDomain marks a mapper domain violation (e.g. map(Sigmoid) of
	// an out-of-range input, or map(Exponential) of a non-positive input).
	ErrMapperDomain = errors.New("roukf: parameter mapping domain violation")
	// ErrOperatorFailed marks a forward-operator failure reported through
	// its status return. The filter treats the whole step as failed.
	ErrOperatorFailed = errors.New("roukf: forward operator reported failure")
)

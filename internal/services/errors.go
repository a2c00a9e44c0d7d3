package services

import "errors"

var (
	// ErrInsufficientFunds is returned when a wallet cannot cover a debit or
	// reservation. Callers refuse to admit the job.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidStateTransition is returned when a job is asked to leave a
	// state it cannot leave, terminal states included.
	ErrInvalidStateTransition = errors.New("invalid job state transition")
	// ErrRunnerIncompatible is returned when a runner claims a job whose type
	// is outside its compatibility set.
	ErrRunnerIncompatible = errors.New("runner is not compatible with the job type")
	// ErrRunnerUnhealthy is returned when a claiming runner has gone silent.
	ErrRunnerUnhealthy = errors.New("runner is not healthy")
	// ErrJobTypeDisabled is returned on submission against a disabled type.
	ErrJobTypeDisabled = errors.New("job type is disabled")
)

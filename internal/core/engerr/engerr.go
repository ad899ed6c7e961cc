// Package engerr defines the engine's design-level error kinds as sentinel
// errors, checked with errors.Is at call boundaries.
package engerr

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrAlreadyExists         = errors.New("already exists")
	ErrDependencyUnsatisfied = errors.New("dependency unsatisfied")
	ErrInsufficientCredits   = errors.New("insufficient credits")
	ErrNoProvider            = errors.New("no provider")
	ErrNoAffordable          = errors.New("no affordable provider")
	ErrProviderError         = errors.New("provider error")
	ErrTimeout               = errors.New("timeout")
	ErrCancelled             = errors.New("cancelled")
	ErrFeatureDisabled       = errors.New("feature disabled")
	ErrInternal              = errors.New("internal error")
)

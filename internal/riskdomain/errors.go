package riskdomain

import "fmt"

// ErrNotFitted is returned when a query method is called before fit.
// Unlike the recoverable fit-time errors below, this is a programmer error
// and is raised eagerly rather than swallowed anywhere upstream.
var ErrNotFitted = fmt.Errorf("model not fitted: call fit() first")

// ErrInsufficientData is returned when a fit call receives fewer observations
// than the model requires. The hazard calibrator treats this as recoverable
// and substitutes conservative defaults instead of propagating it.
type ErrInsufficientData struct {
	Have int
	Need int
	What string // e.g. "excesses", "events", "samples"
}

func (e ErrInsufficientData) Error() string {
	return fmt.Sprintf("insufficient %s: have %d, need at least %d", e.What, e.Have, e.Need)
}

// ErrUnstableFit is returned when a fit converges to parameters that violate
// a model's stability invariant (Hawkes alpha>=beta, GPD support violation,
// optimizer failure to converge). The calibrator treats this the same as
// ErrInsufficientData: substitute defaults and continue.
type ErrUnstableFit struct {
	Reason string
}

func (e ErrUnstableFit) Error() string {
	return fmt.Sprintf("unstable fit: %s", e.Reason)
}

// ErrBadArgument is returned for caller mistakes that are cheap to detect
// eagerly: unknown method names, out-of-range quantiles, non-positive tenors.
type ErrBadArgument struct {
	Arg    string
	Reason string
}

func (e ErrBadArgument) Error() string {
	return fmt.Sprintf("bad argument %q: %s", e.Arg, e.Reason)
}

// IsRecoverable reports whether err is one of the fit-time failures the
// hazard calibrator knows how to downgrade from (insufficient data or an
// unstable fit), as opposed to a programmer error or bad argument.
func IsRecoverable(err error) bool {
	switch err.(type) {
	case ErrInsufficientData, *ErrInsufficientData:
		return true
	case ErrUnstableFit, *ErrUnstableFit:
		return true
	default:
		return false
	}
}

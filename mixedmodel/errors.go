package mixedmodel

import (
	"errors"
	"fmt"
)

// The three kinds of failure of a fit.  Every error returned from this
// package satisfies errors.Is for exactly one of these.
var (
	ErrInput      = errors.New("mixedmodel: input error")
	ErrNumerical  = errors.New("mixedmodel: numerical error")
	ErrDivergence = errors.New("mixedmodel: divergence")
)

// Guards identify the specific condition that stopped a fit.
var (
	ErrNoStart        = errors.New("no starting values for the variance components")
	ErrUnknownMethod  = errors.New("unknown maximization method")
	ErrUnknownInfo    = errors.New("unknown information matrix")
	ErrUnknownCrit    = errors.New("unknown criterion")
	ErrDimension      = errors.New("dimension mismatch")
	ErrNotPosDef      = errors.New("information matrix not positive definite")
	ErrVNotPosDef     = errors.New("covariance matrix V not positive definite")
	ErrIllConditioned = errors.New("condition number of information matrix too high")
	ErrNonFinite      = errors.New("non-finite values in scoring update")
	ErrSingular       = errors.New("singular matrix")
	ErrZeroVariance   = errors.New("variance components sum to zero")
	ErrLeftSpace      = errors.New("optimizer left parameter space")
	ErrMaxIter        = errors.New("ran out of iterations")
	ErrNoConvergence  = errors.New("optimizer failed")
)

// FitError describes why a fit failed.
type FitError struct {

	// Kind is one of ErrInput, ErrNumerical or ErrDivergence.
	Kind error

	// Guard is the specific condition, e.g. ErrNotPosDef.
	Guard error

	// Iter is the iteration at which the failure occurred, or -1
	// if the failure happened outside of the iterations.
	Iter int

	// Msg holds additional detail, possibly empty.
	Msg string
}

func (e *FitError) Error() string {
	s := e.Kind.Error() + ": " + e.Guard.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Iter >= 0 {
		s += fmt.Sprintf(" (iteration %d)", e.Iter)
	}
	return s
}

// Unwrap allows errors.Is to match both the kind and the guard.
func (e *FitError) Unwrap() []error {
	return []error{e.Kind, e.Guard}
}

func inputError(guard error, format string, args ...interface{}) error {
	return &FitError{Kind: ErrInput, Guard: guard, Iter: -1, Msg: fmt.Sprintf(format, args...)}
}

func numericalError(guard error, iter int, format string, args ...interface{}) error {
	return &FitError{Kind: ErrNumerical, Guard: guard, Iter: iter, Msg: fmt.Sprintf(format, args...)}
}

func divergenceError(guard error, iter int, format string, args ...interface{}) error {
	return &FitError{Kind: ErrDivergence, Guard: guard, Iter: iter, Msg: fmt.Sprintf(format, args...)}
}

// withIter returns err with its iteration set, if err is a FitError.
func withIter(err error, iter int) error {
	var fe *FitError
	if errors.As(err, &fe) && fe.Iter < 0 {
		c := *fe
		c.Iter = iter
		return &c
	}
	return err
}

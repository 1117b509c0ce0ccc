package mixedmodel

import (
	"log"
	"os"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Method is an algorithm for estimating the variance components.
type Method int

const (
	// FisherScoring uses the expected information.
	FisherScoring Method = iota

	// NewtonRaphson uses the observed information.
	NewtonRaphson

	// AverageInformation uses the average of the observed and
	// expected information.
	AverageInformation

	// ExpectationMaximization uses the EM fixed point iteration.
	ExpectationMaximization

	// MINQUE is minimum norm quadratic unbiased estimation,
	// iterated to its fixed point.
	MINQUE

	// Gradient maximizes the log-likelihood with a quasi-Newton
	// optimizer, using only the gradient.
	Gradient
)

func (m Method) String() string {
	switch m {
	case FisherScoring:
		return "Fisher scoring"
	case NewtonRaphson:
		return "Newton-Raphson"
	case AverageInformation:
		return "Average information"
	case ExpectationMaximization:
		return "Expectation-Maximization"
	case MINQUE:
		return "MINQUE"
	case Gradient:
		return "Gradient"
	default:
		return "unknown"
	}
}

// ParseMethod converts a method name, or one of its common
// abbreviations, to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fs", "fisher", "fisher scoring", "fisherscoring", "scoring":
		return FisherScoring, nil
	case "nr", "newton", "newton-raphson", "newtonraphson":
		return NewtonRaphson, nil
	case "ai", "aireml", "average", "average information", "averageinformation":
		return AverageInformation, nil
	case "em", "expectation-maximization", "expectationmaximization":
		return ExpectationMaximization, nil
	case "minque":
		return MINQUE, nil
	case "gradient", "bfgs":
		return Gradient, nil
	}
	return 0, inputError(ErrUnknownMethod, "%q", s)
}

// newtonType returns true for the methods that use the Newton driver.
func (m Method) newtonType() bool {
	return m == FisherScoring || m == NewtonRaphson || m == AverageInformation
}

// info returns the information matrix used by a Newton-type method
// before any switch to the observed information.
func (m Method) info() InfoKind {
	switch m {
	case NewtonRaphson:
		return ObservedInfo
	case AverageInformation:
		return AverageInfo
	default:
		return ExpectedInfo
	}
}

// Config defines configuration parameters for fitting the variance
// components of a linear mixed model.  Start from DefaultConfig and
// modify the fields as needed; zero values of MaxIter, Tol and MaxCond
// select the defaults.
type Config struct {

	// Method is the estimation algorithm.
	Method Method

	// Criterion is the maximized objective, REML or ML.
	Criterion Criterion

	// MaxIter is the iteration budget.  If zero, the default of the
	// method is used: 250 for the Newton-type methods and Gradient,
	// 10000 for EM, 200 for MINQUE.
	MaxIter int

	// Tol is the convergence tolerance on the changes of the
	// variance component proportions.
	Tol float64

	// Constrained keeps every variance component in [0, Var(y)].
	// The Newton-type methods use a step-halving line search that
	// stays in the box.  EM, MINQUE and Gradient return a
	// DivergenceError (ErrLeftSpace) if their estimate is outside
	// of it.
	Constrained bool

	// Scoring is the number of iterations after which Fisher scoring
	// and average information switch to the observed information.
	// A negative value never switches.
	Scoring int

	// MaxCond is the largest allowed condition number of the
	// information matrix in a Newton-type step.
	MaxCond float64

	// Start contains starting values for the variance components.
	Start []float64

	// MinqueStart obtains the starting values from MINQUE(1) when
	// Start is nil.
	MinqueStart bool

	// MinqueValue selects MINQUE(0) or MINQUE(1) initial weights.
	MinqueValue int

	// MinqueWeights are caller supplied initial MINQUE weights,
	// overriding MinqueValue.
	MinqueWeights []float64

	// ReturnAfterMaxIter returns the current EM estimate, flagged as
	// not converged, when the iteration budget runs out.
	ReturnAfterMaxIter bool

	// Verbose writes per-iteration diagnostics to Log, or to
	// standard error if Log is nil.
	Verbose bool

	// A logger to which logging information is written.
	Log *log.Logger
}

// DefaultConfig returns a default configuration: REML by Fisher
// scoring, constrained, switching to the observed information after
// five iterations.
func DefaultConfig() *Config {
	return &Config{
		Method:      FisherScoring,
		Criterion:   REML,
		Tol:         1e-4,
		Constrained: true,
		Scoring:     5,
		MaxCond:     1e4,
	}
}

// withDefaults returns a copy of the config with zero values replaced
// by defaults.
func (c *Config) withDefaults() *Config {

	if c == nil {
		c = DefaultConfig()
	}
	d := *c

	if d.MaxIter <= 0 {
		switch d.Method {
		case ExpectationMaximization:
			d.MaxIter = 10000
		case MINQUE:
			d.MaxIter = 200
		default:
			d.MaxIter = 250
		}
	}

	if d.Tol <= 0 {
		d.Tol = 1e-4
	}

	if d.MaxCond <= 0 {
		d.MaxCond = 1e4
	}

	if d.Verbose && d.Log == nil {
		d.Log = log.New(os.Stderr, "", log.Ltime)
	}

	return &d
}

// check applies the defaults and validates the enumerated fields.
func (c *Config) check() (*Config, error) {
	d := c.withDefaults()
	if !d.Criterion.valid() {
		return nil, inputError(ErrUnknownCrit, "%d", int(d.Criterion))
	}
	return d, nil
}

func (c *Config) logf(format string, args ...interface{}) {
	if c.Log != nil {
		c.Log.Printf(format, args...)
	}
}

// Fit estimates the variance components of the model using the
// method given in the config.  A nil config uses DefaultConfig.
func Fit(model *Model, config *Config) (*Result, error) {

	config, err := config.check()
	if err != nil {
		return nil, err
	}

	if config.Method == MINQUE {
		return Minque(model, config)
	}

	if config.Start == nil && config.MinqueStart {
		start, err := minqueStart(model, config)
		if err != nil {
			return nil, err
		}
		c := *config
		c.Start = start
		config = &c
	}

	switch {
	case config.Method.newtonType():
		return NewtonMaximize(model, config)
	case config.Method == ExpectationMaximization:
		return EMMaximize(model, config)
	case config.Method == Gradient:
		return GradientMaximize(model, config)
	}

	return nil, inputError(ErrUnknownMethod, "%d", int(config.Method))
}

// minqueStart returns MINQUE(1) estimates moved into the box
// [0, Var(y)], for use as starting values.
func minqueStart(model *Model, config *Config) ([]float64, error) {

	c := DefaultConfig()
	c.Method = MINQUE
	c.MinqueValue = 1
	c.Constrained = false
	c.Tol = config.Tol
	c.Log = config.Log

	r, err := Minque(model, c)
	if err != nil {
		return nil, err
	}

	start := r.Params()
	vy := model.VarY()
	for k, v := range start {
		switch {
		case v < 0:
			start[k] = 0
		case v > vy:
			start[k] = vy
		}
	}

	// All zero is not a usable starting point.
	if floats.Sum(start) == 0 {
		for k := range start {
			start[k] = vy / float64(len(start))
		}
	}

	config.logf("MINQUE starting values: %v", start)

	return start, nil
}

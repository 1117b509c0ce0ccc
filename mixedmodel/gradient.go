package mixedmodel

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// GradientMaximize estimates the variance components with the BFGS
// quasi-Newton optimizer, using only the log-likelihood and its
// gradient.  The optimization is over the logarithms of the variance
// components, so the estimates are always positive; zero starting
// values are replaced by a small positive value.
//
// Points at which the model cannot be evaluated have an infinite
// objective, which the bisection line search steps back from.  The
// number of function evaluations is limited to 50 times config.MaxIter.
func GradientMaximize(model *Model, config *Config) (*Result, error) {

	config, err := config.check()
	if err != nil {
		return nil, err
	}

	vcs, err := model.checkStart(config.Start)
	if err != nil {
		return nil, err
	}

	crit := config.Criterion
	floor := 1e-3 * model.VarY()
	start := make([]float64, len(vcs))
	for i, v := range vcs {
		start[i] = math.Log(math.Max(v, floor))
	}

	obj := &logScale{model: model}

	p := optimize.Problem{
		Func: func(x []float64) float64 {
			st, err := obj.state(x)
			if err != nil {
				return math.Inf(1)
			}
			return -st.LogLike(crit)
		},
		Grad: func(grad, x []float64) {
			st, err := obj.state(x)
			if err != nil {
				// The line search only asks for the gradient where the
				// objective is finite.
				for i := range grad {
					grad[i] = 0
				}
				return
			}
			g := st.Gradient(crit)
			for i := range grad {
				grad[i] = -g[i] * math.Exp(x[i])
			}
		},
	}

	trace := new(Trace)
	settings := &optimize.Settings{
		GradientThreshold: 1e-6,
		MajorIterations:   config.MaxIter,
		FuncEvaluations:   50 * config.MaxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 100,
		},
		Recorder: &traceRecorder{trace: trace, config: config},
	}

	method := &optimize.BFGS{
		Linesearcher: &optimize.Bisection{},
	}

	config.logf("Maximizing %s by %s", crit, Gradient)

	st0, err := obj.state(start)
	if err != nil {
		return nil, withIter(err, 0)
	}
	trace.add(0, st0.LogLike(crit), st0.params, 0)
	config.logf("%d %f %v", 0, st0.LogLike(crit), st0.params)

	rslt, err := optimize.Minimize(p, start, settings, method)
	if rslt != nil {
		switch rslt.Status {
		case optimize.IterationLimit, optimize.FunctionEvaluationLimit:
			return nil, divergenceError(ErrMaxIter, rslt.Stats.MajorIterations, "BFGS stopped: %v", rslt.Status)
		}
	}
	if err != nil {
		return nil, numericalError(ErrNoConvergence, -1, "%v", err)
	}
	if err := rslt.Status.Err(); err != nil {
		return nil, numericalError(ErrNoConvergence, rslt.Stats.MajorIterations, "%v", err)
	}

	iter := rslt.Stats.MajorIterations
	st, err := obj.state(rslt.X)
	if err != nil {
		return nil, withIter(err, iter)
	}
	if err := checkBox(model, config, st.params, iter); err != nil {
		return nil, err
	}

	return newResult(st, st.params, crit, Gradient, ExpectedInfo, iter, true, trace)
}

// logScale evaluates a model at the exponentials of its argument.  The
// optimizer usually evaluates the objective and gradient at the same
// point, so the last state is kept.
type logScale struct {
	model *Model
	last  *State
}

func (ls *logScale) state(x []float64) (*State, error) {

	params := make([]float64, len(x))
	for i := range x {
		params[i] = math.Exp(x[i])
	}
	if !allFinite(params) {
		return nil, numericalError(ErrNonFinite, -1, "log variance components %v", x)
	}

	if ls.last != nil && floats.Equal(ls.last.params, params) {
		return ls.last, nil
	}

	st, err := Evaluate(ls.model, params)
	if err != nil {
		return nil, err
	}
	ls.last = st

	return st, nil
}

// traceRecorder is an optimize.Recorder that adds each major iteration
// of the optimizer to a Trace.  The starting point is added before the
// optimizer runs.
type traceRecorder struct {
	trace  *Trace
	config *Config
}

func (tr *traceRecorder) Init() error {
	return nil
}

func (tr *traceRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {

	if op&optimize.MajorIteration == 0 {
		return nil
	}

	params := make([]float64, len(loc.X))
	for i := range loc.X {
		params[i] = math.Exp(loc.X[i])
	}

	iter := stats.MajorIterations
	tr.trace.add(iter, -loc.F, params, 1)
	tr.config.logf("%d %f %v", iter, -loc.F, params)

	return nil
}

package mixedmodel

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// The number of step halvings in the constrained line search.
const maxHalvings = 25

// NewtonMaximize estimates the variance components using Newton-Raphson,
// Fisher scoring or average information iterations, as selected by
// config.Method.
//
// Newton-type iterations can overshoot the boundary of the parameter
// space and run away in the ill-conditioned region beyond it,
// especially average information when a true variance component is
// near zero.  With config.Constrained, each step is halved until the
// variance components are in [0, Var(y)] and the log-likelihood
// improves (Mishchenko, Holmgren and Ronnegard, 2007, arXiv:0711.2619).
func NewtonMaximize(model *Model, config *Config) (*Result, error) {

	config, err := config.check()
	if err != nil {
		return nil, err
	}
	if !config.Method.newtonType() {
		return nil, inputError(ErrUnknownMethod, "%s is not a Newton-type method", config.Method)
	}

	vcs, err := model.checkStart(config.Start)
	if err != nil {
		return nil, err
	}

	crit := config.Criterion
	kind := config.Method.info()
	vy := model.VarY()

	st, err := Evaluate(model, vcs)
	if err != nil {
		return nil, withIter(err, 0)
	}
	llik := st.LogLike(crit)

	trace := new(Trace)
	trace.add(0, llik, vcs, 0).Info = kind

	config.logf("Maximizing %s by %s", crit, config.Method)
	config.logf("%d %f %v", 0, llik, vcs)

	for iter := 1; iter <= config.MaxIter; iter++ {

		if config.Scoring >= 0 && iter > config.Scoring && kind != ObservedInfo {
			config.logf("Switching to the observed information at iteration %d", iter)
			kind = ObservedInfo
		}

		grad, info, err := st.GradInfo(crit, kind)
		if err != nil {
			return nil, err
		}

		delta, err := scoringStep(info, grad, config.MaxCond, iter)
		if err != nil {
			return nil, err
		}

		var next *State
		var step float64
		if config.Constrained {
			next, step, err = lineSearch(model, st, delta, llik, crit, config.Tol, iter)
		} else {
			next, err = Evaluate(model, move(vcs, delta, 1))
			step = 1
		}
		if err != nil {
			return nil, withIter(err, iter)
		}

		newVcs := next.params
		if floats.Sum(newVcs) > 10*vy {
			return nil, divergenceError(ErrLeftSpace, iter, "sum of variance components %g exceeds 10 Var(y) = %g",
				floats.Sum(newVcs), 10*vy)
		}

		ch, err := relativeChanges(vcs, newVcs, iter)
		if err != nil {
			return nil, err
		}

		newLlik := next.LogLike(crit)
		trace.add(iter, newLlik, newVcs, step).Info = kind
		config.logf("%d %f %v %v %v", iter, newLlik, newVcs, proportions(newVcs), ch)

		if floats.Norm(ch, math.Inf(1)) < config.Tol {
			if err := checkBox(model, config, newVcs, iter); err != nil {
				return nil, err
			}
			return newResult(next, newVcs, crit, config.Method, kind, iter, true, trace)
		}

		st = next
		vcs = st.params
		llik = newLlik
	}

	return nil, divergenceError(ErrMaxIter, config.MaxIter, "%s did not converge", config.Method)
}

// lineSearch returns the state at the first step vcs - alpha*delta,
// alpha = 1, 1/2, 1/4, ..., that is in the box [0, Var(y)] and either
// barely moves the variance component proportions or improves the
// log-likelihood.  Steps at which V is not positive definite are
// skipped.  If no such step exists the current state is returned
// with a step size of zero.
func lineSearch(model *Model, st *State, delta []float64, llik float64, crit Criterion,
	tol float64, iter int) (*State, float64, error) {

	vcs := st.params
	vy := model.VarY()

	for k := 0; k < maxHalvings; k++ {

		alpha := math.Ldexp(1, -k)
		cand := move(vcs, delta, alpha)
		if !inBox(cand, vy) {
			continue
		}

		// Variance components giving an invalid V are treated like
		// those outside the box.
		next, err := Evaluate(model, cand)
		if err != nil {
			continue
		}

		ch, err := relativeChanges(vcs, cand, iter)
		if err != nil {
			return nil, 0, err
		}
		if floats.Norm(ch, math.Inf(1)) < tol || next.LogLike(crit) > llik {
			return next, alpha, nil
		}
	}

	return st, 0, nil
}

// scoringStep returns -M^-1 g, after checking that the information
// matrix M is positive definite and well conditioned.
func scoringStep(info *mat.SymDense, grad []float64, maxCond float64, iter int) ([]float64, error) {

	var es mat.EigenSym
	if !es.Factorize(info, false) {
		return nil, numericalError(ErrNotPosDef, iter, "eigendecomposition failed")
	}
	ev := es.Values(nil)
	lo, hi := ev[0], ev[len(ev)-1]
	if !(lo > 0) {
		return nil, numericalError(ErrNotPosDef, iter, "smallest eigenvalue is %g", lo)
	}
	if cond := hi / lo; cond > maxCond {
		return nil, numericalError(ErrIllConditioned, iter, "condition number %g exceeds %g", cond, maxCond)
	}

	var chol mat.Cholesky
	if !chol.Factorize(info) {
		return nil, numericalError(ErrNotPosDef, iter, "Cholesky factorization failed")
	}

	g := mat.NewVecDense(len(grad), append([]float64(nil), grad...))
	var d mat.VecDense
	if err := chol.SolveVecTo(&d, g); err != nil {
		return nil, numericalError(ErrSingular, iter, "%v", err)
	}

	delta := make([]float64, len(grad))
	for i := range delta {
		delta[i] = -d.AtVec(i)
	}
	if !allFinite(delta) {
		return nil, numericalError(ErrNonFinite, iter, "%v", delta)
	}

	return delta, nil
}

// move returns vcs - alpha*delta.
func move(vcs, delta []float64, alpha float64) []float64 {
	x := make([]float64, len(vcs))
	floats.AddScaledTo(x, vcs, -alpha, delta)
	return x
}

func inBox(x []float64, hi float64) bool {
	for _, v := range x {
		if v < 0 || v > hi {
			return false
		}
	}
	return true
}

// relativeChanges returns the changes in the variance component
// proportions from old to new.
func relativeChanges(old, cur []float64, iter int) ([]float64, error) {

	so := floats.Sum(old)
	sc := floats.Sum(cur)
	if so == 0 || sc == 0 {
		return nil, numericalError(ErrZeroVariance, iter, "")
	}

	ch := make([]float64, len(cur))
	for i := range ch {
		ch[i] = cur[i]/sc - old[i]/so
	}
	if !allFinite(ch) {
		return nil, numericalError(ErrNonFinite, iter, "proportion changes %v", ch)
	}

	return ch, nil
}

func proportions(x []float64) []float64 {
	p := make([]float64, len(x))
	floats.ScaleTo(p, 1/floats.Sum(x), x)
	return p
}

// checkBox returns a DivergenceError if a constrained fit ends outside
// of [0, Var(y)].
func checkBox(model *Model, config *Config, params []float64, iter int) error {
	if config.Constrained && !inBox(params, model.VarY()) {
		return divergenceError(ErrLeftSpace, iter, "estimate %v is outside [0, Var(y) = %g]", params, model.VarY())
	}
	return nil
}

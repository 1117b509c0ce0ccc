package mixedmodel

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// The largest condition number of the MINQUE equations that is
// solved.
const maxMinqueCond = 1e14

// Minque estimates the variance components by iterated minimum norm
// quadratic unbiased estimation (Keele and Harvey, 1989, J Anim Sci
// 67:348).  Given weights w, V = sum_i w_i V_i and the estimates z
// solve C z = t, with
//
//	C_ij = tr(P V_i P V_j),  t_i = y' P V_i P y.
//
// The estimates become the weights of the next iteration until the
// variance component proportions stop changing.  The initial weights
// are config.MinqueWeights if given, otherwise config.Start if given,
// otherwise MINQUE(0) (all weight on the last random effect) or
// MINQUE(1) (equal weights) following config.MinqueValue.
//
// The iterates are not constrained to be non-negative.  With
// config.Constrained an estimate outside [0, Var(y)] is a
// DivergenceError, otherwise it is returned as is.  The reported
// log-likelihood, gradient and information are evaluated at the
// weights of the final iteration.
func Minque(model *Model, config *Config) (*Result, error) {

	config, err := config.check()
	if err != nil {
		return nil, err
	}

	weights, err := minqueWeights(model, config)
	if err != nil {
		return nil, err
	}

	q := model.NumEffects()
	crit := config.Criterion
	trace := new(Trace)

	vcs := make([]float64, q)
	floats.ScaleTo(vcs, model.VarY(), weights)

	config.logf("Estimating variance components by MINQUE")
	config.logf("%v", vcs)

	for iter := 1; iter <= config.MaxIter; iter++ {

		st, err := Evaluate(model, weights)
		if err != nil {
			return nil, withIter(err, iter)
		}

		pr := newProducts(st, REML)
		c := pairwise(q, func(i, j int) float64 {
			return traceMul(pr.wv[i], pr.wv[j])
		})
		t := mat.NewVecDense(q, nil)
		for i := 0; i < q; i++ {
			t.SetVec(i, mat.Dot(pr.u, pr.vu[i]))
		}

		cond := mat.Cond(c, 1)
		if math.IsInf(cond, 1) || math.IsNaN(cond) || cond > maxMinqueCond {
			return nil, numericalError(ErrSingular, iter, "MINQUE equations have condition number %g", cond)
		}

		var z mat.VecDense
		if err := z.SolveVec(c, t); err != nil {
			return nil, numericalError(ErrSingular, iter, "%v", err)
		}
		newVcs := make([]float64, q)
		for i := range newVcs {
			newVcs[i] = z.AtVec(i)
		}
		if !allFinite(newVcs) {
			return nil, numericalError(ErrNonFinite, iter, "MINQUE solution %v", newVcs)
		}

		ch, err := relativeChanges(vcs, newVcs, iter)
		if err != nil {
			return nil, err
		}

		llik := st.LogLike(crit)
		trace.add(iter, llik, newVcs, 1)
		config.logf("%d %f %v", iter, llik, newVcs)

		if floats.Norm(ch, math.Inf(1)) < config.Tol {
			if err := checkBox(model, config, newVcs, iter); err != nil {
				return nil, err
			}
			return newResult(st, newVcs, crit, MINQUE, ExpectedInfo, iter, true, trace)
		}

		vcs = newVcs
		weights = newVcs
	}

	return nil, divergenceError(ErrMaxIter, config.MaxIter, "MINQUE did not converge")
}

// minqueWeights returns the initial MINQUE weights.
func minqueWeights(model *Model, config *Config) ([]float64, error) {

	switch {
	case config.MinqueWeights != nil:
		return model.checkStart(config.MinqueWeights)
	case config.Start != nil:
		return model.checkStart(config.Start)
	}

	q := model.NumEffects()
	w := make([]float64, q)
	switch config.MinqueValue {
	case 0:
		w[q-1] = 1
	case 1:
		for i := range w {
			w[i] = 1
		}
	default:
		return nil, inputError(ErrUnknownMethod, "MINQUE(%d)", config.MinqueValue)
	}

	return w, nil
}

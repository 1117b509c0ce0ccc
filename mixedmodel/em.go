package mixedmodel

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// EMMaximize estimates the variance components by expectation
// maximization.  Each iteration updates
//
//	s_i <- s_i + (s_i^2 / m_i) (u' V_i u - tr(W V_i))
//
// where W = P, u = Py and m_i is the number of levels of effect i for
// REML, and W = V^-1, u = V^-1 (y - X b) and m_i = n for ML.  The
// log-likelihood does not decrease from one iteration to the next.
//
// The EM iterates stay non-negative, but they can converge to a point
// above Var(y).  With config.Constrained this is a DivergenceError.
func EMMaximize(model *Model, config *Config) (*Result, error) {

	config, err := config.check()
	if err != nil {
		return nil, err
	}

	for _, re := range model.effects {
		if re.levels <= 0 {
			return nil, inputError(ErrDimension, "random effect %s has %d levels", re.name, re.levels)
		}
	}

	vcs, err := model.checkStart(config.Start)
	if err != nil {
		return nil, err
	}

	crit := config.Criterion
	n := float64(model.NumObs())
	trace := new(Trace)

	config.logf("Maximizing %s by %s", crit, ExpectationMaximization)

	for iter := 0; ; iter++ {

		st, err := Evaluate(model, vcs)
		if err != nil {
			return nil, withIter(err, iter)
		}
		llik := st.LogLike(crit)
		trace.add(iter, llik, vcs, 1)
		config.logf("%d %f %v", iter, llik, vcs)

		tot := floats.Sum(vcs)
		if tot == 0 {
			return nil, numericalError(ErrZeroVariance, iter, "")
		}

		pr := newProducts(st, crit)
		delta := make([]float64, len(vcs))
		converged := true
		for i, re := range model.effects {
			m := float64(re.levels)
			if crit == ML {
				m = n
			}
			delta[i] = vcs[i] * vcs[i] / m * (mat.Dot(pr.u, pr.vu[i]) - mat.Trace(pr.wv[i]))
			if math.Abs(delta[i]/tot) >= config.Tol {
				converged = false
			}
		}
		if !allFinite(delta) {
			return nil, numericalError(ErrNonFinite, iter, "EM update %v", delta)
		}

		if converged {
			if err := checkBox(model, config, vcs, iter); err != nil {
				return nil, err
			}
			return newResult(st, vcs, crit, ExpectationMaximization, ExpectedInfo, iter, true, trace)
		}

		if iter >= config.MaxIter {
			if config.ReturnAfterMaxIter {
				config.logf("EM stopped after %d iterations without converging", iter)
				if err := checkBox(model, config, vcs, iter); err != nil {
					return nil, err
				}
				return newResult(st, vcs, crit, ExpectationMaximization, ExpectedInfo, iter, false, trace)
			}
			return nil, divergenceError(ErrMaxIter, iter, "EM did not converge")
		}

		next := make([]float64, len(vcs))
		floats.AddTo(next, vcs, delta)
		vcs = next
	}
}

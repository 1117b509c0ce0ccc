package mixedmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kshedden/varcomp/statmodel"
)

// Result contains the estimated variance components and related
// quantities from fitting a linear mixed model.
type Result struct {
	model *Model

	params  []float64
	loglike float64

	// The ML log-likelihood at the estimate, equal to loglike
	// for ML fits.
	fullLogLike float64

	crit   Criterion
	method Method

	grad     []float64
	info     *mat.SymDense
	infoKind InfoKind

	iter      int
	converged bool

	trace *Trace
}

// newResult builds a Result for params, with the log-likelihood,
// gradient and information taken from st.
func newResult(st *State, params []float64, crit Criterion, method Method, kind InfoKind,
	iter int, converged bool, trace *Trace) (*Result, error) {

	grad, info, err := st.GradInfo(crit, kind)
	if err != nil {
		return nil, err
	}

	p := make([]float64, len(params))
	copy(p, params)

	return &Result{
		model:       st.model,
		params:      p,
		loglike:     st.LogLike(crit),
		fullLogLike: st.LogLike(ML),
		crit:        crit,
		method:      method,
		grad:        grad,
		info:        info,
		infoKind:    kind,
		iter:        iter,
		converged:   converged,
		trace:       trace,
	}, nil
}

// Params returns the estimated variance components.
func (r *Result) Params() []float64 {
	x := make([]float64, len(r.params))
	copy(x, r.params)
	return x
}

// LogLike returns the maximized log-likelihood (REML or ML, following
// the criterion of the fit).
func (r *Result) LogLike() float64 {
	return r.loglike
}

// FullLogLike returns the ML log-likelihood at the estimate.
func (r *Result) FullLogLike() float64 {
	return r.fullLogLike
}

// Criterion returns the criterion that was maximized.
func (r *Result) Criterion() Criterion {
	return r.crit
}

// Method returns the estimation method.
func (r *Result) Method() Method {
	return r.method
}

// Gradient returns the gradient of the log-likelihood at the estimate.
func (r *Result) Gradient() []float64 {
	x := make([]float64, len(r.grad))
	copy(x, r.grad)
	return x
}

// Information returns the information matrix at the estimate.
func (r *Result) Information() mat.Symmetric {
	return r.info
}

// InfoKind returns the type of the information matrix.
func (r *Result) InfoKind() InfoKind {
	return r.infoKind
}

// Iterations returns the number of iterations used.
func (r *Result) Iterations() int {
	return r.iter
}

// Converged is false only for EM fits that ran out of iterations
// and were asked to return anyway.
func (r *Result) Converged() bool {
	return r.converged
}

// Trace returns the iteration history.
func (r *Result) Trace() *Trace {
	return r.trace
}

// Model returns the model that was fit.
func (r *Result) Model() *Model {
	return r.model
}

// Proportions returns each variance component as a proportion of
// their sum.
func (r *Result) Proportions() []float64 {
	p := r.Params()
	floats.Scale(1/floats.Sum(p), p)
	return p
}

// VCov returns the sampling covariance matrix of the estimated
// variance components, the inverse of the information matrix.  An
// observed information is used when the fit reports a Hessian.
func (r *Result) VCov() (*mat.SymDense, error) {

	info := mat.NewSymDense(r.info.SymmetricDim(), nil)
	info.CopySym(r.info)
	if r.infoKind == HessianInfo {
		info.ScaleSym(-1, info)
	}

	var chol mat.Cholesky
	if !chol.Factorize(info) {
		return nil, numericalError(ErrNotPosDef, -1, "cannot invert %s information", r.infoKind)
	}

	vc := mat.NewSymDense(info.SymmetricDim(), nil)
	if err := chol.InverseTo(vc); err != nil {
		return nil, numericalError(ErrSingular, -1, "%v", err)
	}

	return vc, nil
}

// StdErr returns the standard errors of the variance components.
func (r *Result) StdErr() ([]float64, error) {

	vc, err := r.VCov()
	if err != nil {
		return nil, err
	}

	se := make([]float64, vc.SymmetricDim())
	for i := range se {
		se[i] = math.Sqrt(vc.At(i, i))
	}

	return se, nil
}

// LRTest returns the likelihood ratio statistic and p-value comparing
// this fit to a fit of a nested model in which one variance component
// is removed.  The variance component is on the boundary of the
// parameter space under the null, so the reference distribution is a
// 50:50 mixture of a point mass at zero and a chi-square with one
// degree of freedom.  For REML both models must have the same fixed
// effects.
func (r *Result) LRTest(null *Result) (float64, float64, error) {

	if r.crit != null.crit {
		return 0, 0, inputError(ErrUnknownCrit, "comparing %s and %s fits", r.crit, null.crit)
	}

	df := len(r.params) - len(null.params)
	if df < 1 {
		return 0, 0, inputError(ErrDimension, "null model has %d variance components, alternative has %d",
			len(null.params), len(r.params))
	}

	stat := 2 * (r.loglike - null.loglike)
	if stat < 0 {
		stat = 0
	}

	// Mixture of chi^2 with df-1 and df degrees of freedom.
	pv := 0.5 * (1 - distuv.ChiSquared{K: float64(df)}.CDF(stat))
	if df > 1 {
		pv += 0.5 * (1 - distuv.ChiSquared{K: float64(df - 1)}.CDF(stat))
	} else if stat == 0 {
		pv += 0.5
	}

	return stat, pv, nil
}

// Summary displays a summary table of the fit.
func (r *Result) Summary() *statmodel.SummaryTable {

	names := r.model.EffectNames()
	for i, na := range names {
		if na == "" {
			names[i] = fmt.Sprintf("V%d", i+1)
		}
	}

	se, err := r.StdErr()
	if err != nil {
		se = make([]float64, len(r.params))
		for i := range se {
			se[i] = math.NaN()
		}
	}

	// Wald tests of each component against zero use a one-sided
	// normal reference, which is conservative near the boundary.
	zs := make([]float64, len(r.params))
	pv := make([]float64, len(r.params))
	for i, p := range r.params {
		zs[i] = p / se[i]
		pv[i] = 1 - statmodel.NormCDF(zs[i])
	}

	nf := statmodel.NumberFmt
	tab := &statmodel.SummaryTable{
		Title:    "Variance components",
		ColNames: []string{"Component", "Estimate", "SE", "Z", "Pr > Z", "Proportion"},
		ColFmt:   []statmodel.Fmter{statmodel.StringFmt, nf, nf, nf, nf, nf},
		Cols:     []interface{}{names, r.Params(), se, zs, pv, r.Proportions()},
	}

	tab.Top = []string{
		fmt.Sprintf("Method:    %s", r.method),
		fmt.Sprintf("Criterion: %s", r.crit),
		fmt.Sprintf("Num obs:   %d", r.model.NumObs()),
		fmt.Sprintf("Fixed:     %d", r.model.NumFixed()),
		fmt.Sprintf("LogLike:   %.4f", r.loglike),
		fmt.Sprintf("Iter:      %d", r.iter),
	}

	if !r.converged {
		tab.Msg = append(tab.Msg, "The fit did not converge.")
	}
	if err != nil {
		tab.Msg = append(tab.Msg, fmt.Sprintf("Standard errors unavailable: %v", err))
	}

	return tab
}

package mixedmodel

import (
	"strings"

	"gonum.org/v1/gonum/mat"
)

// InfoKind selects the information matrix used by the Newton-type
// driver.
type InfoKind int

const (
	// ObservedInfo is the negative Hessian of the log-likelihood.
	ObservedInfo InfoKind = iota

	// ExpectedInfo is the Fisher information.
	ExpectedInfo

	// AverageInfo is the average of the observed and expected
	// information.
	AverageInfo

	// HessianInfo is the Hessian of the log-likelihood.
	HessianInfo
)

func (k InfoKind) String() string {
	switch k {
	case ObservedInfo:
		return "observed"
	case ExpectedInfo:
		return "expected"
	case AverageInfo:
		return "average"
	case HessianInfo:
		return "hessian"
	default:
		return "unknown"
	}
}

// ParseInfoKind converts a name, or one of its common abbreviations,
// to an InfoKind.
func ParseInfoKind(s string) (InfoKind, error) {
	switch strings.ToLower(s) {
	case "observed", "obs", "newton", "nr":
		return ObservedInfo, nil
	case "expected", "fisher", "fs":
		return ExpectedInfo, nil
	case "average", "ai", "aireml":
		return AverageInfo, nil
	case "hessian", "hess":
		return HessianInfo, nil
	}
	return 0, inputError(ErrUnknownInfo, "%q", s)
}

// products holds the matrix products shared by the gradient and
// every information matrix at one state.
type products struct {
	w *mat.SymDense
	u *mat.VecDense

	// wv[i] = W * V_i
	wv []*mat.Dense

	// vu[i] = V_i * u
	vu []*mat.VecDense
}

func newProducts(s *State, crit Criterion) *products {

	w, u := s.weights(crit)
	m := s.model
	q := m.NumEffects()

	pr := &products{
		w:  w,
		u:  u,
		wv: make([]*mat.Dense, q),
		vu: make([]*mat.VecDense, q),
	}

	for k := 0; k < q; k++ {
		pr.wv[k] = mulCov(w, m.dense[k])
		pr.vu[k] = mulCovVec(m.dense[k], u)
	}

	return pr
}

func (pr *products) gradient() []float64 {
	q := len(pr.wv)
	g := make([]float64, q)
	for i := 0; i < q; i++ {
		g[i] = 0.5 * (mat.Dot(pr.u, pr.vu[i]) - mat.Trace(pr.wv[i]))
	}
	return g
}

// quad returns u' V_i W V_j u.
func (pr *products) quad(i, j int) float64 {
	var wvu mat.VecDense
	wvu.MulVec(pr.w, pr.vu[j])
	return mat.Dot(pr.vu[i], &wvu)
}

func (pr *products) expected(i, j int) float64 {
	return 0.5 * traceMul(pr.wv[i], pr.wv[j])
}

func (pr *products) hessian(i, j int) float64 {
	return 0.5*traceMul(pr.wv[i], pr.wv[j]) - pr.quad(i, j)
}

func (pr *products) observed(i, j int) float64 {
	return -pr.hessian(i, j)
}

func (pr *products) average(i, j int) float64 {
	return 0.5 * pr.quad(i, j)
}

// element returns the per-pair function for an information kind.
func (pr *products) element(kind InfoKind) (func(i, j int) float64, error) {
	switch kind {
	case ObservedInfo:
		return pr.observed, nil
	case ExpectedInfo:
		return pr.expected, nil
	case AverageInfo:
		return pr.average, nil
	case HessianInfo:
		return pr.hessian, nil
	}
	return nil, inputError(ErrUnknownInfo, "%d", int(kind))
}

// pairwise returns the symmetric q x q matrix with elements f(i, j),
// evaluating f on the upper triangle only.
func pairwise(q int, f func(i, j int) float64) *mat.SymDense {
	a := mat.NewSymDense(q, nil)
	for i := 0; i < q; i++ {
		for j := i; j < q; j++ {
			a.SetSym(i, j, f(i, j))
		}
	}
	return a
}

func (pr *products) information(kind InfoKind) (*mat.SymDense, error) {
	f, err := pr.element(kind)
	if err != nil {
		return nil, err
	}
	return pairwise(len(pr.wv), f), nil
}

// Gradient returns the gradient of the log-likelihood with respect to
// the variance components.
func (s *State) Gradient(crit Criterion) []float64 {
	return newProducts(s, crit).gradient()
}

// Information returns an information matrix of the log-likelihood
// with respect to the variance components.
func (s *State) Information(crit Criterion, kind InfoKind) (*mat.SymDense, error) {
	return newProducts(s, crit).information(kind)
}

// GradInfo returns the gradient and an information matrix, sharing
// the matrix products between them.
func (s *State) GradInfo(crit Criterion, kind InfoKind) ([]float64, *mat.SymDense, error) {
	pr := newProducts(s, crit)
	info, err := pr.information(kind)
	if err != nil {
		return nil, nil, err
	}
	return pr.gradient(), info, nil
}

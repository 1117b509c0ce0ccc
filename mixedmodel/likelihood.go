package mixedmodel

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

var l2pi = math.Log(2 * math.Pi)

// Criterion is the objective function that is maximized.
type Criterion int

// REML is the restricted (residual) log-likelihood, ML is the full
// log-likelihood.
const (
	REML Criterion = iota
	ML
)

func (c Criterion) String() string {
	switch c {
	case REML:
		return "REML"
	case ML:
		return "ML"
	default:
		return "unknown"
	}
}

func (c Criterion) valid() bool {
	return c == REML || c == ML
}

// State holds the matrices derived from one value of the variance
// components.  A State is never modified; changing the parameters
// means calling Evaluate again.
type State struct {
	model  *Model
	params []float64

	v    *mat.SymDense
	vinv *mat.SymDense

	// The REML projection matrix
	p *mat.SymDense

	// GLS estimate of the fixed effects
	beta *mat.VecDense

	// y - X*beta
	resid *mat.VecDense

	// P*y, which equals V^-1 * resid
	py *mat.VecDense

	// V^-1 * resid
	vr *mat.VecDense

	logdetV   float64
	logdetXVX float64
}

// Evaluate computes the likelihood state of the model at the given
// variance components.
func Evaluate(model *Model, params []float64) (*State, error) {

	v, err := model.MakeV(params)
	if err != nil {
		return nil, err
	}

	vinv, logdetV, err := invertSym(v)
	if err != nil {
		return nil, err
	}

	x := model.x
	y := model.y
	n := model.NumObs()

	// V^-1 X and X' V^-1 X
	var vx, xvx mat.Dense
	vx.Mul(vinv, x)
	xvx.Mul(x.T(), &vx)

	// A rank deficient X gives the log pseudo-determinant.
	xvxi, _, logdetXVX, err := pinv(&xvx)
	if err != nil {
		return nil, err
	}

	// beta = (X'V^-1X)^+ X'V^-1 y
	var xvy mat.VecDense
	xvy.MulVec(vx.T(), y)
	beta := mat.NewVecDense(model.NumFixed(), nil)
	beta.MulVec(xvxi, &xvy)

	resid := mat.NewVecDense(n, nil)
	resid.MulVec(x, beta)
	resid.SubVec(y, resid)

	// P = V^-1 - V^-1 X (X'V^-1X)^+ X' V^-1
	var a, b mat.Dense
	a.Mul(&vx, xvxi)
	b.Mul(&a, vx.T())
	p := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			p.SetSym(i, j, vinv.At(i, j)-(b.At(i, j)+b.At(j, i))/2)
		}
	}

	py := mat.NewVecDense(n, nil)
	py.MulVec(p, y)

	vr := mat.NewVecDense(n, nil)
	vr.MulVec(vinv, resid)

	par := make([]float64, len(params))
	copy(par, params)

	return &State{
		model:     model,
		params:    par,
		v:         v,
		vinv:      vinv,
		p:         p,
		beta:      beta,
		resid:     resid,
		py:        py,
		vr:        vr,
		logdetV:   logdetV,
		logdetXVX: logdetXVX,
	}, nil
}

// Params returns a copy of the variance components of the state.
func (s *State) Params() []float64 {
	x := make([]float64, len(s.params))
	copy(x, s.params)
	return x
}

// V returns the covariance matrix of the outcome.
func (s *State) V() mat.Symmetric {
	return s.v
}

// Vinv returns the inverse of V.
func (s *State) Vinv() mat.Symmetric {
	return s.vinv
}

// P returns the REML projection matrix.
func (s *State) P() mat.Symmetric {
	return s.p
}

// Beta returns the generalized least squares estimate of the fixed
// effects.
func (s *State) Beta() mat.Vector {
	return s.beta
}

// Resid returns the fixed effects residuals y - X*beta.
func (s *State) Resid() mat.Vector {
	return s.resid
}

// LogDetV returns log|V|.
func (s *State) LogDetV() float64 {
	return s.logdetV
}

// LogLike returns the REML or full log-likelihood at the state.
func (s *State) LogLike(crit Criterion) float64 {
	if crit == ML {
		return s.fullLogLike()
	}
	return s.restrictedLogLike()
}

// restrictedLogLike is
//
//	-1/2 (log|V| + log|X'V^-1X| + y'Py + (n - rank(X)) log(2 pi))
//
// see Harville (1977), JASA 72:258.
func (s *State) restrictedLogLike() float64 {
	n := float64(s.model.NumObs())
	rank := float64(s.model.rankX)
	ypy := mat.Dot(s.model.y, s.py)
	return -0.5 * (s.logdetV + s.logdetXVX + ypy + (n-rank)*l2pi)
}

func (s *State) fullLogLike() float64 {
	n := float64(s.model.NumObs())
	q := mat.Dot(s.resid, s.vr)
	return -0.5 * (n*l2pi + s.logdetV + q)
}

// weights returns the matrix W and vector u shared by the gradient
// and information computations: W = P and u = Py for REML, W = V^-1
// and u = V^-1 resid for ML.
func (s *State) weights(crit Criterion) (*mat.SymDense, *mat.VecDense) {
	if crit == ML {
		return s.vinv, s.vr
	}
	return s.p, s.py
}

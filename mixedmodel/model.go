package mixedmodel

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/kshedden/varcomp/statmodel"
)

// RandomEffect is a random term in a linear mixed model.  Its
// contribution to the covariance of the outcome is a variance
// component multiplied by the covariance matrix Cov.
type RandomEffect struct {

	// Used to label results.
	name string

	// The n x n covariance structure, symmetric positive
	// semidefinite.  Diagonal matrices (e.g. *mat.DiagDense) are
	// used without densification.
	cov mat.Matrix

	// The number of levels of the random factor, used in EM
	// updates.
	levels int
}

// NewRandomEffect returns a random effect with the given covariance
// structure.  The covariance matrix is referenced, not copied, and must
// not be modified afterwards.
func NewRandomEffect(name string, cov mat.Matrix, levels int) RandomEffect {
	return RandomEffect{
		name:   name,
		cov:    cov,
		levels: levels,
	}
}

// ResidualEffect returns the independent residual term for n
// observations, with an identity covariance matrix and n levels.
func ResidualEffect(n int) RandomEffect {
	one := make([]float64, n)
	for i := range one {
		one[i] = 1
	}
	return RandomEffect{
		name:   "Residual",
		cov:    mat.NewDiagDense(n, one),
		levels: n,
	}
}

// GroupEffect returns a random effect for a grouping factor with one
// label per observation.  The covariance is Z*G*Z', where Z is the
// incidence matrix of the labels (levels in sorted order).  If g is
// nil the levels are independent (G is the identity).  Empty labels
// are treated as missing, which is not allowed.
func GroupEffect(name string, labels []string, g mat.Matrix) (RandomEffect, error) {

	lev := make(map[string]int)
	for i, la := range labels {
		if la == "" {
			return RandomEffect{}, inputError(ErrDimension, "%s: observation %d is missing a level", name, i)
		}
		lev[la] = 0
	}

	var levels []string
	for la := range lev {
		levels = append(levels, la)
	}
	sort.Strings(levels)

	switch len(levels) {
	case 0:
		return RandomEffect{}, inputError(ErrDimension, "%s: no valid levels", name)
	case 1:
		return RandomEffect{}, inputError(ErrDimension, "%s: variable only has one level", name)
	}

	for k, la := range levels {
		lev[la] = k
	}

	if g != nil {
		r, c := g.Dims()
		if r != len(levels) || c != len(levels) {
			return RandomEffect{}, inputError(ErrDimension, "%s: G is %dx%d but there are %d levels",
				name, r, c, len(levels))
		}
	}

	n := len(labels)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		li := lev[labels[i]]
		for j := i; j < n; j++ {
			lj := lev[labels[j]]
			switch {
			case g != nil:
				cov.SetSym(i, j, g.At(li, lj))
			case li == lj:
				cov.SetSym(i, j, 1)
			}
		}
	}

	return RandomEffect{
		name:   name,
		cov:    cov,
		levels: len(levels),
	}, nil
}

// Name returns the name of the random effect.
func (re RandomEffect) Name() string {
	return re.name
}

// Cov returns the covariance structure of the random effect.
func (re RandomEffect) Cov() mat.Matrix {
	return re.cov
}

// Levels returns the number of levels of the random factor.
func (re RandomEffect) Levels() int {
	return re.levels
}

// Model is a linear mixed model y = X*b + e, Cov(e) = sum_i s_i * V_i.
// A Model is read-only once created and can be shared by any number
// of fits.
type Model struct {

	// The outcome
	y *mat.VecDense

	// The fixed effects design matrix
	x *mat.Dense

	// Names of the fixed effects, optional
	xnames []string

	// The random effects, the order defines the order of the
	// variance components.
	effects []RandomEffect

	// Dense versions of the non-diagonal covariance matrices, used
	// for matrix products.
	dense []mat.Matrix

	rankX int

	// Sample variance of the outcome
	varY float64
}

// NewModel returns a linear mixed model for outcome y, fixed effects
// design x (n x p) and the given random effects, all of which must
// have n x n symmetric covariance matrices.
func NewModel(y []float64, x mat.Matrix, effects []RandomEffect) (*Model, error) {

	n := len(y)
	if n == 0 {
		return nil, inputError(ErrDimension, "no observations")
	}

	if x == nil {
		return nil, inputError(ErrDimension, "no fixed effects design matrix")
	}
	r, p := x.Dims()
	if r != n {
		return nil, inputError(ErrDimension, "X has %d rows but y has length %d", r, n)
	}
	if p > n {
		return nil, inputError(ErrDimension, "X has more columns (%d) than rows (%d)", p, n)
	}

	if len(effects) == 0 {
		return nil, inputError(ErrDimension, "no random effects")
	}

	dense := make([]mat.Matrix, len(effects))
	for k, re := range effects {
		if re.cov == nil {
			return nil, inputError(ErrDimension, "random effect %d (%s) has no covariance matrix", k, re.name)
		}
		r, c := re.cov.Dims()
		if r != n || c != n {
			return nil, inputError(ErrDimension, "random effect %d (%s) is %dx%d, expected %dx%d",
				k, re.name, r, c, n, n)
		}
		if !isSymmetric(re.cov) {
			return nil, inputError(ErrDimension, "random effect %d (%s) is not symmetric", k, re.name)
		}
		switch cov := re.cov.(type) {
		case mat.Diagonal, *mat.Dense:
			dense[k] = cov
		default:
			dense[k] = mat.DenseCopyOf(cov)
		}
	}

	xd := mat.DenseCopyOf(x)
	rank, err := matrixRank(xd)
	if err != nil {
		return nil, err
	}

	yv := make([]float64, n)
	copy(yv, y)

	return &Model{
		y:       mat.NewVecDense(n, yv),
		x:       xd,
		effects: effects,
		dense:   dense,
		rankX:   rank,
		varY:    stat.Variance(yv, nil),
	}, nil
}

// NewModelFromDataset returns a model whose outcome and fixed effects
// are the outcome and covariates of the dataset.
func NewModelFromDataset(data statmodel.Dataset, effects []RandomEffect) (*Model, error) {

	y, err := statmodel.Column(data, data.Y())
	if err != nil {
		return nil, inputError(ErrDimension, "%v", err)
	}

	xnames := data.X()
	if len(xnames) == 0 {
		return nil, inputError(ErrDimension, "dataset has no covariates")
	}

	n := len(y)
	x := mat.NewDense(n, len(xnames), nil)
	for j, na := range xnames {
		col, err := statmodel.Column(data, na)
		if err != nil {
			return nil, inputError(ErrDimension, "%v", err)
		}
		for i, v := range col {
			x.Set(i, j, v)
		}
	}

	m, err := NewModel(y, x, effects)
	if err != nil {
		return nil, err
	}
	m.xnames = xnames

	return m, nil
}

// NumObs returns the number of observations.
func (m *Model) NumObs() int {
	return m.y.Len()
}

// NumFixed returns the number of columns of the fixed effects design
// matrix.
func (m *Model) NumFixed() int {
	_, p := m.x.Dims()
	return p
}

// NumEffects returns the number of random effects, which is the
// number of variance components.
func (m *Model) NumEffects() int {
	return len(m.effects)
}

// RankX returns the numerical rank of the fixed effects design.
func (m *Model) RankX() int {
	return m.rankX
}

// VarY returns the sample variance of the outcome.
func (m *Model) VarY() float64 {
	return m.varY
}

// Y returns the outcome vector.
func (m *Model) Y() mat.Vector {
	return m.y
}

// X returns the fixed effects design matrix.
func (m *Model) X() mat.Matrix {
	return m.x
}

// Effects returns the random effects, in variance component order.
func (m *Model) Effects() []RandomEffect {
	return m.effects
}

// EffectNames returns the names of the random effects.
func (m *Model) EffectNames() []string {
	var na []string
	for _, re := range m.effects {
		na = append(na, re.name)
	}
	return na
}

// FixedNames returns the fixed effect names, generated if the model
// was not built from a dataset.
func (m *Model) FixedNames() []string {
	if m.xnames != nil {
		return m.xnames
	}
	var na []string
	for j := 0; j < m.NumFixed(); j++ {
		na = append(na, fmt.Sprintf("x%d", j+1))
	}
	return na
}

// MakeV returns the outcome covariance matrix V = sum_i params[i] * V_i.
func (m *Model) MakeV(params []float64) (*mat.SymDense, error) {

	if len(params) != len(m.effects) {
		return nil, inputError(ErrDimension, "%d variance components for %d random effects",
			len(params), len(m.effects))
	}

	v := mat.NewSymDense(m.NumObs(), nil)
	for k, re := range m.effects {
		if params[k] != 0 {
			addScaledSym(v, params[k], re.cov)
		}
	}

	return v, nil
}

// checkStart validates a vector of starting values.
func (m *Model) checkStart(start []float64) ([]float64, error) {

	if start == nil {
		return nil, inputError(ErrNoStart, "")
	}
	if len(start) != len(m.effects) {
		return nil, inputError(ErrDimension, "%d starting values for %d random effects",
			len(start), len(m.effects))
	}
	for k, v := range start {
		if v < 0 || !allFinite([]float64{v}) {
			return nil, inputError(ErrNoStart, "invalid starting value %v for %s", v, m.effects[k].name)
		}
	}

	s := make([]float64, len(start))
	copy(s, start)
	return s, nil
}

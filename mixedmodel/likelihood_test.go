package mixedmodel

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestMakeV(t *testing.T) {

	m := small()
	v, err := m.MakeV([]float64{2, 3})
	require.NoError(t, err)

	n := m.NumObs()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			e := 2 * math.Pow(0.6, math.Abs(float64(i-j)))
			if i == j {
				e += 3
			}
			if math.Abs(v.At(i, j)-e) > 1e-12 || v.At(i, j) != v.At(j, i) {
				t.Errorf("V[%d,%d] = %f, expected %f", i, j, v.At(i, j), e)
			}
		}
	}

	_, err = m.MakeV([]float64{1})
	require.ErrorIs(t, err, ErrInput)
	require.ErrorIs(t, err, ErrDimension)
}

func TestLogDet(t *testing.T) {

	m := small()
	for _, params := range [][]float64{{1, 1}, {0.1, 2}, {3, 0.5}, {0, 1}} {
		st, err := Evaluate(m, params)
		require.NoError(t, err)
		d := mat.Det(st.V())
		if math.Abs(st.LogDetV()-math.Log(d)) > 1e-8 {
			fmt.Printf("log|V|=%f, log(det(V))=%f\n", st.LogDetV(), math.Log(d))
			t.Fail()
		}
	}
}

// Residual only, intercept only: both log-likelihoods have closed forms.
func TestClosedForm(t *testing.T) {

	y := []float64{0, 1, 3, 2, 1, 1, 0}
	n := float64(len(y))
	m, err := NewModel(y, intercept(len(y)), []RandomEffect{ResidualEffect(len(y))})
	require.NoError(t, err)

	mn := floats.Sum(y) / n
	var ss float64
	for _, v := range y {
		ss += (v - mn) * (v - mn)
	}

	for _, s := range []float64{0.5, 1, 2.5} {
		st, err := Evaluate(m, []float64{s})
		require.NoError(t, err)

		ml := -0.5 * (n*l2pi + n*math.Log(s) + ss/s)
		reml := -0.5 * (n*math.Log(s) + math.Log(n/s) + ss/s + (n-1)*l2pi)

		if math.Abs(st.LogLike(ML)-ml) > 1e-10 {
			t.Errorf("ML: %f != %f", st.LogLike(ML), ml)
		}
		if math.Abs(st.LogLike(REML)-reml) > 1e-10 {
			t.Errorf("REML: %f != %f", st.LogLike(REML), reml)
		}
		if math.Abs(st.Beta().AtVec(0)-mn) > 1e-12 {
			t.Fail()
		}
	}
}

func TestPyResid(t *testing.T) {

	m := small()
	st, err := Evaluate(m, []float64{1.2, 0.7})
	require.NoError(t, err)

	var vr mat.VecDense
	vr.MulVec(st.Vinv(), st.Resid())

	var py mat.VecDense
	py.MulVec(st.P(), m.Y())

	if !mat.EqualApprox(&vr, &py, 1e-10) {
		t.Fail()
	}

	// P X = 0
	var px mat.Dense
	px.Mul(st.P(), m.X())
	if mat.Norm(&px, 1) > 1e-10 {
		t.Fail()
	}
}

func TestREMLReparameterization(t *testing.T) {

	m := small()
	a := mat.NewDense(2, 2, []float64{2, 1, -1, 3})

	var xa mat.Dense
	xa.Mul(m.X(), a)
	y := make([]float64, m.NumObs())
	for i := range y {
		y[i] = m.Y().AtVec(i)
	}
	m2, err := NewModel(y, &xa, m.Effects())
	require.NoError(t, err)

	for _, params := range [][]float64{{1, 1}, {0.2, 3}, {4, 0.3}} {
		s1, err := Evaluate(m, params)
		require.NoError(t, err)
		s2, err := Evaluate(m2, params)
		require.NoError(t, err)

		ypy1 := mat.Dot(m.Y(), s1.py)
		ypy2 := mat.Dot(m2.Y(), s2.py)
		if math.Abs(ypy1-ypy2) > 1e-9*math.Abs(ypy1) {
			t.Errorf("y'Py: %f != %f", ypy1, ypy2)
		}
		if !mat.EqualApprox(s1.P(), s2.P(), 1e-10) {
			t.Fail()
		}

		// The log-likelihood changes only by the constant -log|det A|.
		d := s2.LogLike(REML) - s1.LogLike(REML)
		if math.Abs(d+math.Log(math.Abs(mat.Det(a)))) > 1e-8 {
			t.Errorf("REML difference %f", d)
		}
	}
}

func TestRankDeficientX(t *testing.T) {

	m := small()
	n := m.NumObs()

	// Duplicate the intercept column.
	x := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		x.Set(i, 1, 1)
		x.Set(i, 2, m.X().At(i, 1))
	}
	y := make([]float64, n)
	for i := range y {
		y[i] = m.Y().AtVec(i)
	}
	m2, err := NewModel(y, x, m.Effects())
	require.NoError(t, err)
	require.Equal(t, 2, m2.RankX())

	s1, err := Evaluate(m, []float64{1, 1})
	require.NoError(t, err)
	s2, err := Evaluate(m2, []float64{1, 1})
	require.NoError(t, err)

	require.False(t, math.IsInf(s2.LogLike(REML), 0))
	require.True(t, mat.EqualApprox(s1.Resid(), s2.Resid(), 1e-10))
	require.InDelta(t, s1.LogLike(ML), s2.LogLike(ML), 1e-10)
}

func TestDiagonalEffect(t *testing.T) {

	// A diagonal covariance gives the same state as its dense copy.
	m := small()
	n := m.NumObs()
	y := make([]float64, n)
	for i := range y {
		y[i] = m.Y().AtVec(i)
	}

	eff := m.Effects()
	dense := mat.DenseCopyOf(eff[1].Cov())
	m2, err := NewModel(y, m.X(), []RandomEffect{eff[0], NewRandomEffect("resid", dense, n)})
	require.NoError(t, err)

	s1, err := Evaluate(m, []float64{0.5, 1.5})
	require.NoError(t, err)
	s2, err := Evaluate(m2, []float64{0.5, 1.5})
	require.NoError(t, err)

	require.InDelta(t, s1.LogLike(REML), s2.LogLike(REML), 1e-10)
	require.True(t, floats.EqualApprox(s1.Gradient(REML), s2.Gradient(REML), 1e-10))
}

func TestInvalidV(t *testing.T) {

	m := small()

	// Indefinite, with a positive determinant.
	_, err := Evaluate(m, []float64{-2, 1})
	require.ErrorIs(t, err, ErrNumerical)
	require.ErrorIs(t, err, ErrVNotPosDef)

	_, err = Evaluate(m, []float64{0, 0})
	require.ErrorIs(t, err, ErrVNotPosDef)

	// Singular group covariance without a residual.
	g := simulate(8, 5, 3, 1, 1)
	_, err = Evaluate(g, []float64{1, 0})
	require.ErrorIs(t, err, ErrVNotPosDef)
}

package mixedmodel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var diffParams = [][]float64{{1, 1}, {0.3, 2}, {2.5, 0.4}}

func hessSettings() *fd.Settings {
	f := fd.Central
	f.Step = 1e-4
	return &fd.Settings{Formula: f}
}

// loglike returns the log-likelihood of m as a function of the
// variance components.
func loglike(m *Model, crit Criterion) func([]float64) float64 {
	return func(x []float64) float64 {
		st, err := Evaluate(m, x)
		if err != nil {
			panic(err)
		}
		return st.LogLike(crit)
	}
}

func TestGradient(t *testing.T) {

	models := map[string]*Model{
		"small":   small(),
		"grouped": simulate(1, 6, 4, 1, 2),
	}

	for name, m := range models {
		for _, crit := range []Criterion{REML, ML} {
			for _, params := range diffParams {
				st, err := Evaluate(m, params)
				require.NoError(t, err)

				ngrad := fd.Gradient(nil, loglike(m, crit), params, &fd.Settings{Formula: fd.Central})
				grad := st.Gradient(crit)
				if !floats.EqualApprox(grad, ngrad, 1e-5) {
					fmt.Printf("%s %s %v\n", name, crit, params)
					fmt.Printf("Numerical:  %v\n", ngrad)
					fmt.Printf("Analytical: %v\n", grad)
					t.Fail()
				}
			}
		}
	}
}

// The REML Hessian of the variance components.  For ML the fixed
// effects are profiled out, which the analytic Hessian does not
// account for.
func TestHessian(t *testing.T) {

	m := small()
	for _, params := range diffParams {
		st, err := Evaluate(m, params)
		require.NoError(t, err)

		nhess := mat.NewSymDense(len(params), nil)
		fd.Hessian(nhess, loglike(m, REML), params, hessSettings())

		hess, err := st.Information(REML, HessianInfo)
		require.NoError(t, err)
		if !mat.EqualApprox(hess, nhess, 1e-3) {
			fmt.Printf("Numerical:  %v\n", mat.Formatted(nhess))
			fmt.Printf("Analytical: %v\n", mat.Formatted(hess))
			t.Fail()
		}

		obs, err := st.Information(REML, ObservedInfo)
		require.NoError(t, err)
		var neg mat.SymDense
		neg.ScaleSym(-1, hess)
		require.True(t, mat.EqualApprox(obs, &neg, 1e-12))
	}
}

func TestAverageInformation(t *testing.T) {

	m := simulate(2, 8, 3, 1, 1)
	for _, crit := range []Criterion{REML, ML} {
		for _, params := range diffParams {
			st, err := Evaluate(m, params)
			require.NoError(t, err)

			obs, err := st.Information(crit, ObservedInfo)
			require.NoError(t, err)
			exp, err := st.Information(crit, ExpectedInfo)
			require.NoError(t, err)
			ai, err := st.Information(crit, AverageInfo)
			require.NoError(t, err)

			var avg mat.SymDense
			avg.AddSym(obs, exp)
			avg.ScaleSym(0.5, &avg)
			if !mat.EqualApprox(ai, &avg, 1e-10) {
				t.Fail()
			}

			// The information matrices are symmetric.
			q := m.NumEffects()
			for i := 0; i < q; i++ {
				for j := 0; j < q; j++ {
					require.Equal(t, exp.At(i, j), exp.At(j, i))
				}
			}
		}
	}
}

func TestExpectedResidual(t *testing.T) {

	// For V = s I and no fixed effects beyond the intercept, the
	// ML Fisher information is n / (2 s^2).
	y := []float64{0, 1, 3, 2, 1, 1, 0}
	n := float64(len(y))
	m, err := NewModel(y, intercept(len(y)), []RandomEffect{ResidualEffect(len(y))})
	require.NoError(t, err)

	s := 1.7
	st, err := Evaluate(m, []float64{s})
	require.NoError(t, err)

	info, err := st.Information(ML, ExpectedInfo)
	require.NoError(t, err)
	require.InDelta(t, n/(2*s*s), info.At(0, 0), 1e-10)

	// REML loses one degree of freedom.
	info, err = st.Information(REML, ExpectedInfo)
	require.NoError(t, err)
	require.InDelta(t, (n-1)/(2*s*s), info.At(0, 0), 1e-10)
}

func TestInfoKind(t *testing.T) {

	for s, k := range map[string]InfoKind{
		"fisher": ExpectedInfo,
		"FS":     ExpectedInfo,
		"nr":     ObservedInfo,
		"aireml": AverageInfo,
		"ai":     AverageInfo,
		"hess":   HessianInfo,
	} {
		kind, err := ParseInfoKind(s)
		require.NoError(t, err)
		require.Equal(t, k, kind, s)
	}

	_, err := ParseInfoKind("bogus")
	require.ErrorIs(t, err, ErrInput)
	require.ErrorIs(t, err, ErrUnknownInfo)

	st, err := Evaluate(small(), []float64{1, 1})
	require.NoError(t, err)
	_, err = st.Information(REML, InfoKind(17))
	require.ErrorIs(t, err, ErrUnknownInfo)
}

package mixedmodel

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// simulate returns a model with an intercept and one covariate, a
// random intercept for ngroup groups of size gsize with variance sg,
// and a residual with variance se.
func simulate(seed int64, ngroup, gsize int, sg, se float64) *Model {

	rng := rand.New(rand.NewSource(seed))

	n := ngroup * gsize
	y := make([]float64, n)
	x := mat.NewDense(n, 2, nil)
	labels := make([]string, n)

	i := 0
	for g := 0; g < ngroup; g++ {
		u := math.Sqrt(sg) * rng.NormFloat64()
		for k := 0; k < gsize; k++ {
			z := rng.NormFloat64()
			x.Set(i, 0, 1)
			x.Set(i, 1, z)
			y[i] = 1 + 0.5*z + u + math.Sqrt(se)*rng.NormFloat64()
			labels[i] = fmt.Sprintf("g%03d", g)
			i++
		}
	}

	grp, err := GroupEffect("group", labels, nil)
	if err != nil {
		panic(err)
	}

	m, err := NewModel(y, x, []RandomEffect{grp, ResidualEffect(n)})
	if err != nil {
		panic(err)
	}

	return m
}

// intercept returns an n x 1 matrix of ones.
func intercept(n int) *mat.Dense {
	x := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
	}
	return x
}

// small returns a model with two random effects, one with a dense
// non-block covariance, for checking derivatives.
func small() *Model {

	y := []float64{3.1, 1.2, 5.3, 4.4, 2.0, 3.7, 6.1, 0.8, 2.9, 4.2, 3.3, 1.9}
	n := len(y)

	x := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		x.Set(i, 1, float64(i%4)-1.5)
	}

	// AR(1)-like covariance
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c.SetSym(i, j, math.Pow(0.6, float64(j-i)))
		}
	}

	m, err := NewModel(y, x, []RandomEffect{
		NewRandomEffect("ar", c, n),
		ResidualEffect(n),
	})
	if err != nil {
		panic(err)
	}

	return m
}

// separated returns a model for two groups of ten observations with
// means -10 and 10 and little variation within the groups.  The group
// variance component is far above Var(y).
func separated() *Model {

	rng := rand.New(rand.NewSource(91))

	n := 20
	y := make([]float64, n)
	labels := make([]string, n)
	for i := range y {
		mu, la := -10.0, "a"
		if i >= n/2 {
			mu, la = 10, "b"
		}
		y[i] = mu + 0.1*rng.NormFloat64()
		labels[i] = la
	}

	grp, err := GroupEffect("group", labels, nil)
	if err != nil {
		panic(err)
	}

	m, err := NewModel(y, intercept(n), []RandomEffect{grp, ResidualEffect(n)})
	if err != nil {
		panic(err)
	}

	return m
}

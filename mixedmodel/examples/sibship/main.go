/*
This example estimates the heritability of a simulated quantitative trait
measured on sibships.

Each family has a number of full siblings.  The additive genetic
relationship of two full siblings is 1/2, so the covariance of the trait is

	Cov(y) = s_a A + s_e I,

where A has 1 on the diagonal, 1/2 for pairs of siblings and 0 for
unrelated pairs.  The heritability is s_a / (s_a + s_e).

The variance components are estimated by every method in the mixedmodel
package.  The first Fisher scoring fit is compared to a model without the
genetic component by a likelihood ratio test, and its iteration history is
plotted.
*/

package main

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"

	"github.com/kshedden/varcomp/mixedmodel"
)

const (
	nfam  = 150
	nsib  = 4
	sigA  = 2.0
	sigE  = 2.0
	mean  = 10.0
	slope = 0.3
)

// simulate returns the trait, the design matrix (intercept and age)
// and the additive relationship matrix.
func simulate(rng *rand.Rand) ([]float64, *mat.Dense, *mat.SymDense) {

	n := nfam * nsib
	y := make([]float64, n)
	x := mat.NewDense(n, 2, nil)
	a := mat.NewSymDense(n, nil)

	i := 0
	for f := 0; f < nfam; f++ {

		// Each sibling gets half of each parent's breeding value
		// plus Mendelian sampling, so that the breeding values have
		// variance sigA and sibling covariance sigA/2.
		mid := math.Sqrt(sigA/2) * rng.NormFloat64()
		for s := 0; s < nsib; s++ {
			bv := mid + math.Sqrt(sigA/2)*rng.NormFloat64()
			age := 20 + 10*rng.Float64()
			x.Set(i, 0, 1)
			x.Set(i, 1, age)
			y[i] = mean + slope*age + bv + math.Sqrt(sigE)*rng.NormFloat64()

			a.SetSym(i, i, 1)
			for k := i - s; k < i; k++ {
				a.SetSym(k, i, 0.5)
			}
			i++
		}
	}

	return y, x, a
}

func main() {

	rng := rand.New(rand.NewSource(3742))
	y, x, a := simulate(rng)
	n := len(y)

	additive := mixedmodel.NewRandomEffect("Additive", a, n)
	model, err := mixedmodel.NewModel(y, x, []mixedmodel.RandomEffect{additive, mixedmodel.ResidualEffect(n)})
	if err != nil {
		panic(err)
	}

	methods := []mixedmodel.Method{
		mixedmodel.FisherScoring,
		mixedmodel.NewtonRaphson,
		mixedmodel.AverageInformation,
		mixedmodel.ExpectationMaximization,
		mixedmodel.MINQUE,
		mixedmodel.Gradient,
	}

	var fs *mixedmodel.Result
	for _, method := range methods {
		config := mixedmodel.DefaultConfig()
		config.Method = method
		config.MinqueStart = true
		result, err := mixedmodel.Fit(model, config)
		if err != nil {
			fmt.Printf("%s failed: %v\n\n", method, err)
			continue
		}
		if method == mixedmodel.FisherScoring {
			fs = result
		}
		fmt.Printf("%v\n", result.Summary())
		fmt.Printf("Heritability: %.3f\n\n", result.Proportions()[0])
	}

	if fs == nil {
		return
	}

	null, err := mixedmodel.NewModel(y, x, []mixedmodel.RandomEffect{mixedmodel.ResidualEffect(n)})
	if err != nil {
		panic(err)
	}
	config := mixedmodel.DefaultConfig()
	config.Start = []float64{model.VarY()}
	r0, err := mixedmodel.Fit(null, config)
	if err != nil {
		panic(err)
	}

	stat, pv, err := fs.LRTest(r0)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Likelihood ratio test for the additive component: %.2f, p = %.3g\n", stat, pv)

	plt, err := fs.Trace().Plot("Fisher scoring, REML")
	if err != nil {
		panic(err)
	}
	if err := plt.Save(6*vg.Inch, 4*vg.Inch, "sibship_trace.png"); err != nil {
		panic(err)
	}
}

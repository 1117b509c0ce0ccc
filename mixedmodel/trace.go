package mixedmodel

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

// TraceRecord describes one iteration of a fit.
type TraceRecord struct {

	// Iter is the iteration number, 0 for the starting point.
	Iter int

	// LogLike is the log-likelihood at Params.
	LogLike float64

	// Params are the variance components at the end of the
	// iteration.
	Params []float64

	// Step is the step size accepted by the line search of a
	// Newton-type method, 0 if no step was taken.  Other methods
	// record 1.
	Step float64

	// Info is the information matrix used to compute the step of a
	// Newton-type method.  It is not set by the other methods.
	Info InfoKind
}

// Trace is the iteration history of a fit.
type Trace struct {
	Records []TraceRecord
}

// add appends a record and returns a pointer to it, valid until the
// next call.
func (tr *Trace) add(iter int, ll float64, params []float64, step float64) *TraceRecord {
	p := make([]float64, len(params))
	copy(p, params)
	tr.Records = append(tr.Records, TraceRecord{
		Iter:    iter,
		LogLike: ll,
		Params:  p,
		Step:    step,
	})
	return &tr.Records[len(tr.Records)-1]
}

// Len returns the number of recorded iterations.
func (tr *Trace) Len() int {
	return len(tr.Records)
}

// LogLikes returns the recorded log-likelihood values in iteration
// order.
func (tr *Trace) LogLikes() []float64 {
	ll := make([]float64, len(tr.Records))
	for i, r := range tr.Records {
		ll[i] = r.LogLike
	}
	return ll
}

// Component returns the path of variance component k.
func (tr *Trace) Component(k int) []float64 {
	x := make([]float64, len(tr.Records))
	for i, r := range tr.Records {
		x[i] = r.Params[k]
	}
	return x
}

// Plot returns a plot of the log-likelihood against the iteration
// number.
func (tr *Trace) Plot(title string) (*plot.Plot, error) {

	if len(tr.Records) == 0 {
		return nil, fmt.Errorf("empty trace")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Log-likelihood"

	pts := make(plotter.XYs, len(tr.Records))
	for i, r := range tr.Records {
		pts[i].X = float64(r.Iter)
		pts[i].Y = r.LogLike
	}

	if err := plotutil.AddLinePoints(p, "loglike", pts); err != nil {
		return nil, err
	}

	return p, nil
}

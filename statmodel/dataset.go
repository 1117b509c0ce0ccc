package statmodel

import (
	"fmt"
)

// Dataset is a column-oriented collection of variables used to
// define a model.
type Dataset interface {

	// Data returns the columns, Data()[j] holds variable j.
	Data() [][]Dtype

	// Names returns the variable names, in the same order as the
	// columns.
	Names() []string

	// Y returns the name of the outcome variable.
	Y() string

	// X returns the names of the covariates.
	X() []string
}

type basicData struct {
	data     [][]Dtype
	varnames []string
	yname    string
	xnames   []string
}

// NewDataset returns a Dataset for the given columns.  The outcome
// variable yname and all the covariates in xnames must be present in
// varnames, and every column must have the same length.
func NewDataset(data [][]Dtype, varnames []string, yname string, xnames []string) Dataset {

	if len(data) != len(varnames) {
		msg := fmt.Sprintf("NewDataset: %d columns but %d variable names\n", len(data), len(varnames))
		panic(msg)
	}

	for j := 1; j < len(data); j++ {
		if len(data[j]) != len(data[0]) {
			msg := fmt.Sprintf("NewDataset: variable '%s' has length %d, expected %d\n",
				varnames[j], len(data[j]), len(data[0]))
			panic(msg)
		}
	}

	return &basicData{
		data:     data,
		varnames: varnames,
		yname:    yname,
		xnames:   xnames,
	}
}

func (d *basicData) Data() [][]Dtype {
	return d.data
}

func (d *basicData) Names() []string {
	return d.varnames
}

func (d *basicData) Y() string {
	return d.yname
}

func (d *basicData) X() []string {
	return d.xnames
}

// NumObs returns the number of observations in a dataset.
func NumObs(d Dataset) int {
	da := d.Data()
	if len(da) == 0 {
		return 0
	}
	return len(da[0])
}

// Column returns the data for the named variable.
func Column(d Dataset, name string) ([]Dtype, error) {
	for j, na := range d.Names() {
		if na == name {
			return d.Data()[j], nil
		}
	}
	return nil, fmt.Errorf("variable '%s' not found in dataset", name)
}

package statmodel

import (
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func data1() Dataset {
	x := [][]Dtype{
		{0, 1, 3, 2, 1, 1, 0},
		{1, 1, 1, 1, 1, 1, 1},
		{4, 1, -1, 3, 5, -5, 3},
	}
	return NewDataset(x, []string{"y", "x1", "x2"}, "y", []string{"x1", "x2"})
}

func TestDataset(t *testing.T) {

	da := data1()

	if NumObs(da) != 7 {
		t.Fail()
	}

	y, err := Column(da, "y")
	if err != nil || !floats.Equal(y, []float64{0, 1, 3, 2, 1, 1, 0}) {
		t.Fail()
	}

	if _, err := Column(da, "x3"); err == nil {
		t.Fail()
	}

	if da.Y() != "y" || len(da.X()) != 2 {
		t.Fail()
	}
}

func TestDatasetRagged(t *testing.T) {

	defer func() {
		if recover() == nil {
			t.Fail()
		}
	}()

	NewDataset([][]Dtype{{1, 2}, {1}}, []string{"a", "b"}, "a", []string{"b"})
}

func TestNormCDF(t *testing.T) {
	if math.Abs(NormCDF(0)-0.5) > 1e-12 {
		t.Fail()
	}
	if math.Abs(NormCDF(1.959963984540054)-0.975) > 1e-9 {
		t.Fail()
	}
}

func TestSummaryTable(t *testing.T) {

	tab := &SummaryTable{
		Title:    "Test table",
		Top:      []string{"Obs: 7", "Method: none", "Groups: 2"},
		ColNames: []string{"Name", "Value"},
		ColFmt:   []Fmter{StringFmt, NumberFmt},
		Cols:     []interface{}{[]string{"a", "bb"}, []float64{1, 2.5}},
		Msg:      []string{"note"},
	}

	s := tab.String()
	for _, want := range []string{"Test table", "Method: none", "bb", "2.5000", "note"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}

// Package stats aggregates sweep samples into per-configuration timings.
package stats

import (
	"fmt"
	"math"

	"github.com/weiihann/tripbench/sweep"
)

// Row is the aggregate for one core count.
type Row struct {
	Cores   int
	Mean    float64
	Total   float64
	Min     float64
	Max     float64
	Samples int
	Missing int
}

// Summary holds rows in sweep order and the grand total across all cells.
type Summary struct {
	Rows       []Row
	GrandTotal float64
}

// Sum returns the sum of xs.
func Sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}

	return s
}

// Mean returns the arithmetic mean of xs, or NaN for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}

	return Sum(xs) / float64(len(xs))
}

// Column aggregates a single matrix column.
func Column(m *sweep.Matrix, col int) Row {
	samples := m.Column(col)

	row := Row{
		Cores:   m.Cores[col],
		Total:   Sum(samples),
		Mean:    Mean(samples),
		Min:     math.NaN(),
		Max:     math.NaN(),
		Samples: len(samples),
		Missing: m.Trials - len(samples),
	}

	for i, x := range samples {
		if i == 0 || x < row.Min {
			row.Min = x
		}
		if i == 0 || x > row.Max {
			row.Max = x
		}
	}

	return row
}

// Aggregate computes one Row per column of m. Missing cells are excluded
// from both mean and total.
func Aggregate(m *sweep.Matrix) (Summary, error) {
	if m == nil || len(m.Columns) == 0 {
		return Summary{}, fmt.Errorf("no samples to aggregate")
	}

	if m.Trials < 1 {
		return Summary{}, fmt.Errorf("trial count must be positive, got %d", m.Trials)
	}

	summary := Summary{Rows: make([]Row, 0, len(m.Columns))}

	for col := range m.Columns {
		row := Column(m, col)
		summary.Rows = append(summary.Rows, row)
		summary.GrandTotal += row.Total
	}

	return summary, nil
}

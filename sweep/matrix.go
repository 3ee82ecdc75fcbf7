package sweep

import "fmt"

// Cell is the measurement recorded for one (cores, trial) pair.
type Cell struct {
	Seconds float64
	Missing bool
	Err     string
}

// Matrix holds one column of trial samples per swept core count. Columns
// follow sweep order and all have exactly Trials cells.
type Matrix struct {
	Cores   []int
	Trials  int
	Columns [][]Cell

	recorded [][]bool
}

// NewMatrix allocates an empty matrix with every cell marked missing.
func NewMatrix(cores []int, trials int) *Matrix {
	m := &Matrix{
		Cores:   append([]int(nil), cores...),
		Trials:  trials,
		Columns: make([][]Cell, len(cores)),

		recorded: make([][]bool, len(cores)),
	}

	for i := range m.Columns {
		col := make([]Cell, trials)
		for j := range col {
			col[j].Missing = true
		}
		m.Columns[i] = col
		m.recorded[i] = make([]bool, trials)
	}

	return m
}

// Set records a sample. Each cell may be populated only once.
func (m *Matrix) Set(col, trial int, c Cell) error {
	if col < 0 || col >= len(m.Columns) {
		return fmt.Errorf("column %d out of range [0, %d)", col, len(m.Columns))
	}

	if trial < 0 || trial >= m.Trials {
		return fmt.Errorf("trial %d out of range [0, %d)", trial, m.Trials)
	}

	if m.recorded[col][trial] {
		return fmt.Errorf("cell (cores=%d, trial=%d) already recorded",
			m.Cores[col], trial)
	}

	m.Columns[col][trial] = c
	m.recorded[col][trial] = true

	return nil
}

// Column returns the present samples of a column in trial order.
func (m *Matrix) Column(col int) []float64 {
	out := make([]float64, 0, m.Trials)
	for _, c := range m.Columns[col] {
		if !c.Missing {
			out = append(out, c.Seconds)
		}
	}

	return out
}

// MissingCount returns the number of cells without a sample.
func (m *Matrix) MissingCount() int {
	n := 0
	for _, col := range m.Columns {
		for _, c := range col {
			if c.Missing {
				n++
			}
		}
	}

	return n
}

// Complete reports whether every cell has been recorded, either with a
// sample or as a documented failure.
func (m *Matrix) Complete() bool {
	for _, col := range m.recorded {
		for _, ok := range col {
			if !ok {
				return false
			}
		}
	}

	return true
}

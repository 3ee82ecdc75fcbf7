// Package report writes sweep timings as delimited tables and console
// summaries.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/weiihann/tripbench/stats"
	"github.com/weiihann/tripbench/sweep"
)

// Options controls the table dialect.
type Options struct {
	// Title, when set, is written as a single-cell first row.
	Title string
	// Delimiter separates columns. Zero means comma.
	Delimiter rune
}

// WriteError reports a report that could not be persisted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	if e.Path == "" {
		return "write report: " + e.Err.Error()
	}

	return fmt.Sprintf("write report %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ColumnLabel names the column of a core count.
func ColumnLabel(cores int) string {
	if cores == 1 {
		return "1 Core"
	}

	return fmt.Sprintf("%d Cores", cores)
}

// WriteCSV writes the matrix transposed (one row per trial, one column per
// core count) followed by a row of per-configuration means. Missing cells
// are left empty.
func WriteCSV(
	w io.Writer,
	m *sweep.Matrix,
	summary stats.Summary,
	opts Options,
) error {
	if err := writeCSV(w, m, summary, opts); err != nil {
		return &WriteError{Err: err}
	}

	return nil
}

// WriteFile creates or truncates path and writes the table to it.
func WriteFile(
	path string,
	m *sweep.Matrix,
	summary stats.Summary,
	opts Options,
) error {
	f, err := os.Create(path)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	if err := writeCSV(f, m, summary, opts); err != nil {
		f.Close()

		return &WriteError{Path: path, Err: err}
	}

	if err := f.Close(); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	return nil
}

func writeCSV(
	w io.Writer,
	m *sweep.Matrix,
	summary stats.Summary,
	opts Options,
) error {
	if m == nil || len(m.Columns) == 0 {
		return fmt.Errorf("no results to report")
	}

	if len(summary.Rows) != len(m.Columns) {
		return fmt.Errorf("summary has %d rows for %d columns",
			len(summary.Rows), len(m.Columns))
	}

	cw := csv.NewWriter(w)
	if opts.Delimiter != 0 {
		cw.Comma = opts.Delimiter
	}

	if opts.Title != "" {
		if err := cw.Write([]string{opts.Title}); err != nil {
			return fmt.Errorf("write title: %w", err)
		}
	}

	record := make([]string, len(m.Cores))
	for i, cores := range m.Cores {
		record[i] = ColumnLabel(cores)
	}

	if err := cw.Write(record); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for trial := 0; trial < m.Trials; trial++ {
		for col := range m.Columns {
			record[col] = formatCell(m.Columns[col][trial])
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write trial %d: %w", trial, err)
		}
	}

	for col, row := range summary.Rows {
		record[col] = formatSeconds(row.Mean)
	}

	if err := cw.Write(record); err != nil {
		return fmt.Errorf("write averages: %w", err)
	}

	cw.Flush()

	return cw.Error()
}

// PrintProgress writes the per-configuration progress line.
func PrintProgress(w io.Writer, row stats.Row) {
	mean := "n/a"
	if !math.IsNaN(row.Mean) {
		mean = formatSeconds(row.Mean)
	}

	fmt.Fprintf(w, "Average time of %d Core(s): %s secs.\n", row.Cores, mean)
}

// PrintSummary writes the grand total line.
func PrintSummary(w io.Writer, summary stats.Summary) {
	fmt.Fprintf(w, "Total time: %s secs\n", formatSeconds(summary.GrandTotal))
}

// jsonRow mirrors stats.Row with nullable floats, since a fully missing
// column has no mean and encoding/json rejects NaN.
type jsonRow struct {
	Cores   int      `json:"cores"`
	Mean    *float64 `json:"mean_seconds"`
	Total   float64  `json:"total_seconds"`
	Min     *float64 `json:"min_seconds"`
	Max     *float64 `json:"max_seconds"`
	Samples int      `json:"samples"`
	Missing int      `json:"missing"`
}

type jsonSummary struct {
	Title      string    `json:"title,omitempty"`
	Trials     int       `json:"trials"`
	Rows       []jsonRow `json:"rows"`
	GrandTotal float64   `json:"grand_total_seconds"`
}

// WriteJSON writes the aggregated summary as indented JSON.
func WriteJSON(w io.Writer, title string, trials int, summary stats.Summary) error {
	out := jsonSummary{
		Title:      title,
		Trials:     trials,
		Rows:       make([]jsonRow, 0, len(summary.Rows)),
		GrandTotal: summary.GrandTotal,
	}

	for _, r := range summary.Rows {
		out.Rows = append(out.Rows, jsonRow{
			Cores:   r.Cores,
			Mean:    finite(r.Mean),
			Total:   r.Total,
			Min:     finite(r.Min),
			Max:     finite(r.Max),
			Samples: r.Samples,
			Missing: r.Missing,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func finite(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}

	return &x
}

func formatCell(c sweep.Cell) string {
	if c.Missing {
		return ""
	}

	return formatSeconds(c.Seconds)
}

func formatSeconds(s float64) string {
	if math.IsNaN(s) {
		return ""
	}

	return strconv.FormatFloat(s, 'f', -1, 64)
}

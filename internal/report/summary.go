// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package report renders parsed metric tables: summary statistics, pivot
// tables, CSV dumps and HTML charts.
package report

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachlabs/metrics-report/internal/metrics"
	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
)

// CoverTitle heads the summary file.
const CoverTitle = "System Metrics Summary"

// notAvailable is printed for statistics of an empty series.
const notAvailable = "N/A"

// Summary holds the statistics printed for one metric of one file.
type Summary struct {
	// Empty is set when the series had no finite values; the other fields are
	// then meaningless.
	Empty bool
	Total float64
	Avg   float64
	P25   float64
	P50   float64
	P75   float64
	P99   float64
}

// Summarize computes total, mean and the 25/50/75/99th percentiles of
// values. Percentiles interpolate linearly between closest ranks.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{Empty: true}
	}
	data := stats.Float64Data(values)
	total, _ := data.Sum()
	avg, _ := data.Mean()
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return Summary{
		Total: total,
		Avg:   avg,
		P25:   percentile(sorted, 25),
		P50:   percentile(sorted, 50),
		P75:   percentile(sorted, 75),
		P99:   percentile(sorted, 99),
	}
}

// percentile returns the p-th percentile of sorted using linear
// interpolation between the two closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func (s Summary) cells() []string {
	if s.Empty {
		return []string{notAvailable, notAvailable, notAvailable, notAvailable, notAvailable, notAvailable}
	}
	out := make([]string, 0, 6)
	for _, v := range []float64{s.Total, s.Avg, s.P25, s.P50, s.P75, s.P99} {
		out = append(out, fmt.Sprintf("%.2f", v))
	}
	return out
}

var summaryHeader = []string{"File", "Total", "Avg", "P25", "P50", "P75", "P99"}

// skipSummary are axis columns that are never summarized.
var skipSummary = map[string]bool{"timestamp": true, "elapsed": true, "TIME": true}

// SummaryMetrics returns the numeric columns of the first non-empty table.
func SummaryMetrics(tables []*metrics.Table) []string {
	for _, t := range tables {
		if t.Len() == 0 {
			continue
		}
		var cols []string
		for _, c := range t.Columns {
			if !skipSummary[c] {
				cols = append(cols, c)
			}
		}
		return cols
	}
	return nil
}

// WriteSummary writes one grid table per numeric metric of source, with a row
// per file. Nothing is written when every table is empty.
func WriteSummary(w io.Writer, source string, tables []*metrics.Table) error {
	first := true
	for _, m := range SummaryMetrics(tables) {
		var rows [][]string
		for _, t := range tables {
			if !t.HasColumn(m) {
				continue
			}
			s := Summarize(t.Column(m))
			rows = append(rows, append([]string{filepath.Base(t.Source)}, s.cells()...))
		}
		if len(rows) == 0 {
			continue
		}
		if !first {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		first = false
		if _, err := fmt.Fprintf(w, "%s - %s Stats:\n", source, m); err != nil {
			return err
		}
		table := NewGrid(w, summaryHeader)
		table.AppendBulk(rows)
		table.Render()
	}
	return nil
}

// WriteCover writes the summary title followed by the summaries of every
// source in order.
func WriteCover(w io.Writer, sources []string, tables map[string][]*metrics.Table) error {
	if _, err := fmt.Fprintf(w, "%s\n\n", CoverTitle); err != nil {
		return err
	}
	for _, src := range sources {
		var buf strings.Builder
		if err := WriteSummary(&buf, src, tables[src]); err != nil {
			return err
		}
		if buf.Len() == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\n", buf.String()); err != nil {
			return err
		}
	}
	return nil
}

// NewGrid returns a tablewriter with a line between every row.
func NewGrid(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetRowLine(true)
	table.SetHeader(header)
	return table
}

// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package ycsb

import (
	"fmt"
	"io"

	"github.com/cockroachlabs/metrics-report/internal/report"
)

func statKeys() []string {
	return append([]string{OverallKey}, AllowedKeys...)
}

// WriteFinalTables writes a table of final stats per key, one row per
// experiment. Keys no experiment ran are left out.
func WriteFinalTables(w io.Writer, results []*WorkloadResult, trim Trim) error {
	header := append([]string{"experiment"}, CSVColumns...)
	for _, k := range statKeys() {
		var rows [][]string
		for _, r := range results {
			f := r.FinalOf(k)
			if !f.Valid {
				continue
			}
			rows = append(rows, append([]string{r.Prefix}, f.cells()...))
		}
		if len(rows) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s final stats (start seconds ignored = %d  ;  end seconds ignored = %d)\n",
			k, trim.HeadSeconds, trim.TailSeconds); err != nil {
			return err
		}
		table := report.NewGrid(w, header)
		table.AppendBulk(rows)
		table.Render()
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

type intervalStat struct {
	name string
	get  func(Interval) float64
}

var intervalStats = []intervalStat{
	{"thr", func(i Interval) float64 { return i.Thr }},
	{"min", func(i Interval) float64 { return float64(i.Min) }},
	{"p50", func(i Interval) float64 { return float64(i.P50) }},
	{"p95", func(i Interval) float64 { return float64(i.P95) }},
	{"p99", func(i Interval) float64 { return float64(i.P99) }},
	{"p999", func(i Interval) float64 { return float64(i.P999) }},
	{"p9999", func(i Interval) float64 { return float64(i.P9999) }},
	{"max", func(i Interval) float64 { return float64(i.Max) }},
}

// seriesX returns seconds since the first interval, shifted by the trimmed
// head so trimmed and untrimmed runs line up.
func seriesX(series []Interval, trim Trim) []float64 {
	xs := make([]float64, len(series))
	for i, s := range series {
		xs[i] = float64(trim.HeadSeconds) + float64(s.T0EpochUs-series[0].T0EpochUs)/1e6
	}
	return xs
}

// Charts returns, per key, a throughput chart and a chart per latency
// statistic, each with a series per experiment.
func Charts(results []*WorkloadResult, trim Trim) []report.Chart {
	var out []report.Chart
	for _, k := range statKeys() {
		for _, st := range intervalStats {
			yName := "latency (us)"
			if st.name == "thr" {
				yName = "ops/sec"
			}
			line := report.NewLineChart(fmt.Sprintf("%s %s", k, st.name), yName)
			n := 0
			for _, r := range results {
				series := r.Series(k)
				if len(series) == 0 {
					continue
				}
				ys := make([]float64, len(series))
				for i, s := range series {
					ys[i] = st.get(s)
				}
				line.AddSeries(r.Prefix, report.LineData(seriesX(series, trim), ys))
				n++
			}
			if n > 0 {
				out = append(out, report.NewChart("ycsb_"+k+"_"+st.name, line))
			}
		}
	}
	return out
}

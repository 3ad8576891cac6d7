// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package report

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/cockroachlabs/metrics-report/internal/metrics"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/snapshot-chromedp/render"
)

const (
	backgroundColor = "#FFFFFF"
	elapsedAxisName = "elapsed (s)"
)

// CPUColors are the fixed stack colours of the CPU breakdown chart.
var CPUColors = map[string]string{
	"us": "#1f77b4",
	"sy": "#ff7f0e",
	"id": "#2ca02c",
	"wa": "#d62728",
	"st": "#9467bd",
}

var cpuStackOrder = []string{"us", "sy", "id", "wa", "st"}

// Chart is a rendered-on-demand chart with the name it is saved under.
type Chart struct {
	Name  string
	chart interface {
		components.Charter
		RenderContent() []byte
	}
}

func globalOpts(title, yName string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithAnimation(false),
		charts.WithInitializationOpts(opts.Initialization{
			BackgroundColor: backgroundColor,
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: elapsedAxisName, Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
	}
}

// LineData pairs xs and ys for a value x-axis.
func LineData(xs, ys []float64) []opts.LineData {
	data := make([]opts.LineData, len(xs))
	for i := range xs {
		data[i] = opts.LineData{Value: []interface{}{xs[i], ys[i]}}
	}
	return data
}

// NewLineChart returns a line chart over elapsed seconds.
func NewLineChart(title, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts(title, yName)...)
	return line
}

// MetricCharts returns one line chart per numeric metric of source with a
// series per file.
func MetricCharts(source string, tables []*metrics.Table) []Chart {
	var out []Chart
	for _, m := range SummaryMetrics(tables) {
		line := NewLineChart(fmt.Sprintf("%s: %s", source, m), m)
		series := 0
		for _, t := range tables {
			xs, ys := t.Series(m)
			if len(xs) == 0 {
				continue
			}
			line.AddSeries(filepath.Base(t.Source), LineData(xs, ys))
			series++
		}
		if series == 0 {
			continue
		}
		out = append(out, Chart{Name: source + "_" + m, chart: line})
	}
	return out
}

// CPUStackCharts returns, per vmstat table, a stacked bar chart of the CPU
// breakdown with every bar scaled to 100%.
func CPUStackCharts(tables []*metrics.Table) []Chart {
	var out []Chart
	for _, t := range tables {
		if t.Len() == 0 {
			continue
		}
		x := make([]string, t.Len())
		shares := make(map[string][]opts.BarData, len(cpuStackOrder))
		for i, r := range t.Records {
			x[i] = strconv.FormatFloat(r.Elapsed, 'f', -1, 64)
			total := 0.0
			for _, c := range cpuStackOrder {
				v, _ := r.Value(c)
				total += v
			}
			for _, c := range cpuStackOrder {
				v, _ := r.Value(c)
				if total > 0 {
					v = v / total * 100
				}
				shares[c] = append(shares[c], opts.BarData{Value: v})
			}
		}
		name := filepath.Base(t.Source)
		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: "CPU breakdown: " + name}),
			charts.WithAnimation(false),
			charts.WithInitializationOpts(opts.Initialization{
				BackgroundColor: backgroundColor,
			}),
			charts.WithXAxisOpts(opts.XAxis{Name: elapsedAxisName}),
			charts.WithYAxisOpts(opts.YAxis{Name: "CPU %", Max: 100}),
		)
		bar.SetXAxis(x)
		for _, c := range cpuStackOrder {
			bar.AddSeries(c, shares[c],
				charts.WithBarChartOpts(opts.BarChart{Stack: "cpu"}),
				charts.WithItemStyleOpts(opts.ItemStyle{Color: CPUColors[c]}),
			)
		}
		out = append(out, Chart{Name: "command_vmstat_cpu_" + name, chart: bar})
	}
	return out
}

// KswapdCharts returns, per trace, a scatter of wake-up order over elapsed
// time with a series per NUMA node.
func KswapdCharts(tables []*metrics.Table) []Chart {
	var out []Chart
	for _, t := range tables {
		if t.Len() == 0 {
			continue
		}
		byNid := map[int][]opts.ScatterData{}
		for _, r := range t.Records {
			nid, ok := r.Value(metrics.ColNid)
			if !ok {
				continue
			}
			order, ok := r.Value(metrics.ColOrder)
			if !ok {
				continue
			}
			byNid[int(nid)] = append(byNid[int(nid)], opts.ScatterData{Value: []interface{}{r.Elapsed, order}})
		}
		nids := make([]int, 0, len(byNid))
		for n := range byNid {
			nids = append(nids, n)
		}
		sort.Ints(nids)

		name := filepath.Base(t.Source)
		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(globalOpts("kswapd wake: "+name, metrics.ColOrder)...)
		for _, n := range nids {
			scatter.AddSeries(fmt.Sprintf("nid=%d", n), byNid[n])
		}
		out = append(out, Chart{Name: "kswapd_wake_" + name, chart: scatter})
	}
	return out
}

// WritePage renders the charts into one HTML page.
func WritePage(w io.Writer, title string, cs []Chart) error {
	page := components.NewPage()
	page.PageTitle = title
	for _, c := range cs {
		page.AddCharts(c.chart)
	}
	return errors.Wrap(page.Render(w), "rendering charts")
}

// Snapshot renders every chart to a PNG in dir through headless Chrome.
func Snapshot(dir string, cs []Chart) error {
	for _, c := range cs {
		path := filepath.Join(dir, SafeName(c.Name)+".png")
		if err := render.MakeChartSnapshot(c.chart.RenderContent(), path); err != nil {
			return errors.Wrapf(err, "snapshot of %s", c.Name)
		}
	}
	return nil
}

// NewChart wraps a chart built by another package.
func NewChart(name string, c interface {
	components.Charter
	RenderContent() []byte
}) Chart {
	return Chart{Name: name, chart: c}
}

// SafeName replaces path separators and other awkward characters so name can
// be used as a file name.
func SafeName(name string) string {
	b := []byte(name)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

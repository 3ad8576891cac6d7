// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.
package cmd

import (
	"context"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachlabs/metrics-report/internal/metrics"
	"github.com/cockroachlabs/metrics-report/internal/report"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var renderPNG bool

// metricSource is one kind of monitoring log and the files given for it.
type metricSource struct {
	name   string
	flag   string
	format metrics.Format
	files  []string
}

var metricSources = []*metricSource{
	{name: "cachestat", flag: "cachestat-files", format: metrics.Cachestat},
	{name: "meminfo", flag: "meminfo-files", format: metrics.TimestampedCSV},
	{name: "proc_vmstat", flag: "proc-vmstat-files", format: metrics.TimestampedCSV},
	{name: "command_vmstat", flag: "command-vmstat-files", format: metrics.CommandVmstat},
	{name: "file_values", flag: "file-values-files", format: metrics.FileValues},
	{name: "kswapd_wake", flag: "kswapd-wake-files", format: metrics.KswapdWake},
	{name: "compactionstats", flag: "nodetool-compactionstats-files", format: metrics.CompactionStats},
	{name: "tablehistograms", flag: "nodetool-tablehistograms-files", format: metrics.TableHistograms},
	{name: "tablestats", flag: "nodetool-tablestats-files", format: metrics.TableStats},
}

// summarySources are the sources listed in summary.txt, in order.
var summarySources = []string{
	"cachestat", "meminfo", "proc_vmstat", "command_vmstat", "file_values",
	"compactionstats", "tablehistograms",
}

// metricsCmd represents the metrics command
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Analyzes system and database monitoring logs",
	Long: `Parses cachestat, meminfo, vmstat, sysfs, kswapd and nodetool logs and
produces per-source CSV files, a statistics summary, pivot tables and charts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyzeMetrics(cmd.Context())
	},
}

func init() {
	for _, s := range metricSources {
		metricsCmd.Flags().StringSliceVar(&s.files, s.flag, nil,
			"comma separated "+strings.ReplaceAll(s.name, "_", " ")+" log files")
	}
	metricsCmd.Flags().BoolVar(&renderPNG, "png", false,
		"also save every chart as a PNG (requires Chrome)")
	metricsCmd.Flags().String("keyspace", metrics.DefaultKeyspace, "keyspace nodetool output is checked against")
	metricsCmd.Flags().String("table", metrics.DefaultTable, "table nodetool output is checked against")
	_ = viper.BindPFlag("nodetool.keyspace", metricsCmd.Flags().Lookup("keyspace"))
	_ = viper.BindPFlag("nodetool.table", metricsCmd.Flags().Lookup("table"))
	rootCmd.AddCommand(metricsCmd)
}

// resultsAnalyzer is an interface responsible for analyzing one kind of log.
// Close writes the results.
type resultsAnalyzer interface {
	io.Closer
	Analyze(ctx context.Context, files []string) error
}

type sourceAnalyzer struct {
	source   *metricSource
	opts     metrics.Options
	subtract []string
	tables   []*metrics.Table
}

var _ resultsAnalyzer = &sourceAnalyzer{}

func newSourceAnalyzer(s *metricSource, opts metrics.Options) *sourceAnalyzer {
	return &sourceAnalyzer{
		source:   s,
		opts:     opts,
		subtract: viper.GetStringSlice("subtract." + s.name),
	}
}

// Analyze parses files concurrently. The first failure cancels the rest.
func (a *sourceAnalyzer) Analyze(ctx context.Context, files []string) error {
	tables := make([]*metrics.Table, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			log.Printf("Analyzing %s", f)
			t, err := metrics.ParseFile(f, a.source.format, a.opts)
			if err != nil {
				return err
			}
			if t.Len() == 0 {
				log.Warnf("no records in %s", f)
			}
			tables[i] = t.SubtractInitial(a.subtract...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrapf(err, "%s", a.source.name)
	}
	a.tables = append(a.tables, tables...)
	return nil
}

func (a *sourceAnalyzer) charts() []report.Chart {
	switch a.source.format {
	case metrics.KswapdWake:
		return report.KswapdCharts(a.tables)
	case metrics.CommandVmstat:
		return append(report.MetricCharts(a.source.name, a.tables), report.CPUStackCharts(a.tables)...)
	default:
		return report.MetricCharts(a.source.name, a.tables)
	}
}

// Close writes <source>.csv and <source>.html.
func (a *sourceAnalyzer) Close() error {
	if err := writeResultsFile(a.source.name+".csv", func(w io.Writer) error {
		return report.WriteCSV(w, a.tables)
	}); err != nil {
		return err
	}
	cs := a.charts()
	if len(cs) == 0 {
		return nil
	}
	if err := writeResultsFile(a.source.name+".html", func(w io.Writer) error {
		return report.WritePage(w, a.source.name, cs)
	}); err != nil {
		return err
	}
	if renderPNG {
		return report.Snapshot(ResultsFile("", "png"), cs)
	}
	return nil
}

// writeResultsFile creates fname in the results directory and fills it.
func writeResultsFile(fname string, fill func(w io.Writer) error) error {
	p := ResultsFile(fname)
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing %s", p)
	}
	log.Debugf("wrote %s", p)
	return f.Close()
}

func analyzeMetrics(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := metrics.Options{
		Keyspace: viper.GetString("nodetool.keyspace"),
		Table:    viper.GetString("nodetool.table"),
	}

	tables := make(map[string][]*metrics.Table)
	for _, s := range metricSources {
		if len(s.files) == 0 {
			continue
		}
		a := newSourceAnalyzer(s, opts)
		if err := a.Analyze(ctx, s.files); err != nil {
			return err
		}
		if err := a.Close(); err != nil {
			return err
		}
		tables[s.name] = a.tables
	}
	if len(tables) == 0 {
		return errors.New("no log files given")
	}

	if err := writeResultsFile("summary.txt", func(w io.Writer) error {
		return report.WriteCover(w, summarySources, tables)
	}); err != nil {
		return err
	}
	if t, ok := tables["compactionstats"]; ok {
		if err := writeResultsFile("compactionstats-table.txt", func(w io.Writer) error {
			return report.WriteCompactionPivot(w, t)
		}); err != nil {
			return err
		}
	}
	if t, ok := tables["tablestats"]; ok {
		if err := writeResultsFile("tablestats-levels.txt", func(w io.Writer) error {
			return report.WriteLevelsPivot(w, t)
		}); err != nil {
			return err
		}
	}
	return nil
}

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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachlabs/metrics-report/internal/report"
	"github.com/cockroachlabs/metrics-report/internal/ycsb"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var ycsbFiles []string
var plotMetrics bool
var ignoreFailures bool
var ycsbTrim ycsb.Trim

var warn = color.New(color.FgRed, color.Bold)

// ycsbCmd represents the ycsb command
var ycsbCmd = &cobra.Command{
	Use:   "ycsb",
	Short: "Aggregates YCSB latency and throughput",
	Long: `Merges the HdrHistogram logs of every client of each YCSB experiment and
prints the final throughput and latency percentiles as CSV`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return analyzeYCSB(ctx, cmd.OutOrStdout())
	},
}

func init() {
	ycsbCmd.Flags().StringSliceVar(&ycsbFiles, "ycsb-files", nil,
		"comma separated local client .out files, one per experiment")
	ycsbCmd.Flags().String("java-cp", "", "class path holding MergeHdrStats and HdrHistogram")
	ycsbCmd.Flags().BoolVar(&plotMetrics, "plot-metrics", false, "write final stats tables and time series charts")
	ycsbCmd.Flags().IntVar(&ycsbTrim.HeadSeconds, "ignore-start-seconds", 0, "seconds dropped from the start of every run")
	ycsbCmd.Flags().IntVar(&ycsbTrim.TailSeconds, "ignore-end-seconds", 0, "seconds dropped from the end of every run")
	ycsbCmd.Flags().BoolVar(&ignoreFailures, "ignore-failures", false, "skip the histograms of failed operations")
	_ = ycsbCmd.MarkFlagRequired("ycsb-files")
	_ = viper.BindPFlag("ycsb.java_cp", ycsbCmd.Flags().Lookup("java-cp"))
	rootCmd.AddCommand(ycsbCmd)
}

func analyzeYCSB(ctx context.Context, out io.Writer) error {
	cp := viper.GetString("ycsb.java_cp")
	if cp == "" {
		return errors.New("--java-cp or ycsb.java_cp is required")
	}
	if !ycsbTrim.IsZero() {
		_, _ = warn.Fprintf(os.Stderr, "WARNING: You used --ignore-start-seconds=%d and/or --ignore-end-seconds=%d, "+
			"so the final stats may not reflect the entire experiment duration. "+
			"GC Storm checks for YCSB are disabled when ignoring any data.\n",
			ycsbTrim.HeadSeconds, ycsbTrim.TailSeconds)
	}

	a := &ycsb.Aggregator{
		Merger:         &ycsb.JavaMerger{ClassPath: cp},
		Trim:           ycsbTrim,
		IgnoreFailures: ignoreFailures,
	}
	results, err := a.Aggregate(ctx, ycsbFiles)
	if err != nil {
		return err
	}

	// A storm aborts the run before anything is written.
	if ycsbTrim.IsZero() {
		if err := checkGCStorms(results, viper.GetFloat64("ycsb.gc_storm_threshold")); err != nil {
			return err
		}
	}

	if err := ycsb.WriteCSV(out, results); err != nil {
		return err
	}
	if plotMetrics {
		if err := writeResultsFile("ycsb-final-stats.txt", func(w io.Writer) error {
			return ycsb.WriteFinalTables(w, results, ycsbTrim)
		}); err != nil {
			return err
		}
		if err := writeResultsFile("ycsb.html", func(w io.Writer) error {
			return report.WritePage(w, "ycsb", ycsb.Charts(results, ycsbTrim))
		}); err != nil {
			return err
		}
	}

	log.Debugf("aggregated %d experiments", len(results))
	return nil
}

func checkGCStorms(results []*ycsb.WorkloadResult, threshold float64) error {
	var storms []*ycsb.WorkloadResult
	for _, r := range results {
		dev, storm, err := r.GCStorm(threshold)
		if err != nil {
			return err
		}
		if !storm {
			continue
		}
		sum := 0.0
		for _, o := range r.OutFiles {
			sum += o.Throughput
		}
		fmt.Fprintf(os.Stderr, "GC storm detected, deviation %% = %.2f , final_overall_thr_from_hdrs=%d, "+
			"final_overall_thr_from_out_files=%.2f\n", dev, r.Overall.Thr, sum)
		storms = append(storms, r)
	}
	if len(storms) == 0 {
		return nil
	}
	for _, r := range storms {
		_, _ = warn.Fprintln(os.Stderr, "ERROR: GC STORM DETECTED FOR THE FOLLOWING WORKLOAD:")
		fmt.Fprint(os.Stderr, r)
		fmt.Fprintln(os.Stderr, strings.Repeat("-", 80))
	}
	return errors.New("GC storm detected, check logs for more details")
}

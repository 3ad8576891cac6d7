// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package ycsb aggregates YCSB latency and throughput from the HdrHistogram
// interval logs written next to each client's .out file.
package ycsb

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

// OverallKey names the statistics merged over every operation.
const OverallKey = "OVERALL"

// AllowedKeys are the operations reported on their own.
var AllowedKeys = []string{"READ", "UPDATE", "INSERT", "SCAN"}

// Composite operations double count their READ and UPDATE parts, and CLEANUP
// is bookkeeping.
var ignoredKeys = map[string]bool{"READ-MODIFY-WRITE": true, "CLEANUP": true}

var failureKeys = map[string]bool{"READ-FAILED": true, "UPDATE-FAILED": true, "INSERT-FAILED": true}

// DefaultGCStormThreshold is the allowed deviation, in percent, between the
// histogram throughput and the throughput the clients reported.
const DefaultGCStormThreshold = 5.0

const nodeMarker = "__node_"

// Final holds the run-wide numbers of one operation. Latencies are in
// microseconds.
type Final struct {
	// Valid is unset when the operation had no histograms.
	Valid bool
	// HasThr is unset when the merged runtime was zero.
	HasThr bool
	Thr    int64
	Min    int64
	P50    int64
	P95    int64
	P99    int64
	P999   int64
	P9999  int64
	Max    int64
}

// Interval is one bucket of the merged time series.
type Interval struct {
	T0EpochUs int64
	Count     int64
	Thr       float64
	Min       int64
	P50       int64
	P95       int64
	P99       int64
	P999      int64
	P9999     int64
	Max       int64
}

// WorkloadResult is the aggregate of every client of one experiment.
type WorkloadResult struct {
	Prefix        string
	HdrFiles      []string
	Overall       Final
	OverallSeries []Interval
	PerKey        map[string]Final
	PerKeySeries  map[string][]Interval
	OutFiles      []OutFileStats
}

// Series returns the time series of key, which is OverallKey or one of
// AllowedKeys.
func (w *WorkloadResult) Series(key string) []Interval {
	if key == OverallKey {
		return w.OverallSeries
	}
	return w.PerKeySeries[key]
}

// FinalOf returns the final stats of key.
func (w *WorkloadResult) FinalOf(key string) Final {
	if key == OverallKey {
		return w.Overall
	}
	return w.PerKey[key]
}

func (w *WorkloadResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "WorkloadResult for %s\n", w.Prefix)
	for _, f := range w.HdrFiles {
		fmt.Fprintf(&b, "        %s\n", f)
	}
	fmt.Fprintf(&b, "  %s(%s)\n", OverallKey, w.Overall)
	for _, k := range AllowedKeys {
		if f, ok := w.PerKey[k]; ok {
			fmt.Fprintf(&b, "  %s(%s)\n", k, f)
		}
	}
	for _, o := range w.OutFiles {
		if o.Failed {
			fmt.Fprintf(&b, "  %s: failed\n", o.File)
			continue
		}
		fmt.Fprintf(&b, "  %s: thr=%.2f\n", o.File, o.Throughput)
	}
	return b.String()
}

func (f Final) String() string {
	thr := "NaN"
	if f.HasThr {
		thr = fmt.Sprint(f.Thr)
	}
	return fmt.Sprintf("thr=%s, min=%d, p50=%d, p95=%d, p99=%d, p999=%d, p9999=%d, max=%d",
		thr, f.Min, f.P50, f.P95, f.P99, f.P999, f.P9999, f.Max)
}

// ValidateInput checks that path names an existing local client .out file.
// The other clients' files are found from it.
func ValidateInput(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "YCSB file %s does not exist", path)
	}
	if !strings.HasSuffix(path, ".out") {
		return errors.Newf("YCSB file %s must end with .out", path)
	}
	if strings.Contains(path, "extra_requester") {
		return errors.Newf("YCSB file %s should not contain 'extra_requester': "+
			"pass only the local .out files, the extra requester files are found from them", path)
	}
	if !strings.Contains(path, "local") {
		return errors.Newf("YCSB file %s is expected to contain 'local': "+
			"local .out files are the inputs, the other files are found from them", path)
	}
	return nil
}

// ExperimentPrefix returns the part of a file name shared by every client of
// an experiment, up to and including "__node_".
func ExperimentPrefix(name string) string {
	base := filepath.Base(name)
	if i := strings.Index(base, nodeMarker); i >= 0 {
		base = base[:i]
	}
	return base + nodeMarker
}

// hdrKey returns the operation of a histogram log: "x.0.READ.hdr" is READ.
func hdrKey(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".hdr")
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// Aggregator merges the histograms of each experiment.
type Aggregator struct {
	Merger         Merger
	Trim           Trim
	IgnoreFailures bool
}

// groupHdrFiles sorts the histogram logs of an experiment by operation.
func (a *Aggregator) groupHdrFiles(hdrs []string) (map[string][]string, error) {
	byKey := map[string][]string{}
	for _, f := range hdrs {
		key := hdrKey(f)
		switch {
		case ignoredKeys[key]:
			continue
		case failureKeys[key]:
			if a.IgnoreFailures {
				log.Warnf("ignoring failed operations in %s", f)
				continue
			}
			return nil, errors.Newf("failure key %s detected in %s: remove all data of experiments with failures", key, f)
		}
		allowed := false
		for _, k := range AllowedKeys {
			if key == k {
				allowed = true
			}
		}
		if !allowed {
			return nil, errors.Newf("unexpected HDR key %q in %s", key, f)
		}
		byKey[key] = append(byKey[key], f)
	}
	return byKey, nil
}

// Process aggregates the experiment that outPath belongs to. Experiments whose
// prefix is already in seen are skipped and return nil; otherwise the prefix
// is added to seen.
func (a *Aggregator) Process(
	ctx context.Context, outPath string, seen map[string]bool,
) (*WorkloadResult, error) {
	prefix := ExperimentPrefix(outPath)
	if seen[prefix] {
		log.Debugf("skipping %s: experiment %s already aggregated", outPath, prefix)
		return nil, nil
	}
	seen[prefix] = true
	dir := filepath.Dir(outPath)

	hdrs, err := filepath.Glob(filepath.Join(dir, prefix+"*.hdr"))
	if err != nil {
		return nil, err
	}
	sort.Strings(hdrs)
	if len(hdrs) == 0 {
		return nil, errors.Newf("no HDR logs for experiment %s", prefix)
	}
	byKey, err := a.groupHdrFiles(hdrs)
	if err != nil {
		return nil, err
	}

	res := &WorkloadResult{
		Prefix:       prefix,
		HdrFiles:     hdrs,
		PerKey:       map[string]Final{},
		PerKeySeries: map[string][]Interval{},
	}
	var all []string
	for _, k := range AllowedKeys {
		all = append(all, byKey[k]...)
	}
	log.Printf("Analyzing %s (%d histogram logs)", prefix, len(all))
	merged, err := a.Merger.Merge(ctx, all, a.Trim)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", prefix, OverallKey)
	}
	res.Overall, res.OverallSeries = convert(merged)

	for _, k := range AllowedKeys {
		files, ok := byKey[k]
		if !ok {
			continue
		}
		merged, err := a.Merger.Merge(ctx, files, a.Trim)
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s", prefix, k)
		}
		res.PerKey[k], res.PerKeySeries[k] = convert(merged)
	}

	outs, err := filepath.Glob(filepath.Join(dir, prefix+"*.out"))
	if err != nil {
		return nil, err
	}
	sort.Strings(outs)
	if len(outs) == 0 {
		return nil, errors.Newf("no .out files for experiment %s", prefix)
	}
	for _, o := range outs {
		st, err := ParseOutFile(o)
		if err != nil {
			return nil, err
		}
		res.OutFiles = append(res.OutFiles, st)
	}
	return res, nil
}

// Aggregate processes every input file in order, skipping files of
// experiments that were already aggregated.
func (a *Aggregator) Aggregate(ctx context.Context, files []string) ([]*WorkloadResult, error) {
	seen := map[string]bool{}
	var results []*WorkloadResult
	for _, f := range files {
		if err := ValidateInput(f); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		r, err := a.Process(ctx, f, seen)
		if err != nil {
			return nil, err
		}
		if r != nil {
			results = append(results, r)
		}
	}
	return results, nil
}

func convert(m *MergeResult) (Final, []Interval) {
	o := m.Overall
	f := Final{
		Valid: true,
		Min:   o.MinUs, P50: o.P50Us, P95: o.P95Us, P99: o.P99Us,
		P999: o.P999Us, P9999: o.P9999Us, Max: o.MaxUs,
	}
	if secs := float64(m.RuntimeUs) / 1e6; secs > 0 {
		f.HasThr = true
		f.Thr = int64(math.RoundToEven(float64(o.Count) / secs))
	}
	series := make([]Interval, len(m.Intervals))
	for i, b := range m.Intervals {
		thr := 0.0
		if covered := float64(b.CoveredUs) / 1e6; covered > 0 {
			thr = float64(b.Count) / covered
		}
		series[i] = Interval{
			T0EpochUs: b.T0EpochUs, Count: b.Count, Thr: thr,
			Min: b.MinUs, P50: b.P50Us, P95: b.P95Us, P99: b.P99Us,
			P999: b.P999Us, P9999: b.P9999Us, Max: b.MaxUs,
		}
	}
	return f, series
}

// GCStorm compares the histogram throughput with what the clients reported.
// A large gap means the clients stalled (typically in GC) and the histograms
// do not cover the whole run. Experiments with a failed client are never
// flagged. Clients that report no throughput at all are an error since no
// deviation can be computed.
func (w *WorkloadResult) GCStorm(thresholdPct float64) (deviation float64, detected bool, err error) {
	sum := 0.0
	for _, o := range w.OutFiles {
		if o.Failed {
			return 0, false, nil
		}
		sum += o.Throughput
	}
	if sum == 0 {
		return 0, false, errors.Newf("%s: clients reported zero throughput", w.Prefix)
	}
	hdr := float64(w.Overall.Thr)
	deviation = math.Abs(hdr-sum) / sum * 100
	return deviation, deviation > thresholdPct, nil
}

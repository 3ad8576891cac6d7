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
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachlabs/metrics-report/internal/report"
	"github.com/stretchr/testify/require"
)

// fakeMerger answers with a fixed result per key; OVERALL when the files span
// several keys.
type fakeMerger struct {
	results map[string]*MergeResult
	calls   [][]string
	trims   []Trim
}

func (f *fakeMerger) Merge(_ context.Context, files []string, trim Trim) (*MergeResult, error) {
	f.calls = append(f.calls, files)
	f.trims = append(f.trims, trim)
	key := hdrKey(files[0])
	for _, file := range files[1:] {
		if hdrKey(file) != key {
			key = OverallKey
		}
	}
	res, ok := f.results[key]
	if !ok {
		return nil, errors.Newf("no result for %s", key)
	}
	return res, nil
}

func newFakeMerger() *fakeMerger {
	return &fakeMerger{results: map[string]*MergeResult{
		OverallKey: {
			Overall:   HistogramStats{Count: 2000, MinUs: 10, P50Us: 100, P95Us: 200, P99Us: 300, P999Us: 400, P9999Us: 500, MaxUs: 600},
			RuntimeUs: 10e6,
			Intervals: []MergedInterval{
				{HistogramStats: HistogramStats{Count: 100, P99Us: 310}, T0EpochUs: 5e6, CoveredUs: 1e6},
				{HistogramStats: HistogramStats{Count: 50, P99Us: 290}, T0EpochUs: 6e6, CoveredUs: 5e5},
			},
		},
		"READ": {
			Overall:   HistogramStats{Count: 1200, MinUs: 8, P50Us: 90, P95Us: 180, P99Us: 250, P999Us: 350, P9999Us: 450, MaxUs: 550},
			RuntimeUs: 10e6,
		},
		"UPDATE": {
			Overall: HistogramStats{Count: 800, MinUs: 12},
		},
	}}
}

const localOut = `YCSB Client 0.17.0
[OVERALL], RunTime(ms), 10000
[OVERALL], Throughput(ops/sec), 100.0
[READ], Operations, 600
[UPDATE], Operations, 400
[READ-MODIFY-WRITE], Operations, 200
`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

func workloadDir(t *testing.T, extraOut string) string {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"wa__node_local.out":                  localOut,
		"wa__node_extra_requester_1.out":      extraOut,
		"wa__node_local.0.READ.hdr":           "",
		"wa__node_local.0.UPDATE.hdr":         "",
		"wa__node_local.0.CLEANUP.hdr":        "",
		"wa__node_extra_requester_1.READ.hdr": "",
	})
	return dir
}

func TestExperimentPrefix(t *testing.T) {
	require.Equal(t, "wa__node_", ExperimentPrefix("/x/wa__node_local.out"))
	require.Equal(t, "plain.out__node_", ExperimentPrefix("plain.out"))
	require.Equal(t, "READ", hdrKey("/x/wa__node_local.0.READ.hdr"))
	require.Equal(t, "", hdrKey("nokey.hdr"))
}

func TestValidateInput(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a__node_local.out":           localOut,
		"a__node_local.log":           "",
		"a__node_extra_requester.out": "",
		"a__node_remote.out":          "",
	})
	require.NoError(t, ValidateInput(filepath.Join(dir, "a__node_local.out")))
	for file, msg := range map[string]string{
		"missing__node_local.out":     "does not exist",
		"a__node_local.log":           "must end with .out",
		"a__node_extra_requester.out": "extra_requester",
		"a__node_remote.out":          "expected to contain 'local'",
	} {
		err := ValidateInput(filepath.Join(dir, file))
		require.Error(t, err, file)
		require.Contains(t, err.Error(), msg)
	}
}

func TestParseOut(t *testing.T) {
	st, err := parseOut(strings.NewReader(localOut))
	require.NoError(t, err)
	require.False(t, st.Failed)
	require.InDelta(t, 100.0, st.Throughput, 1e-9)

	st, err = parseOut(strings.NewReader("[READ], Operations, 10\n"))
	require.NoError(t, err)
	require.True(t, st.Failed)

	_, err = parseOut(strings.NewReader("[OVERALL], RunTime(ms), 1, 2\n"))
	require.Error(t, err)

	_, err = parseOut(strings.NewReader("[OVERALL], RunTime(ms), 1000\n[OVERALL], Throughput(ops/sec), 1, 2\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected 3 comma separated values")

	_, err = parseOut(strings.NewReader("[OVERALL], Throughput(ops/sec), fast\n"))
	require.Error(t, err)
}

func TestProcess(t *testing.T) {
	dir := workloadDir(t, localOut)
	m := newFakeMerger()
	a := &Aggregator{Merger: m}
	seen := map[string]bool{}
	res, err := a.Process(context.Background(), filepath.Join(dir, "wa__node_local.out"), seen)
	require.NoError(t, err)
	require.True(t, seen["wa__node_"])

	// OVERALL, READ, UPDATE; CLEANUP is never merged.
	require.Len(t, m.calls, 3)
	require.Len(t, m.calls[0], 3)
	require.Len(t, m.calls[1], 2)
	require.Len(t, res.HdrFiles, 4)

	require.Equal(t, Final{Valid: true, HasThr: true, Thr: 200, Min: 10, P50: 100, P95: 200,
		P99: 300, P999: 400, P9999: 500, Max: 600}, res.Overall)
	require.Equal(t, int64(120), res.PerKey["READ"].Thr)
	require.False(t, res.PerKey["UPDATE"].HasThr)
	require.Len(t, res.OverallSeries, 2)
	require.InDelta(t, 100.0, res.OverallSeries[0].Thr, 1e-9)
	require.InDelta(t, 100.0, res.OverallSeries[1].Thr, 1e-9)
	require.Len(t, res.OutFiles, 2)

	dev, storm, err := res.GCStorm(DefaultGCStormThreshold)
	require.NoError(t, err)
	require.False(t, storm)
	require.InDelta(t, 0.0, dev, 1e-9)

	// Same experiment again.
	again, err := a.Process(context.Background(), filepath.Join(dir, "wa__node_local.out"), seen)
	require.NoError(t, err)
	require.Nil(t, again)
	require.Len(t, m.calls, 3)
}

func TestGCStorm(t *testing.T) {
	// The extra requester reports a higher throughput than the histograms saw.
	dir := workloadDir(t, "[OVERALL], RunTime(ms), 10000\n[READ], Operations, 2000\n")
	a := &Aggregator{Merger: newFakeMerger()}
	res, err := a.Process(context.Background(), filepath.Join(dir, "wa__node_local.out"), map[string]bool{})
	require.NoError(t, err)
	dev, storm, err := res.GCStorm(DefaultGCStormThreshold)
	require.NoError(t, err)
	require.True(t, storm)
	require.InDelta(t, 33.33, dev, 0.01)
	require.Contains(t, res.String(), "wa__node_")

	// A failed client disables the check.
	dir = workloadDir(t, "[READ], Operations, 2000\n")
	res, err = a.Process(context.Background(), filepath.Join(dir, "wa__node_local.out"), map[string]bool{})
	require.NoError(t, err)
	_, storm, err = res.GCStorm(DefaultGCStormThreshold)
	require.NoError(t, err)
	require.False(t, storm)

	// No reported operations leaves nothing to compare against.
	dir = workloadDir(t, "[OVERALL], RunTime(ms), 10000\n")
	writeFiles(t, dir, map[string]string{"wa__node_local.out": "[OVERALL], RunTime(ms), 10000\n"})
	res, err = a.Process(context.Background(), filepath.Join(dir, "wa__node_local.out"), map[string]bool{})
	require.NoError(t, err)
	_, storm, err = res.GCStorm(DefaultGCStormThreshold)
	require.Error(t, err)
	require.Contains(t, err.Error(), "zero throughput")
	require.False(t, storm)
}

func TestProcessErrors(t *testing.T) {
	ctx := context.Background()

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"wb__node_local.out": localOut})
	_, err := (&Aggregator{Merger: newFakeMerger()}).Process(ctx, filepath.Join(dir, "wb__node_local.out"), map[string]bool{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no HDR logs")

	writeFiles(t, dir, map[string]string{"wb__node_local.0.READ-FAILED.hdr": ""})
	_, err = (&Aggregator{Merger: newFakeMerger()}).Process(ctx, filepath.Join(dir, "wb__node_local.out"), map[string]bool{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "READ-FAILED")

	writeFiles(t, dir, map[string]string{"wb__node_local.0.READ.hdr": ""})
	res, err := (&Aggregator{Merger: newFakeMerger(), IgnoreFailures: true}).Process(
		ctx, filepath.Join(dir, "wb__node_local.out"), map[string]bool{})
	require.NoError(t, err)
	require.Len(t, res.HdrFiles, 2)

	writeFiles(t, dir, map[string]string{"wb__node_local.0.DELETE.hdr": ""})
	_, err = (&Aggregator{Merger: newFakeMerger()}).Process(ctx, filepath.Join(dir, "wb__node_local.out"), map[string]bool{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected HDR key")
}

func TestAggregateDedupes(t *testing.T) {
	dir := workloadDir(t, localOut)
	writeFiles(t, dir, map[string]string{"wa__node_local_2.out": localOut})
	m := newFakeMerger()
	trim := Trim{HeadSeconds: 5}
	a := &Aggregator{Merger: m, Trim: trim}
	res, err := a.Aggregate(context.Background(), []string{
		filepath.Join(dir, "wa__node_local.out"),
		filepath.Join(dir, "wa__node_local_2.out"),
	})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, trim, m.trims[0])
}

func TestWriteCSV(t *testing.T) {
	dir := workloadDir(t, localOut)
	res, err := (&Aggregator{Merger: newFakeMerger()}).Aggregate(context.Background(),
		[]string{filepath.Join(dir, "wa__node_local.out")})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, res))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, CSVHeader(), rows[0])
	require.Len(t, rows[0], 1+len(CSVColumns)*(1+len(AllowedKeys)))
	require.Equal(t, "OVERALL_thr", rows[0][1])
	require.Equal(t, "READ_p99", rows[0][1+len(CSVColumns)+4])

	row := rows[1]
	require.Equal(t, "wa__node_", row[0])
	require.Equal(t, []string{"200", "10", "100", "200", "300", "400", "500", "600"}, row[1:9])
	require.Equal(t, "120", row[9])
	// UPDATE had no runtime, INSERT and SCAN did not run.
	require.Equal(t, "", row[17])
	require.Equal(t, "12", row[18])
	for _, c := range row[25:] {
		require.Empty(t, c)
	}
}

func TestPlots(t *testing.T) {
	dir := workloadDir(t, localOut)
	trim := Trim{HeadSeconds: 30}
	res, err := (&Aggregator{Merger: newFakeMerger(), Trim: trim}).Aggregate(context.Background(),
		[]string{filepath.Join(dir, "wa__node_local.out")})
	require.NoError(t, err)

	require.Equal(t, []float64{30, 31}, seriesX(res[0].OverallSeries, trim))

	var buf bytes.Buffer
	require.NoError(t, WriteFinalTables(&buf, res, trim))
	out := buf.String()
	require.Contains(t, out, "OVERALL final stats (start seconds ignored = 30  ;  end seconds ignored = 0)")
	require.Contains(t, out, "READ final stats")
	require.NotContains(t, out, "SCAN final stats")

	cs := Charts(res, trim)
	// Only OVERALL has intervals.
	require.Len(t, cs, len(intervalStats))
	require.Equal(t, "ycsb_OVERALL_thr", cs[0].Name)
	buf.Reset()
	require.NoError(t, report.WritePage(&buf, "ycsb", cs))
	require.Contains(t, buf.String(), "OVERALL p99")
}

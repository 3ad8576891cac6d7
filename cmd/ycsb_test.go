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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/cockroachlabs/metrics-report/internal/ycsb"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// fakeJava installs a java on PATH that writes a merge result of 1000
// operations over one second, whatever histograms it is given.
func fakeJava(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell script on PATH")
	}
	bin := t.TempDir()
	// Arguments: -cp <cp> MergeHdrStats --ignore-head-sec --ignore-tail-sec <out> <hdrs>...
	script := `#!/bin/sh
cat > "$6" <<'EOF'
{"overall": {"count": 1000, "min_us": 1, "p50_us": 2, "p95_us": 3, "p99_us": 4,
 "p999_us": 5, "p9999_us": 6, "max_us": 7}, "runtime_us": 1000000, "intervals": []}
EOF
`
	require.NoError(t, os.WriteFile(filepath.Join(bin, "java"), []byte(script), 0755))
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func setYCSBFlags(t *testing.T, files []string, plot bool) {
	t.Helper()
	oldFiles, oldPlot, oldTrim := ycsbFiles, plotMetrics, ycsbTrim
	ycsbFiles, plotMetrics, ycsbTrim = files, plot, ycsb.Trim{}
	viper.Set("ycsb.java_cp", "unused")
	t.Cleanup(func() {
		ycsbFiles, plotMetrics, ycsbTrim = oldFiles, oldPlot, oldTrim
		viper.Set("ycsb.java_cp", "")
	})
}

func ycsbRun(t *testing.T, ops string) string {
	t.Helper()
	in := t.TempDir()
	writeLog(t, in, "exp__node_local.0.READ.hdr", "")
	return writeLog(t, in, "exp__node_local.out",
		"[OVERALL], RunTime(ms), 1000\n[OVERALL], Throughput(ops/sec), "+ops+"\n[READ], Operations, "+ops+"\n")
}

func TestAnalyzeYCSB(t *testing.T) {
	fakeJava(t)
	results := withOutputDir(t)
	setYCSBFlags(t, []string{ycsbRun(t, "1000")}, true)

	var out bytes.Buffer
	require.NoError(t, analyzeYCSB(context.Background(), &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "expt_prefix,OVERALL_thr,"))
	require.True(t, strings.HasPrefix(lines[1], "exp__node_,1000,1,2,3,4,5,6,7,1000,"))
	require.FileExists(t, filepath.Join(results, "ycsb-final-stats.txt"))
	require.FileExists(t, filepath.Join(results, "ycsb.html"))
}

func TestAnalyzeYCSBGCStorm(t *testing.T) {
	fakeJava(t)
	results := withOutputDir(t)
	// The client saw half of what the histograms hold.
	setYCSBFlags(t, []string{ycsbRun(t, "500")}, true)

	var out bytes.Buffer
	err := analyzeYCSB(context.Background(), &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "GC storm detected")
	require.Empty(t, out.String())
	require.NoFileExists(t, filepath.Join(results, "ycsb-final-stats.txt"))
	require.NoFileExists(t, filepath.Join(results, "ycsb.html"))

	// Trimming disables the check.
	out.Reset()
	ycsbTrim = ycsb.Trim{HeadSeconds: 1}
	require.NoError(t, analyzeYCSB(context.Background(), &out))
	require.NotEmpty(t, out.String())
}

func TestAnalyzeYCSBZeroThroughput(t *testing.T) {
	fakeJava(t)
	withOutputDir(t)
	setYCSBFlags(t, []string{ycsbRun(t, "0")}, false)

	var out bytes.Buffer
	err := analyzeYCSB(context.Background(), &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "zero throughput")
	require.Empty(t, out.String())
}

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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func withOutputDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	oldBase, oldVersion := baseOutputDir, reportVersion
	baseOutputDir, reportVersion = dir, "test"
	t.Cleanup(func() { baseOutputDir, reportVersion = oldBase, oldVersion })
	return filepath.Join(dir, "test", "results")
}

func setSourceFiles(t *testing.T, files map[string][]string) {
	t.Helper()
	for _, s := range metricSources {
		s.files = files[s.name]
	}
	t.Cleanup(func() {
		for _, s := range metricSources {
			s.files = nil
		}
	})
}

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestAnalyzeMetrics(t *testing.T) {
	results := withOutputDir(t)
	in := t.TempDir()
	setSourceFiles(t, map[string][]string{
		"compactionstats": {writeLog(t, in, "compactionstats.log", `===== compactionstats @ 2024-01-01 00:00:00 =====
pending tasks: 2
- ycsb.usertable: 2
===== compactionstats @ 2024-01-01 00:00:05 =====
pending tasks: 0
`)},
		"proc_vmstat": {writeLog(t, in, "proc_vmstat.csv",
			"timestamp,pgscan_kswapd,nr_free_pages\n2024-01-01 00:00:00,100,5\n2024-01-01 00:00:01,150,6\n")},
		"tablestats": {writeLog(t, in, "tablestats.log", `===== tablestats @ 2024-01-01 00:00:00 =====
Total number of tables: 1
Keyspace : ycsb
		Table: usertable
		SSTables in each level: [3, 1/4, 0, 0]
`)},
	})

	require.NoError(t, analyzeMetrics(context.Background()))

	for _, f := range []string{
		"compactionstats.csv", "compactionstats.html", "proc_vmstat.csv", "proc_vmstat.html",
		"tablestats.csv", "summary.txt", "compactionstats-table.txt", "tablestats-levels.txt",
	} {
		require.FileExists(t, filepath.Join(results, f))
	}

	b, err := os.ReadFile(filepath.Join(results, "proc_vmstat.csv"))
	require.NoError(t, err)
	// pgscan_kswapd is rebased to zero, nr_free_pages is not.
	require.Contains(t, string(b), "proc_vmstat.csv,2024-01-01 00:00:01,1,50,6")

	b, err = os.ReadFile(filepath.Join(results, "summary.txt"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), "System Metrics Summary"))
	require.Contains(t, string(b), "compactionstats - pending_tasks Stats:")

	b, err = os.ReadFile(filepath.Join(results, "tablestats-levels.txt"))
	require.NoError(t, err)
	require.Contains(t, string(b), "3, 1/4")
}

func TestAnalyzeMetricsErrors(t *testing.T) {
	withOutputDir(t)
	setSourceFiles(t, nil)
	require.Error(t, analyzeMetrics(context.Background()))

	in := t.TempDir()
	setSourceFiles(t, map[string][]string{
		"compactionstats": {writeLog(t, in, "bad.log", `===== compactionstats @ 2024-01-01 00:00:00 =====
pending tasks: 2
- other.table: 2
`)},
	})
	err := analyzeMetrics(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad.log")
}

func TestCSVValues(t *testing.T) {
	p := writeLog(t, t.TempDir(), "ycsb.csv", "expt_prefix,OVERALL_thr\nwa__node_,200\n")
	vals, err := csvValues(p)
	require.NoError(t, err)
	require.Equal(t, [][]interface{}{{"wa__node_", "200"}}, vals)
}

func TestSysusageKinds(t *testing.T) {
	viper.Set("sysusage.identifiers.network_usage", []string{"eth0"})
	t.Cleanup(func() { viper.Set("sysusage.identifiers.network_usage", nil) })
	for _, k := range sysusageKinds() {
		if k.Name == "network_usage" {
			require.Equal(t, []string{"eth0"}, k.Identifiers)
		}
		if k.Name == "memory_usage" {
			require.Equal(t, []string{"total", "used", "free"}, k.Properties)
		}
	}
}

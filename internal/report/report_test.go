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
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/cockroachlabs/metrics-report/internal/metrics"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, source string, f metrics.Format, content string) *metrics.Table {
	t.Helper()
	tbl, err := metrics.Parse(source, f, content, metrics.DefaultOptions())
	require.NoError(t, err)
	return tbl
}

const compactionLog = `===== compactionstats @ 2024-01-01 00:00:00 =====
pending tasks: 3
- ycsb.usertable: 3
===== compactionstats @ 2024-01-01 00:00:00 =====
pending tasks: 2
- ycsb.usertable: 2
a-compaction-row
===== compactionstats @ 2024-01-01 00:00:10 =====
pending tasks: 0
`

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 1, 3, 2})
	require.False(t, s.Empty)
	require.Equal(t, 10.0, s.Total)
	require.Equal(t, 2.5, s.Avg)
	require.InDelta(t, 1.75, s.P25, 1e-9)
	require.InDelta(t, 2.5, s.P50, 1e-9)
	require.InDelta(t, 3.25, s.P75, 1e-9)
	require.InDelta(t, 3.97, s.P99, 1e-9)

	one := Summarize([]float64{7})
	require.Equal(t, Summary{Total: 7, Avg: 7, P25: 7, P50: 7, P75: 7, P99: 7}, one)

	require.True(t, Summarize(nil).Empty)
	require.Equal(t, []string{"N/A", "N/A", "N/A", "N/A", "N/A", "N/A"}, Summarize(nil).cells())
}

func TestWriteSummary(t *testing.T) {
	a := mustParse(t, "/logs/run1/compactionstats.log", metrics.CompactionStats, compactionLog)
	empty := mustParse(t, "/logs/run2/compactionstats.log", metrics.CompactionStats, "")
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, "compactionstats", []*metrics.Table{a, empty}))
	out := buf.String()
	require.Contains(t, out, "compactionstats - pending_tasks Stats:")
	require.Contains(t, out, "compactionstats - active_compactions Stats:")
	require.Contains(t, out, "5.00")
	require.Contains(t, out, "N/A")
	require.NotContains(t, out, "elapsed")

	buf.Reset()
	require.NoError(t, WriteSummary(&buf, "compactionstats", []*metrics.Table{empty}))
	require.Empty(t, buf.String())

	buf.Reset()
	require.NoError(t, WriteCover(&buf, []string{"cachestat", "compactionstats"},
		map[string][]*metrics.Table{"compactionstats": {a}}))
	require.True(t, strings.HasPrefix(buf.String(), CoverTitle+"\n"))
	require.Contains(t, buf.String(), "compactionstats - pending_tasks Stats:")
}

func TestCompactionPivot(t *testing.T) {
	a := mustParse(t, "/logs/a/compactionstats.log", metrics.CompactionStats, compactionLog)
	b := mustParse(t, "/logs/b/compactionstats.log", metrics.CompactionStats, `===== compactionstats @ 2024-01-01 00:00:05 =====
pending tasks: 1
- ycsb.usertable: 1
===== compactionstats @ 2024-01-01 00:00:07 =====
pending tasks: 4
- ycsb.usertable: 4
`)
	p := BuildPivot([]*metrics.Table{a, b}, CompactionCell)
	require.Equal(t, []int{0, 2, 10}, p.Elapsed)
	require.Equal(t, [][]string{
		// Two samples of a land on second 0; the later one wins.
		{"2 (1)", "1 (0)"},
		{"", "4 (0)"},
		{"0 (0)", ""},
	}, p.Cells)

	var buf bytes.Buffer
	require.NoError(t, WriteCompactionPivot(&buf, []*metrics.Table{a, b}))
	require.Contains(t, buf.String(), CompactionPivotTitle)
	require.Contains(t, buf.String(), "2 (1)")

	buf.Reset()
	require.NoError(t, WriteCompactionPivot(&buf, nil))
	require.Empty(t, buf.String())
}

func TestFormatLevels(t *testing.T) {
	for _, tc := range []struct{ in, out string }{
		{"[8/4, 45/10, 104/100, 918, 0, 0, 0]", "8/4, 45/10, 104/100, 918"},
		{"[0, 0, 0]", ""},
		{"[1, 0/4, 0]", "1, 0/4"},
		{"", ""},
		{"  [3,4]  ", "3, 4"},
		{"[1, n/a, 0.0]", "1, n/a"},
	} {
		require.Equal(t, tc.out, FormatLevels(tc.in), tc.in)
	}
}

func TestWriteCSV(t *testing.T) {
	a := mustParse(t, "/logs/a/meminfo.csv", metrics.TimestampedCSV,
		"timestamp,MemFree,zone\n2024-01-01 00:00:00,10,n0\n2024-01-01 00:00:01.5,,n1\n")
	b := mustParse(t, "/logs/b/meminfo.csv", metrics.TimestampedCSV,
		"timestamp,Cached\n2024-01-01 00:00:00,3\n")
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []*metrics.Table{a, b}))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"file", "timestamp", "elapsed", "MemFree", "Cached", "zone"},
		{"meminfo.csv", "2024-01-01 00:00:00", "0", "10", "", "n0"},
		{"meminfo.csv", "2024-01-01 00:00:01.5", "1.5", "", "", "n1"},
		{"meminfo.csv", "2024-01-01 00:00:00", "0", "", "3", ""},
	}, rows)
}

func TestCharts(t *testing.T) {
	vm := mustParse(t, "vmstat.log", metrics.CommandVmstat, strings.Join([]string{
		" r  b   swpd   free   buff  cache   si   so    bi    bo   in   cs us sy id wa st                 UTC",
		" 1  0      0   1000    100    100    0    0     0     0   10   10 50 10 39  1  0 2024-01-01 00:00:00",
		" 1  0      0   1000    100    100    0    0     0     0   10   10 50 10 40  1  0 2024-01-01 00:00:01",
	}, "\n"))
	ks := mustParse(t, "kswapd.log", metrics.KswapdWake,
		"0.5 p 1 mm_vmscan_kswapd_wake nid=1,order=0\n0.7 p 1 mm_vmscan_kswapd_wake nid=0,order=3\n")

	var cs []Chart
	cs = append(cs, MetricCharts("command_vmstat", []*metrics.Table{vm})...)
	require.Len(t, cs, len(metrics.VmstatColumns))
	cpu := CPUStackCharts([]*metrics.Table{vm})
	require.Len(t, cpu, 1)
	require.Equal(t, "command_vmstat_cpu_vmstat.log", cpu[0].Name)
	kc := KswapdCharts([]*metrics.Table{ks})
	require.Len(t, kc, 1)
	cs = append(append(cs, cpu...), kc...)

	var buf bytes.Buffer
	require.NoError(t, WritePage(&buf, "metrics", cs))
	html := buf.String()
	require.Contains(t, html, "CPU breakdown: vmstat.log")
	require.Contains(t, html, "nid=0")
	require.Contains(t, html, CPUColors["us"])
}

func TestSafeName(t *testing.T) {
	require.Equal(t, "file_values__sys_kernel_mm_x", SafeName("file_values_/sys/kernel/mm/x"))
}

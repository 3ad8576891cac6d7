// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package metrics turns raw system and nodetool capture logs into tables of
// validated records with a common elapsed-seconds axis.
//
// Every input file is parsed on its own: the raw lines go through a noise
// filter, block-oriented formats are split into timestamped blocks, one
// extractor per format turns each block (or line) into a Record, and the
// resulting Table carries elapsed seconds relative to its first record.
package metrics

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
)

// Format identifies the kind of log a file contains.
type Format int

const (
	// Cachestat is bcc cachestat output captured with --timestamp.
	Cachestat Format = iota
	// TimestampedCSV is a CSV file with a "timestamp" column (meminfo, proc vmstat).
	TimestampedCSV
	// FileValues is a values_logger CSV: a timestamp plus one column per file path.
	FileValues
	// CommandVmstat is `vmstat -w -t -n` pass-through output.
	CommandVmstat
	// CompactionStats is sampled `nodetool compactionstats` output.
	CompactionStats
	// TableStats is sampled `nodetool tablestats` output.
	TableStats
	// TableHistograms is sampled `nodetool tablehistograms` output.
	TableHistograms
	// KswapdWake is bcc trace output for mm_vmscan_kswapd_wake captured with -T.
	KswapdWake
)

var formatNames = []string{
	Cachestat:       "cachestat",
	TimestampedCSV:  "timestamped-csv",
	FileValues:      "file-values",
	CommandVmstat:   "command-vmstat",
	CompactionStats: "compactionstats",
	TableStats:      "tablestats",
	TableHistograms: "tablehistograms",
	KswapdWake:      "kswapd-wake",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return "unknown"
	}
	return formatNames[f]
}

// ParseFormat returns the Format with the given name.
func ParseFormat(name string) (Format, error) {
	for i, n := range formatNames {
		if n == name {
			return Format(i), nil
		}
	}
	return 0, errors.Newf("unknown log format %q", name)
}

// Record is one validated data point.
//
// Timestamp is zero for formats that only carry relative time (cachestat,
// kswapd-wake). Values holds numeric fields; a missing value is stored as NaN.
// Labels holds string fields such as the raw SSTable level list.
type Record struct {
	Timestamp time.Time
	Elapsed   float64
	Values    map[string]float64
	Labels    map[string]string
}

// Value returns the named numeric field and whether it is present and finite.
func (r Record) Value(col string) (float64, bool) {
	v, ok := r.Values[col]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Table is the ordered sequence of records parsed from one input file.
// Tables are not mutated once returned; transforms return copies.
type Table struct {
	Source string
	Format Format
	// Columns lists the numeric fields in display order.
	Columns []string
	// LabelColumns lists the string fields in display order.
	LabelColumns []string
	Records      []Record
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// HasColumn reports whether col is one of the table's numeric columns.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Column returns the finite values of a numeric column in record order.
func (t *Table) Column(col string) []float64 {
	var out []float64
	for _, r := range t.Records {
		if v, ok := r.Value(col); ok {
			out = append(out, v)
		}
	}
	return out
}

// Series returns (elapsed, value) pairs for a numeric column, skipping
// missing values.
func (t *Table) Series(col string) (xs, ys []float64) {
	for _, r := range t.Records {
		if v, ok := r.Value(col); ok {
			xs = append(xs, r.Elapsed)
			ys = append(ys, v)
		}
	}
	return xs, ys
}

// SubtractInitial returns a copy of the table where each of the given numeric
// columns has its first value subtracted from every record. Columns the table
// does not have are ignored. Used for monotonic kernel counters.
func (t *Table) SubtractInitial(cols ...string) *Table {
	out := *t
	out.Records = make([]Record, len(t.Records))
	for i, r := range t.Records {
		r.Values = copyValues(r.Values)
		out.Records[i] = r
	}
	if len(out.Records) == 0 {
		return &out
	}
	for _, col := range cols {
		if !t.HasColumn(col) {
			continue
		}
		first := out.Records[0].Values[col]
		for i := range out.Records {
			if v, ok := out.Records[i].Values[col]; ok {
				out.Records[i].Values[col] = v - first
			}
		}
	}
	return &out
}

// MonotonicCounters lists, per log source, the cumulative kernel counters that
// are rebased to zero before reporting.
var MonotonicCounters = map[string][]string{
	"proc_vmstat": {
		"pgscan_kswapd", "pgscan_direct",
		"pgsteal_kswapd", "pgsteal_direct",
		"allocstall_dma", "allocstall_dma32", "allocstall_normal", "allocstall_movable",
		"workingset_refault_file",
	},
	"file_values": {
		"/sys/kernel/mm/transparent_hugepage/khugepaged/pages_collapsed",
	},
	"meminfo": {},
}

func copyValues(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	c := make(map[string]float64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func newTable(cols []string, labels []string, recs []Record) *Table {
	return &Table{Columns: cols, LabelColumns: labels, Records: recs}
}

// setElapsedFromTimestamps fills Elapsed relative to the first record.
func (t *Table) setElapsedFromTimestamps() {
	ts := make([]time.Time, len(t.Records))
	for i, r := range t.Records {
		ts[i] = r.Timestamp
	}
	for i, e := range ElapsedSince(ts) {
		t.Records[i].Elapsed = e
	}
}

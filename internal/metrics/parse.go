// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package metrics

import (
	"os"

	"github.com/cockroachdb/errors"
)

// Default nodetool target.
const (
	DefaultKeyspace = "ycsb"
	DefaultTable    = "usertable"
)

// Options is the read-only configuration shared by the extractors.
type Options struct {
	// Keyspace and Table name the only table nodetool output may mention.
	Keyspace string
	Table    string
}

// DefaultOptions targets ycsb.usertable.
func DefaultOptions() Options {
	return Options{Keyspace: DefaultKeyspace, Table: DefaultTable}
}

func (o Options) withDefaults() Options {
	if o.Keyspace == "" {
		o.Keyspace = DefaultKeyspace
	}
	if o.Table == "" {
		o.Table = DefaultTable
	}
	return o
}

// qualifiedTable is the "<keyspace>.<table>" name compactionstats prints.
func (o Options) qualifiedTable() string {
	return o.Keyspace + "." + o.Table
}

// Parse turns the content of one log file into a Table. source names the file
// in errors and in the returned table. Any structural violation fails the
// whole file.
func Parse(source string, format Format, content string, opts Options) (*Table, error) {
	opts = opts.withDefaults()
	raw := SplitLines(content)

	var t *Table
	var err error
	switch format {
	case Cachestat:
		t, err = parseCachestat(raw)
	case TimestampedCSV:
		t, err = parseTimestampedCSV(raw)
	case FileValues:
		t, err = parseFileValues(FilterNoise(raw))
	case CommandVmstat:
		t, err = parseVmstat(DropBlank(raw))
	case CompactionStats:
		t, err = blockTable(compactionStatsFormat(opts), raw,
			[]string{ColPendingTasks, ColActiveCompactions}, nil)
	case TableStats:
		t, err = blockTable(tableStatsFormat(opts), raw,
			nil, []string{ColSSTablesEachLevel})
	case TableHistograms:
		t, err = blockTable(tableHistogramsFormat(opts), raw, HistogramColumns(), nil)
	case KswapdWake:
		t, err = parseKswapdWake(FilterNoise(raw))
	default:
		return nil, errors.Newf("%s: unknown log format %d", source, format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s", source)
	}
	t.Source = source
	t.Format = format
	return t, nil
}

// ParseFile reads and parses the log at path.
func ParseFile(path string, format Format, opts Options) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return Parse(path, format, string(b), opts)
}

func blockTable(f blockFormat, raw []string, cols, labels []string) (*Table, error) {
	recs, err := f.records(FilterNoise(raw))
	if err != nil {
		return nil, err
	}
	t := newTable(cols, labels, recs)
	t.setElapsedFromTimestamps()
	return t, nil
}

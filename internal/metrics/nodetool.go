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
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Column names produced by the nodetool extractors.
const (
	ColPendingTasks       = "pending_tasks"
	ColActiveCompactions  = "active_compactions"
	ColSSTablesEachLevel  = "sstables_in_each_level"
	activeRemainingPrefix = "Active compaction remaining time"
)

var (
	compactionHeaderRE = regexp.MustCompile(`^===== compactionstats @ (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) =====$`)
	pendingRE          = regexp.MustCompile(`^pending tasks:\s*(\d+)\s*$`)
	pendingSublistRE   = regexp.MustCompile(`^-\s+([A-Za-z0-9_.\-]+)\s*:\s*(\d+)\s*$`)
	activeHeaderRE     = regexp.MustCompile(`^\s*id\s+compaction type\s+keyspace\s+table\s+completed`)

	tablestatsHeaderRE = regexp.MustCompile(`^===== tablestats(?:\s+keyspace=(\S+))?\s*@\s*(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) =====$`)
	keyspaceLineRE     = regexp.MustCompile(`^Keyspace\s*:\s*(\S+)\s*$`)
	tableLineRE        = regexp.MustCompile(`^\s*Table\s*:\s*(\S+)\s*$`)
	levelsRE           = regexp.MustCompile(`^\s*SSTables in each level:\s*(\[[^\]]*\])\s*$`)

	histogramsHeaderRE = regexp.MustCompile(`^===== tablehistograms\s+([A-Za-z0-9_.\-]+)\.([A-Za-z0-9_.\-]+)\s*@\s*(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\s*=====$`)
	histogramsBannerRE = regexp.MustCompile(`^([A-Za-z0-9_.\-]+)/([A-Za-z0-9_.\-]+)\s+histograms\s*$`)
	histogramsRowRE    = regexp.MustCompile(`^((?:\d+%|Min|Max))\s+(\d+(?:\.\d+)?)\b`)
)

// histogramColumns maps a tablehistograms row label to its output column.
var histogramColumns = []struct{ label, col string }{
	{"50%", "sstables_p50"},
	{"75%", "sstables_p75"},
	{"95%", "sstables_p95"},
	{"98%", "sstables_p98"},
	{"99%", "sstables_p99"},
	{"Min", "sstables_min"},
	{"Max", "sstables_max"},
}

// HistogramColumns returns the tablehistograms output columns in order.
func HistogramColumns() []string {
	cols := make([]string, len(histogramColumns))
	for i, h := range histogramColumns {
		cols[i] = h.col
	}
	return cols
}

func compactionStatsFormat(opts Options) blockFormat {
	target := opts.qualifiedTable()
	return blockFormat{
		name:       "compactionstats",
		header:     compactionHeaderRE,
		stampGroup: 1,
		extract: func(b *Block) (Record, error) {
			return extractCompactionStats(b.Body, target)
		},
	}
}

// extractCompactionStats parses one compactionstats block body. The
// "pending tasks" line must immediately follow the header.
func extractCompactionStats(body []string, target string) (Record, error) {
	i := 0
	var m []string
	if i < len(body) {
		m = pendingRE.FindStringSubmatch(strings.TrimSpace(body[i]))
	}
	if m == nil {
		return Record{}, errors.New(`expected "pending tasks: <N>" after header`)
	}
	total, err := strconv.Atoi(m[1])
	if err != nil {
		return Record{}, errors.Wrapf(err, "pending tasks %q", m[1])
	}
	i++

	sum := 0
	others := map[string]struct{}{}
	for ; i < len(body); i++ {
		s := strings.TrimSpace(body[i])
		if !strings.HasPrefix(s, "-") {
			break
		}
		sm := pendingSublistRE.FindStringSubmatch(s)
		if sm == nil {
			return Record{}, errors.Newf("malformed pending sublist line: %q", body[i])
		}
		cnt, err := strconv.Atoi(sm[2])
		if err != nil {
			return Record{}, errors.Wrapf(err, "malformed pending sublist line: %q", body[i])
		}
		if sm[1] == target {
			sum += cnt
		} else {
			others[sm[1]] = struct{}{}
		}
	}
	if len(others) > 0 {
		return Record{}, errors.Newf("pending list includes non-target table(s): %s",
			strings.Join(sortedKeys(others), ", "))
	}
	if sum != total {
		return Record{}, errors.Newf("%s count %d != total pending tasks %d", target, sum, total)
	}

	for i < len(body) && strings.TrimSpace(body[i]) == "" {
		i++
	}
	if i < len(body) && activeHeaderRE.MatchString(body[i]) {
		i++
	}
	active := 0
	for ; i < len(body); i++ {
		s := strings.TrimSpace(body[i])
		if strings.HasPrefix(s, activeRemainingPrefix) {
			break
		}
		if s != "" {
			active++
		}
	}

	return Record{Values: map[string]float64{
		ColPendingTasks:      float64(total),
		ColActiveCompactions: float64(active),
	}}, nil
}

func tableStatsFormat(opts Options) blockFormat {
	return blockFormat{
		name:       "tablestats",
		header:     tablestatsHeaderRE,
		stampGroup: 2,
		extract: func(b *Block) (Record, error) {
			if ks := b.Header[1]; ks != "" && ks != opts.Keyspace {
				return Record{}, errors.Newf("header keyspace=%q != expected %q", ks, opts.Keyspace)
			}
			return extractTableStats(b.Body, opts.Keyspace, opts.Table)
		},
	}
}

// extractTableStats finds the "SSTables in each level" list of the expected
// table. Only the Keyspace and Table lines change which table a level list
// belongs to.
func extractTableStats(body []string, keyspace, table string) (Record, error) {
	others := map[string]struct{}{}
	inTable := false
	levels := ""
	for _, l := range body {
		s := strings.TrimSpace(l)
		if strings.HasPrefix(s, "-----") || strings.HasPrefix(s, "Total number of tables:") {
			continue
		}
		if m := keyspaceLineRE.FindStringSubmatch(s); m != nil {
			if m[1] != keyspace {
				others[m[1]] = struct{}{}
			}
			inTable = false
			continue
		}
		if m := tableLineRE.FindStringSubmatch(s); m != nil {
			inTable = m[1] == table
			continue
		}
		if m := levelsRE.FindStringSubmatch(s); m != nil && inTable {
			levels = m[1]
		}
	}
	if len(others) > 0 {
		return Record{}, errors.Newf("found non-target keyspace(s): %s", strings.Join(sortedKeys(others), ", "))
	}
	if levels == "" {
		return Record{}, errors.Newf("missing 'SSTables in each level' for table '%s' in keyspace '%s'", table, keyspace)
	}
	return Record{Labels: map[string]string{ColSSTablesEachLevel: levels}}, nil
}

func tableHistogramsFormat(opts Options) blockFormat {
	return blockFormat{
		name:       "tablehistograms",
		header:     histogramsHeaderRE,
		stampGroup: 3,
		checkHeader: func(b *Block) error {
			if ks, tbl := b.Header[1], b.Header[2]; ks != opts.Keyspace || tbl != opts.Table {
				return errors.Newf("header keyspace.table %s.%s != expected %s.%s", ks, tbl, opts.Keyspace, opts.Table)
			}
			return nil
		},
		extract: func(b *Block) (Record, error) {
			return extractTableHistograms(b.Body, opts.Keyspace, opts.Table)
		},
	}
}

// extractTableHistograms reads the SSTables column of the percentile rows.
// Rows end at the first blank line. A block without rows yields errSkip.
func extractTableHistograms(body []string, keyspace, table string) (Record, error) {
	i := 0
	for i < len(body) && strings.TrimSpace(body[i]) == "" {
		i++
	}
	if i >= len(body) {
		return Record{}, errSkip
	}
	bm := histogramsBannerRE.FindStringSubmatch(strings.TrimSpace(body[i]))
	if bm == nil {
		return Record{}, errors.Newf("malformed banner: %q", body[i])
	}
	if bm[1] != keyspace || bm[2] != table {
		return Record{}, errors.Newf("banner keyspace/table %s/%s != expected %s/%s", bm[1], bm[2], keyspace, table)
	}
	i++

	// Column titles and units precede the rows.
	for i < len(body) {
		s := strings.TrimSpace(body[i])
		if s == "" || histogramsRowRE.MatchString(s) {
			break
		}
		i++
	}

	vals := map[string]float64{}
	for ; i < len(body); i++ {
		s := strings.TrimSpace(body[i])
		if s == "" {
			break
		}
		if m := histogramsRowRE.FindStringSubmatch(s); m != nil {
			v, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				return Record{}, errors.Wrapf(err, "histogram row %q", s)
			}
			vals[m[1]] = v
		}
	}
	if len(vals) == 0 {
		return Record{}, errSkip
	}

	rec := Record{Values: make(map[string]float64, len(histogramColumns))}
	for _, h := range histogramColumns {
		v, ok := vals[h.label]
		if !ok {
			v = math.NaN()
		}
		rec.Values[h.col] = v
	}
	return rec, nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

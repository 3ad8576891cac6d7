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
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachlabs/metrics-report/internal/metrics"
	"github.com/olekukonko/tablewriter"
)

// Pivot titles.
const (
	CompactionPivotTitle = "Compactionstats: Pending (Active)"
	LevelsPivotTitle     = "SSTables in each level (trim trailing zeros)"
)

// Pivot lays out one value per (elapsed second, file). Files keep the order
// they were given in, elapsed seconds are ascending.
type Pivot struct {
	Files   []string
	Elapsed []int
	// Cells[i][j] is the value of file j at Elapsed[i], or empty.
	Cells [][]string
}

// BuildPivot buckets every record by its elapsed time rounded to the nearest
// second (ties to even). When two records of a file share a bucket the later
// one wins. Empty tables contribute a column but no seconds.
func BuildPivot(tables []*metrics.Table, cell func(metrics.Record) string) Pivot {
	p := Pivot{Files: make([]string, len(tables))}
	perFile := make([]map[int]string, len(tables))
	seen := map[int]bool{}
	for i, t := range tables {
		p.Files[i] = filepath.Base(t.Source)
		perFile[i] = map[int]string{}
		for _, r := range t.Records {
			sec := int(math.RoundToEven(r.Elapsed))
			perFile[i][sec] = cell(r)
			seen[sec] = true
		}
	}
	for sec := range seen {
		p.Elapsed = append(p.Elapsed, sec)
	}
	sort.Ints(p.Elapsed)
	p.Cells = make([][]string, len(p.Elapsed))
	for i, sec := range p.Elapsed {
		row := make([]string, len(tables))
		for j := range tables {
			row[j] = perFile[j][sec]
		}
		p.Cells[i] = row
	}
	return p
}

// Write renders the pivot as a grid under title. An empty pivot writes
// nothing.
func (p Pivot) Write(w io.Writer, title string, align int) error {
	if len(p.Elapsed) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "%s\n\n", title); err != nil {
		return err
	}
	table := NewGrid(w, append([]string{"elapsed (s)"}, p.Files...))
	table.SetAlignment(align)
	for i, sec := range p.Elapsed {
		table.Append(append([]string{strconv.Itoa(sec)}, p.Cells[i]...))
	}
	table.Render()
	return nil
}

// CompactionCell formats a compactionstats record as "pending (active)".
func CompactionCell(r metrics.Record) string {
	return fmt.Sprintf("%d (%d)",
		int64(r.Values[metrics.ColPendingTasks]), int64(r.Values[metrics.ColActiveCompactions]))
}

// LevelsCell formats a tablestats record's level list with FormatLevels.
func LevelsCell(r metrics.Record) string {
	return FormatLevels(r.Labels[metrics.ColSSTablesEachLevel])
}

// WriteCompactionPivot writes the pending (active) table for compactionstats
// logs.
func WriteCompactionPivot(w io.Writer, tables []*metrics.Table) error {
	return BuildPivot(tables, CompactionCell).Write(w, CompactionPivotTitle, tablewriter.ALIGN_CENTER)
}

// WriteLevelsPivot writes the SSTable level table for tablestats logs.
func WriteLevelsPivot(w io.Writer, tables []*metrics.Table) error {
	return BuildPivot(tables, LevelsCell).Write(w, LevelsPivotTitle, tablewriter.ALIGN_LEFT)
}

// FormatLevels turns "[8/4, 45/10, 918, 0, 0]" into "8/4, 45/10, 918":
// brackets go, trailing plain zeros go, "X/Y" entries are kept as-is and
// spaces inside entries are removed.
func FormatLevels(levels string) string {
	s := strings.TrimSpace(levels)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = s[1 : len(s)-1]
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	isZero := func(tok string) bool {
		if strings.Contains(tok, "/") {
			return false
		}
		v, err := strconv.ParseFloat(tok, 64)
		return err == nil && v == 0
	}
	end := len(parts)
	for end > 0 && isZero(parts[end-1]) {
		end--
	}
	out := make([]string, end)
	for i, p := range parts[:end] {
		out[i] = strings.ReplaceAll(p, " ", "")
	}
	return strings.Join(out, ", ")
}

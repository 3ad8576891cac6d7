// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package bcc aggregates the periodic output of the bcc filetop and syscount
// tools into one table per run.
package bcc

import (
	"bufio"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachlabs/metrics-report/internal/report"
	"github.com/dustin/go-humanize"
)

// FilterType selects the traffic a filetop table reports.
type FilterType string

const (
	Reads  FilterType = "reads"
	Writes FilterType = "writes"
	Both   FilterType = "both"
)

// ParseFilterType accepts reads, writes and both.
func ParseFilterType(s string) (FilterType, error) {
	switch f := FilterType(s); f {
	case Reads, Writes, Both:
		return f, nil
	}
	return "", errors.Newf("unknown filter type %q: expected reads, writes or both", s)
}

// FileStats is the traffic of one file summed over every filetop interval.
type FileStats struct {
	File   string
	Reads  int64
	Writes int64
	ReadKb int64
	// WriteKb is the W_Kb column.
	WriteKb int64
}

// TID COMM READS WRITES R_Kb W_Kb T FILE
var filetopRowRE = regexp.MustCompile(`^\d+\s+\S+\s+(\d+)\s+(\d+)\s+(\d+)\s+(\d+)\s+\S+\s+(\S+)$`)

// maxFileName is the width of the FILE column.
const maxFileName = 50

// ParseFiletop sums filetop rows per file. Only files ending in one of
// suffixes are kept when suffixes is not empty. The result is sorted by read
// then written kilobytes, largest first.
func ParseFiletop(r io.Reader, filter FilterType, suffixes []string) ([]FileStats, error) {
	byFile := map[string]*FileStats{}
	var order []*FileStats
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m := filetopRowRE.FindStringSubmatch(strings.TrimRight(sc.Text(), "\r"))
		if m == nil {
			continue
		}
		var n [4]int64
		for i := range n {
			v, err := strconv.ParseInt(m[i+1], 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "error parsing %q", sc.Text())
			}
			n[i] = v
		}
		name := m[5]
		if len(suffixes) > 0 && !hasAnySuffix(name, suffixes) {
			continue
		}
		st, ok := byFile[name]
		if !ok {
			st = &FileStats{File: name}
			byFile[name] = st
			order = append(order, st)
		}
		if filter != Writes {
			st.Reads += n[0]
			st.ReadKb += n[2]
		}
		if filter != Reads {
			st.Writes += n[1]
			st.WriteKb += n[3]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	out := make([]FileStats, len(order))
	for i, st := range order {
		out[i] = *st
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ReadKb != out[j].ReadKb {
			return out[i].ReadKb > out[j].ReadKb
		}
		return out[i].WriteKb > out[j].WriteKb
	})
	return out, nil
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// ParseSuffixes splits a comma-separated suffix list.
func ParseSuffixes(s string) []string {
	var out []string
	for _, suf := range strings.Split(s, ",") {
		if suf = strings.TrimSpace(suf); suf != "" {
			out = append(out, suf)
		}
	}
	return out
}

func kbString(kb int64) string {
	return humanize.Bytes(uint64(kb) * 1024)
}

func (s FileStats) row(filter FilterType) []string {
	name := s.File
	if len(name) > maxFileName {
		name = name[:maxFileName]
	}
	itoa := func(v int64) string { return strconv.FormatInt(v, 10) }
	switch filter {
	case Reads:
		return []string{name, itoa(s.Reads), itoa(s.ReadKb), kbString(s.ReadKb)}
	case Writes:
		return []string{name, itoa(s.Writes), itoa(s.WriteKb), kbString(s.WriteKb)}
	default:
		return []string{name, itoa(s.Reads), itoa(s.Writes), itoa(s.ReadKb), itoa(s.WriteKb),
			kbString(s.ReadKb), kbString(s.WriteKb)}
	}
}

func filetopHeader(filter FilterType) []string {
	switch filter {
	case Reads:
		return []string{"FILE (Max 50 chars)", "READS", "R_Kb", "Reads (HumanFriendly)"}
	case Writes:
		return []string{"FILE (Max 50 chars)", "WRITES", "W_Kb", "Writes (HumanFriendly)"}
	default:
		return []string{"FILE (Max 50 chars)", "READS", "WRITES", "R_Kb", "W_Kb",
			"Reads (HumanFriendly)", "Writes (HumanFriendly)"}
	}
}

// WriteFiletop renders stats as a table ending with a TOTAL row.
func WriteFiletop(w io.Writer, stats []FileStats, filter FilterType) {
	table := report.NewGrid(w, filetopHeader(filter))
	total := FileStats{File: "TOTAL"}
	for _, s := range stats {
		table.Append(s.row(filter))
		total.Reads += s.Reads
		total.Writes += s.Writes
		total.ReadKb += s.ReadKb
		total.WriteKb += s.WriteKb
	}
	table.Append(total.row(filter))
	table.Render()
}

// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package bcc

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachlabs/metrics-report/internal/report"
	log "github.com/sirupsen/logrus"
)

// SyscallStats is one syscall summed over every syscount interval.
type SyscallStats struct {
	Syscall string
	Count   int64
	TimeMs  float64
}

const tracingMarker = "Tracing syscalls"

var syscountHeader = []string{"SYSCALL", "COUNT", "TIME", "(ms)"}

// ParseSyscount sums syscount rows per syscall. Output before the tracing
// banner and the interval timestamps are ignored; the result is sorted by
// count, largest first.
//
// syscount must run with -L so rows carry the time column.
func ParseSyscount(r io.Reader) ([]SyscallStats, error) {
	bySyscall := map[string]*SyscallStats{}
	var order []*SyscallStats
	tracing := false
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.Contains(line, tracingMarker) {
			tracing = true
			continue
		}
		if !tracing {
			log.Warnf("output before %q: %s", tracingMarker, line)
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			continue
		}
		fields := strings.Fields(line)
		if fields[0] == syscountHeader[0] {
			if strings.Join(fields, " ") != strings.Join(syscountHeader, " ") {
				return nil, errors.Newf("unexpected column headers %q: run syscount with -L", line)
			}
			continue
		}
		if len(fields) < 3 {
			log.Warnf("skipping malformed line: %s", line)
			continue
		}
		count, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			log.Warnf("skipping malformed line with non-numeric data: %s", line)
			continue
		}
		ms, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			log.Warnf("skipping malformed line with non-numeric data: %s", line)
			continue
		}
		st, ok := bySyscall[fields[0]]
		if !ok {
			st = &SyscallStats{Syscall: fields[0]}
			bySyscall[fields[0]] = st
			order = append(order, st)
		}
		st.Count += count
		st.TimeMs += ms
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	out := make([]SyscallStats, len(order))
	for i, st := range order {
		out[i] = *st
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// WriteSyscount renders stats as a table.
func WriteSyscount(w io.Writer, stats []SyscallStats) {
	table := report.NewGrid(w, []string{"Syscall", "Count", "Total Time (ms)"})
	for _, s := range stats {
		table.Append([]string{s.Syscall, strconv.FormatInt(s.Count, 10), fmt.Sprintf("%.2f", s.TimeMs)})
	}
	table.Render()
}

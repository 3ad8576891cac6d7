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
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// VmstatColumns are the columns kept from `vmstat -w -t -n` output.
var VmstatColumns = []string{"r", "b", "us", "sy", "id", "wa", "st"}

// vmstatCPUColumns must sum to 100 (give or take rounding) on every row.
var vmstatCPUColumns = []string{"us", "sy", "id", "wa", "st"}

// findVmstatHeader returns the index of the "r  b  swpd ..." column header.
func findVmstatHeader(lines []string) (int, bool) {
	for i, l := range lines {
		s := strings.TrimLeft(l, " \t")
		padded := " " + s + " "
		if strings.HasPrefix(s, "r ") && strings.Contains(padded, " swpd ") && strings.Contains(padded, " id ") {
			return i, true
		}
	}
	for i := 0; i+1 < len(lines); i++ {
		if strings.HasPrefix(strings.ToLower(lines[i]), "procs ") &&
			strings.HasPrefix(strings.TrimLeft(lines[i+1], " \t"), "r ") {
			return i + 1, true
		}
	}
	return 0, false
}

// parseVmstat parses vmstat pass-through output. lines must not contain
// empty lines. A missing steal column reads as zero; every other CPU column
// is required on every row.
func parseVmstat(lines []string) (*Table, error) {
	t := newTable(VmstatColumns, nil, nil)
	if len(lines) == 0 {
		return t, nil
	}
	hdr, ok := findVmstatHeader(lines)
	if !ok {
		return nil, errors.New("could not find vmstat column header")
	}
	names := strings.Fields(lines[hdr])
	if len(names) == 0 {
		return nil, errors.New("empty vmstat header")
	}
	// The last header token is the zone label under "-----timestamp-----".
	numeric := names[:len(names)-1]
	hasSteal := false
	for _, n := range numeric {
		if n == "st" {
			hasSteal = true
		}
	}

	for _, l := range lines[hdr+1:] {
		s := strings.TrimLeft(l, " \t")
		if strings.HasPrefix(s, "procs ") || strings.HasPrefix(s, "r ") {
			continue
		}
		toks := strings.Fields(s)
		if len(toks) < len(numeric)+1 {
			// Truncated by the poller being killed.
			continue
		}
		ts, err := parseTimestamp(strings.Join(toks[len(numeric):], " "))
		if err != nil {
			continue
		}
		all := make(map[string]float64, len(numeric))
		for i, n := range numeric {
			all[n] = coerceFloat(toks[i])
		}
		if !hasSteal {
			all["st"] = 0
		}
		rec := Record{Timestamp: ts, Values: make(map[string]float64, len(VmstatColumns))}
		for _, c := range VmstatColumns {
			if v, ok := all[c]; ok {
				rec.Values[c] = v
			} else {
				rec.Values[c] = math.NaN()
			}
		}
		t.Records = append(t.Records, rec)
	}
	t.setElapsedFromTimestamps()

	for i, r := range t.Records {
		stamp := r.Timestamp.Format(headerTimeLayout)
		sum := 0
		for _, c := range vmstatCPUColumns {
			v := r.Values[c]
			if math.IsNaN(v) {
				return nil, errors.Newf("NaN in CPU column '%s' at row %d, ts=%s", c, i, stamp)
			}
			sum += int(v)
		}
		if sum < 99 || sum > 101 {
			return nil, errors.Newf("CPU%% sum %d outside [99,101] at row %d, ts=%s (us+sy+id+wa+st)", sum, i, stamp)
		}
	}
	return t, nil
}

// coerceFloat parses s as a number, returning NaN when it is not one.
func coerceFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

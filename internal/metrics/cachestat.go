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
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ColHitRatio is the cachestat hit ratio column, in percent.
const ColHitRatio = "HITRATIO"

const colTime = "TIME"

var timeOfDayPrefixRE = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}`)

// parseCachestat parses `cachestat --timestamp` output. Elapsed time comes
// from the TIME column with midnight rollover; records carry no absolute
// timestamp.
func parseCachestat(lines []string) (*Table, error) {
	var header []string
	var rows [][]string
	for _, l := range lines {
		s := strings.TrimSpace(l)
		if s == "" {
			continue
		}
		if header == nil && strings.Contains(s, "TIME") && strings.Contains(s, "HITS") {
			header = strings.Fields(s)
			continue
		}
		if timeOfDayPrefixRE.MatchString(s) {
			rows = append(rows, strings.Fields(s))
		}
	}
	if header == nil {
		return nil, errors.New("missing cachestat header with TIME column")
	}
	timeIdx := -1
	var cols []string
	for i, h := range header {
		if h == colTime {
			timeIdx = i
			continue
		}
		cols = append(cols, h)
	}
	if timeIdx < 0 {
		return nil, errors.New("TIME column not found")
	}

	t := newTable(cols, nil, nil)
	secs := make([]int, 0, len(rows))
	for n, toks := range rows {
		if len(toks) > len(header) {
			return nil, errors.Newf("row %d has %d fields, header has %d", n, len(toks), len(header))
		}
		if timeIdx >= len(toks) {
			return nil, errors.Newf("row %d is missing its TIME field", n)
		}
		sec, err := secondsOfDay(toks[timeIdx])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", n)
		}
		rec := Record{Values: make(map[string]float64, len(cols))}
		for i, h := range header {
			if i == timeIdx {
				continue
			}
			if i >= len(toks) {
				rec.Values[h] = coerceFloat("")
				continue
			}
			if h == ColHitRatio {
				v, err := strconv.ParseFloat(strings.TrimRight(toks[i], "%"), 64)
				if err != nil {
					return nil, errors.Wrapf(err, "row %d: %s", n, ColHitRatio)
				}
				rec.Values[h] = v
				continue
			}
			rec.Values[h] = coerceFloat(toks[i])
		}
		secs = append(secs, sec)
		t.Records = append(t.Records, rec)
	}
	for i, e := range ElapsedDayRollover(secs) {
		t.Records[i].Elapsed = e
	}
	return t, nil
}

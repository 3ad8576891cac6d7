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
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Columns of a kswapd-wake table.
const (
	ColNid   = "nid"
	ColOrder = "order"
)

var (
	kswapdFuncRE    = regexp.MustCompile(`\bmm_vmscan_kswapd_wake\b`)
	kswapdPayloadRE = regexp.MustCompile(`\bnid=(\d+),order=(\d+)\b`)
	timeOfDayRE     = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}(?:\.\d+)?$`)
)

// ErrTimeOfDayTrace is returned for trace output captured with -t instead of
// -T. The time column then holds wall-clock times that cannot be aligned with
// the other logs.
var ErrTimeOfDayTrace = errors.New("trace captured with time-of-day timestamps")

// parseKswapdWake parses bcc trace output for mm_vmscan_kswapd_wake captured
// with -T. The leading seconds value is used as elapsed time as-is. Records
// are sorted by elapsed time.
func parseKswapdWake(lines []string) (*Table, error) {
	t := newTable([]string{ColNid, ColOrder}, nil, nil)
	for _, l := range lines {
		s := strings.TrimSpace(l)
		if s == "" || strings.HasPrefix(s, "TIME") || strings.HasPrefix(s, "#") {
			continue
		}
		if !kswapdFuncRE.MatchString(s) {
			continue
		}
		m := kswapdPayloadRE.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		tok := strings.Fields(s)[0]
		if strings.Contains(tok, ":") || timeOfDayRE.MatchString(tok) {
			return nil, errors.Mark(errors.Newf(
				"detected time-of-day token '%s'. This parser only accepts -T (float seconds). Re-run trace with -T.", tok),
				ErrTimeOfDayTrace)
		}
		elapsed, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, errors.Newf("invalid time token '%s'. Expected -T float seconds.", tok)
		}
		nid, err := parseInt(m[1])
		if err != nil {
			return nil, err
		}
		order, err := parseInt(m[2])
		if err != nil {
			return nil, err
		}
		t.Records = append(t.Records, Record{
			Elapsed: elapsed,
			Values:  map[string]float64{ColNid: float64(nid), ColOrder: float64(order)},
		})
	}
	sort.SliceStable(t.Records, func(i, j int) bool {
		return t.Records[i].Elapsed < t.Records[j].Elapsed
	})
	return t, nil
}

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
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const secondsPerDay = 24 * 60 * 60

// ElapsedSince returns, for each timestamp, the seconds since the first one.
func ElapsedSince(ts []time.Time) []float64 {
	out := make([]float64, len(ts))
	if len(ts) == 0 {
		return out
	}
	base := ts[0]
	for i, t := range ts {
		out[i] = t.Sub(base).Seconds()
	}
	return out
}

// ElapsedDayRollover returns elapsed seconds for a sequence of seconds-of-day
// readings. Whenever a reading is smaller than the previous one the clock is
// assumed to have passed midnight and a day is added to a running offset.
func ElapsedDayRollover(secs []int) []float64 {
	out := make([]float64, len(secs))
	if len(secs) == 0 {
		return out
	}
	base, prev, offset := secs[0], secs[0], 0
	for i, s := range secs {
		if s < prev {
			offset += secondsPerDay
		}
		out[i] = float64(s - base + offset)
		prev = s
	}
	return out
}

// secondsOfDay parses a bare HH:MM:SS time.
func secondsOfDay(tok string) (int, error) {
	parts := strings.Split(tok, ":")
	if len(parts) != 3 {
		return 0, errors.Newf("malformed time of day %q", tok)
	}
	var hms [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, errors.Wrapf(err, "malformed time of day %q", tok)
		}
		hms[i] = v
	}
	return hms[0]*3600 + hms[1]*60 + hms[2], nil
}

// timestampLayouts are the absolute timestamp spellings the capture scripts
// produce. Fractional seconds are accepted by time.Parse after the seconds
// field even when the layout omits them.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006/01/02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognized timestamp %q", s)
}

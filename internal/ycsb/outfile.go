// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package ycsb

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// OutFileStats is what the YCSB client itself reported at the end of a run.
type OutFileStats struct {
	File string
	// Failed is set when the client never printed its final summary, which
	// happens when the run was aborted.
	Failed bool
	// Throughput is the sum of the base operation counts over the runtime,
	// in ops/sec. READ-MODIFY-WRITE is not counted on its own since its reads
	// and updates already show up under READ and UPDATE, which matches how
	// the histogram throughput is computed.
	Throughput float64
}

const (
	runtimePrefix    = "[OVERALL], RunTime(ms)"
	throughputPrefix = "[OVERALL], Throughput(ops/sec)"
)

// scanOutValues returns, for each prefix, the value of the first line that
// starts with it. Such lines must have exactly three comma-separated fields.
func scanOutValues(r io.Reader, prefixes []string) (map[string]float64, error) {
	vals := make(map[string]float64, len(prefixes))
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		for _, p := range prefixes {
			if _, done := vals[p]; done || !strings.HasPrefix(line, p) {
				continue
			}
			parts := strings.Split(strings.TrimSpace(line), ",")
			if len(parts) != 3 {
				return nil, errors.Newf("unknown line format %q: expected 3 comma separated values", line)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "error parsing %q", line)
			}
			vals[p] = v
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return vals, nil
}

// ParseOutFile reads the final throughput from a YCSB .out file.
func ParseOutFile(path string) (OutFileStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return OutFileStats{}, err
	}
	defer f.Close()
	st, err := parseOut(f)
	if err != nil {
		return OutFileStats{}, errors.Wrapf(err, "%s", path)
	}
	st.File = path
	return st, nil
}

func parseOut(r io.Reader) (OutFileStats, error) {
	// The reported throughput is not used, but a malformed line still fails
	// the file.
	prefixes := []string{runtimePrefix, throughputPrefix}
	for _, k := range AllowedKeys {
		prefixes = append(prefixes, "["+k+"], Operations")
	}
	vals, err := scanOutValues(r, prefixes)
	if err != nil {
		return OutFileStats{}, err
	}
	runtimeMs, ok := vals[runtimePrefix]
	if !ok {
		return OutFileStats{Failed: true}, nil
	}
	ops := int64(0)
	for _, k := range AllowedKeys {
		if v, ok := vals["["+k+"], Operations"]; ok {
			ops += int64(v)
		}
	}
	return OutFileStats{Throughput: float64(ops) / (runtimeMs / 1000)}, nil
}

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
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

// Trim is the amount of data dropped from both ends of a run before merging.
type Trim struct {
	HeadSeconds int
	TailSeconds int
}

// IsZero reports whether nothing is trimmed.
func (t Trim) IsZero() bool {
	return t.HeadSeconds == 0 && t.TailSeconds == 0
}

// HistogramStats are the latency figures of one merged histogram, in
// microseconds.
type HistogramStats struct {
	Count   int64 `json:"count"`
	MinUs   int64 `json:"min_us"`
	P50Us   int64 `json:"p50_us"`
	P95Us   int64 `json:"p95_us"`
	P99Us   int64 `json:"p99_us"`
	P999Us  int64 `json:"p999_us"`
	P9999Us int64 `json:"p9999_us"`
	MaxUs   int64 `json:"max_us"`
}

// MergedInterval is one time bucket of the merged histogram log.
type MergedInterval struct {
	HistogramStats
	T0EpochUs int64 `json:"t0_epoch_us"`
	// CoveredUs is the part of the bucket that had data; partial at the edges
	// of the run and after trimming.
	CoveredUs int64 `json:"covered_us"`
}

// MergeResult is the JSON document written by MergeHdrStats.
type MergeResult struct {
	Overall   HistogramStats   `json:"overall"`
	RuntimeUs int64            `json:"runtime_us"`
	Intervals []MergedInterval `json:"intervals"`
}

// DecodeMergeResult reads a MergeHdrStats JSON document.
func DecodeMergeResult(r io.Reader) (*MergeResult, error) {
	var res MergeResult
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, errors.Wrap(err, "decoding merged histogram stats")
	}
	return &res, nil
}

// Merger merges HdrHistogram interval logs into aggregate and per-interval
// latency statistics.
type Merger interface {
	Merge(ctx context.Context, files []string, trim Trim) (*MergeResult, error)
}

// JavaMerger runs the MergeHdrStats Java program.
type JavaMerger struct {
	// ClassPath must contain MergeHdrStats and the HdrHistogram jar.
	ClassPath string
	// Java is the java binary; "java" when empty.
	Java string
	// Output receives the merger's stdout and stderr; os.Stderr when nil.
	Output io.Writer
}

var _ Merger = &JavaMerger{}

// Merge implements Merger.
func (m *JavaMerger) Merge(ctx context.Context, files []string, trim Trim) (*MergeResult, error) {
	if len(files) == 0 {
		return nil, errors.New("no histogram files to merge")
	}
	tmp, err := os.CreateTemp("", "merge-hdr-*.json")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	java := m.Java
	if java == "" {
		java = "java"
	}
	out := m.Output
	if out == nil {
		out = os.Stderr
	}
	args := append([]string{
		"-cp", m.ClassPath, "MergeHdrStats",
		"--ignore-head-sec=" + strconv.Itoa(trim.HeadSeconds),
		"--ignore-tail-sec=" + strconv.Itoa(trim.TailSeconds),
		tmpPath,
	}, files...)
	cmd := exec.CommandContext(ctx, java, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	log.Debugf("running %s %v", java, args)
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "MergeHdrStats over %d files", len(files))
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeMergeResult(f)
}

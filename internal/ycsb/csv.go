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
	"encoding/csv"
	"io"
	"strconv"
)

// CSVColumns are the statistics written for OVERALL and every key.
var CSVColumns = []string{"thr", "min", "p50", "p95", "p99", "p999", "p9999", "max"}

func (f Final) cells() []string {
	if !f.Valid {
		return make([]string, len(CSVColumns))
	}
	thr := ""
	if f.HasThr {
		thr = strconv.FormatInt(f.Thr, 10)
	}
	out := []string{thr}
	for _, v := range []int64{f.Min, f.P50, f.P95, f.P99, f.P999, f.P9999, f.Max} {
		out = append(out, strconv.FormatInt(v, 10))
	}
	return out
}

// CSVHeader returns the header row of WriteCSV.
func CSVHeader() []string {
	header := []string{"expt_prefix"}
	for _, k := range append([]string{OverallKey}, AllowedKeys...) {
		for _, c := range CSVColumns {
			header = append(header, k+"_"+c)
		}
	}
	return header
}

// WriteCSV writes one row per experiment. Keys an experiment did not run are
// left empty.
func WriteCSV(w io.Writer, results []*WorkloadResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader()); err != nil {
		return err
	}
	for _, r := range results {
		row := append([]string{r.Prefix}, r.Overall.cells()...)
		for _, k := range AllowedKeys {
			row = append(row, r.PerKey[k].cells()...)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

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
	"encoding/csv"
	"io"
	"math"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/cockroachlabs/metrics-report/internal/metrics"
)

const csvTimeLayout = "2006-01-02 15:04:05.999999"

// WriteCSV dumps the records of all tables as one CSV file with a leading
// file column. The header is the union of the tables' columns in the order
// they are first seen. Missing values are empty.
func WriteCSV(w io.Writer, tables []*metrics.Table) error {
	var cols, labels []string
	seenCol, seenLabel := map[string]bool{}, map[string]bool{}
	for _, t := range tables {
		for _, c := range t.Columns {
			if !seenCol[c] {
				seenCol[c] = true
				cols = append(cols, c)
			}
		}
		for _, c := range t.LabelColumns {
			if !seenLabel[c] {
				seenLabel[c] = true
				labels = append(labels, c)
			}
		}
	}

	cw := csv.NewWriter(w)
	header := append([]string{"file", "timestamp", "elapsed"}, cols...)
	header = append(header, labels...)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing CSV header")
	}
	for _, t := range tables {
		name := filepath.Base(t.Source)
		for _, r := range t.Records {
			row := make([]string, 0, len(header))
			ts := ""
			if !r.Timestamp.IsZero() {
				ts = r.Timestamp.Format(csvTimeLayout)
			}
			row = append(row, name, ts, formatFloat(r.Elapsed))
			for _, c := range cols {
				v, ok := r.Values[c]
				if !ok {
					v = math.NaN()
				}
				row = append(row, formatFloat(v))
			}
			for _, c := range labels {
				row = append(row, r.Labels[c])
			}
			if err := cw.Write(row); err != nil {
				return errors.Wrapf(err, "writing CSV row for %s", name)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

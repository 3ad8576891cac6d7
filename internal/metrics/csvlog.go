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
	"encoding/csv"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ColTimestamp is the absolute time column of CSV logs.
const ColTimestamp = "timestamp"

// readCSV parses lines as CSV with a header row. Rows may be shorter than the
// header; missing cells read as empty.
func readCSV(lines []string) (header []string, rows [][]string, _ error) {
	r := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading CSV")
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	header = all[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	for n, row := range all[1:] {
		if len(row) > len(header) {
			return nil, nil, errors.Newf("row %d has %d fields, header has %d", n+1, len(row), len(header))
		}
		for len(row) < len(header) {
			row = append(row, "")
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// csvTable builds a table from CSV rows that carry a timestamp column.
// Columns for which isNumeric holds are numeric; the rest become labels.
func csvTable(header []string, rows [][]string, isNumeric func(idx int) bool) (*Table, error) {
	tsIdx := -1
	for i, h := range header {
		if h == ColTimestamp {
			tsIdx = i
			break
		}
	}
	if tsIdx < 0 {
		return nil, errors.Newf("'%s' column not found", ColTimestamp)
	}
	t := newTable(nil, nil, nil)
	for i, h := range header {
		if i == tsIdx {
			continue
		}
		if isNumeric(i) {
			t.Columns = append(t.Columns, h)
		} else {
			t.LabelColumns = append(t.LabelColumns, h)
		}
	}
	for n, row := range rows {
		ts, err := parseTimestamp(row[tsIdx])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", n+1)
		}
		rec := Record{Timestamp: ts, Values: make(map[string]float64, len(t.Columns))}
		for i, h := range header {
			if i == tsIdx {
				continue
			}
			if isNumeric(i) {
				rec.Values[h] = coerceFloat(row[i])
				continue
			}
			if rec.Labels == nil {
				rec.Labels = map[string]string{}
			}
			rec.Labels[h] = row[i]
		}
		t.Records = append(t.Records, rec)
	}
	t.setElapsedFromTimestamps()
	return t, nil
}

// parseTimestampedCSV parses a CSV log with a "timestamp" column, such as the
// meminfo and /proc/vmstat samplers write. A column is numeric when every
// non-empty cell in it is a number.
func parseTimestampedCSV(lines []string) (*Table, error) {
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.Contains(l, "Terminated") || strings.TrimSpace(l) == "" {
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) == 0 {
		return newTable(nil, nil, nil), nil
	}
	header, rows, err := readCSV(kept)
	if err != nil {
		return nil, err
	}
	numeric := make([]bool, len(header))
	for i := range header {
		numeric[i] = true
		for _, row := range rows {
			c := strings.TrimSpace(row[i])
			if c == "" {
				continue
			}
			if v := coerceFloat(c); math.IsNaN(v) && !strings.EqualFold(c, "nan") {
				numeric[i] = false
				break
			}
		}
	}
	return csvTable(header, rows, func(i int) bool { return numeric[i] })
}

// parseFileValues parses a values_logger CSV: a timestamp plus one column per
// sampled file path. Every value column is numeric; unparseable cells are NaN.
// lines is expected to be noise-filtered.
func parseFileValues(lines []string) (*Table, error) {
	lines = DropBlank(lines)
	if len(lines) == 0 {
		return newTable(nil, nil, nil), nil
	}
	header, rows, err := readCSV(lines)
	if err != nil {
		return nil, err
	}
	return csvTable(header, rows, func(int) bool { return true })
}

// parseInt is strconv.Atoi with the offending text in the error.
func parseInt(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer %q", s)
	}
	return v, nil
}

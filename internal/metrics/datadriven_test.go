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
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/stretchr/testify/require"
)

// TestParseDataDriven runs the extractors over the logs in testdata/. The
// parse directive takes format= and optionally keyspace= and table=, and
// prints one line per record or the error.
func TestParseDataDriven(t *testing.T) {
	datadriven.Walk(t, "testdata", func(t *testing.T, path string) {
		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "parse":
				var name string
				d.ScanArgs(t, "format", &name)
				format, err := ParseFormat(name)
				require.NoError(t, err)
				opts := DefaultOptions()
				if d.HasArg("keyspace") {
					d.ScanArgs(t, "keyspace", &opts.Keyspace)
				}
				if d.HasArg("table") {
					d.ScanArgs(t, "table", &opts.Table)
				}
				tbl, err := Parse("log", format, d.Input+"\n", opts)
				if err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				require.Equal(t, "log", tbl.Source)
				require.Equal(t, format, tbl.Format)
				return printTable(tbl)
			default:
				d.Fatalf(t, "unknown command %s", d.Cmd)
				return ""
			}
		})
	})
}

func printTable(t *Table) string {
	if t.Len() == 0 {
		return "empty\n"
	}
	var buf strings.Builder
	for _, r := range t.Records {
		var fields []string
		if !r.Timestamp.IsZero() {
			fields = append(fields, r.Timestamp.Format("2006-01-02T15:04:05"))
		}
		fields = append(fields, fmt.Sprintf("elapsed=%g", r.Elapsed))
		for _, c := range t.Columns {
			fields = append(fields, fmt.Sprintf("%s=%g", c, r.Values[c]))
		}
		for _, c := range t.LabelColumns {
			fields = append(fields, fmt.Sprintf("%s=%s", c, r.Labels[c]))
		}
		buf.WriteString(strings.Join(fields, " "))
		buf.WriteByte('\n')
	}
	return buf.String()
}

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

import "strings"

// isNoise reports whether a line is routine chatter from the capture scripts
// or nodetool rather than data.
func isNoise(line string) bool {
	s := strings.TrimSpace(line)
	if s == "" {
		return false
	}
	switch {
	case strings.Contains(s, "Detached"), strings.Contains(s, "Terminated"):
		// Shell job-control banners from the killed poller.
		return true
	case strings.HasPrefix(s, "nodetool:") && strings.Contains(s, "Failed to connect"):
		return true
	case strings.Contains(s, "ConnectException") && strings.Contains(s, "Failed to connect"):
		return true
	case strings.Contains(s, "Connection refused"):
		return true
	}
	return false
}

// FilterNoise drops noise lines and keeps everything else in order, blank
// lines included. The tablehistograms extractor relies on blank lines to end
// its percentile rows; the other block formats skip blanks themselves.
func FilterNoise(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if !isNoise(l) {
			out = append(out, l)
		}
	}
	return out
}

// DropBlank removes empty and whitespace-only lines.
func DropBlank(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// SplitLines splits file content into lines without their terminators. A
// trailing newline does not produce an extra empty line.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

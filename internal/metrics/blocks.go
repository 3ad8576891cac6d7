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
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

// headerTimeLayout is the layout of the timestamp the capture scripts put in
// every "===== <tool> @ <time> =====" banner.
const headerTimeLayout = "2006-01-02 15:04:05"

// failureLineRE matches lines that mark a nodetool/Cassandra failure: the
// daemon shut down or the tool died with a stack trace.
var failureLineRE = regexp.MustCompile(`(?i)(Cassandra has shutdown\.` +
	`|^\[WARN\]\s*nodetool.*failed\b` +
	`|^error:\s*null\b` +
	`|^--\s*StackTrace\s*--` +
	`|^\s*at\s+\S+)`)

// BlockKind classifies a block before extraction.
type BlockKind int

const (
	// DataBlock has content and no failure marker.
	DataBlock BlockKind = iota
	// HeaderOnlyBlock has nothing but blank lines before the next header or
	// EOF; the poller was killed mid-capture.
	HeaderOnlyBlock
	// FailureBlock contains a shutdown or stack-trace marker.
	FailureBlock
)

func (k BlockKind) String() string {
	switch k {
	case DataBlock:
		return "data"
	case HeaderOnlyBlock:
		return "header-only"
	case FailureBlock:
		return "failure"
	}
	return "unknown"
}

// Block is the run of lines between one header match and the next.
type Block struct {
	// Header holds the submatches of the header pattern; Header[0] is the
	// whole trimmed header line.
	Header []string
	// Stamp is the raw timestamp text captured from the header.
	Stamp string
	Time  time.Time
	// Body holds the lines after the header, up to but excluding the next
	// header or EOF.
	Body []string
	Kind BlockKind
}

// BlockScanner walks a line stream block by block. Lines before the first
// header are ignored. The scanner does not copy the input; Reset restarts it
// from the beginning.
type BlockScanner struct {
	lines      []string
	header     *regexp.Regexp
	stampGroup int

	pos int
	cur Block
	err error
}

// NewBlockScanner returns a scanner over lines where header matches a block
// banner (against the trimmed line) and stampGroup is the index of the
// submatch holding the timestamp.
func NewBlockScanner(lines []string, header *regexp.Regexp, stampGroup int) *BlockScanner {
	return &BlockScanner{lines: lines, header: header, stampGroup: stampGroup}
}

func (s *BlockScanner) isHeader(line string) bool {
	return s.header.MatchString(strings.TrimSpace(line))
}

// Scan advances to the next block. It returns false at EOF or when a header
// timestamp cannot be parsed; Err distinguishes the two.
func (s *BlockScanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for s.pos < len(s.lines) && !s.isHeader(s.lines[s.pos]) {
		s.pos++
	}
	if s.pos >= len(s.lines) {
		return false
	}

	m := s.header.FindStringSubmatch(strings.TrimSpace(s.lines[s.pos]))
	start := s.pos + 1
	end := start
	for end < len(s.lines) && !s.isHeader(s.lines[end]) {
		end++
	}
	s.pos = end

	b := Block{Header: m, Body: s.lines[start:end]}
	if s.stampGroup < len(m) {
		b.Stamp = m[s.stampGroup]
	}
	t, err := time.Parse(headerTimeLayout, b.Stamp)
	if err != nil {
		s.err = errors.Wrapf(err, "invalid block timestamp %q", b.Stamp)
		return false
	}
	b.Time = t
	b.Kind = classify(b.Body)
	s.cur = b
	return true
}

// Block returns the block found by the last call to Scan.
func (s *BlockScanner) Block() Block {
	return s.cur
}

// Err returns the first error encountered by the scanner.
func (s *BlockScanner) Err() error {
	return s.err
}

// Reset rewinds the scanner to the start of its input.
func (s *BlockScanner) Reset() {
	s.pos = 0
	s.cur = Block{}
	s.err = nil
}

func classify(body []string) BlockKind {
	j := 0
	for j < len(body) && strings.TrimSpace(body[j]) == "" {
		j++
	}
	if j >= len(body) {
		return HeaderOnlyBlock
	}
	for _, l := range body[j:] {
		if failureLineRE.MatchString(l) {
			return FailureBlock
		}
	}
	return DataBlock
}

// errSkip is returned by extractors for blocks that yield no record without
// being malformed.
var errSkip = errors.New("skip")

// blockFormat describes one block-oriented log format.
type blockFormat struct {
	name       string
	header     *regexp.Regexp
	stampGroup int
	// checkHeader, if set, validates the header captures of every block,
	// including the ones that are skipped.
	checkHeader func(b *Block) error
	extract     func(b *Block) (Record, error)
}

// records scans lines and extracts one record per data block. Header-only and
// failure blocks are skipped. Errors carry the block timestamp.
func (f blockFormat) records(lines []string) ([]Record, error) {
	var recs []Record
	s := NewBlockScanner(lines, f.header, f.stampGroup)
	for s.Scan() {
		b := s.Block()
		if f.checkHeader != nil {
			if err := f.checkHeader(&b); err != nil {
				return nil, errors.Wrapf(err, "%s", b.Stamp)
			}
		}
		if b.Kind != DataBlock {
			log.Debugf("%s: %s: skipping %s block", f.name, b.Stamp, b.Kind)
			continue
		}
		rec, err := f.extract(&b)
		if errors.Is(err, errSkip) {
			log.Debugf("%s: %s: no rows in block", f.name, b.Stamp)
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s", b.Stamp)
		}
		rec.Timestamp = b.Time
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

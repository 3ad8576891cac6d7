// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package sysusage loads the JSON-lines system usage logs written by the
// monitoring agent: one object per line with a timestamp and a list of
// per-device values.
package sysusage

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

const timestampLayout = "2006-01-02T15:04:05"

// AllIdentifier is the identifier of logs without per-device values.
const AllIdentifier = "all"

// Kind describes one of the usage logs.
type Kind struct {
	Name  string
	Title string
	// Identifier is the value field naming the device; empty when the log
	// has one value set per line.
	Identifier string
	// Properties are the value fields loaded.
	Properties []string
	// Identifiers are the devices loaded.
	Identifiers []string
}

// File returns the file name of the log in a data folder.
func (k Kind) File() string {
	return k.Name + ".json"
}

// DefaultKinds returns the logs the monitoring agent writes.
func DefaultKinds() []Kind {
	return []Kind{
		{
			Name:        "disk_io_usage",
			Title:       "Disk I/O Usage",
			Identifier:  "disk_device",
			Properties:  []string{"wMB/s", "rMB/s", "r/s", "w/s", "aqu-sz", "rareq-sz", "wareq-sz", "r_await", "w_await"},
			Identifiers: []string{"nvme0n1"},
		},
		{
			Name:        "disk_usage",
			Title:       "Disk Usage",
			Identifier:  "source",
			Properties:  []string{"size", "used", "avail", "pcent"},
			Identifiers: []string{"/dev/sdc1"},
		},
		{
			Name:        "memory_usage",
			Title:       "Memory Usage",
			Properties:  []string{"total", "used", "free"},
			Identifiers: []string{AllIdentifier},
		},
		{
			Name:        "network_usage",
			Title:       "Network Usage",
			Identifier:  "interface",
			Properties:  []string{"rxpck/s", "txpck/s", "rxkB/s", "txkB/s"},
			Identifiers: []string{"enp1s0f0", "enp6s0f0", "lo"},
		},
	}
}

// Log is a loaded usage log.
type Log struct {
	Kind       Kind
	Timestamps []time.Time
	// Devices lists the identifiers in the order they were first seen.
	Devices []string
	// Values is keyed by identifier, then property.
	Values map[string]map[string][]float64
}

type entry struct {
	Timestamp string                   `json:"timestamp"`
	Values    []map[string]interface{} `json:"values"`
}

// ParseValue converts a value field. Numbers may be plain, percentages
// ("45%") or decimal sizes ("1.5G" is 1.5e9). ok is false for empty values.
func ParseValue(v interface{}) (val float64, ok bool, err error) {
	switch v := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case string:
		if v == "" {
			return 0, false, nil
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true, nil
		}
		if strings.HasSuffix(v, "%") {
			f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
			return f, err == nil, errors.Wrapf(err, "parsing %q", v)
		}
		n, err := humanize.ParseBytes(v)
		if err != nil {
			return 0, false, errors.Wrapf(err, "parsing %q", v)
		}
		return float64(n), true, nil
	default:
		return 0, false, errors.Newf("unexpected value %v of type %T", v, v)
	}
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

// Load reads a usage log. Lines that are not JSON and lines without values
// are logged and skipped. Every loaded series must have a value for every
// timestamp.
func Load(r io.Reader, kind Kind) (*Log, error) {
	l := &Log{Kind: kind, Values: map[string]map[string][]float64{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		var e entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			log.Errorf("%s: line %d: error decoding JSON: %s", kind.Name, lineNo, strings.TrimSpace(sc.Text()))
			continue
		}
		if len(e.Values) == 0 {
			log.Warnf("%s: line %d: empty values, skipping data point", kind.Name, lineNo)
			continue
		}
		ts, err := time.Parse(timestampLayout, e.Timestamp)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		l.Timestamps = append(l.Timestamps, ts)
		for _, v := range e.Values {
			id := AllIdentifier
			if kind.Identifier != "" {
				id, _ = v[kind.Identifier].(string)
			}
			// tmpfs mounts are not backed by a device.
			if id == "tmpfs" || !contains(kind.Identifiers, id) {
				continue
			}
			props, ok := l.Values[id]
			if !ok {
				props = make(map[string][]float64, len(kind.Properties))
				for _, p := range kind.Properties {
					props[p] = nil
				}
				l.Values[id] = props
				l.Devices = append(l.Devices, id)
			}
			for _, p := range kind.Properties {
				raw, present := v[p]
				if !present {
					continue
				}
				f, ok, err := ParseValue(raw)
				if err != nil {
					return nil, errors.Wrapf(err, "line %d: %s", lineNo, p)
				}
				if ok {
					props[p] = append(props[p], f)
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for _, id := range l.Devices {
		for _, p := range kind.Properties {
			if n := len(l.Values[id][p]); n != len(l.Timestamps) {
				return nil, errors.Newf("mismatch in number of timestamps and data points for %s %s: timestamps: %d, values: %d",
					id, p, len(l.Timestamps), n)
			}
		}
	}
	return l, nil
}

// LoadFile loads the usage log at path.
func LoadFile(path string, kind Kind) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	log.Printf("Analyzing %s", path)
	l, err := Load(f, kind)
	return l, errors.Wrapf(err, "%s", path)
}

// Elapsed returns the timestamps as seconds since the first one.
func (l *Log) Elapsed() []float64 {
	out := make([]float64, len(l.Timestamps))
	for i, ts := range l.Timestamps {
		out[i] = ts.Sub(l.Timestamps[0]).Seconds()
	}
	return out
}

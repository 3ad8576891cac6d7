// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package sysusage

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/cockroachlabs/metrics-report/internal/report"
	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
)

// OutlierZScore is the |z| above which a point is dropped.
const OutlierZScore = 2.0

// RemoveOutliers drops the points whose z-score, against the population mean
// and standard deviation, exceeds threshold in absolute value. A constant
// series has no outliers.
func RemoveOutliers(xs, ys []float64, threshold float64) (keptX, keptY []float64, removed int) {
	mean, err := stats.Mean(ys)
	if err != nil {
		return xs, ys, 0
	}
	sd, err := stats.StandardDeviationPopulation(ys)
	if err != nil || sd == 0 || math.IsNaN(sd) {
		return xs, ys, 0
	}
	for i, y := range ys {
		if math.Abs((y-mean)/sd) > threshold {
			removed++
			continue
		}
		keptX = append(keptX, xs[i])
		keptY = append(keptY, y)
	}
	return keptX, keptY, removed
}

// Charts returns, per device and property, a chart of the series and one of
// the series with outliers removed.
func (l *Log) Charts() []report.Chart {
	var out []report.Chart
	xs := l.Elapsed()
	for _, id := range l.Devices {
		for _, p := range l.Kind.Properties {
			ys := l.Values[id][p]
			if len(ys) == 0 {
				continue
			}
			title := fmt.Sprintf("%s: %s over Time for %s", l.Kind.Title, p, id)
			name := report.SafeName(fmt.Sprintf("%s_%s_%s", l.Kind.Name, id, p))

			line := report.NewLineChart(title, p)
			line.AddSeries(fmt.Sprintf("%s - %s", id, p), report.LineData(xs, ys))
			out = append(out, report.NewChart(name, line))

			kx, ky, removed := RemoveOutliers(xs, ys, OutlierZScore)
			pct := float64(removed) / float64(len(ys)) * 100
			filtered := report.NewLineChart(
				fmt.Sprintf("%s (removed %d outliers, %.1f%% of the total data)", title, removed, pct), p)
			filtered.AddSeries(fmt.Sprintf("%s - %s (outliers removed)", id, p), report.LineData(kx, ky))
			out = append(out, report.NewChart(name+"_filtered", filtered))
		}
	}
	return out
}

// LoadFolder loads every known usage log present in dir. A missing dir is
// logged and yields nothing.
func LoadFolder(dir string, kinds []Kind) ([]*Log, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Warnf("data folder %s not found, skipping", dir)
		return nil, nil
	}
	var logs []*Log
	for _, k := range kinds {
		path := filepath.Join(dir, k.File())
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Debugf("no %s in %s", k.File(), dir)
			continue
		}
		l, err := LoadFile(path, k)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, nil
}

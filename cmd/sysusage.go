// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.
package cmd

import (
	"io"

	"github.com/cockroachlabs/metrics-report/internal/report"
	"github.com/cockroachlabs/metrics-report/internal/sysusage"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var dataFolder string

// sysusageCmd represents the sysusage command
var sysusageCmd = &cobra.Command{
	Use:   "sysusage",
	Short: "Charts disk, memory and network usage logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyzeSysusage()
	},
}

func init() {
	sysusageCmd.Flags().StringVar(&dataFolder, "data-folder", "", "folder holding the *_usage.json logs")
	_ = sysusageCmd.MarkFlagRequired("data-folder")
	rootCmd.AddCommand(sysusageCmd)
}

// sysusageKinds applies the sysusage.properties and sysusage.identifiers
// overrides to the default logs.
func sysusageKinds() []sysusage.Kind {
	kinds := sysusage.DefaultKinds()
	for i := range kinds {
		k := &kinds[i]
		if p := viper.GetStringSlice("sysusage.properties." + k.Name); len(p) > 0 {
			k.Properties = p
		}
		if ids := viper.GetStringSlice("sysusage.identifiers." + k.Name); len(ids) > 0 {
			k.Identifiers = ids
		}
	}
	return kinds
}

func analyzeSysusage() error {
	logs, err := sysusage.LoadFolder(dataFolder, sysusageKinds())
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}
	var cs []report.Chart
	for _, l := range logs {
		cs = append(cs, l.Charts()...)
	}
	log.Printf("Finished loading system usage data from %s", dataFolder)
	return writeResultsFile("system_monitoring.html", func(w io.Writer) error {
		return report.WritePage(w, "System usage plots for data in "+dataFolder, cs)
	})
}

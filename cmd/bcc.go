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
	"os"

	"github.com/cockroachdb/errors"
	"github.com/cockroachlabs/metrics-report/internal/bcc"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var filterType string
var suffixes string

var filetopCmd = &cobra.Command{
	Use:   "filetop <file>",
	Short: "Sums bcc filetop output per file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := bcc.ParseFilterType(filterType)
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		log.Printf("Analyzing %s", args[0])
		stats, err := bcc.ParseFiletop(f, filter, bcc.ParseSuffixes(suffixes))
		if err != nil {
			return errors.Wrapf(err, "%s", args[0])
		}
		bcc.WriteFiletop(cmd.OutOrStdout(), stats, filter)
		return nil
	},
}

var syscountCmd = &cobra.Command{
	Use:   "syscount <file>",
	Short: "Sums bcc syscount output per syscall",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		log.Printf("Analyzing %s", args[0])
		stats, err := bcc.ParseSyscount(f)
		if err != nil {
			return errors.Wrapf(err, "%s", args[0])
		}
		bcc.WriteSyscount(cmd.OutOrStdout(), stats)
		return nil
	},
}

func init() {
	filetopCmd.Flags().StringVar(&filterType, "filter-type", string(bcc.Both), "reads, writes or both")
	filetopCmd.Flags().StringVar(&suffixes, "suffixes", "", "comma separated file suffixes to keep, e.g. .db,.log")
	rootCmd.AddCommand(filetopCmd)
	rootCmd.AddCommand(syscountCmd)
}

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
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachlabs/metrics-report/internal/metrics"
	"github.com/cockroachlabs/metrics-report/internal/ycsb"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var reportVersion string
var baseOutputDir string
var cfgFile string
var verbose bool

func makeAllDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// ResultsFile returns the path of fname in the results directory of the
// current report version, creating the directories on the way.
func ResultsFile(fname string, subdirs ...string) string {
	pieces := append([]string{baseOutputDir, reportVersion, "results"}, subdirs...)
	p := path.Join(pieces...)
	if err := makeAllDirs(p); err != nil {
		panic(err)
	}
	return filepath.Join(p, fname)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "metrics-report",
	Short: "Post-process benchmark monitoring logs",
	Long: `Parses the system and database monitoring logs collected during a benchmark
run and produces CSV files, summary tables and charts`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&reportVersion, "report-version", "r",
		time.Now().Format("20060102"), "subdirectory for report data")
	rootCmd.PersistentFlags().StringVarP(&baseOutputDir, "output-dir", "o",
		"./report-data", "directory to emit results")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.metrics-report.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	viper.SetDefault("nodetool.keyspace", metrics.DefaultKeyspace)
	viper.SetDefault("nodetool.table", metrics.DefaultTable)
	for source, cols := range metrics.MonotonicCounters {
		viper.SetDefault("subtract."+source, cols)
	}
	viper.SetDefault("ycsb.gc_storm_threshold", ycsb.DefaultGCStormThreshold)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".metrics-report")
	}

	viper.SetEnvPrefix("METRICS_REPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Println(err)
		os.Exit(1)
	}
}

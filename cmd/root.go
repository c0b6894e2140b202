// Copyright © 2017 Will Rowe <will.rowe@stfc.ac.uk>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.


package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pkg/profile"
	logging "github.com/shenwei356/go-logging"
	"github.com/spf13/cobra"

	"github.com/will-rowe/bigsi/src/bigsi"
	"github.com/will-rowe/bigsi/src/config"
	"github.com/will-rowe/bigsi/src/misc"
	"github.com/will-rowe/bigsi/src/version"
)

var log = logging.MustGetLogger("bigsi")

// the command line arguments
var (
	proc       *int    // number of processors to use
	profiling  *bool   // create profile for go pprof
	configFile *string // the TOML config describing the index
	logFile    *string // optional file to copy the log to
	quiet      *bool   // only log warnings and errors
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "bigsi",
	Short: "search sequence collections for k-mers using a bit-sliced signature index",
	Long: `
#####################################################################################
		BIGSI: BItsliced Genomic Signature Index
#####################################################################################

 BIGSI indexes a collection of samples (genomes, assemblies or read sets) so that
 any sequence can be searched for across all of them at once.

 Each sample is reduced to a Bloom filter of its canonical k-mers. The filters are
 stored transposed, one row per bit position, so a query needs h row reads per
 k-mer regardless of how many samples are indexed.

 The index parameters and storage backend are held in a TOML config, created with
 "bigsi init", which every other subcommand reads.`,
	Version: version.GetVersion(),
}

/*
  A function to add all child commands to the root command and sets flags appropriately
*/
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

/*
  A function to initalise the command line arguments
*/
func init() {
	proc = RootCmd.PersistentFlags().IntP("processors", "p", 1, "number of processors to use")
	profiling = RootCmd.PersistentFlags().Bool("profiling", false, "create the files needed to profile BIGSI using the go tool pprof")
	configFile = RootCmd.PersistentFlags().StringP("config", "c", "bigsi.toml", "the index config file")
	logFile = RootCmd.PersistentFlags().String("log", "", "also write the log to this file")
	quiet = RootCmd.PersistentFlags().BoolP("quiet", "q", false, "only log warnings and errors")
}

// startSubcommand sets up profiling, logging and the number of processors, the returned function must be deferred
func startSubcommand(name string) func() {
	var stopper interface{ Stop() }
	if *profiling {
		stopper = profile.Start(profile.ProfilePath("./"))
	}
	logFH, err := misc.StartLogging(*logFile, *quiet)
	misc.ErrorCheck(err)
	log.Infof("bigsi (version %s)", version.GetVersion())
	log.Infof("starting the %s subcommand", name)
	if *proc <= 0 || *proc > runtime.NumCPU() {
		*proc = runtime.NumCPU()
	}
	runtime.GOMAXPROCS(*proc)
	return func() {
		log.Infof("finished %s %v", name, misc.PrintMemUsage())
		if stopper != nil {
			stopper.Stop()
		}
		if logFH != nil {
			logFH.Close()
		}
	}
}

// loadConfig reads the config named by --config
func loadConfig() *config.Config {
	misc.ErrorCheck(misc.CheckFile(*configFile))
	cfg, err := config.Load(*configFile)
	misc.ErrorCheck(err)
	log.Infof("\tk-mer size: %d", cfg.K)
	log.Infof("\tbloom filter size: %d", cfg.M)
	log.Infof("\thash functions: %d (%s)", cfg.H, cfg.HashFamily)
	log.Infof("\tstorage: %s %s", cfg.Storage.Backend, cfg.Storage.Path)
	return cfg
}

// openIndex opens the index described by --config
func openIndex() *bigsi.Index {
	idx, err := bigsi.Open(loadConfig())
	misc.ErrorCheck(err)
	return idx
}

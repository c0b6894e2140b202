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
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/will-rowe/bigsi/src/misc"
	"github.com/will-rowe/bigsi/src/reporting"
)

// the command line arguments
var (
	plotDir   *string // directory to save plots to
	statsJSON *bool   // print the stats as JSON
)

// the stats command (used by cobra)
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise an index",
	Long: `Summarise an index: its parameters, sample counts and the density and implied false
positive rate of each bloom filter. Every row is read.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStats()
	},
}

// a function to initialise the command line arguments
func init() {
	plotDir = statsCmd.Flags().String("plot", "", "directory to save density and false positive rate plots to")
	statsJSON = statsCmd.Flags().Bool("json", false, "print the stats as JSON")
	RootCmd.AddCommand(statsCmd)
}

/*
  The main function for the stats command
*/
func runStats() {
	defer startSubcommand("stats")()
	idx := openIndex()
	defer idx.Close()
	stats, err := idx.Stats()
	misc.ErrorCheck(err)

	if *statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		misc.ErrorCheck(enc.Encode(stats))
	} else {
		maxFPR := 0.0
		for _, fpr := range stats.FalsePositiveRates {
			if fpr > maxFPR {
				maxFPR = fpr
			}
		}
		fmt.Printf("k-mer size\t%d\n", stats.K)
		fmt.Printf("bloom filter size\t%s\n", humanize.Comma(int64(stats.M)))
		fmt.Printf("hash functions\t%d (%s)\n", stats.H, stats.HashFamily)
		fmt.Printf("colours\t%s\n", humanize.Comma(int64(stats.NumColours)))
		fmt.Printf("samples\t%s\n", humanize.Comma(int64(stats.NumSamples)))
		fmt.Printf("deleted samples\t%s\n", humanize.Comma(int64(stats.NumDeleted)))
		fmt.Printf("matrix size\t%s\n", humanize.Bytes(stats.ApproxBytes))
		fmt.Printf("worst false positive rate\t%.3g\n", maxFPR)
	}
	if *plotDir != "" {
		misc.ErrorCheck(reporting.PlotStats(stats, *plotDir))
		log.Infof("written plots to %v", *plotDir)
	}
}

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
	"github.com/spf13/cobra"

	"github.com/will-rowe/bigsi/src/bigsi"
	"github.com/will-rowe/bigsi/src/config"
	"github.com/will-rowe/bigsi/src/misc"
)

// the command line arguments
var (
	otherConfig *string // config of the index to merge in
)

// the merge command (used by cobra)
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Append the samples of another index",
	Long: `Append every sample of the index described by --other to this index. Both must share
k-mer size, bloom filter size, hash count and hash family. Sample names that already exist
are suffixed with ` + bigsi.DuplicateSuffix + `.`,
	Run: func(cmd *cobra.Command, args []string) {
		runMerge()
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
}

// a function to initialise the command line arguments
func init() {
	otherConfig = mergeCmd.Flags().String("other", "", "config file of the index to merge in - required")
	mergeCmd.MarkFlagRequired("other")
	RootCmd.AddCommand(mergeCmd)
}

/*
  The main function for the merge command
*/
func runMerge() {
	defer startSubcommand("merge")()
	idx := openIndex()
	defer idx.Close()
	misc.ErrorCheck(misc.CheckFile(*otherConfig))
	cfg, err := config.Load(*otherConfig)
	misc.ErrorCheck(err)
	other, err := bigsi.Open(cfg)
	misc.ErrorCheck(err)
	defer other.Close()
	misc.ErrorCheck(idx.Merge(other))
	log.Infof("index now holds %d samples", len(idx.Samples()))
}

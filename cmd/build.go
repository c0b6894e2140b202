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

	"github.com/bits-and-blooms/bitset"
	"github.com/spf13/cobra"

	"github.com/will-rowe/bigsi/src/bigsi"
	"github.com/will-rowe/bigsi/src/misc"
	"github.com/will-rowe/bigsi/src/pipeline"
)

// the command line arguments
var (
	buildBloomDir *string // directory of bloom filters written by the bloom command
)

// the build command (used by cobra)
var buildCmd = &cobra.Command{
	Use:   "build [flags] [sequence files...]",
	Short: "Build an index from bloom filters or sequence files",
	Long: `Build an index from the bloom filters written by "bigsi bloom" (--blooms) or straight
from sequence files, one sample per file. Anything already stored at the configured
location is replaced.`,
	Run: func(cmd *cobra.Command, args []string) {
		runBuild(args)
	},
}

// a function to initialise the command line arguments
func init() {
	buildBloomDir = buildCmd.Flags().StringP("blooms", "b", "", "directory of bloom filters written by the bloom subcommand")
	RootCmd.AddCommand(buildCmd)
}

/*
  The main function for the build command
*/
func runBuild(files []string) {
	defer startSubcommand("build")()
	log.Info("checking parameters...")
	if (*buildBloomDir == "") == (len(files) == 0) {
		misc.ErrorCheck(fmt.Errorf("supply either --blooms or sequence files - run `bigsi build --help` for more info on the command"))
	}
	cfg := loadConfig()
	var blooms []*bitset.BitSet
	var names []string
	if *buildBloomDir != "" {
		misc.ErrorCheck(misc.CheckDir(*buildBloomDir))
		filters, sampleNames, err := pipeline.LoadBlooms(*buildBloomDir, cfg)
		misc.ErrorCheck(err)
		for _, bf := range filters {
			blooms = append(blooms, bf.BitArray())
		}
		names = sampleNames
		log.Infof("loaded %d bloom filters from %v", len(blooms), *buildBloomDir)
	} else {
		misc.ErrorCheck(checkSeqFiles(files))
		info := newRuntimeInfo(cfg)
		samples, err := pipeline.BuildBlooms(info, files)
		misc.ErrorCheck(err)
		for _, sample := range samples {
			blooms = append(blooms, sample.Bloom.BitArray())
			names = append(names, sample.Name)
		}
		log.Infof("built %d bloom filters", len(blooms))
	}
	log.Info("building index...")
	idx, err := bigsi.Build(cfg, blooms, names)
	misc.ErrorCheck(err)
	defer idx.Close()
	log.Infof("indexed %d samples", len(idx.Samples()))
}

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

	"github.com/spf13/cobra"

	"github.com/will-rowe/bigsi/src/config"
	"github.com/will-rowe/bigsi/src/misc"
	"github.com/will-rowe/bigsi/src/pipeline"
	"github.com/will-rowe/bigsi/src/version"
)

// sequence file extensions accepted by bloom, build and insert
var seqExts = []string{"fasta", "fa", "fna", "fastq", "fq"}

// the command line arguments
var (
	bloomDir *string // directory to write bloom filters and their manifest to
	estimate *bool   // estimate the k-mer content and false positive rate of each sample
	minQual  *int    // quality trim FASTQ reads to this phred score
)

// the bloom command (used by cobra)
var bloomCmd = &cobra.Command{
	Use:   "bloom [flags] sequence files...",
	Short: "Build a bloom filter for each sequence file",
	Long: `Build a bloom filter for each sequence file (FASTA or FASTQ, optionally gzipped).

Each file is one sample, named after the file. The filters are written to the output
directory along with a manifest that "bigsi build --blooms" reads.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runBloom(args)
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
}

// a function to initialise the command line arguments
func init() {
	bloomDir = bloomCmd.Flags().StringP("outDir", "o", "", "directory to save bloom filters to - required")
	estimate = bloomCmd.Flags().Bool("estimate", false, "estimate the distinct k-mers and false positive rate of each sample")
	minQual = bloomCmd.Flags().Int("minQual", 0, "quality trim FASTQ reads to this phred score (0 disables trimming)")
	bloomCmd.MarkFlagRequired("outDir")
	RootCmd.AddCommand(bloomCmd)
}

// checkSeqFiles is a function to check the sequence files supplied as arguments
func checkSeqFiles(files []string) error {
	for _, file := range files {
		if err := misc.CheckFile(file); err != nil {
			return err
		}
		if err := misc.CheckExt(file, seqExts); err != nil {
			return err
		}
	}
	return nil
}

// newRuntimeInfo is a function to collect the runtime info used by the bloom pipeline
func newRuntimeInfo(cfg *config.Config) *pipeline.Info {
	info := &pipeline.Info{
		Version:   version.GetVersion(),
		NumProc:   *proc,
		Profiling: *profiling,
		Config:    cfg,
	}
	if !*quiet {
		info.Progress = os.Stderr
	}
	return info
}

/*
  The main function for the bloom command
*/
func runBloom(files []string) {
	defer startSubcommand("bloom")()
	log.Info("checking parameters...")
	misc.ErrorCheck(checkSeqFiles(files))
	if *minQual < 0 {
		misc.ErrorCheck(fmt.Errorf("--minQual must not be negative"))
	}
	info := newRuntimeInfo(loadConfig())
	info.OutDir = *bloomDir
	info.Estimate = *estimate
	info.MinQual = *minQual
	log.Infof("\tprocessors: %d", *proc)
	log.Infof("\tnumber of sequence files: %d", len(files))
	log.Info("building bloom filters...")
	samples, err := pipeline.BuildBlooms(info, files)
	misc.ErrorCheck(err)
	log.Infof("written %d bloom filters to %v", len(samples), *bloomDir)
}

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
	"strings"

	"github.com/spf13/cobra"

	"github.com/will-rowe/bigsi/src/bigsi"
	"github.com/will-rowe/bigsi/src/bloom"
	"github.com/will-rowe/bigsi/src/misc"
	"github.com/will-rowe/bigsi/src/seqio"
)

// the command line arguments
var (
	insertBloom  *string // a bloom filter written by the bloom command
	insertSeqs   *string // a sequence file to build the bloom filter from
	insertSample *string // the name of the new sample
)

// the insert command (used by cobra)
var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Add one sample to an existing index",
	Long: `Add one sample to an existing index as the next colour, from a bloom filter (--bloom)
or a sequence file (--seqs). Building a second index and merging it is usually faster
when adding many samples.`,
	Run: func(cmd *cobra.Command, args []string) {
		runInsert()
	},
}

// a function to initialise the command line arguments
func init() {
	insertBloom = insertCmd.Flags().String("bloom", "", "bloom filter file written by the bloom subcommand")
	insertSeqs = insertCmd.Flags().String("seqs", "", "sequence file (FASTA or FASTQ) to build the bloom filter from")
	insertSample = insertCmd.Flags().StringP("sample", "s", "", "sample name (defaults to the file name)")
	RootCmd.AddCommand(insertCmd)
}

/*
  The main function for the insert command
*/
func runInsert() {
	defer startSubcommand("insert")()
	log.Info("checking parameters...")
	if (*insertBloom == "") == (*insertSeqs == "") {
		misc.ErrorCheck(fmt.Errorf("supply either --bloom or --seqs - run `bigsi insert --help` for more info on the command"))
	}
	idx := openIndex()
	defer idx.Close()
	cfg := idx.Config()

	var bf *bloom.BloomFilter
	var err error
	source := *insertBloom
	if source != "" {
		misc.ErrorCheck(misc.CheckFile(source))
		bf, err = bloom.Load(source)
		misc.ErrorCheck(err)
	} else {
		source = *insertSeqs
		misc.ErrorCheck(checkSeqFiles([]string{source}))
		seqs, err := seqio.ReadFile(source, 0)
		misc.ErrorCheck(err)
		raw := make([][]byte, len(seqs))
		for i, seq := range seqs {
			raw[i] = seq.Seq
		}
		bf, err = bigsi.Bloom(&cfg, raw...)
		misc.ErrorCheck(err)
	}
	name := *insertSample
	if name == "" {
		name = strings.TrimSuffix(seqio.SampleName(source), ".bloom")
	}
	misc.ErrorCheck(idx.InsertFilter(bf, name))
	log.Infof("inserted sample %q, index now holds %d samples", name, len(idx.Samples()))
}

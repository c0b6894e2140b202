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

	"github.com/spf13/cobra"

	"github.com/will-rowe/bigsi/src/misc"
)

// the command line arguments
var (
	deleteSamples *[]string // samples to tombstone
	deleteAll     *bool     // delete the whole index
)

// the delete command (used by cobra)
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete samples or the whole index",
	Long: `Delete samples (--sample, repeatable) or, with --all, every row and sample of the index.

A deleted sample keeps its colour but is never reported again. Deleting the whole
index cannot be undone.`,
	Run: func(cmd *cobra.Command, args []string) {
		runDelete()
	},
}

// a function to initialise the command line arguments
func init() {
	deleteSamples = deleteCmd.Flags().StringSliceP("sample", "s", nil, "sample to delete")
	deleteAll = deleteCmd.Flags().Bool("all", false, "delete the whole index")
	RootCmd.AddCommand(deleteCmd)
}

/*
  The main function for the delete command
*/
func runDelete() {
	defer startSubcommand("delete")()
	if (len(*deleteSamples) == 0) == !*deleteAll {
		misc.ErrorCheck(fmt.Errorf("supply either --sample or --all - run `bigsi delete --help` for more info on the command"))
	}
	idx := openIndex()
	defer idx.Close()
	if *deleteAll {
		misc.ErrorCheck(idx.Delete())
		return
	}
	for _, sample := range *deleteSamples {
		misc.ErrorCheck(idx.DeleteSample(sample))
		log.Infof("deleted sample %q", sample)
	}
}

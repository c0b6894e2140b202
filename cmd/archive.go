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

	"github.com/will-rowe/bigsi/src/bigsi"
	"github.com/will-rowe/bigsi/src/misc"
)

// the command line arguments
var (
	exportFile *string // archive to write
	importFile *string // archive to read
)

// the export command (used by cobra)
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an index to an archive",
	Long: `Write the signature matrix and sample records of an index to an archive. The archive
format follows the file extension (.tar.gz, .tar.bz2, .tar.xz, .tar.lz4, .tar.sz or .zip).`,
	Run: func(cmd *cobra.Command, args []string) {
		runExport()
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
}

// the import command (used by cobra)
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace an index with an exported archive",
	Long: `Replace whatever is stored at the configured location with an archive written by
"bigsi export". The config must match the parameters the archive was built with.`,
	Run: func(cmd *cobra.Command, args []string) {
		runImport()
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
}

// a function to initialise the command line arguments
func init() {
	exportFile = exportCmd.Flags().StringP("out", "o", "", "archive to write - required")
	exportCmd.MarkFlagRequired("out")
	importFile = importCmd.Flags().StringP("in", "i", "", "archive to read - required")
	importCmd.MarkFlagRequired("in")
	RootCmd.AddCommand(exportCmd, importCmd)
}

/*
  The main function for the export command
*/
func runExport() {
	defer startSubcommand("export")()
	if _, err := os.Stat(*exportFile); err == nil {
		misc.ErrorCheck(fmt.Errorf("archive already exists: %v", *exportFile))
	}
	idx := openIndex()
	defer idx.Close()
	misc.ErrorCheck(idx.Export(*exportFile))
}

/*
  The main function for the import command
*/
func runImport() {
	defer startSubcommand("import")()
	misc.ErrorCheck(misc.CheckFile(*importFile))
	idx, err := bigsi.Import(loadConfig(), *importFile)
	misc.ErrorCheck(err)
	defer idx.Close()
	log.Infof("imported %d samples", len(idx.Samples()))
}

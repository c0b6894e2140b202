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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/will-rowe/bigsi/src/bigsi"
	"github.com/will-rowe/bigsi/src/misc"
	"github.com/will-rowe/bigsi/src/reporting"
	"github.com/will-rowe/bigsi/src/seqio"
)

// output formats of the search command
const (
	formatJSON = "json"
	formatTSV  = "tsv"
)

// the command line arguments
var (
	querySeq  *string  // a single query sequence
	queryFile *string  // FASTA/FASTQ of query sequences
	threshold *float64 // minimum fraction of query k-mers a sample must hold
	score     *bool    // score each hit
	format    *string  // output format
	searchOut *string  // output file, stdout if unset
)

// the search command (used by cobra)
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the samples that contain a sequence",
	Long: `Find the samples holding at least --threshold of the distinct k-mers of a query.

Queries are read from --seq, from a FASTA/FASTQ file (--queries) or from STDIN. A threshold
of 1 requires every k-mer. Each query produces one JSON document (or a block of tab
separated lines with --format tsv).`,
	Run: func(cmd *cobra.Command, args []string) {
		runSearch()
	},
}

// a function to initialise the command line arguments
func init() {
	querySeq = searchCmd.Flags().String("seq", "", "query sequence")
	queryFile = searchCmd.Flags().StringP("queries", "i", "", "FASTA/FASTQ file of query sequences")
	threshold = searchCmd.Flags().Float64P("threshold", "t", 1.0, "minimum fraction of query k-mers found in a sample")
	score = searchCmd.Flags().Bool("score", false, "score hits by query coverage and longest run of found k-mers")
	format = searchCmd.Flags().String("format", formatJSON, "output format (json or tsv)")
	searchOut = searchCmd.Flags().StringP("out", "o", "", "write results to this file instead of STDOUT")
	RootCmd.AddCommand(searchCmd)
}

// searchResult is one query and its hits
type searchResult struct {
	Query     string        `json:"query"`
	Threshold float64       `json:"threshold"`
	Results   bigsi.Results `json:"results"`
}

// collectQueries is a function to gather the query sequences from the flags or STDIN
func collectQueries() ([]*seqio.Sequence, error) {
	if *querySeq != "" {
		query := &seqio.Sequence{ID: []byte("query"), Seq: []byte(*querySeq)}
		return []*seqio.Sequence{query}, nil
	}
	if *queryFile != "" {
		if err := misc.CheckFile(*queryFile); err != nil {
			return nil, err
		}
		return seqio.ReadFile(*queryFile, 0)
	}
	if err := misc.CheckSTDIN(); err != nil {
		return nil, fmt.Errorf("no queries supplied: use --seq, --queries or STDIN (%v)", err)
	}
	queries := []*seqio.Sequence{}
	err := seqio.Stream(os.Stdin, 0, func(read *seqio.FASTQread) error {
		queries = append(queries, &read.Sequence)
		return nil
	})
	return queries, err
}

// writeResult is a function to write the hits of one query in the requested format
func writeResult(w io.Writer, result searchResult) error {
	switch *format {
	case formatJSON:
		return json.NewEncoder(w).Encode(result)
	case formatTSV:
		if _, err := fmt.Fprintf(w, "# %v\n", result.Query); err != nil {
			return err
		}
		return reporting.WriteTSV(w, result.Results)
	default:
		return fmt.Errorf("unknown output format: %v", *format)
	}
}

/*
  The main function for the search command
*/
func runSearch() {
	defer startSubcommand("search")()
	log.Info("checking parameters...")
	if *format != formatJSON && *format != formatTSV {
		misc.ErrorCheck(fmt.Errorf("unknown output format: %v", *format))
	}
	queries, err := collectQueries()
	misc.ErrorCheck(err)
	log.Infof("\tnumber of queries: %d", len(queries))
	log.Infof("\tthreshold: %v", *threshold)

	idx := openIndex()
	defer idx.Close()

	var out io.Writer = os.Stdout
	if *searchOut != "" {
		fh, err := os.Create(*searchOut)
		misc.ErrorCheck(err)
		defer fh.Close()
		out = fh
	}
	for _, query := range queries {
		results, err := idx.Search(query.Seq, *threshold, *score)
		misc.ErrorCheck(err)
		log.Infof("%v: %d hits", string(query.ID), len(results))
		misc.ErrorCheck(writeResult(out, searchResult{Query: string(query.ID), Threshold: *threshold, Results: results}))
	}
}

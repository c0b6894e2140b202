/*
	the seqio package contains custom types and methods for reading and cleaning the sequence data that bloom filters are built from
*/
package seqio

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"

	bioseqio "github.com/biogo/biogo/io/seqio"
)

// encoding used by the FASTQ file
const encoding = 33

// ErrUnknownFormat is returned when a file is neither FASTA nor FASTQ
var ErrUnknownFormat = errors.New("unknown sequence format")

// complementBases is the lookup table used during reverse complementation
var complementBases = []byte{
	'A': 'T',
	'T': 'A',
	'C': 'G',
	'G': 'C',
	'N': 'N',
}

// Sequence is the base type for a FASTA record or FASTQ read
type Sequence struct {
	ID  []byte
	Seq []byte
}

// FASTQread is a type that holds a single FASTQ read
type FASTQread struct {
	Sequence
	Misc []byte
	Qual []byte
	RC   bool
}

// BaseCheck is a method to convert bases to upper case, anything other than ACGTN becomes an N
func (Sequence *Sequence) BaseCheck() {
	for i, j := 0, len(Sequence.Seq); i < j; i++ {
		switch base := unicode.ToUpper(rune(Sequence.Seq[i])); base {
		case 'A', 'C', 'T', 'G', 'N':
			Sequence.Seq[i] = byte(base)
		default:
			Sequence.Seq[i] = byte('N')
		}
	}
}

// RevComplement is a method to reverse complement a sequence, BaseCheck must have been run first
func (FASTQread *FASTQread) RevComplement() {
	for i, j := 0, len(FASTQread.Seq); i < j; i++ {
		FASTQread.Seq[i] = complementBases[FASTQread.Seq[i]]
	}
	for i, j := 0, len(FASTQread.Seq)-1; i <= j; i, j = i+1, j-1 {
		FASTQread.Seq[i], FASTQread.Seq[j] = FASTQread.Seq[j], FASTQread.Seq[i]
	}
	for i, j := 0, len(FASTQread.Qual)-1; i <= j; i, j = i+1, j-1 {
		FASTQread.Qual[i], FASTQread.Qual[j] = FASTQread.Qual[j], FASTQread.Qual[i]
	}
	FASTQread.RC = !FASTQread.RC
}

// QualTrim is a method to quality trim the sequence held by a FASTQread
/* the algorithm is based on bwa/cutadapt read quality trim functions:
-1. for each index position, subtract qual cutoff from the quality score
-2. sum these values across the read and trim at the index where the sum in minimal
-3. return the high-quality region
*/
func (FASTQread *FASTQread) QualTrim(minQual int) {
	start, qualSum, qualMax := 0, 0, 0
	end := len(FASTQread.Qual)
	for i, qual := range FASTQread.Qual {
		qualSum += minQual - (int(qual) - encoding)
		if qualSum < 0 {
			break
		}
		if qualSum > qualMax {
			qualMax = qualSum
			start = i + 1
		}
	}
	qualSum, qualMax = 0, 0
	for i, j := 0, len(FASTQread.Qual)-1; j >= i; j-- {
		qualSum += minQual - (int(FASTQread.Qual[j]) - encoding)
		if qualSum < 0 {
			break
		}
		if qualSum > qualMax {
			qualMax = qualSum
			end = j
		}
	}
	if start >= end {
		start, end = 0, 0
	}
	FASTQread.Seq = FASTQread.Seq[start:end]
	FASTQread.Qual = FASTQread.Qual[start:end]
}

// NewFASTQread generates a new fastq read from 4 lines of data
func NewFASTQread(l1 []byte, l2 []byte, l3 []byte, l4 []byte) (*FASTQread, error) {
	if len(l1) == 0 || l1[0] != '@' {
		return nil, errors.Errorf("read ID in fastq file does not begin with @: %v", string(l1))
	}
	if len(l2) != len(l4) {
		return nil, errors.New("sequence and quality score lines are unequal lengths in fastq file")
	}
	return &FASTQread{
		Sequence: Sequence{ID: l1[1:], Seq: l2},
		Misc:     l3,
		Qual:     l4,
	}, nil
}

// Open returns a reader over a sequence file, files ending in .gz are decompressed
func Open(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) != ".gz" {
		return fh, nil
	}
	gz, err := pgzip.NewReader(fh)
	if err != nil {
		fh.Close()
		return nil, errors.Wrapf(err, "could not decompress %v", path)
	}
	return &gzipFile{Reader: gz, fh: fh}, nil
}

type gzipFile struct {
	*pgzip.Reader
	fh *os.File
}

func (g *gzipFile) Close() error {
	if err := g.Reader.Close(); err != nil {
		g.fh.Close()
		return err
	}
	return g.fh.Close()
}

// Stream calls fn with every record of a FASTA or FASTQ stream, the format is sniffed from the first byte.
// FASTQ reads are quality trimmed when minQual is above zero.
func Stream(r io.Reader, minQual int, fn func(*FASTQread) error) error {
	buf := bufio.NewReader(r)
	first, err := buf.Peek(1)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	var reader bioseqio.Reader
	switch first[0] {
	case '>':
		reader = fasta.NewReader(buf, linear.NewSeq("", nil, alphabet.DNAredundant))
	case '@':
		reader = fastq.NewReader(buf, linear.NewQSeq("", nil, alphabet.DNA, alphabet.Sanger))
	default:
		return errors.Wrapf(ErrUnknownFormat, "record begins with %q", first[0])
	}
	scanner := bioseqio.NewScanner(reader)
	for scanner.Next() {
		var read *FASTQread
		switch s := scanner.Seq().(type) {
		case *linear.Seq:
			read = &FASTQread{Sequence: Sequence{ID: []byte(s.ID), Seq: letters(s.Seq)}}
		case *linear.QSeq:
			read = &FASTQread{Sequence: Sequence{ID: []byte(s.ID)}}
			read.Seq = make([]byte, len(s.Seq))
			read.Qual = make([]byte, len(s.Seq))
			for i, ql := range s.Seq {
				read.Seq[i] = byte(ql.L)
				read.Qual[i] = byte(ql.Q) + encoding
			}
			if minQual > 0 {
				read.QualTrim(minQual)
			}
		default:
			return errors.Errorf("unexpected record type %T", s)
		}
		read.BaseCheck()
		if err := fn(read); err != nil {
			return err
		}
	}
	return scanner.Error()
}

// ReadFile returns every sequence held in a FASTA or FASTQ file
func ReadFile(path string, minQual int) ([]*Sequence, error) {
	fh, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	seqs := []*Sequence{}
	err = Stream(fh, minQual, func(read *FASTQread) error {
		seqs = append(seqs, &read.Sequence)
		return nil
	})
	return seqs, errors.Wrapf(err, "could not read %v", path)
}

// SampleName derives a sample name from a file path by dropping the directory and sequence extensions
func SampleName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")
	for _, ext := range []string{".fasta", ".fastq", ".fna", ".fa", ".fq"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

func letters(ls alphabet.Letters) []byte {
	seq := make([]byte, len(ls))
	for i, l := range ls {
		seq[i] = byte(l)
	}
	return seq
}

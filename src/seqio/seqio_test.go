package seqio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup variables
var (
	l1 = []byte("@0_chr1_0_186027_186126_263_(Bla)BIC-1:GQ260093:1-885:885")
	l2 = []byte("acagcaggaaggcttactggagaaacgtatcgactataagaatcgggtgatggaacctcactctcccatcagcgcacaacatagttcgacgggtatgacc")
	l3 = []byte("+")
	l4 = []byte("====@==@AAD?>D@@==DACBC?@BB@C==AB==A@D>AD==?CB==@=B?=A>D?=DB=?>>D@EB===??=@C=?C>@>@B>=?C@@>=====?@>=")
)

// test results
var (
	expectedUpperCase  = []byte("ACAGCAGGAAGGCTTACTGGAGAAACGTATCGACTATAAGAATCGGGTGATGGAACCTCACTCTCCCATCAGCGCACAACATAGTTCGACGGGTATGACC")
	expectedTrimmedSeq = []byte("GAAGGCTTACTGGAGAAACGTATCGACTATAAGAATCGGGTGATGGAACCTCACTCTCCCATCAGCGCACAACATAGTTCGAC")
	expectedRevComp    = []byte("GTCGAACTATGTTGTGCGCTGATGGGAGAGTGAGGTTCCATCACCCGATTCTTATAGTCGATACGTTTCTCCAGTAAGCCTTC")
)

const fastaData = ">seq1 first record\nACGTACGT\nacgtn\n>seq2\nAAAAX\n"

func copyBytes(b []byte) []byte {
	return append([]byte{}, b...)
}

func TestReadConstructor(t *testing.T) {
	read, err := NewFASTQread(copyBytes(l1), copyBytes(l2), l3, copyBytes(l4))
	require.NoError(t, err)
	assert.Equal(t, "0_chr1_0_186027_186126_263_(Bla)BIC-1:GQ260093:1-885:885", string(read.ID))

	_, err = NewFASTQread([]byte(">nope"), l2, l3, l4)
	assert.Error(t, err)
	_, err = NewFASTQread(l1, l2, l3, l4[1:])
	assert.Error(t, err)
}

func TestSeqMethods(t *testing.T) {
	read, err := NewFASTQread(copyBytes(l1), copyBytes(l2), l3, copyBytes(l4))
	require.NoError(t, err)
	read.BaseCheck()
	assert.Equal(t, expectedUpperCase, read.Seq)
	read.QualTrim(30)
	assert.Equal(t, expectedTrimmedSeq, read.Seq)
	assert.Equal(t, len(read.Seq), len(read.Qual))
	read.RevComplement()
	assert.Equal(t, expectedRevComp, read.Seq)
	assert.True(t, read.RC)
}

func TestBaseCheck(t *testing.T) {
	seq := &Sequence{Seq: []byte("acgtRYnX-")}
	seq.BaseCheck()
	assert.Equal(t, "ACGTNNNNN", string(seq.Seq))
}

func TestStreamFASTA(t *testing.T) {
	ids, seqs := []string{}, []string{}
	err := Stream(strings.NewReader(fastaData), 0, func(read *FASTQread) error {
		ids = append(ids, string(read.ID))
		seqs = append(seqs, string(read.Seq))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"seq1", "seq2"}, ids)
	assert.Equal(t, []string{"ACGTACGTACGTN", "AAAAN"}, seqs)
}

func TestStreamFASTQ(t *testing.T) {
	data := strings.Join([]string{string(l1), string(l2), string(l3), string(l4)}, "\n") + "\n"

	var untrimmed, trimmed []byte
	require.NoError(t, Stream(strings.NewReader(data), 0, func(read *FASTQread) error {
		untrimmed = read.Seq
		return nil
	}))
	assert.Equal(t, expectedUpperCase, untrimmed)

	require.NoError(t, Stream(strings.NewReader(data), 30, func(read *FASTQread) error {
		trimmed = read.Seq
		return nil
	}))
	assert.Equal(t, expectedTrimmedSeq, trimmed)
}

func TestStreamEdgeCases(t *testing.T) {
	calls := 0
	require.NoError(t, Stream(strings.NewReader(""), 0, func(*FASTQread) error {
		calls++
		return nil
	}))
	assert.Zero(t, calls)

	err := Stream(strings.NewReader("ACGT\n"), 0, func(*FASTQread) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownFormat)

	stop := os.ErrClosed
	err = Stream(strings.NewReader(fastaData), 0, func(*FASTQread) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "sample.fasta")
	require.NoError(t, os.WriteFile(plain, []byte(fastaData), 0644))

	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	_, err := gz.Write([]byte(fastaData))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	compressed := filepath.Join(dir, "sample.fa.gz")
	require.NoError(t, os.WriteFile(compressed, buf.Bytes(), 0644))

	for _, path := range []string{plain, compressed} {
		seqs, err := ReadFile(path, 0)
		require.NoError(t, err, path)
		require.Len(t, seqs, 2)
		assert.Equal(t, "ACGTACGTACGTN", string(seqs[0].Seq))
	}

	_, err = ReadFile(filepath.Join(dir, "missing.fasta"), 0)
	assert.Error(t, err)
}

func TestSampleName(t *testing.T) {
	assert.Equal(t, "ecoli", SampleName("/data/ecoli.fasta"))
	assert.Equal(t, "reads", SampleName("reads.fq.gz"))
	assert.Equal(t, "genome.txt", SampleName("genome.txt"))
}

package misc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckExt(t *testing.T) {
	exts := []string{"fasta", "fa", "fastq", "fq"}
	assert.NoError(t, CheckExt("reads.fq.gz", exts))
	assert.NoError(t, CheckExt("/data/genome.fasta", exts))
	assert.Error(t, CheckExt("genome.txt", exts))
	assert.Error(t, CheckExt("fasta", exts))
	assert.Error(t, CheckExt("gz", exts))
}

func TestCheckFileAndDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "x.fasta")
	require.NoError(t, os.WriteFile(file, []byte(">x\nACGT\n"), 0644))

	assert.NoError(t, CheckDir(dir))
	assert.Error(t, CheckDir(""))
	assert.Error(t, CheckDir(filepath.Join(dir, "missing")))
	assert.Error(t, CheckDir(file))

	assert.NoError(t, CheckFile(file))
	assert.Error(t, CheckFile(filepath.Join(dir, "missing")))
}

func TestCheckRequiredFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.MarkFlagRequired("config"))
	assert.Error(t, CheckRequiredFlags(cmd.Flags()))
	require.NoError(t, cmd.Flags().Set("config", "bigsi.toml"))
	assert.NoError(t, CheckRequiredFlags(cmd.Flags()))
}

func TestStartLogging(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "bigsi.log")
	fh, err := StartLogging(logFile, false)
	require.NoError(t, err)
	require.NotNil(t, fh)
	log.Info("hello from the log")
	require.NoError(t, fh.Close())
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the log")

	fh, err = StartLogging("", true)
	require.NoError(t, err)
	assert.Nil(t, fh)
}

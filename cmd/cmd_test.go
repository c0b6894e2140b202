package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/will-rowe/bigsi/src/bigsi"
	"github.com/will-rowe/bigsi/src/bloom"
	"github.com/will-rowe/bigsi/src/config"
)

func TestInitConfig(t *testing.T) {
	*backend = config.BackendMemory
	*expectedKmers = 0
	cfg, err := initConfig()
	require.NoError(t, err)
	assert.Equal(t, config.Default().M, cfg.M)

	*expectedKmers = 5000000
	*targetFPR = 0.01
	cfg, err = initConfig()
	require.NoError(t, err)
	m, h := bloom.EstimateParameters(5000000, 0.01)
	assert.Equal(t, m, cfg.M)
	assert.Equal(t, h, cfg.H)

	*targetFPR = 1.5
	_, err = initConfig()
	assert.Error(t, err)
	*expectedKmers = 0

	*backend = "tape"
	_, err = initConfig()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	*backend = config.Default().Storage.Backend
}

func TestWriteResult(t *testing.T) {
	result := searchResult{
		Query:     "q1",
		Threshold: 0.5,
		Results:   bigsi.Results{"S1": {PercentKmersFound: 100, NumKmers: 4, NumKmersFound: 4}},
	}

	var buf bytes.Buffer
	*format = formatJSON
	require.NoError(t, writeResult(&buf, result))
	decoded := searchResult{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, result, decoded)

	buf.Reset()
	*format = formatTSV
	require.NoError(t, writeResult(&buf, result))
	assert.Equal(t, "# q1\nS1\t100.00\t4\t4\n", buf.String())

	*format = "xml"
	assert.Error(t, writeResult(&buf, result))
	*format = formatJSON
}

func TestSubcommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range RootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"init", "bloom", "build", "insert", "search", "delete", "stats", "merge", "export", "import"} {
		assert.True(t, names[name], name)
	}
}

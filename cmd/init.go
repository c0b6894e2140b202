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

	"github.com/will-rowe/bigsi/src/bloom"
	"github.com/will-rowe/bigsi/src/config"
	"github.com/will-rowe/bigsi/src/misc"
)

// the command line arguments
var (
	kSize          *uint     // size of k-mer
	bloomSize      *uint     // number of bits in each bloom filter
	numHashes      *uint     // number of hash functions
	hashFamily     *string   // hash family used to place k-mers
	lowMem         *bool     // build row by row
	minUniqueKmers *int      // queries need more than this many distinct k-mers
	queryPolicy    *string   // what to do with queries below minUniqueKmers
	backend        *string   // storage backend
	storagePath    *string   // storage location for the memory and file backends
	redisAddrs     *[]string // redis server addresses
	redisPrefix    *string   // prefix of the redis keys
	redisDB        *int      // redis database number
	expectedKmers  *uint     // size m and h for samples of this many k-mers
	targetFPR      *float64  // the false positive rate to size m and h for
	forceInit      *bool     // overwrite an existing config
)

// the init command (used by cobra)
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the config for a new index",
	Long: `Write the config for a new index.

The k-mer size, bloom filter size, hash count and hash family are fixed once an index
is built. Supplying --expectedKmers sizes the bloom filters for samples holding that
many distinct k-mers at the --fpr false positive rate, overriding --bloomSize and --numHashes.`,
	Run: func(cmd *cobra.Command, args []string) {
		runInit()
	},
}

// a function to initialise the command line arguments
func init() {
	defaults := config.Default()
	kSize = initCmd.Flags().UintP("kmerSize", "k", defaults.K, "size of k-mer")
	bloomSize = initCmd.Flags().UintP("bloomSize", "m", defaults.M, "number of bits in each bloom filter")
	numHashes = initCmd.Flags().UintP("numHashes", "n", defaults.H, "number of hash functions per k-mer")
	hashFamily = initCmd.Flags().String("hashFamily", defaults.HashFamily, "hash family (murmur3 or wyhash)")
	lowMem = initCmd.Flags().Bool("lowMem", false, "build the index one row at a time")
	minUniqueKmers = initCmd.Flags().Int("minUniqueKmers", defaults.MinUniqueKmers, "queries should contain more than this many distinct k-mers")
	queryPolicy = initCmd.Flags().String("queryPolicy", defaults.QueryPolicy, "permissive warns about short queries, strict rejects them")
	backend = initCmd.Flags().String("backend", defaults.Storage.Backend, "storage backend (memory, file or redis)")
	storagePath = initCmd.Flags().String("path", defaults.Storage.Path, "directory for the file backend")
	redisAddrs = initCmd.Flags().StringSlice("redisAddrs", nil, "redis server addresses, more than one selects a cluster")
	redisPrefix = initCmd.Flags().String("redisPrefix", "", "prefix for the redis keys")
	redisDB = initCmd.Flags().Int("redisDB", 0, "redis database number")
	expectedKmers = initCmd.Flags().Uint("expectedKmers", 0, "size the bloom filters for samples of this many distinct k-mers")
	targetFPR = initCmd.Flags().Float64("fpr", 0.01, "false positive rate used with --expectedKmers")
	forceInit = initCmd.Flags().Bool("force", false, "overwrite an existing config file")
	RootCmd.AddCommand(initCmd)
}

// a function to build the config from the flags
func initConfig() (*config.Config, error) {
	cfg := &config.Config{
		K:              *kSize,
		M:              *bloomSize,
		H:              *numHashes,
		LowMem:         *lowMem,
		HashFamily:     *hashFamily,
		MinUniqueKmers: *minUniqueKmers,
		QueryPolicy:    *queryPolicy,
		Storage: config.StorageConfig{
			Backend:     *backend,
			Path:        *storagePath,
			RedisAddrs:  *redisAddrs,
			RedisPrefix: *redisPrefix,
			RedisDB:     *redisDB,
		},
	}
	if *expectedKmers > 0 {
		if *targetFPR <= 0 || *targetFPR >= 1 {
			return nil, fmt.Errorf("--fpr must be within (0, 1)")
		}
		cfg.M, cfg.H = bloom.EstimateParameters(*expectedKmers, *targetFPR)
		log.Infof("sized bloom filters for %d k-mers at a false positive rate of %v", *expectedKmers, *targetFPR)
	}
	return cfg, cfg.Validate()
}

/*
  The main function for the init command
*/
func runInit() {
	defer startSubcommand("init")()
	if _, err := os.Stat(*configFile); err == nil && !*forceInit {
		misc.ErrorCheck(fmt.Errorf("config file already exists, use --force to overwrite: %v", *configFile))
	}
	cfg, err := initConfig()
	misc.ErrorCheck(err)
	misc.ErrorCheck(cfg.Dump(*configFile))
	log.Infof("\tk-mer size: %d", cfg.K)
	log.Infof("\tbloom filter size: %d", cfg.M)
	log.Infof("\thash functions: %d (%s)", cfg.H, cfg.HashFamily)
	log.Infof("\tstorage: %s", cfg.Storage.Backend)
	log.Infof("written config to %v", *configFile)
}

// Package bigsi is a bit-sliced signature index: it answers which samples contain
// a query sequence by looking up the canonical k-mers of the query in the Bloom
// filters of every sample at once.
//
// An Index composes the sample metadata and the signature matrix held by one
// storage backend. Searches share the index; Insert, Delete, DeleteSample and
// Merge are exclusive. After Delete the handle is terminal.
package bigsi

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	logging "github.com/shenwei356/go-logging"

	"github.com/will-rowe/bigsi/src/bloom"
	"github.com/will-rowe/bigsi/src/config"
	"github.com/will-rowe/bigsi/src/kmers"
	"github.com/will-rowe/bigsi/src/metadata"
	"github.com/will-rowe/bigsi/src/signature"
	"github.com/will-rowe/bigsi/src/storage"
)

var log = logging.MustGetLogger("bigsi")

var (
	// ErrArgumentCountMismatch is returned by Build when bloom filter and sample counts differ
	ErrArgumentCountMismatch = errors.New("there must be the same number of bloom filters and sample names")

	// ErrInvalidThreshold is returned for search thresholds outside [0, 1]
	ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")

	// ErrTooFewKmers is returned by searches under the strict query policy
	ErrTooFewKmers = errors.New("query contains too few unique k-mers")

	// ErrConfigMismatch is returned when the storage was built with other parameters
	ErrConfigMismatch = errors.New("config does not match the stored index")

	// ErrIndexDeleted is returned when using an index after Delete
	ErrIndexDeleted = errors.New("index has been deleted")
)

// errors of the collaborating packages
var (
	ErrDuplicateSample    = metadata.ErrDuplicateSample
	ErrNotFound           = metadata.ErrNotFound
	ErrInvalidSampleName  = metadata.ErrInvalidSampleName
	ErrShapeMismatch      = storage.ErrShapeMismatch
	ErrStorageUnavailable = storage.ErrStorageUnavailable
	ErrLocked             = storage.ErrLocked
	ErrInvalidInput       = kmers.ErrInvalidInput
	ErrInvalidConfig      = config.ErrInvalidConfig
)

// Index is an open signature index
type Index struct {
	cfg        config.Config
	params     storage.Params
	family     bloom.HashFamily
	store      storage.Storage
	metadata   *metadata.SampleMetadata
	signatures *signature.Index
	scorer     Scorer
	lock       sync.RWMutex
	deleted    bool
}

func paramsFor(cfg *config.Config) (storage.Params, bloom.HashFamily, error) {
	if err := cfg.Validate(); err != nil {
		return storage.Params{}, 0, err
	}
	family, err := cfg.Family()
	if err != nil {
		return storage.Params{}, 0, err
	}
	return storage.Params{K: cfg.K, M: cfg.M, H: cfg.H, HashFamily: family.String()}, family, nil
}

// Bloom builds the Bloom filter of one sample from its sequences, using the index parameters
func Bloom(cfg *config.Config, sequences ...[]byte) (*bloom.BloomFilter, error) {
	_, family, err := paramsFor(cfg)
	if err != nil {
		return nil, err
	}
	return bloom.FromSequences(cfg.M, cfg.H, cfg.K, family, sequences...)
}

// Build writes a new index from one bloom bit array per sample, replacing anything already
// stored at the configured location, and returns it opened
func Build(cfg *config.Config, blooms []*bitset.BitSet, samples []string) (*Index, error) {
	p, _, err := paramsFor(cfg)
	if err != nil {
		return nil, err
	}
	if len(blooms) != len(samples) {
		return nil, errors.Wrapf(ErrArgumentCountMismatch, "%d bloom filters, %d samples", len(blooms), len(samples))
	}
	if err := metadata.ValidateNames(samples); err != nil {
		return nil, err
	}
	for i, b := range blooms {
		if b.Len() != cfg.M {
			return nil, errors.Wrapf(ErrShapeMismatch, "bloom filter for %q holds %d bits, expected %d", samples[i], b.Len(), cfg.M)
		}
	}
	log.Infof("building index of %d samples with %d rows", len(samples), cfg.M)
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := writeIndex(store, p, blooms, samples, cfg.LowMem); err != nil {
		store.Close()
		return nil, err
	}
	// the store is closed and reopened so file locks are released first
	if err := store.Close(); err != nil {
		return nil, err
	}
	log.Infof("built index of %d samples", len(samples))
	return Open(cfg)
}

// writeIndex replaces the matrix, parameters and sample records of store in one update,
// a failed update leaves the previous contents in place
func writeIndex(store storage.Storage, p storage.Params, blooms []*bitset.BitSet, samples []string, lowMem bool) error {
	sm, err := metadata.New(store)
	if err != nil {
		return err
	}
	return store.Update(func(tx storage.Tx) error {
		if err := signature.Create(tx, p, blooms, lowMem); err != nil {
			return err
		}
		_, err := sm.Stage(tx, samples)
		return err
	})
}

// Open opens the index at the configured location, an empty location is initialised.
// The config must match the parameters the index was built with.
func Open(cfg *config.Config) (*Index, error) {
	p, family, err := paramsFor(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	stored, ok, err := store.Params()
	if err != nil {
		store.Close()
		return nil, err
	}
	if ok && stored != p {
		store.Close()
		return nil, errors.Wrapf(ErrConfigMismatch, "stored k=%d m=%d h=%d %s, config k=%d m=%d h=%d %s",
			stored.K, stored.M, stored.H, stored.HashFamily, p.K, p.M, p.H, p.HashFamily)
	}
	if !ok {
		if err := store.Update(func(tx storage.Tx) error { return tx.Init(p, 0) }); err != nil {
			store.Close()
			return nil, err
		}
	}
	sm, err := metadata.New(store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Index{
		cfg:        *cfg,
		params:     p,
		family:     family,
		store:      store,
		metadata:   sm,
		signatures: signature.New(store, cfg.M, cfg.H, family),
		scorer:     &CoverageScorer{K: int(cfg.K)},
	}, nil
}

// Config returns a copy of the config the index was opened with
func (idx *Index) Config() config.Config {
	return idx.cfg
}

// SetScorer replaces the scorer used by searches with score set
func (idx *Index) SetScorer(s Scorer) {
	idx.lock.Lock()
	idx.scorer = s
	idx.lock.Unlock()
}

// Samples returns the live sample names in colour order, as last committed by any handle
func (idx *Index) Samples() []string {
	if err := idx.metadata.Load(); err != nil {
		log.Warningf("could not refresh sample records: %v", err)
	}
	return idx.metadata.Samples()
}

// Close is a method to release the storage, it must be called before reopening a file index
func (idx *Index) Close() error {
	idx.lock.Lock()
	defer idx.lock.Unlock()
	return idx.store.Close()
}

// Insert adds one sample to an existing index as the next colour.
// The row extension and the sample record commit together.
func (idx *Index) Insert(b *bitset.BitSet, sample string) error {
	idx.lock.Lock()
	defer idx.lock.Unlock()
	if idx.deleted {
		return ErrIndexDeleted
	}
	log.Warning("build and merge is preferable to insert in most cases")
	if b.Len() != idx.cfg.M {
		return errors.Wrapf(ErrShapeMismatch, "bloom filter holds %d bits, expected %d", b.Len(), idx.cfg.M)
	}
	err := idx.store.Update(func(tx storage.Tx) error {
		colour := tx.NumColours()
		if tx.NumSamples() != colour {
			return errors.Wrapf(ErrShapeMismatch, "%d sample records for %d colours", tx.NumSamples(), colour)
		}
		if _, err := idx.metadata.Stage(tx, []string{sample}); err != nil {
			return err
		}
		return signature.InsertBloom(tx, b, colour)
	})
	if err != nil {
		return err
	}
	return idx.metadata.Load()
}

// InsertFilter is Insert for a bloom filter, its parameters must match the index
func (idx *Index) InsertFilter(bf *bloom.BloomFilter, sample string) error {
	if bf.M() != idx.cfg.M || bf.H() != idx.cfg.H || bf.Family() != idx.family {
		return errors.Wrapf(ErrConfigMismatch, "bloom filter m=%d h=%d %s", bf.M(), bf.H(), bf.Family())
	}
	return idx.Insert(bf.BitArray(), sample)
}

// Delete irreversibly removes all rows and samples, calling it again is a no-op
func (idx *Index) Delete() error {
	idx.lock.Lock()
	defer idx.lock.Unlock()
	if idx.deleted {
		return nil
	}
	if err := idx.store.DeleteAll(); err != nil {
		return err
	}
	idx.deleted = true
	log.Info("deleted index")
	return idx.metadata.Load()
}

// DeleteSample tombstones one sample, its colour stays allocated but is never reported
func (idx *Index) DeleteSample(sample string) error {
	idx.lock.Lock()
	defer idx.lock.Unlock()
	if idx.deleted {
		return ErrIndexDeleted
	}
	return idx.metadata.DeleteSample(sample)
}

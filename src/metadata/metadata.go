// Package metadata maps colours (signature matrix columns) to sample names.
//
// Colours are 0-based and never reused: deleting a sample overwrites its
// record with a tombstone, which keeps the colour numbering of every later
// sample intact.
package metadata

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"
	logging "github.com/shenwei356/go-logging"

	"github.com/will-rowe/bigsi/src/storage"
)

var log = logging.MustGetLogger("bigsi/metadata")

// Tombstone replaces the name of a deleted sample
const Tombstone = "DELETED"

var (
	// ErrDuplicateSample is returned when adding a name that is already live, or twice in one batch
	ErrDuplicateSample = errors.New("sample name already exists")

	// ErrNotFound is returned for unknown or deleted samples and colours
	ErrNotFound = errors.New("sample not found")

	// ErrInvalidSampleName is returned for empty names and the tombstone marker
	ErrInvalidSampleName = errors.New("invalid sample name")
)

// SampleMetadata is a cached view of the sample records held by a storage backend
type SampleMetadata struct {
	store      storage.Storage
	lock       sync.RWMutex
	samples    []string
	colours    map[string]uint
	tombstones *roaring.Bitmap
}

// New loads the sample records of a store
func New(store storage.Storage) (*SampleMetadata, error) {
	sm := &SampleMetadata{store: store}
	if err := sm.Load(); err != nil {
		return nil, err
	}
	return sm, nil
}

// Load is a method to refresh the cache from storage, call it after committing staged records
func (sm *SampleMetadata) Load() error {
	samples, err := sm.store.Samples()
	if err != nil {
		return err
	}
	colours := make(map[string]uint, len(samples))
	tombstones := roaring.New()
	for colour, name := range samples {
		if name == Tombstone {
			tombstones.Add(uint32(colour))
			continue
		}
		colours[name] = uint(colour)
	}
	sm.lock.Lock()
	sm.samples, sm.colours, sm.tombstones = samples, colours, tombstones
	sm.lock.Unlock()
	return nil
}

// ValidateNames checks a batch on its own: no empty names, no tombstone marker, no repeats
func ValidateNames(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" || name == Tombstone {
			return errors.Wrapf(ErrInvalidSampleName, "%q", name)
		}
		if _, ok := seen[name]; ok {
			return errors.Wrapf(ErrDuplicateSample, "%q is repeated in the batch", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Stage validates the whole batch against the records visible in tx and then records the names
// as the next colours of tx. Names are checked against the records in tx, never the cache.
func (sm *SampleMetadata) Stage(tx storage.Tx, names []string) ([]uint, error) {
	if err := ValidateNames(names); err != nil {
		return nil, err
	}
	records, err := tx.Samples()
	if err != nil {
		return nil, err
	}
	live := make(map[string]struct{}, len(records))
	for _, name := range records {
		if name != Tombstone {
			live[name] = struct{}{}
		}
	}
	for _, name := range names {
		if _, ok := live[name]; ok {
			return nil, errors.Wrapf(ErrDuplicateSample, "%q", name)
		}
	}
	colours := make([]uint, len(names))
	next := uint(len(records))
	for i, name := range names {
		colour := next + uint(i)
		if err := tx.PutSample(colour, name); err != nil {
			return nil, err
		}
		colours[i] = colour
	}
	return colours, nil
}

// AddSample records a single sample and returns its colour
func (sm *SampleMetadata) AddSample(name string) (uint, error) {
	colours, err := sm.AddSamples([]string{name})
	if err != nil {
		return 0, err
	}
	return colours[0], nil
}

// AddSamples records a batch of samples in one transaction, either all of them or none
func (sm *SampleMetadata) AddSamples(names []string) ([]uint, error) {
	var colours []uint
	err := sm.store.Update(func(tx storage.Tx) error {
		var err error
		colours, err = sm.Stage(tx, names)
		return err
	})
	if err != nil {
		return nil, err
	}
	return colours, sm.Load()
}

// DeleteSample tombstones a sample, its colour is not reused
func (sm *SampleMetadata) DeleteSample(name string) error {
	var colour uint
	err := sm.store.Update(func(tx storage.Tx) error {
		records, err := tx.Samples()
		if err != nil {
			return err
		}
		for c, record := range records {
			if record == name && name != Tombstone {
				colour = uint(c)
				return tx.PutSample(colour, Tombstone)
			}
		}
		return errors.Wrapf(ErrNotFound, "%q", name)
	})
	if err != nil {
		return err
	}
	log.Debugf("tombstoned sample %q (colour %d)", name, colour)
	return sm.Load()
}

// ColourToSample returns the live sample name for a colour
func (sm *SampleMetadata) ColourToSample(colour uint) (string, error) {
	sm.lock.RLock()
	defer sm.lock.RUnlock()
	if colour >= uint(len(sm.samples)) || sm.samples[colour] == Tombstone {
		return "", errors.Wrapf(ErrNotFound, "colour %d", colour)
	}
	return sm.samples[colour], nil
}

// SampleToColour returns the colour of a live sample
func (sm *SampleMetadata) SampleToColour(name string) (uint, error) {
	sm.lock.RLock()
	defer sm.lock.RUnlock()
	colour, ok := sm.colours[name]
	if !ok {
		return 0, errors.Wrapf(ErrNotFound, "%q", name)
	}
	return colour, nil
}

// ColoursToSamples names the colours of a set, tombstoned and unknown colours are left out
func (sm *SampleMetadata) ColoursToSamples(colours *roaring.Bitmap) map[uint32]string {
	sm.lock.RLock()
	defer sm.lock.RUnlock()
	names := make(map[uint32]string, colours.GetCardinality())
	it := colours.Iterator()
	for it.HasNext() {
		colour := it.Next()
		if colour >= uint32(len(sm.samples)) || sm.samples[colour] == Tombstone {
			continue
		}
		names[colour] = sm.samples[colour]
	}
	return names
}

// NumColours returns the number of colours ever issued, tombstones included
func (sm *SampleMetadata) NumColours() uint {
	sm.lock.RLock()
	defer sm.lock.RUnlock()
	return uint(len(sm.samples))
}

// Samples returns the live sample names in colour order
func (sm *SampleMetadata) Samples() []string {
	sm.lock.RLock()
	defer sm.lock.RUnlock()
	live := make([]string, 0, len(sm.colours))
	for _, name := range sm.samples {
		if name != Tombstone {
			live = append(live, name)
		}
	}
	return live
}

// Tombstones returns the set of deleted colours
func (sm *SampleMetadata) Tombstones() *roaring.Bitmap {
	sm.lock.RLock()
	defer sm.lock.RUnlock()
	return sm.tombstones.Clone()
}

package bigsi

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/will-rowe/bigsi/src/metadata"
	"github.com/will-rowe/bigsi/src/storage"
)

// DuplicateSuffix is appended to sample names of a merged index which already exist
const DuplicateSuffix = "_duplicate_in_merge"

// Merge appends every colour of other to this index. Both must share k, m, h and hash family.
// Sample names already present are renamed with DuplicateSuffix; deleted samples stay deleted.
func (idx *Index) Merge(other *Index) error {
	if other == idx {
		return errors.New("cannot merge an index into itself")
	}
	idx.lock.Lock()
	defer idx.lock.Unlock()
	other.lock.RLock()
	defer other.lock.RUnlock()
	if idx.deleted || other.deleted {
		return ErrIndexDeleted
	}
	if idx.params != other.params {
		return errors.Wrapf(ErrConfigMismatch, "cannot merge k=%d m=%d h=%d %s into k=%d m=%d h=%d %s",
			other.params.K, other.params.M, other.params.H, other.params.HashFamily,
			idx.params.K, idx.params.M, idx.params.H, idx.params.HashFamily)
	}

	ours, err := idx.signatures.AllRows()
	if err != nil {
		return err
	}
	theirs, err := other.signatures.AllRows()
	if err != nil {
		return err
	}
	ourSamples, err := idx.store.Samples()
	if err != nil {
		return err
	}
	theirSamples, err := other.store.Samples()
	if err != nil {
		return err
	}
	n1, n2 := uint(len(ourSamples)), uint(len(theirSamples))
	if len(ours) > 0 && ours[0].Len() != n1 || len(theirs) > 0 && theirs[0].Len() != n2 {
		return errors.Wrap(ErrShapeMismatch, "sample records do not match the colour count")
	}

	taken := make(map[string]struct{}, n1+n2)
	for _, name := range ourSamples {
		taken[name] = struct{}{}
	}
	merged := append([]string{}, ourSamples...)
	for _, name := range theirSamples {
		if name != metadata.Tombstone {
			for {
				if _, ok := taken[name]; !ok {
					break
				}
				log.Warningf("sample %q already exists, renaming to %q", name, name+DuplicateSuffix)
				name += DuplicateSuffix
			}
			taken[name] = struct{}{}
		}
		merged = append(merged, name)
	}

	buffer := make([]uint, 256)
	err = idx.store.Update(func(tx storage.Tx) error {
		if err := tx.Init(idx.params, n1+n2); err != nil {
			return err
		}
		row := bitset.New(n1 + n2)
		for i := range ours {
			row.ClearAll()
			for j, set := ours[i].NextSetMany(0, buffer); len(set) > 0; j, set = ours[i].NextSetMany(j+1, buffer) {
				for _, c := range set {
					row.Set(c)
				}
			}
			for j, set := theirs[i].NextSetMany(0, buffer); len(set) > 0; j, set = theirs[i].NextSetMany(j+1, buffer) {
				for _, c := range set {
					row.Set(n1 + c)
				}
			}
			if row.None() {
				continue
			}
			if err := tx.SetRow(uint(i), row); err != nil {
				return err
			}
		}
		for colour, name := range merged {
			if err := tx.PutSample(uint(colour), name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Infof("merged %d colours into index, now %d colours", n2, n1+n2)
	return idx.metadata.Load()
}

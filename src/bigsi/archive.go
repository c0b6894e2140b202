package bigsi

import (
	"github.com/pkg/errors"

	"github.com/will-rowe/bigsi/src/config"
	"github.com/will-rowe/bigsi/src/storage"
)

// Export writes the signature matrix and sample records to an archive, the format follows the
// extension of dest (e.g. .tar.gz or .zip)
func (idx *Index) Export(dest string) error {
	idx.lock.RLock()
	defer idx.lock.RUnlock()
	if idx.deleted {
		return ErrIndexDeleted
	}
	return storage.Export(idx.store, dest)
}

// Import replaces whatever is stored at the configured location with an exported index and returns it opened.
// The archive must have been exported from an index with the same k, m, h and hash family.
func Import(cfg *config.Config, src string) (*Index, error) {
	p, _, err := paramsFor(cfg)
	if err != nil {
		return nil, err
	}
	staging := storage.NewMemory()
	defer staging.Close()
	if err := storage.Import(staging, src); err != nil {
		return nil, err
	}
	archived, _, err := staging.Params()
	if err != nil {
		return nil, err
	}
	if archived != p {
		return nil, errors.Wrapf(ErrConfigMismatch, "archive holds k=%d m=%d h=%d %s, config k=%d m=%d h=%d %s",
			archived.K, archived.M, archived.H, archived.HashFamily, p.K, p.M, p.H, p.HashFamily)
	}
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := storage.Copy(store, staging); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.Close(); err != nil {
		return nil, err
	}
	return Open(cfg)
}

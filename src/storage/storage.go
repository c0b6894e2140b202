// Package storage holds the transposed signature matrix: one row per Bloom filter
// bit position, one column ("colour") per sample, plus the colour to sample name records.
//
// Rows and sample records are written through a Tx inside Storage.Update, so a
// row extension and the registration of the sample that owns the new column
// commit together. Readers see either the state before or after an Update in
// full, never rows of differing lengths.
package storage

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	logging "github.com/shenwei356/go-logging"

	"github.com/will-rowe/bigsi/src/config"
)

var log = logging.MustGetLogger("bigsi/storage")

var (
	// ErrShapeMismatch is returned when a row or column length disagrees with the matrix
	ErrShapeMismatch = errors.New("signature matrix shape mismatch")

	// ErrStorageUnavailable marks I/O failures surfaced by a backend
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrLocked is returned when another handle holds the exclusive lock on a location
	ErrLocked = errors.New("storage location is locked by another handle")

	// ErrClosed is returned when using a handle after Close
	ErrClosed = errors.New("storage handle is closed")

	// ErrUnknownBackend is returned by Open for unsupported backend names
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Error wraps a backend I/O failure, it matches ErrStorageUnavailable with errors.Is
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err)
}

// Unwrap returns the backend error
func (e *Error) Unwrap() error { return e.Err }

// Is reports ErrStorageUnavailable as a match
func (e *Error) Is(target error) bool { return target == ErrStorageUnavailable }

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Params are the index parameters the rows were written with
type Params struct {
	K          uint
	M          uint
	H          uint
	HashFamily string
}

// Tx stages writes which become visible together when Update returns
type Tx interface {
	// Init resets the matrix to p.M all-zero rows of numColours bits and clears all sample records
	Init(p Params, numColours uint) error

	// SetRow replaces row i, the row must be exactly numColours bits long
	SetRow(i uint, row *bitset.BitSet) error

	// ExtendRows appends one colour: column bit i is appended to row i
	ExtendRows(column *bitset.BitSet) error

	// PutSample records the name of a colour, colours must be added without gaps
	PutSample(colour uint, name string) error

	// NumColours returns the colour count including writes staged so far
	NumColours() uint

	// NumSamples returns the sample record count including writes staged so far
	NumSamples() uint

	// Samples returns the sample records indexed by colour, including writes staged so far
	Samples() ([]string, error)
}

// Storage is the capability set every backend provides
type Storage interface {
	// Update runs fn in an exclusive write section and commits its writes atomically.
	// Nothing is committed if fn returns an error.
	Update(fn func(Tx) error) error

	// ReadRows returns the rows for the indices, in order and with duplicates kept.
	// All rows come from one consistent snapshot; they must not be modified.
	ReadRows(indices []uint) ([]*bitset.BitSet, error)

	NumRows() (uint, error)
	NumColours() (uint, error)

	// Samples returns the sample name of every colour, indexed by colour
	Samples() ([]string, error)

	// Params returns the stored index parameters, ok is false for an empty store
	Params() (p Params, ok bool, err error)

	// DeleteAll irreversibly clears rows, parameters and sample records
	DeleteAll() error

	// Close releases exclusive resources so the location can be reopened straight away
	Close() error
}

// WriteRows resets the matrix and writes every row, all rows are checked before anything is staged
func WriteRows(tx Tx, p Params, rows []*bitset.BitSet, numColours uint) error {
	if uint(len(rows)) != p.M {
		return errors.Wrapf(ErrShapeMismatch, "got %d rows for a matrix of %d rows", len(rows), p.M)
	}
	for i, row := range rows {
		if row.Len() != numColours {
			return errors.Wrapf(ErrShapeMismatch, "row %d holds %d bits, expected %d", i, row.Len(), numColours)
		}
	}
	if err := tx.Init(p, numColours); err != nil {
		return err
	}
	for i, row := range rows {
		if err := tx.SetRow(uint(i), row); err != nil {
			return err
		}
	}
	return nil
}

// Open is the factory that selects a backend from the storage config
func Open(cfg config.StorageConfig) (Storage, error) {
	log.Debugf("opening %s storage", cfg.Backend)
	switch cfg.Backend {
	case config.BackendMemory:
		return OpenMemory(cfg.Path), nil
	case config.BackendFile:
		return OpenFile(cfg.Path)
	case config.BackendRedis:
		return OpenRedis(cfg.RedisAddrs, cfg.RedisDB, cfg.RedisPrefix)
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", cfg.Backend)
	}
}

package storage

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"gopkg.in/vmihailenco/msgpack.v2"
)

const (
	lockFile     = "LOCK"
	snapshotFile = "signatures.msgpack.zst"

	snapshotVersion uint8 = 1
)

// fileSnapshot is the on-disk layout of a matrix
type fileSnapshot struct {
	Version   uint8
	Params    Params
	HasParams bool
	Colours   uint64
	Rows      [][]uint64
	Samples   []string
}

// File is a directory backend: an exclusive flock on LOCK plus a
// zstd-compressed msgpack snapshot that is replaced by rename on every commit
type File struct {
	dir      string
	lockFH   *os.File
	core     *core
	closeMux sync.Mutex
	closed   bool
}

// OpenFile opens (creating if needed) a file store and takes its exclusive lock
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, unavailable("create directory", err)
	}
	fh, err := os.OpenFile(filepath.Join(dir, lockFile), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, unavailable("open lock file", err)
	}
	if err := unix.Flock(int(fh.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		fh.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errors.Wrap(ErrLocked, dir)
		}
		return nil, unavailable("lock", err)
	}
	f := &File{dir: dir, lockFH: fh}
	state, err := f.load()
	if err != nil {
		f.release()
		return nil, err
	}
	f.core = newCore(state, f.persist)
	log.Debugf("opened file storage at %s (%d colours)", dir, state.colours)
	return f, nil
}

func (f *File) snapshotPath() string {
	return filepath.Join(f.dir, snapshotFile)
}

func (f *File) load() (*matrix, error) {
	fh, err := os.Open(f.snapshotPath())
	if os.IsNotExist(err) {
		return emptyMatrix(), nil
	}
	if err != nil {
		return nil, unavailable("open snapshot", err)
	}
	defer fh.Close()
	zr, err := zstd.NewReader(bufio.NewReader(fh))
	if err != nil {
		return nil, unavailable("read snapshot", err)
	}
	defer zr.Close()
	snap := &fileSnapshot{}
	if err := msgpack.NewDecoder(zr).Decode(snap); err != nil {
		return nil, unavailable("decode snapshot", err)
	}
	if snap.Version != snapshotVersion {
		return nil, unavailable("decode snapshot", errors.Errorf("unsupported snapshot version %d", snap.Version))
	}
	mx := &matrix{
		params:    snap.Params,
		hasParams: snap.HasParams,
		colours:   uint(snap.Colours),
		rows:      make([]*bitset.BitSet, len(snap.Rows)),
		samples:   snap.Samples,
	}
	for i, words := range snap.Rows {
		if len(words) != 0 {
			mx.rows[i] = bitset.FromWithLength(mx.colours, words)
		}
	}
	return mx, nil
}

func (f *File) persist(mx *matrix) error {
	snap := &fileSnapshot{
		Version:   snapshotVersion,
		Params:    mx.params,
		HasParams: mx.hasParams,
		Colours:   uint64(mx.colours),
		Rows:      make([][]uint64, len(mx.rows)),
		Samples:   mx.samples,
	}
	for i, row := range mx.rows {
		if row != nil && row.Any() {
			snap.Rows[i] = row.Words()
		}
	}
	tmp, err := os.CreateTemp(f.dir, snapshotFile+".*.tmp")
	if err != nil {
		return unavailable("create snapshot", err)
	}
	fail := func(op string, err error) error {
		tmp.Close()
		os.Remove(tmp.Name())
		return unavailable(op, err)
	}
	bw := bufio.NewWriter(tmp)
	zw, err := zstd.NewWriter(bw)
	if err != nil {
		return fail("compress snapshot", err)
	}
	if err := msgpack.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return fail("encode snapshot", err)
	}
	if err := zw.Close(); err != nil {
		return fail("compress snapshot", err)
	}
	if err := bw.Flush(); err != nil {
		return fail("write snapshot", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return unavailable("close snapshot", err)
	}
	if err := os.Rename(tmp.Name(), f.snapshotPath()); err != nil {
		os.Remove(tmp.Name())
		return unavailable("replace snapshot", err)
	}
	return nil
}

func (f *File) isClosed() bool {
	f.closeMux.Lock()
	defer f.closeMux.Unlock()
	return f.closed
}

// Update is a method to run a write transaction, the snapshot is on disk before Update returns
func (f *File) Update(fn func(Tx) error) error {
	if f.isClosed() {
		return ErrClosed
	}
	return f.core.update(fn)
}

// ReadRows is a method to read rows from one snapshot
func (f *File) ReadRows(indices []uint) ([]*bitset.BitSet, error) {
	if f.isClosed() {
		return nil, ErrClosed
	}
	return f.core.snapshot().readRows(indices)
}

// NumRows returns the number of rows
func (f *File) NumRows() (uint, error) {
	if f.isClosed() {
		return 0, ErrClosed
	}
	return uint(len(f.core.snapshot().rows)), nil
}

// NumColours returns the row length
func (f *File) NumColours() (uint, error) {
	if f.isClosed() {
		return 0, ErrClosed
	}
	return f.core.snapshot().colours, nil
}

// Samples returns the sample records indexed by colour
func (f *File) Samples() ([]string, error) {
	if f.isClosed() {
		return nil, ErrClosed
	}
	return f.core.samples(), nil
}

// Params returns the stored index parameters
func (f *File) Params() (Params, bool, error) {
	if f.isClosed() {
		return Params{}, false, ErrClosed
	}
	p, ok := f.core.params()
	return p, ok, nil
}

// DeleteAll is a method to clear the store and remove its snapshot
func (f *File) DeleteAll() error {
	if f.isClosed() {
		return ErrClosed
	}
	f.core.writer.Lock()
	defer f.core.writer.Unlock()
	if err := os.Remove(f.snapshotPath()); err != nil && !os.IsNotExist(err) {
		return unavailable("remove snapshot", err)
	}
	f.core.lock.Lock()
	f.core.state = emptyMatrix()
	f.core.lock.Unlock()
	return nil
}

// Close is a method to release the lock, calling it twice is fine
func (f *File) Close() error {
	f.closeMux.Lock()
	defer f.closeMux.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	log.Debugf("closing file storage at %s", f.dir)
	return f.release()
}

func (f *File) release() error {
	if err := unix.Flock(int(f.lockFH.Fd()), unix.LOCK_UN); err != nil {
		f.lockFH.Close()
		return unavailable("unlock", err)
	}
	return unavailable("close lock file", f.lockFH.Close())
}

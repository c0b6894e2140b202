package storage

import (
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
)

// registry keeps memory stores alive between handles so a location can be reopened
var registry = struct {
	sync.Mutex
	stores map[string]*core
}{stores: make(map[string]*core)}

// Memory is a process-local backend, handles opened on the same name share state
type Memory struct {
	name   string
	core   *core
	closed atomic.Bool
}

// OpenMemory returns a handle on the named in-memory store, creating it if needed
func OpenMemory(name string) *Memory {
	registry.Lock()
	defer registry.Unlock()
	c, ok := registry.stores[name]
	if !ok {
		c = newCore(nil, nil)
		registry.stores[name] = c
	}
	return &Memory{name: name, core: c}
}

// NewMemory returns a private in-memory store which is not registered under any name,
// it is freed with its last handle
func NewMemory() *Memory {
	return &Memory{core: newCore(nil, nil)}
}

// Update is a method to run a write transaction
func (s *Memory) Update(fn func(Tx) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.core.update(fn)
}

// ReadRows is a method to read rows from one snapshot
func (s *Memory) ReadRows(indices []uint) ([]*bitset.BitSet, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.core.snapshot().readRows(indices)
}

// NumRows returns the number of rows
func (s *Memory) NumRows() (uint, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	return uint(len(s.core.snapshot().rows)), nil
}

// NumColours returns the row length
func (s *Memory) NumColours() (uint, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	return s.core.snapshot().colours, nil
}

// Samples returns the sample records indexed by colour
func (s *Memory) Samples() ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.core.samples(), nil
}

// Params returns the stored index parameters
func (s *Memory) Params() (Params, bool, error) {
	if s.closed.Load() {
		return Params{}, false, ErrClosed
	}
	p, ok := s.core.params()
	return p, ok, nil
}

// DeleteAll is a method to clear the store
func (s *Memory) DeleteAll() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.core.deleteAll()
}

// Close is a method to close the handle, the store itself stays in the registry
func (s *Memory) Close() error {
	s.closed.Store(true)
	return nil
}

package storage

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
)

// matrix is an immutable snapshot of the stored state.
// A nil row is an all-zero row of colours bits.
type matrix struct {
	params    Params
	hasParams bool
	colours   uint
	rows      []*bitset.BitSet
	samples   []string
}

func emptyMatrix() *matrix {
	return &matrix{}
}

func (mx *matrix) row(i uint) *bitset.BitSet {
	if mx.rows[i] == nil {
		return bitset.New(mx.colours)
	}
	return mx.rows[i]
}

func (mx *matrix) readRows(indices []uint) ([]*bitset.BitSet, error) {
	out := make([]*bitset.BitSet, len(indices))
	for j, i := range indices {
		if i >= uint(len(mx.rows)) {
			return nil, errors.Wrapf(ErrShapeMismatch, "row %d out of range [0, %d)", i, len(mx.rows))
		}
		out[j] = mx.row(i)
	}
	return out, nil
}

// stagedTx builds the next snapshot copy-on-write; the base snapshot is never modified
type stagedTx struct {
	next  *matrix
	owned []bool
}

func newStagedTx(base *matrix) *stagedTx {
	next := &matrix{
		params:    base.params,
		hasParams: base.hasParams,
		colours:   base.colours,
		rows:      make([]*bitset.BitSet, len(base.rows)),
		samples:   make([]string, len(base.samples)),
	}
	copy(next.rows, base.rows)
	copy(next.samples, base.samples)
	return &stagedTx{next: next, owned: make([]bool, len(base.rows))}
}

func (tx *stagedTx) Init(p Params, numColours uint) error {
	tx.next = &matrix{
		params:    p,
		hasParams: true,
		colours:   numColours,
		rows:      make([]*bitset.BitSet, p.M),
	}
	tx.owned = make([]bool, p.M)
	return nil
}

func (tx *stagedTx) SetRow(i uint, row *bitset.BitSet) error {
	if i >= uint(len(tx.next.rows)) {
		return errors.Wrapf(ErrShapeMismatch, "row %d out of range [0, %d)", i, len(tx.next.rows))
	}
	if row.Len() != tx.next.colours {
		return errors.Wrapf(ErrShapeMismatch, "row %d holds %d bits, expected %d", i, row.Len(), tx.next.colours)
	}
	tx.next.rows[i] = row.Clone()
	tx.owned[i] = true
	return nil
}

func (tx *stagedTx) ExtendRows(column *bitset.BitSet) error {
	if !tx.next.hasParams {
		return errors.Wrap(ErrShapeMismatch, "matrix has not been initialised")
	}
	if column.Len() != uint(len(tx.next.rows)) {
		return errors.Wrapf(ErrShapeMismatch, "column holds %d bits, matrix has %d rows", column.Len(), len(tx.next.rows))
	}
	n := tx.next.colours
	for i, row := range tx.next.rows {
		bit := column.Test(uint(i))
		if row == nil {
			if !bit {
				continue
			}
			row = bitset.New(n + 1)
			tx.next.rows[i] = row
			tx.owned[i] = true
		} else if !tx.owned[i] {
			row = row.Clone()
			tx.next.rows[i] = row
			tx.owned[i] = true
		}
		// Set grows the row to n+1 bits
		row.Set(n)
		if !bit {
			row.Clear(n)
		}
	}
	tx.next.colours = n + 1
	return nil
}

func (tx *stagedTx) PutSample(colour uint, name string) error {
	switch {
	case colour < uint(len(tx.next.samples)):
		tx.next.samples[colour] = name
	case colour == uint(len(tx.next.samples)):
		tx.next.samples = append(tx.next.samples, name)
	default:
		return errors.Wrapf(ErrShapeMismatch, "sample colour %d leaves a gap after %d records", colour, len(tx.next.samples))
	}
	return nil
}

func (tx *stagedTx) NumColours() uint { return tx.next.colours }

func (tx *stagedTx) NumSamples() uint { return uint(len(tx.next.samples)) }

func (tx *stagedTx) Samples() ([]string, error) {
	out := make([]string, len(tx.next.samples))
	copy(out, tx.next.samples)
	return out, nil
}

// core is the snapshot-swapping state shared by the memory and file backends.
// persist, when set, runs before the swap so a failed write leaves the old snapshot in place.
type core struct {
	writer  sync.Mutex
	lock    sync.RWMutex
	state   *matrix
	persist func(*matrix) error
}

func newCore(state *matrix, persist func(*matrix) error) *core {
	if state == nil {
		state = emptyMatrix()
	}
	return &core{state: state, persist: persist}
}

func (c *core) snapshot() *matrix {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.state
}

func (c *core) swap(next *matrix) error {
	if c.persist != nil {
		if err := c.persist(next); err != nil {
			return err
		}
	}
	c.lock.Lock()
	c.state = next
	c.lock.Unlock()
	return nil
}

func (c *core) update(fn func(Tx) error) error {
	c.writer.Lock()
	defer c.writer.Unlock()
	tx := newStagedTx(c.snapshot())
	if err := fn(tx); err != nil {
		return err
	}
	return c.swap(tx.next)
}

func (c *core) deleteAll() error {
	c.writer.Lock()
	defer c.writer.Unlock()
	return c.swap(emptyMatrix())
}

func (c *core) params() (Params, bool) {
	s := c.snapshot()
	return s.params, s.hasParams
}

func (c *core) samples() []string {
	s := c.snapshot()
	out := make([]string, len(s.samples))
	copy(out, s.samples)
	return out
}

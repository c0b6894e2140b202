package bloom

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	"gopkg.in/vmihailenco/msgpack.v2"
)

// Magic marks a serialised bloom filter
var Magic = [8]byte{'.', 'b', 'i', 'g', 's', 'i', 'b', 'f'}

// FormatVersion is bumped on incompatible changes to the file layout
const FormatVersion uint8 = 1

// ErrInvalidFileFormat means the stream is not a serialised bloom filter
var ErrInvalidFileFormat = errors.New("bloom filter: invalid binary format")

type header struct {
	Version uint8
	M       uint64
	H       uint64
	Family  uint8
}

// WriteTo writes the filter as magic, a length-prefixed msgpack header and the bit array
func (bf *BloomFilter) WriteTo(w io.Writer) (int64, error) {
	hdr, err := msgpack.Marshal(&header{
		Version: FormatVersion,
		M:       uint64(bf.m),
		H:       uint64(bf.h),
		Family:  uint8(bf.family),
	})
	if err != nil {
		return 0, err
	}
	var n int64
	if _, err := w.Write(Magic[:]); err != nil {
		return n, err
	}
	n += int64(len(Magic))
	if err := binary.Write(w, binary.BigEndian, uint32(len(hdr))); err != nil {
		return n, err
	}
	n += 4
	written, err := w.Write(hdr)
	n += int64(written)
	if err != nil {
		return n, err
	}
	bf.lock.RLock()
	defer bf.lock.RUnlock()
	m, err := bf.bits.WriteTo(w)
	return n + m, err
}

// ReadFrom replaces the filter with one read from a stream written by WriteTo
func (bf *BloomFilter) ReadFrom(r io.Reader) (int64, error) {
	var n int64
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return n, errors.Wrap(ErrInvalidFileFormat, err.Error())
	}
	n += int64(len(magic))
	if magic != Magic {
		return n, ErrInvalidFileFormat
	}
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return n, errors.Wrap(ErrInvalidFileFormat, err.Error())
	}
	n += 4
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return n, errors.Wrap(ErrInvalidFileFormat, err.Error())
	}
	n += int64(size)
	hdr := &header{}
	if err := msgpack.Unmarshal(buf, hdr); err != nil {
		return n, errors.Wrap(ErrInvalidFileFormat, err.Error())
	}
	if hdr.Version != FormatVersion {
		return n, errors.Wrapf(ErrInvalidFileFormat, "unsupported version %d", hdr.Version)
	}
	bits := &bitset.BitSet{}
	m, err := bits.ReadFrom(r)
	n += m
	if err != nil {
		return n, errors.Wrap(ErrInvalidFileFormat, err.Error())
	}
	if bits.Len() != uint(hdr.M) {
		return n, errors.Wrapf(ErrInvalidFileFormat, "bit array holds %d bits, header says %d", bits.Len(), hdr.M)
	}
	bf.lock.Lock()
	bf.m, bf.h, bf.family, bf.bits = uint(hdr.M), uint(hdr.H), HashFamily(hdr.Family), bits
	bf.lock.Unlock()
	return n, nil
}

// Dump is a method to dump the bloom filter to file
func (bf *BloomFilter) Dump(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(fh)
	if _, err := bf.WriteTo(w); err != nil {
		fh.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// Load is a method to load a bloom filter from file
func Load(path string) (*BloomFilter, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	bf := &BloomFilter{}
	if _, err := bf.ReadFrom(bufio.NewReader(fh)); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return bf, nil
}

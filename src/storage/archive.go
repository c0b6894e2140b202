package storage

import (
	"os"
	"path/filepath"

	"github.com/mholt/archiver"
	"github.com/pkg/errors"
)

// copyBatch is the number of rows read from the source per ReadRows call
const copyBatch = 1 << 16

// Copy replaces the contents of dst with the matrix and sample records of src in one update
func Copy(dst, src Storage) error {
	p, ok, err := src.Params()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("source storage holds no signature matrix")
	}
	numRows, err := src.NumRows()
	if err != nil {
		return err
	}
	numColours, err := src.NumColours()
	if err != nil {
		return err
	}
	samples, err := src.Samples()
	if err != nil {
		return err
	}
	if numRows != p.M {
		return errors.Wrapf(ErrShapeMismatch, "source holds %d rows, expected %d", numRows, p.M)
	}
	return dst.Update(func(tx Tx) error {
		if err := tx.Init(p, numColours); err != nil {
			return err
		}
		indices := make([]uint, 0, copyBatch)
		for start := uint(0); start < numRows; start += copyBatch {
			indices = indices[:0]
			for i := start; i < numRows && i < start+copyBatch; i++ {
				indices = append(indices, i)
			}
			rows, err := src.ReadRows(indices)
			if err != nil {
				return err
			}
			for j, row := range rows {
				if row.None() {
					continue
				}
				if err := tx.SetRow(indices[j], row); err != nil {
					return err
				}
			}
		}
		for colour, name := range samples {
			if err := tx.PutSample(uint(colour), name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Export writes the contents of src to an archive, the format is chosen by the extension of dest (e.g. .tar.gz or .zip)
func Export(src Storage, dest string) error {
	tmp, err := os.MkdirTemp("", "bigsi-export-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)
	snapshot, err := OpenFile(tmp)
	if err != nil {
		return err
	}
	if err := Copy(snapshot, src); err != nil {
		snapshot.Close()
		return err
	}
	if err := snapshot.Close(); err != nil {
		return err
	}
	if err := archiver.Archive([]string{filepath.Join(tmp, snapshotFile)}, dest); err != nil {
		return errors.Wrapf(err, "could not write archive %v", dest)
	}
	log.Infof("exported signature matrix to %v", dest)
	return nil
}

// Import replaces the contents of dst with an archive written by Export
func Import(dst Storage, src string) error {
	tmp, err := os.MkdirTemp("", "bigsi-import-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)
	if err := archiver.Unarchive(src, tmp); err != nil {
		return errors.Wrapf(err, "could not read archive %v", src)
	}
	if _, err := os.Stat(filepath.Join(tmp, snapshotFile)); err != nil {
		return errors.Errorf("archive %v holds no signature matrix", src)
	}
	snapshot, err := OpenFile(tmp)
	if err != nil {
		return err
	}
	defer snapshot.Close()
	if err := Copy(dst, snapshot); err != nil {
		return err
	}
	log.Infof("imported signature matrix from %v", src)
	return nil
}

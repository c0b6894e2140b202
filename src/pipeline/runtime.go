package pipeline

import (
	"bytes"
	"io"
	"os"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/will-rowe/bigsi/src/config"
)

// ManifestFile is the name of the manifest written alongside a directory of bloom filters
const ManifestFile = "manifest.toml"

// Info stores the runtime information
type Info struct {
	Version   string
	NumProc   int
	Profiling bool
	Config    *config.Config
	MinQual   int
	OutDir    string
	Estimate  bool

	// Progress receives a progress bar when set
	Progress io.Writer

	errLock sync.Mutex
	err     error
}

// Fail records the first error seen by any process, later processes drain their input once it is set
func (info *Info) Fail(err error) {
	if err == nil {
		return
	}
	info.errLock.Lock()
	defer info.errLock.Unlock()
	if info.err == nil {
		info.err = err
	}
}

// Err returns the first error recorded by Fail
func (info *Info) Err() error {
	info.errLock.Lock()
	defer info.errLock.Unlock()
	return info.err
}

// ManifestEntry records one bloom filter written by the pipeline
type ManifestEntry struct {
	Name  string `toml:"name"`
	Bloom string `toml:"bloom"`
	Kmers int    `toml:"kmers,omitempty"`
}

// Manifest lists the bloom filters held in an output directory and the parameters they were built with
type Manifest struct {
	Version    string          `toml:"version"`
	K          uint            `toml:"k"`
	M          uint            `toml:"m"`
	H          uint            `toml:"h"`
	HashFamily string          `toml:"hash_family"`
	Samples    []ManifestEntry `toml:"samples"`
}

// Dump is a method to dump the manifest to file
func (manifest *Manifest) Dump(path string) error {
	data, err := toml.Marshal(manifest)
	if err != nil {
		return errors.Wrap(err, "could not encode manifest")
	}
	return os.WriteFile(path, data, 0644)
}

// LoadManifest is a function to load a manifest from file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.Errorf("manifest appears empty: %v", path)
	}
	manifest := &Manifest{}
	if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(manifest); err != nil {
		return nil, errors.Wrapf(err, "could not decode manifest %v", path)
	}
	return manifest, nil
}

// Package config holds the parameters of a signature index and its storage backend.
//
// A Config is immutable for the lifetime of an index: rows written with one
// k, m, h or hash family are meaningless to queries hashed with another, so the
// same values must be supplied whenever an existing index is reopened.
package config

import (
	"bytes"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/will-rowe/bigsi/src/bloom"
	"github.com/will-rowe/bigsi/src/kmers"
)

// storage backends
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// query policies
const (
	PolicyPermissive = "permissive"
	PolicyStrict     = "strict"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid config")

// StorageConfig selects and parameterises a storage backend
type StorageConfig struct {
	Backend     string   `toml:"backend"`
	Path        string   `toml:"path,omitempty"`
	RedisAddrs  []string `toml:"redis_addrs,omitempty"`
	RedisPrefix string   `toml:"redis_prefix,omitempty"`
	RedisDB     int      `toml:"redis_db,omitempty"`
}

// Config is the fixed record supplied at build time and re-supplied on reopen
type Config struct {
	K              uint          `toml:"k"`
	M              uint          `toml:"m"`
	H              uint          `toml:"h"`
	LowMem         bool          `toml:"lowmem"`
	HashFamily     string        `toml:"hash_family"`
	MinUniqueKmers int           `toml:"min_unique_kmers"`
	QueryPolicy    string        `toml:"query_policy"`
	Storage        StorageConfig `toml:"storage"`
}

// Default returns the default config: k=31, m=25,000,000, h=3 on a file backend
func Default() *Config {
	return &Config{
		K:           31,
		M:           25000000,
		H:           3,
		HashFamily:  bloom.Murmur3.String(),
		QueryPolicy: PolicyPermissive,
		Storage: StorageConfig{
			Backend: BackendFile,
			Path:    "bigsi-db",
		},
	}
}

// Validate checks the config is usable
func (c *Config) Validate() error {
	if c.K == 0 || c.K > kmers.MaxK {
		return errors.Wrapf(ErrInvalidConfig, "k must be in [1, %d], got %d", kmers.MaxK, c.K)
	}
	if c.M == 0 {
		return errors.Wrap(ErrInvalidConfig, "m must be positive")
	}
	if c.H == 0 {
		return errors.Wrap(ErrInvalidConfig, "h must be positive")
	}
	if c.MinUniqueKmers < 0 {
		return errors.Wrap(ErrInvalidConfig, "min_unique_kmers must not be negative")
	}
	if _, err := c.Family(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	switch c.QueryPolicy {
	case "", PolicyPermissive, PolicyStrict:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown query policy %q", c.QueryPolicy)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.Path == "" {
			return errors.Wrap(ErrInvalidConfig, "file storage needs a path")
		}
	case BackendRedis:
		if len(c.Storage.RedisAddrs) == 0 {
			return errors.Wrap(ErrInvalidConfig, "redis storage needs at least one address")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// Family returns the parsed hash family
func (c *Config) Family() (bloom.HashFamily, error) {
	return bloom.ParseHashFamily(c.HashFamily)
}

// Strict reports whether too few unique query k-mers is an error rather than a warning
func (c *Config) Strict() bool {
	return c.QueryPolicy == PolicyStrict
}

// Dump is a method to write the config to a TOML file
func (c *Config) Dump(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads a TOML config file; fields missing from the file keep their defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses a TOML config
func LoadFromBytes(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "config appears empty")
	}
	c := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

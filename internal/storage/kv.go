package storage

import (
	"context"
	"errors"
)

// Common errors.
var (
	ErrKeyNotFound = errors.New("storage: key not found")
	ErrClosed      = errors.New("storage: kv engine closed")
)

// KV is an embedded key-value store. Implementations are safe for
// concurrent use.
type KV interface {
	// Get returns ErrKeyNotFound for a missing key.
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	// Scan visits keys with prefix in ascending order until fn returns false.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error
	// ScanReverse is Scan in descending order.
	ScanReverse(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error
	Stats(ctx context.Context) (*KVStats, error)
	Close() error
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// TotalSize is the total disk usage in bytes.
	TotalSize uint64
	// LSMSize is the LSM tree size.
	LSMSize uint64
	// ValueLogSize is the value log size.
	ValueLogSize uint64
	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64
	// GCRuns counts value log rewrites.
	GCRuns uint64
}

// KVConfig configures an embedded KV engine.
type KVConfig struct {
	// Dir is the storage directory. Ignored when InMemory is set.
	Dir string
	// InMemory keeps everything in RAM (tests, dry runs).
	InMemory bool
	// Badger holds engine tuning.
	Badger BadgerConfig
}

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic GC runs (default: 10m).
	GCInterval string
	// GCThreshold is the discard ratio that triggers a value log rewrite.
	GCThreshold float64
	// CacheSize is the block cache size in bytes.
	CacheSize int64
	// ValueLogFileSize is the max value log file size in bytes.
	ValueLogFileSize int64
	// NumMemtables is the number of memtables.
	NumMemtables int
	// SyncWrites fsyncs after each write.
	SyncWrites bool
}

// DefaultKVConfig returns the default KV configuration. Votes are small and
// infrequent, so the defaults are far below Badger's own.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       "10m",
		GCThreshold:      0.5,
		CacheSize:        16 << 20,
		ValueLogFileSize: 64 << 20,
		NumMemtables:     2,
		SyncWrites:       true,
	}
}

package token

import (
	"context"
	"fmt"
	"path/filepath"
)

// Storage backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// Backends lists every backend name Open understands.
var Backends = []string{BackendMemory, BackendFile, BackendSQLite, BackendPostgres, BackendBadger}

// OpenOptions selects and configures a storage backend.
type OpenOptions struct {
	// Backend is one of the Backend* constants. Empty means file.
	Backend string
	// DSN is the database path (sqlite) or connection string (postgres).
	DSN string
	// Dir is the data directory for file and badger backends.
	Dir string
	// EncryptionKey enables EncryptedStorage when non-empty.
	EncryptionKey []byte
}

// Open constructs the configured backend, wrapped with encryption when a
// key is set.
func Open(ctx context.Context, opts OpenOptions) (Storage, error) {
	dir := opts.Dir
	if dir == "" {
		dir = DefaultDataDir()
	}

	var (
		storage Storage
		err     error
	)
	switch opts.Backend {
	case BackendMemory:
		storage = NewMemoryStorage()
	case "", BackendFile:
		storage, err = NewFileStorage(dir)
	case BackendSQLite:
		dsn := opts.DSN
		if dsn == "" {
			dsn = filepath.Join(dir, "healthcal.db")
		}
		storage, err = OpenSQLStorage(ctx, DialectSQLite, dsn)
	case BackendPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN")
		}
		storage, err = OpenSQLStorage(ctx, DialectPostgres, opts.DSN)
	case BackendBadger:
		storage, err = OpenBadgerStorage(filepath.Join(dir, "badger"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if len(opts.EncryptionKey) > 0 {
		enc, err := NewEncryption(opts.EncryptionKey)
		if err != nil {
			_ = storage.Close()
			return nil, err
		}
		storage = NewEncryptedStorage(storage, enc)
	}
	return storage, nil
}

package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// BlobStore is content-addressed storage of opaque payloads on the local
// filesystem: a single directory, one file per blob, named by the
// lowercase hex of its SHA-256. There is no cross-file index; existence is
// the filename test. Grounded on the teacher's diskLRU (storage.go), but
// this store is canonical rather than a cache: no eviction, and writes go
// through a write-to-temp-then-os.Rename sequence for the rename-into-place
// atomicity spec.md §5 requires for idempotent concurrent writes to the
// same content hash.
type BlobStore struct {
	dir string
}

// NewBlobStore creates dir if absent and returns a store rooted there.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create blob dir: %v", ErrBlobIO, err)
	}
	return &BlobStore{dir: dir}, nil
}

func (bs *BlobStore) path(hash Hash) string {
	return filepath.Join(bs.dir, hex.EncodeToString(hash[:]))
}

// Store computes SHA-256 of data, writes it atomically under that name, and
// returns the hash. Re-storing identical bytes is idempotent: the temp file
// is written and renamed regardless of whether the target already exists,
// so two concurrent stores of the same content both succeed without
// corrupting each other or the reader.
func (bs *BlobStore) Store(data []byte) (Hash, error) {
	hash := sha256.Sum256(data)
	dst := bs.path(hash)

	tmp, err := os.CreateTemp(bs.dir, ".tmp-*")
	if err != nil {
		return hash, fmt.Errorf("%w: create temp blob: %v", ErrBlobIO, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return hash, fmt.Errorf("%w: write temp blob: %v", ErrBlobIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return hash, fmt.Errorf("%w: close temp blob: %v", ErrBlobIO, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return hash, fmt.Errorf("%w: rename blob into place: %v", ErrBlobIO, err)
	}
	return hash, nil
}

// Retrieve reads the file named after hash's hex encoding, or ErrNotFound.
func (bs *BlobStore) Retrieve(hash Hash) ([]byte, error) {
	data, err := os.ReadFile(bs.path(hash))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read blob: %v", ErrBlobIO, err)
	}
	return data, nil
}

// Has reports whether a blob named after hash exists, without reading it.
func (bs *BlobStore) Has(hash Hash) bool {
	_, err := os.Stat(bs.path(hash))
	return err == nil
}

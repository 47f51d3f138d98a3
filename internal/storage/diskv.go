package storage

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/peterbourgon/diskv/v3"
)

// DiskStore keeps each key as a file under basePath. The ':' separated segments
// of the key become directories, so byb:todos:2025-01-01 lands in byb/todos/.
type DiskStore struct {
	d *diskv.Diskv
}

func NewDiskStore(basePath string) *DiskStore {
	return &DiskStore{d: diskv.New(diskv.Options{
		BasePath:          basePath,
		AdvancedTransform: keyToPathTransform,
		InverseTransform:  pathToKeyTransform,
		CacheSizeMax:      1024 * 1024, // 1MB
	})}
}

// Get implements kv.Store.
func (s *DiskStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, err := s.d.Read(key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set implements kv.Store.
func (s *DiskStore) Set(_ context.Context, key string, value []byte) error {
	return s.d.Write(key, value)
}

// Delete implements kv.Store.
func (s *DiskStore) Delete(_ context.Context, key string) error {
	if err := s.d.Erase(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Keys returns every key with the given prefix.
func (s *DiskStore) Keys(ctx context.Context, prefix string) []string {
	var out []string
	for key := range s.d.KeysPrefix(prefix, ctx.Done()) {
		out = append(out, key)
	}
	return out
}

func keyToPathTransform(key string) *diskv.PathKey {
	parts := strings.Split(key, ":")
	return &diskv.PathKey{
		Path:     parts[:len(parts)-1],
		FileName: parts[len(parts)-1],
	}
}

func pathToKeyTransform(pk *diskv.PathKey) string {
	if len(pk.Path) == 0 {
		return pk.FileName
	}
	return strings.Join(pk.Path, ":") + ":" + pk.FileName
}

package ledb

import (
	"path/filepath"
	"sync"
)

// pool tracks the one live Storage per canonical path (absolute and cleaned;
// symlinks and a leading "~" are not resolved), reference counted so
// the last Close() actually releases the underlying engine. This plays the
// role of original_source/ledb/src/pool.rs's process-global
// path->Weak<StorageData> map, but without relying on GC/finalizer timing:
// a Go weak reference would only tell us a Storage became unreachable, not
// when a caller is done with it, so an explicit refcount is the idiomatic
// substitute (spec invariant 5).
type pool struct {
	mu      sync.Mutex
	entries map[string]*poolEntry
}

type poolEntry struct {
	st   *Storage
	refs int
}

var globalPool = &pool{entries: map[string]*poolEntry{}}

// PooledStorage is a reference-counted handle onto a shared Storage. Close
// decrements the refcount and only closes the underlying engine once the
// last handle for a given path is released.
type PooledStorage struct {
	*Storage
	path string
}

// OpenPooled opens path through the process-wide pool: a second OpenPooled
// call for the same canonical path returns a handle onto the same Storage
// instead of reopening the file (original_source/ledb/src/pool.rs::get/put).
// The canonical path is path made absolute and cleaned; two paths that reach
// one file through a symlink are pooled separately.
func OpenPooled(path string, opt Options) (*PooledStorage, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	globalPool.mu.Lock()
	defer globalPool.mu.Unlock()

	if e, ok := globalPool.entries[path]; ok {
		e.refs++
		return &PooledStorage{Storage: e.st, path: path}, nil
	}

	st, err := Open(path, opt)
	if err != nil {
		return nil, err
	}
	globalPool.entries[path] = &poolEntry{st: st, refs: 1}
	return &PooledStorage{Storage: st, path: path}, nil
}

// Close releases this handle. The underlying Storage is actually closed
// only when the last outstanding handle for its path is closed.
func (p *PooledStorage) Close() error {
	globalPool.mu.Lock()
	e, ok := globalPool.entries[p.path]
	if !ok {
		globalPool.mu.Unlock()
		return nil
	}
	e.refs--
	if e.refs > 0 {
		globalPool.mu.Unlock()
		return nil
	}
	delete(globalPool.entries, p.path)
	globalPool.mu.Unlock()
	return e.st.Close()
}

// List returns the canonical paths with a live pooled Storage, for
// diagnostics and tests (original_source/ledb/src/pool.rs::lst).
func List() []string {
	globalPool.mu.Lock()
	defer globalPool.mu.Unlock()
	out := make([]string, 0, len(globalPool.entries))
	for path := range globalPool.entries {
		out = append(out, path)
	}
	return out
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryBlobs is an in-memory blob store. Delete is idempotent, matching
// object-store semantics.
type MemoryBlobs struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryBlobs constructs an empty blob store.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{objects: make(map[string][]byte)}
}

// Put stores the reader's content under key.
func (b *MemoryBlobs) Put(ctx context.Context, key string, r io.Reader, size int64, _ string) error {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("short blob: got %d of %d bytes", n, size)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.objects[key] = buf.Bytes()
	b.mu.Unlock()
	return nil
}

// Delete removes key. Missing keys are not an error.
func (b *MemoryBlobs) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.objects, key)
	b.mu.Unlock()
	return nil
}

// Has reports whether key exists.
func (b *MemoryBlobs) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key]
	return ok
}

// Len returns the number of stored objects.
func (b *MemoryBlobs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

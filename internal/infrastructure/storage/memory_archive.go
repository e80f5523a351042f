package storage

import (
	"context"
	"sync"

	"github.com/adsync/backend/internal/domain/integration"
)

// Ensure MemoryPayloadArchive implements RawPayloadArchive
var _ integration.RawPayloadArchive = (*MemoryPayloadArchive)(nil)

// MemoryPayloadArchive keeps archived pages in process memory.
// Use it for development and tests when no object store is configured.
type MemoryPayloadArchive struct {
	mu      sync.RWMutex
	objects map[integration.ArchiveKey][]byte
}

// NewMemoryPayloadArchive creates an empty in-memory archive
func NewMemoryPayloadArchive() *MemoryPayloadArchive {
	return &MemoryPayloadArchive{
		objects: make(map[integration.ArchiveKey][]byte),
	}
}

// Archive stores a copy of payload
func (m *MemoryPayloadArchive) Archive(ctx context.Context, key integration.ArchiveKey, payload []byte) error {
	if err := validateArchiveKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), payload...)
	return nil
}

// Fetch returns a copy of an archived page
func (m *MemoryPayloadArchive) Fetch(ctx context.Context, key integration.ArchiveKey) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.objects[key]
	if !ok {
		return nil, ErrArchiveNotFound
	}
	return append([]byte(nil), payload...), nil
}

// Len returns the number of archived pages
func (m *MemoryPayloadArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

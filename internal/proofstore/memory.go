package proofstore

import (
	"context"
	"sync"
)

// Memory is an in-memory proof store for tests and local runs.
type Memory struct {
	mu    sync.RWMutex
	blobs map[Ref][]byte
}

// NewMemory creates an empty in-memory proof store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[Ref][]byte)}
}

// Put validates and stores proof bytes in memory.
func (s *Memory) Put(ctx context.Context, data []byte, meta Metadata) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := Validate(data, meta.ContentType); err != nil {
		return "", err
	}
	ref := RefFor(data)
	copied := make([]byte, len(data))
	copy(copied, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref] = copied
	return ref, nil
}

// Exists reports whether a proof artifact is present.
func (s *Memory) Exists(ctx context.Context, ref Ref) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := Digest(ref); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[ref]
	return ok, nil
}

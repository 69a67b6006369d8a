package keyseq

import (
	"errors"
	"sync"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("keyseq: store closed")

// Store is the persistent key/value contract shared by the failover queue and
// the sequence registry. Values are typed; implementations decide how they
// are laid out on disk.
type Store interface {
	Put(key Key, value any) error
	// Get returns ok=false when key is absent.
	Get(key Key) (value any, ok bool, err error)
	Remove(key Key) error
	ContainsKey(key Key) (bool, error)
	Size() int64
	Close() error
}

// MemStore is a non-durable Store backed by a map.
type MemStore struct {
	mu     sync.RWMutex
	m      map[Key]any
	closed bool
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{m: make(map[Key]any)}
}

func (s *MemStore) Put(key Key, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.m[key] = value
	return nil
}

func (s *MemStore) Get(key Key) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemStore) Remove(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.m, key)
	return nil
}

func (s *MemStore) ContainsKey(key Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.m[key]
	return ok, nil
}

func (s *MemStore) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.m))
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

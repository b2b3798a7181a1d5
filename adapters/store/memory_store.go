package store

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hexlane/authgate/ports"
)

// MemoryStore is an in-memory implementation of the MarkerStore interface
type MemoryStore struct {
	markers map[common.Address]markerEntry
	mu      sync.RWMutex
}

type markerEntry struct {
	token     string
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory marker store
func NewMemoryStore() ports.MarkerStore {
	return &MemoryStore{
		markers: make(map[common.Address]markerEntry),
	}
}

// SetMarker records the logged-in marker for addr
func (s *MemoryStore) SetMarker(ctx context.Context, addr common.Address, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := time.Now().Add(ttl)
	s.markers[addr] = markerEntry{token: token, expiresAt: expiresAt}

	// Start a cleanup goroutine
	go func() {
		time.Sleep(ttl)

		s.mu.Lock()
		defer s.mu.Unlock()

		// Only delete if the marker hasn't been replaced
		if stored, exists := s.markers[addr]; exists && !stored.expiresAt.After(expiresAt) {
			delete(s.markers, addr)
		}
	}()

	return nil
}

// Marker returns the stored marker token for addr, if any
func (s *MemoryStore) Marker(ctx context.Context, addr common.Address) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.markers[addr]
	if !exists {
		return "", false, nil
	}

	// Check if the marker has expired
	if time.Now().After(entry.expiresAt) {
		return "", false, nil
	}

	return entry.token, true, nil
}

// DeleteMarker removes the logged-in marker for addr
func (s *MemoryStore) DeleteMarker(ctx context.Context, addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.markers, addr)
	return nil
}

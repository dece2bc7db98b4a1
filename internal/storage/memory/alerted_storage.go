// Package memory holds the process-lifetime alerted-key set. It is cleared on
// restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ternarybob/deepstock/internal/interfaces"
)

// AlertedStorage is an append-only in-memory set of alerted trade keys
type AlertedStorage struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

var _ interfaces.AlertedStorage = (*AlertedStorage)(nil)

func NewAlertedStorage() *AlertedStorage {
	return &AlertedStorage{keys: make(map[string]struct{})}
}

func (s *AlertedStorage) Has(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *AlertedStorage) Add(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if k != "" {
			s.keys[k] = struct{}{}
		}
	}
	return nil
}

func (s *AlertedStorage) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *AlertedStorage) Close() error {
	return nil
}

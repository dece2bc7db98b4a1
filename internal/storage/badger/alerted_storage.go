package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/deepstock/internal/interfaces"
)

// AlertedKey is the persisted record of one alerted trade key
type AlertedKey struct {
	Key       string `badgerhold:"key"`
	AlertedAt time.Time
}

// AlertedStorage implements interfaces.AlertedStorage on Badger so the
// dedup set survives restarts
type AlertedStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.AlertedStorage = (*AlertedStorage)(nil)

// NewAlertedStorage creates a new AlertedStorage instance
func NewAlertedStorage(db *BadgerDB, logger arbor.ILogger) *AlertedStorage {
	return &AlertedStorage{
		db:     db,
		logger: logger,
	}
}

// Has reports whether a key was alerted before
func (s *AlertedStorage) Has(ctx context.Context, key string) (bool, error) {
	var rec AlertedKey
	err := s.db.Store().Get(key, &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get alerted key: %w", err)
	}
	return true, nil
}

// Add records keys. Existing keys keep their original timestamp.
func (s *AlertedStorage) Add(ctx context.Context, keys ...string) error {
	now := time.Now().UTC()
	added := 0

	for _, key := range keys {
		if key == "" {
			continue
		}
		err := s.db.Store().Insert(key, &AlertedKey{Key: key, AlertedAt: now})
		if errors.Is(err, badgerhold.ErrKeyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to record alerted key %s: %w", key, err)
		}
		added++
	}

	s.logger.Debug().Int("added", added).Int("requested", len(keys)).Msg("Recorded alerted keys")
	return nil
}

// Keys returns all recorded keys, sorted
func (s *AlertedStorage) Keys(ctx context.Context) ([]string, error) {
	var recs []AlertedKey
	if err := s.db.Store().Find(&recs, nil); err != nil {
		return nil, fmt.Errorf("failed to list alerted keys: %w", err)
	}

	keys := make([]string, 0, len(recs))
	for _, r := range recs {
		keys = append(keys, r.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the underlying database
func (s *AlertedStorage) Close() error {
	return s.db.Close()
}

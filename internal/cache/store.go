package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/showsweep/internal/models"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

var (
	// ErrMissing is returned when no entry exists or the entry is older than
	// its TTL. Callers must treat it as "go fetch".
	ErrMissing = errors.New("cache: entry missing or stale")

	// ErrCorrupted indicates the store failed its integrity check
	ErrCorrupted = errors.New("cache: store corrupted")

	// ErrTransaction indicates a write did not commit
	ErrTransaction = errors.New("cache: transaction failed")
)

// Store is the durable TTL cache over the bolthold database, fronted by an
// in-memory tier for repeated lookups within one run.
type Store struct {
	db     *models.Database
	memory *gocache.Cache
	logger *logrus.Logger

	// now is replaceable in tests to age entries artificially
	now func() time.Time
}

// NewStore creates a cache store backed by the given database
func NewStore(db *models.Database, logger *logrus.Logger) *Store {
	return &Store{
		db:     db,
		memory: gocache.New(time.Hour, 10*time.Minute),
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the cached payload for (entityType, canonicalID) if its age is
// within ttl, otherwise ErrMissing.
func (s *Store) Get(entityType models.EntityType, canonicalID string, ttl time.Duration) ([]byte, error) {
	key := models.CacheKey(entityType, canonicalID)

	if cached, found := s.memory.Get(key); found {
		entry := cached.(*models.CacheEntry)
		if s.fresh(entry, ttl) {
			return entry.Payload, nil
		}
		s.memory.Delete(key)
	}

	var entry models.CacheEntry
	err := s.db.Store().Get(key, &entry)
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil, ErrMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if !s.fresh(&entry, ttl) {
		s.logger.WithFields(logrus.Fields{
			"key": key,
			"age": s.now().Sub(entry.FetchedAt).String(),
		}).Debug("Cache entry expired")
		return nil, ErrMissing
	}

	s.memory.SetDefault(key, &entry)
	return entry.Payload, nil
}

// GetRecord unmarshals a fresh cache entry into out, or returns ErrMissing
func (s *Store) GetRecord(entityType models.EntityType, canonicalID string, ttl time.Duration, out interface{}) error {
	payload, err := s.Get(entityType, canonicalID, ttl)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: undecodable payload for %s/%s: %v", ErrCorrupted, entityType, canonicalID, err)
	}
	return nil
}

// Put stores a record, overwriting any previous entry. Expired entries are
// always replaced whole, never partially merged.
func (s *Store) Put(entityType models.EntityType, canonicalID string, record interface{}) error {
	entry, err := s.buildEntry(entityType, canonicalID, record)
	if err != nil {
		return err
	}

	if err := s.db.Store().Upsert(entry.Key, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrTransaction, err)
	}
	s.memory.SetDefault(entry.Key, entry)
	return nil
}

// BatchEntry is one record of a multi-record refresh
type BatchEntry struct {
	EntityType  models.EntityType
	CanonicalID string
	Record      interface{}
}

// PutBatch commits all entries in one transaction: a full refresh either
// fully commits or fully rolls back.
func (s *Store) PutBatch(entries []BatchEntry) error {
	built := make([]*models.CacheEntry, 0, len(entries))
	for _, e := range entries {
		entry, err := s.buildEntry(e.EntityType, e.CanonicalID, e.Record)
		if err != nil {
			return err
		}
		built = append(built, entry)
	}

	err := s.db.Store().Bolt().Update(func(tx *bbolt.Tx) error {
		for _, entry := range built {
			if err := s.db.Store().TxUpsert(tx, entry.Key, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransaction, err)
	}

	for _, entry := range built {
		s.memory.SetDefault(entry.Key, entry)
	}
	return nil
}

// Invalidate drops the entry for one show
func (s *Store) Invalidate(entityType models.EntityType, canonicalID string) error {
	key := models.CacheKey(entityType, canonicalID)
	s.memory.Delete(key)
	err := s.db.Store().Delete(key, &models.CacheEntry{})
	if err != nil && !errors.Is(err, bolthold.ErrNotFound) {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

// InvalidateAll drops every entry of one entity type
func (s *Store) InvalidateAll(entityType models.EntityType) error {
	s.memory.Flush()
	err := s.db.Store().DeleteMatching(&models.CacheEntry{}, bolthold.Where("EntityType").Eq(entityType))
	if err != nil {
		return fmt.Errorf("failed to invalidate %s cache: %w", entityType, err)
	}
	return nil
}

func (s *Store) buildEntry(entityType models.EntityType, canonicalID string, record interface{}) (*models.CacheEntry, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s record: %w", entityType, err)
	}
	return &models.CacheEntry{
		Key:         models.CacheKey(entityType, canonicalID),
		EntityType:  entityType,
		CanonicalID: canonicalID,
		Payload:     payload,
		FetchedAt:   s.now(),
	}, nil
}

func (s *Store) fresh(entry *models.CacheEntry, ttl time.Duration) bool {
	return s.now().Sub(entry.FetchedAt) < ttl
}

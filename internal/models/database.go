package models

import (
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
	path  string
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := openStore(path)
	if err != nil {
		return nil, err
	}

	return &Database{store: store, path: path}, nil
}

func openStore(path string) (*bolthold.Store, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Path returns the database file path
func (db *Database) Path() string {
	return db.path
}

// Store exposes the underlying bolthold store for transactional callers
func (db *Database) Store() *bolthold.Store {
	return db.store
}

// Reopen opens the underlying store again after Close. Used once a restore
// has replaced the database file.
func (db *Database) Reopen() error {
	store, err := openStore(db.path)
	if err != nil {
		return err
	}
	db.store = store
	return nil
}

// Show operations

// UpsertShow inserts or updates a show keyed by canonical id
func (db *Database) UpsertShow(show *Show) error {
	now := time.Now()
	if show.CreatedAt.IsZero() {
		show.CreatedAt = now
	}
	show.UpdatedAt = now
	return db.store.Upsert(show.CanonicalID, show)
}

// GetShow retrieves a show by canonical id
func (db *Database) GetShow(canonicalID string) (*Show, error) {
	var show Show
	if err := db.store.Get(canonicalID, &show); err != nil {
		return nil, err
	}
	return &show, nil
}

// GetActiveShows retrieves all shows present in the latest library scan
func (db *Database) GetActiveShows() ([]*Show, error) {
	var shows []*Show
	err := db.store.Find(&shows, bolthold.Where("Active").Eq(true))
	return shows, err
}

// GetAllShows retrieves every show ever discovered
func (db *Database) GetAllShows() ([]*Show, error) {
	var shows []*Show
	err := db.store.Find(&shows, nil)
	return shows, err
}

// MarkAllShowsInactive flags every show as absent ahead of a fresh scan.
// Shows rediscovered by the scan are flipped back via UpsertShow.
func (db *Database) MarkAllShowsInactive() error {
	return db.store.UpdateMatching(&Show{}, nil, func(record interface{}) error {
		show, ok := record.(*Show)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		show.Active = false
		return nil
	})
}

// Identity mapping operations

// GetMapping retrieves a mapping by (source, source id)
func (db *Database) GetMapping(source Source, sourceID string) (*IdentityMapping, error) {
	var mapping IdentityMapping
	if err := db.store.Get(MappingKey(source, sourceID), &mapping); err != nil {
		return nil, err
	}
	return &mapping, nil
}

// PutMapping persists a mapping
func (db *Database) PutMapping(mapping *IdentityMapping) error {
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now()
	}
	mapping.Key = MappingKey(mapping.Source, mapping.SourceID)
	return db.store.Upsert(mapping.Key, mapping)
}

// GetAllMappings retrieves every identity mapping
func (db *Database) GetAllMappings() ([]*IdentityMapping, error) {
	var mappings []*IdentityMapping
	err := db.store.Find(&mappings, nil)
	return mappings, err
}

// GetMappingsByCanonicalID retrieves all mappings pointing at one canonical id
func (db *Database) GetMappingsByCanonicalID(canonicalID string) ([]*IdentityMapping, error) {
	var mappings []*IdentityMapping
	err := db.store.Find(&mappings, bolthold.Where("CanonicalID").Eq(canonicalID).Index("CanonicalID"))
	return mappings, err
}

// Action record operations

// InsertActionRecord appends an action record to the audit log
func (db *Database) InsertActionRecord(record *ActionRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	return db.store.Insert(bolthold.NextSequence(), record)
}

// GetActionRecords retrieves the full audit log
func (db *Database) GetActionRecords() ([]*ActionRecord, error) {
	var records []*ActionRecord
	err := db.store.Find(&records, nil)
	return records, err
}

// GetActionRecordsByCanonicalID retrieves the audit log for one show
func (db *Database) GetActionRecordsByCanonicalID(canonicalID string) ([]*ActionRecord, error) {
	var records []*ActionRecord
	err := db.store.Find(&records, bolthold.Where("CanonicalID").Eq(canonicalID).Index("CanonicalID"))
	return records, err
}

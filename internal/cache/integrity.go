package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/amaumene/showsweep/internal/models"
	"github.com/timshannon/bolthold"
)

// Problem describes one integrity check finding
type Problem struct {
	Kind   string // "orphan_action", "orphan_mapping", "bad_entry"
	Key    string
	Detail string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s %s: %s", p.Kind, p.Key, p.Detail)
}

// Check validates internal consistency: every ActionRecord references a known
// canonical id, every mapping points at a known show, every cache entry
// decodes as its entity type. A non-empty result means the store needs Repair.
func (s *Store) Check() ([]Problem, error) {
	var problems []Problem

	known := make(map[string]bool)
	shows, err := s.db.GetAllShows()
	if err != nil {
		return nil, fmt.Errorf("failed to list shows: %w", err)
	}
	for _, show := range shows {
		known[show.CanonicalID] = true
	}

	records, err := s.db.GetActionRecords()
	if err != nil {
		return nil, fmt.Errorf("failed to list action records: %w", err)
	}
	for _, record := range records {
		if !known[record.CanonicalID] {
			problems = append(problems, Problem{
				Kind:   "orphan_action",
				Key:    fmt.Sprintf("%d", record.ID),
				Detail: fmt.Sprintf("action %q references unknown canonical id %s", record.Action, record.CanonicalID),
			})
		}
	}

	mappings, err := s.db.GetAllMappings()
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	for _, mapping := range mappings {
		if mapping.CanonicalID == "" || !known[mapping.CanonicalID] {
			problems = append(problems, Problem{
				Kind:   "orphan_mapping",
				Key:    mapping.Key,
				Detail: fmt.Sprintf("mapping points at unknown canonical id %q", mapping.CanonicalID),
			})
		}
	}

	var entries []*models.CacheEntry
	if err := s.db.Store().Find(&entries, nil); err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	for _, entry := range entries {
		if err := decodeAs(entry); err != nil {
			problems = append(problems, Problem{
				Kind:   "bad_entry",
				Key:    entry.Key,
				Detail: err.Error(),
			})
		}
	}

	if len(problems) > 0 {
		s.logger.WithField("problems", len(problems)).Warn("Integrity check found problems")
	}
	return problems, nil
}

// Repair drops corrupt cache entries and orphaned identity mappings found by
// Check. ActionRecord history is preserved: orphaned action records are
// reported but never deleted, the audit log is append-only. If dropping fails
// the affected entity caches are invalidated wholesale.
func (s *Store) Repair() error {
	problems, err := s.Check()
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		s.logger.Info("Integrity check passed, nothing to repair")
		return nil
	}

	var failed bool
	for _, problem := range problems {
		switch problem.Kind {
		case "bad_entry":
			if err := s.db.Store().Delete(problem.Key, &models.CacheEntry{}); err != nil && !errors.Is(err, bolthold.ErrNotFound) {
				s.logger.WithError(err).WithField("key", problem.Key).Error("Failed to drop corrupt cache entry")
				failed = true
			}
		case "orphan_mapping":
			if err := s.db.Store().Delete(problem.Key, &models.IdentityMapping{}); err != nil && !errors.Is(err, bolthold.ErrNotFound) {
				s.logger.WithError(err).WithField("key", problem.Key).Error("Failed to drop orphaned mapping")
				failed = true
			}
		case "orphan_action":
			s.logger.WithField("record", problem.Key).Warn("Orphaned action record kept for audit history")
		}
	}
	s.memory.Flush()

	if failed {
		// Last resort: rebuild from adapters on the next run
		for _, entityType := range []models.EntityType{models.EntityWatch, models.EntityRequest, models.EntityMonitor} {
			if err := s.InvalidateAll(entityType); err != nil {
				return fmt.Errorf("%w: repair and wholesale invalidation both failed: %v", ErrCorrupted, err)
			}
		}
		s.logger.Warn("Repair incomplete, caches invalidated wholesale for rebuild")
	}

	s.logger.WithField("repaired", len(problems)).Info("Repair completed")
	return nil
}

// decodeAs checks that an entry's payload unmarshals as its entity type
func decodeAs(entry *models.CacheEntry) error {
	var target interface{}
	switch entry.EntityType {
	case models.EntityWatch:
		target = &models.WatchRecord{}
	case models.EntityRequest:
		target = &[]models.RequestRecord{}
	case models.EntityMonitor:
		target = &models.MonitorRecord{}
	default:
		return fmt.Errorf("unknown entity type %q", entry.EntityType)
	}
	if err := json.Unmarshal(entry.Payload, target); err != nil {
		return fmt.Errorf("payload does not decode as %s: %v", entry.EntityType, err)
	}
	if entry.Key != models.CacheKey(entry.EntityType, entry.CanonicalID) {
		return fmt.Errorf("key %q does not match entity %s/%s", entry.Key, entry.EntityType, entry.CanonicalID)
	}
	return nil
}

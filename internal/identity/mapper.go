package identity

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/amaumene/showsweep/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// ErrAmbiguous is returned when metadata hints match multiple canonical ids
// with equal confidence. The mapper never guesses; the record stays
// unresolved and is excluded from eligibility decisions.
var ErrAmbiguous = errors.New("identity: ambiguous mapping candidates")

// Titles within this levenshtein distance of each other (after
// normalization) are considered the same show when the year also matches.
const maxTitleDistance = 2

// Hints carry the external metadata used for secondary matching when no
// exact (source, source id) mapping exists yet.
type Hints struct {
	Title  string
	Year   int
	TVDBID string
	GUID   string // Plex agent GUID, mined for a TVDB id
}

// Mapper is the single authority that mints and merges canonical ids.
// All resolutions are serialized so concurrent lookups for the same
// underlying show can never mint two ids.
type Mapper struct {
	mu     sync.Mutex
	db     *models.Database
	logger *logrus.Logger
}

// NewMapper creates a new identity mapper
func NewMapper(db *models.Database, logger *logrus.Logger) *Mapper {
	return &Mapper{db: db, logger: logger}
}

// Resolve returns the canonical id for a (source, source id) pair, matching
// an existing mapping exactly, then by external metadata, then minting a new
// id. Resolution is deterministic for a fixed mapping table state.
func (m *Mapper) Resolve(source models.Source, sourceID string, hints Hints) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mapping, err := m.db.GetMapping(source, sourceID)
	if err == nil {
		return mapping.CanonicalID, nil
	}
	if !errors.Is(err, bolthold.ErrNotFound) {
		return "", fmt.Errorf("failed to look up mapping: %w", err)
	}

	canonicalID, err := m.secondaryMatch(hints)
	if err != nil {
		return "", err
	}

	minted := false
	if canonicalID == "" {
		canonicalID = uuid.NewString()
		minted = true
	}

	if err := m.persist(source, sourceID, canonicalID, hints); err != nil {
		return "", err
	}

	m.logger.WithFields(logrus.Fields{
		"source":       source,
		"source_id":    sourceID,
		"canonical_id": canonicalID,
		"minted":       minted,
	}).Debug("Resolved identity")
	return canonicalID, nil
}

// Merge re-points every mapping of canonical id from onto into. Idempotent
// and one-directional: once merged, the two ids can never diverge again.
func (m *Mapper) Merge(into, from string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if into == from {
		return nil
	}

	mappings, err := m.db.GetMappingsByCanonicalID(from)
	if err != nil {
		return fmt.Errorf("failed to list mappings for merge: %w", err)
	}

	for _, mapping := range mappings {
		mapping.CanonicalID = into
		if err := m.db.PutMapping(mapping); err != nil {
			return fmt.Errorf("failed to re-point mapping %s: %w", mapping.Key, err)
		}
	}

	m.logger.WithFields(logrus.Fields{
		"into":     into,
		"from":     from,
		"mappings": len(mappings),
	}).Info("Merged canonical ids")
	return nil
}

// secondaryMatch attempts to find an existing canonical id through external
// metadata: a TVDB id first, then a normalized title/year comparison.
func (m *Mapper) secondaryMatch(hints Hints) (string, error) {
	tvdbID := hints.TVDBID
	if tvdbID == "" && hints.GUID != "" {
		tvdbID = TVDBIDFromGUID(hints.GUID)
	}
	if tvdbID != "" {
		mapping, err := m.db.GetMapping(models.SourceTVDB, tvdbID)
		if err == nil {
			return mapping.CanonicalID, nil
		}
		if !errors.Is(err, bolthold.ErrNotFound) {
			return "", fmt.Errorf("failed to look up tvdb mapping: %w", err)
		}
	}

	if hints.Title == "" {
		return "", nil
	}

	wanted := normalizeTitle(hints.Title)
	mappings, err := m.db.GetAllMappings()
	if err != nil {
		return "", fmt.Errorf("failed to list mappings: %w", err)
	}

	best := maxTitleDistance + 1
	candidates := make(map[string]bool)
	for _, mapping := range mappings {
		if mapping.Title == "" {
			continue
		}
		if hints.Year != 0 && mapping.Year != 0 && hints.Year != mapping.Year {
			continue
		}
		distance := levenshtein.ComputeDistance(wanted, normalizeTitle(mapping.Title))
		if distance > maxTitleDistance || distance > best {
			continue
		}
		if distance < best {
			best = distance
			candidates = make(map[string]bool)
		}
		candidates[mapping.CanonicalID] = true
	}

	switch len(candidates) {
	case 0:
		return "", nil
	case 1:
		for id := range candidates {
			return id, nil
		}
	}
	m.logger.WithFields(logrus.Fields{
		"title":      hints.Title,
		"candidates": len(candidates),
	}).Warn("Ambiguous identity, record excluded until re-resolved")
	return "", fmt.Errorf("%w: title %q matches %d canonical ids", ErrAmbiguous, hints.Title, len(candidates))
}

// persist writes the new mapping and, when a TVDB id is known, the TVDB
// cross-reference alongside it so future sources can match on it exactly.
// Both rows commit in one transaction, never one without the other.
func (m *Mapper) persist(source models.Source, sourceID, canonicalID string, hints Hints) error {
	mappings := []*models.IdentityMapping{{
		Source:      source,
		SourceID:    sourceID,
		CanonicalID: canonicalID,
		Title:       hints.Title,
		Year:        hints.Year,
	}}

	tvdbID := hints.TVDBID
	if tvdbID == "" && hints.GUID != "" {
		tvdbID = TVDBIDFromGUID(hints.GUID)
	}
	if tvdbID != "" {
		if _, err := m.db.GetMapping(models.SourceTVDB, tvdbID); errors.Is(err, bolthold.ErrNotFound) {
			mappings = append(mappings, &models.IdentityMapping{
				Source:      models.SourceTVDB,
				SourceID:    tvdbID,
				CanonicalID: canonicalID,
				Title:       hints.Title,
				Year:        hints.Year,
			})
		} else if err != nil {
			return fmt.Errorf("failed to look up tvdb mapping: %w", err)
		}
	}

	store := m.db.Store()
	err := store.Bolt().Update(func(tx *bbolt.Tx) error {
		now := time.Now()
		for _, mapping := range mappings {
			mapping.Key = models.MappingKey(mapping.Source, mapping.SourceID)
			mapping.CreatedAt = now
			if err := store.TxUpsert(tx, mapping.Key, mapping); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist mapping: %w", err)
	}
	return nil
}

// RegisterTVDBID records a TVDB cross-reference learned after initial
// resolution (the watch-history service often supplies it later).
func (m *Mapper) RegisterTVDBID(canonicalID, tvdbID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tvdbID == "" {
		return nil
	}
	existing, err := m.db.GetMapping(models.SourceTVDB, tvdbID)
	if err == nil {
		if existing.CanonicalID != canonicalID {
			return fmt.Errorf("%w: tvdb id %s already mapped to %s", ErrAmbiguous, tvdbID, existing.CanonicalID)
		}
		return nil
	}
	if !errors.Is(err, bolthold.ErrNotFound) {
		return fmt.Errorf("failed to look up tvdb mapping: %w", err)
	}
	return m.db.PutMapping(&models.IdentityMapping{
		Source:      models.SourceTVDB,
		SourceID:    tvdbID,
		CanonicalID: canonicalID,
	})
}

package models

import "time"

// Show is the canonical entity uniting all per-source records for one TV show.
// Shows are created on first discovery from the media server, updated on every
// refresh and never deleted; a show absent from a fresh scan is marked inactive.
type Show struct {
	CanonicalID string `boltholdKey:"CanonicalID"`

	// Per-source external identifiers
	PlexRatingKey  string `boltholdIndex:"PlexRatingKey"`
	TVDBID         string
	SonarrSeriesID int

	Title string
	Year  int
	GUID  string // Plex agent GUID, used as a metadata hint
	Path  string // library path on the media server

	Seasons []Season

	// Presence tracking across library scans
	Active     bool `boltholdIndex:"Active"`
	LastSeenAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Season is one season of a show's downloaded inventory
type Season struct {
	Number    int
	Episodes  []Episode
	SizeBytes int64
}

// Episode is one downloaded episode
type Episode struct {
	Number    int
	SizeBytes int64
}

// HasOnlyFirstSeason reports whether the only downloaded content is season 1
func (s *Show) HasOnlyFirstSeason() bool {
	return len(s.Seasons) == 1 && s.Seasons[0].Number == 1
}

// HasOnlyFirstEpisode reports whether the only downloaded content is S01E01
func (s *Show) HasOnlyFirstEpisode() bool {
	if !s.HasOnlyFirstSeason() {
		return false
	}
	eps := s.Seasons[0].Episodes
	return len(eps) == 1 && eps[0].Number == 1
}

// SizeBytes is the total downloaded size across all seasons
func (s *Show) SizeBytes() int64 {
	var total int64
	for _, season := range s.Seasons {
		total += season.SizeBytes
	}
	return total
}

// WatchRecord aggregates watch history for a show
type WatchRecord struct {
	CanonicalID   string `boltholdKey:"CanonicalID"`
	TotalPlays    int
	LastWatchedAt *time.Time
	EpisodePlays  []EpisodePlay // per-episode granularity when the source provides it
}

// EpisodePlay is a per-episode play count
type EpisodePlay struct {
	Season  int
	Episode int
	Plays   int
}

// Watched reports whether any content of the show was ever played.
// Mixed per-episode data counts as watched: any positive signal anywhere
// in the inventory excludes deletion.
func (w *WatchRecord) Watched() bool {
	if w == nil {
		return false
	}
	if w.TotalPlays > 0 {
		return true
	}
	for _, ep := range w.EpisodePlays {
		if ep.Plays > 0 {
			return true
		}
	}
	return false
}

// RequestRecord is one request-tracking entry for a show
type RequestRecord struct {
	CanonicalID string
	RequestedAt time.Time
	Requester   string
	Status      string
}

// MonitorRecord is the monitoring service's view of a show
type MonitorRecord struct {
	CanonicalID    string `boltholdKey:"CanonicalID"`
	SonarrSeriesID int
	Monitored      bool
	SeasonFiles    []SeasonFileCount
}

// SeasonFileCount tracks file presence per season in the monitoring service
type SeasonFileCount struct {
	Season    int
	FileCount int
}

// IdentityMapping maps one (source, source id) pair to a canonical id.
// Keyed by Source + "/" + SourceID so lookups are a single point read.
type IdentityMapping struct {
	Key         string `boltholdKey:"Key"`
	Source      Source
	SourceID    string
	CanonicalID string `boltholdIndex:"CanonicalID"`

	// Metadata hints captured at mapping time, used for secondary matching
	Title string
	Year  int

	CreatedAt time.Time
}

// MappingKey builds the bolthold key for an identity mapping
func MappingKey(source Source, sourceID string) string {
	return string(source) + "/" + sourceID
}

// ActionRecord is one append-only audit log entry. Never mutated after insert.
type ActionRecord struct {
	ID          uint64 `boltholdKey:"ID"`
	CanonicalID string `boltholdIndex:"CanonicalID"`
	Title       string
	Action      Action
	Simulated   bool
	Actor       Actor
	Failure     string // set when a destructive call failed and the record degraded to keep
	Timestamp   time.Time
}

// CacheEntry wraps one per-source record with its fetch time. An entry older
// than its TTL must not be used unless force-refresh is requested.
type CacheEntry struct {
	Key         string `boltholdKey:"Key"`
	EntityType  EntityType
	CanonicalID string `boltholdIndex:"CanonicalID"`
	Payload     []byte
	FetchedAt   time.Time
}

// CacheKey builds the bolthold key for a cache entry
func CacheKey(entityType EntityType, canonicalID string) string {
	return string(entityType) + "/" + canonicalID
}

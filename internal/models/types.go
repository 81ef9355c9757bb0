package models

// Action represents the action applied to a show
type Action string

const (
	ActionDelete           Action = "delete"
	ActionKeepFirstSeason  Action = "keep_first_season"
	ActionKeepFirstEpisode Action = "keep_first_episode"
	ActionKeep             Action = "keep"
)

// Valid reports whether the action is one of the known values
func (a Action) Valid() bool {
	switch a {
	case ActionDelete, ActionKeepFirstSeason, ActionKeepFirstEpisode, ActionKeep:
		return true
	}
	return false
}

// EntityType identifies which per-source record a cache entry wraps
type EntityType string

const (
	EntityWatch   EntityType = "watch"
	EntityRequest EntityType = "request"
	EntityMonitor EntityType = "monitor"
)

// Source names an upstream service
type Source string

const (
	SourcePlex      Source = "plex"
	SourceOverseerr Source = "overseerr"
	SourceTautulli  Source = "tautulli"
	SourceSonarr    Source = "sonarr"
	SourceTVDB      Source = "tvdb"
)

// Mode represents how actions are confirmed
type Mode string

const (
	ModeInteractive    Mode = "interactive"
	ModeNonInteractive Mode = "non-interactive"
)

// Actor records who decided an action
type Actor string

const (
	ActorInteractive Actor = "interactive"
	ActorAuto        Actor = "auto"
)

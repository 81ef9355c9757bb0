package engine

import (
	"context"
	"errors"

	"github.com/amaumene/showsweep/internal/models"
	"github.com/amaumene/showsweep/internal/services/tautulli"
)

// ErrAdapterUnavailable indicates an upstream service could not be reached
// after retries. The affected show is skipped with action keep; the run
// continues.
var ErrAdapterUnavailable = errors.New("engine: adapter unavailable")

// WatchSource is the watch-history service adapter
type WatchSource interface {
	GetWatchStats(ctx context.Context, ratingKey string) (*tautulli.WatchStats, error)
}

// HistorySource is the media server's own play history, consulted as a
// second watch signal
type HistorySource interface {
	HasWatchHistory(ctx context.Context, ratingKey string) (bool, error)
}

// RequestSource is the request-tracking service adapter
type RequestSource interface {
	GetRequests(ctx context.Context, ratingKey string) ([]models.RequestRecord, error)
}

// MonitorSource is the monitoring/download manager adapter
type MonitorSource interface {
	GetMonitorRecord(ctx context.Context, tvdbID string) (*models.MonitorRecord, error)
}

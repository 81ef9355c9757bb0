package tautulli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amaumene/showsweep/internal/config"
	"github.com/amaumene/showsweep/internal/models"
	"github.com/amaumene/showsweep/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

// Client handles communication with the Tautulli API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *logrus.Logger
}

// NewClient creates a new Tautulli client
func NewClient(cfg *config.Config, limiter *ratelimit.Limiter, logger *logrus.Logger) (*Client, error) {
	if cfg.TautulliURL == "" {
		return nil, fmt.Errorf("tautulli URL is required")
	}
	if cfg.TautulliAPIKey == "" {
		return nil, fmt.Errorf("tautulli API key is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.TautulliURL, "/"),
		apiKey:     cfg.TautulliAPIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// WatchStats is the watch-history summary for one show, with the TVDB id
// when Tautulli's metadata carries one
type WatchStats struct {
	TotalPlays    int
	LastWatchedAt *time.Time
	TVDBID        string
}

type watchTimeStatsResponse struct {
	Response struct {
		Data []watchTimeStat `json:"data"`
	} `json:"response"`
}

type watchTimeStat struct {
	QueryDays  int   `json:"query_days"`
	TotalPlays int   `json:"total_plays"`
	TotalTime  int64 `json:"total_time"`
}

type metadataResponse struct {
	Response struct {
		Data struct {
			GUIDs       []string `json:"guids"`
			ExternalIDs struct {
				TVDBID json.Number `json:"tvdb_id"`
			} `json:"external_ids"`
		} `json:"data"`
	} `json:"response"`
}

// GetWatchStats returns the watch-history summary for a show. When the watch
// time stats carry no TVDB id a second metadata call fills it in.
func (c *Client) GetWatchStats(ctx context.Context, ratingKey string) (*WatchStats, error) {
	var result watchTimeStatsResponse
	params := url.Values{
		"cmd":        {"get_item_watch_time_stats"},
		"rating_key": {ratingKey},
	}
	if err := c.get(ctx, params, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch watch stats: %w", err)
	}

	stats := &WatchStats{}
	for _, entry := range result.Response.Data {
		if entry.TotalPlays > stats.TotalPlays {
			stats.TotalPlays = entry.TotalPlays
		}
	}

	tvdbID, err := c.GetTVDBID(ctx, ratingKey)
	if err != nil {
		c.logger.WithError(err).WithField("rating_key", ratingKey).Debug("Could not fetch TVDB id from metadata")
	} else {
		stats.TVDBID = tvdbID
	}

	c.logger.WithFields(logrus.Fields{
		"rating_key":  ratingKey,
		"total_plays": stats.TotalPlays,
		"tvdb_id":     stats.TVDBID,
	}).Debug("Tautulli watch stats fetched")
	return stats, nil
}

// GetTVDBID extracts the TVDB id from the show's Tautulli metadata, looking
// through the guids array ("tvdb://393206") and external_ids
func (c *Client) GetTVDBID(ctx context.Context, ratingKey string) (string, error) {
	var result metadataResponse
	params := url.Values{
		"cmd":        {"get_metadata"},
		"rating_key": {ratingKey},
	}
	if err := c.get(ctx, params, &result); err != nil {
		return "", fmt.Errorf("failed to fetch metadata: %w", err)
	}

	for _, guid := range result.Response.Data.GUIDs {
		if id := tvdbFromGUID(guid); id != "" {
			return id, nil
		}
	}
	if id := result.Response.Data.ExternalIDs.TVDBID.String(); id != "" && id != "0" {
		return id, nil
	}
	return "", nil
}

// tvdbFromGUID parses ids of the form "tvdb://393206"
func tvdbFromGUID(guid string) string {
	if !strings.Contains(strings.ToLower(guid), "tvdb") {
		return ""
	}
	parts := strings.Split(guid, "/")
	id := parts[len(parts)-1]
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	if id == "" {
		return ""
	}
	return id
}

func (c *Client) get(ctx context.Context, params url.Values, result interface{}) error {
	if err := c.limiter.Acquire(ctx, models.SourceTautulli); err != nil {
		return err
	}

	params.Set("apikey", c.apiKey)
	fullURL := c.baseURL + "/api/v2?" + params.Encode()

	c.logger.WithField("cmd", params.Get("cmd")).Debug("Making Tautulli API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tautulli request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tautulli API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode tautulli response: %w", err)
	}
	return nil
}

package sonarr

import (
	"bytes"
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

// Client handles communication with the Sonarr v3 API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *logrus.Logger
}

// NewClient creates a new Sonarr client
func NewClient(cfg *config.Config, limiter *ratelimit.Limiter, logger *logrus.Logger) (*Client, error) {
	if cfg.SonarrURL == "" {
		return nil, fmt.Errorf("sonarr URL is required")
	}
	if cfg.SonarrAPIKey == "" {
		return nil, fmt.Errorf("sonarr API key is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.SonarrURL, "/"),
		apiKey:     cfg.SonarrAPIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Series is the subset of a Sonarr series record the engine consumes
type Series struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	TVDBID    int      `json:"tvdbId"`
	Monitored bool     `json:"monitored"`
	Seasons   []Season `json:"seasons"`
}

// Season is one monitored season with its file statistics
type Season struct {
	SeasonNumber int  `json:"seasonNumber"`
	Monitored    bool `json:"monitored"`
	Statistics   struct {
		EpisodeFileCount int `json:"episodeFileCount"`
	} `json:"statistics"`
}

// GetMonitorRecord returns the monitoring service's view of the show with
// the given TVDB id, or nil when Sonarr does not track it
func (c *Client) GetMonitorRecord(ctx context.Context, tvdbID string) (*models.MonitorRecord, error) {
	series, err := c.seriesByTVDBID(ctx, tvdbID)
	if err != nil {
		return nil, err
	}
	if series == nil {
		return nil, nil
	}

	record := &models.MonitorRecord{
		SonarrSeriesID: series.ID,
		Monitored:      series.Monitored,
	}
	for _, season := range series.Seasons {
		record.SeasonFiles = append(record.SeasonFiles, models.SeasonFileCount{
			Season:    season.SeasonNumber,
			FileCount: season.Statistics.EpisodeFileCount,
		})
	}
	return record, nil
}

// Unmonitor turns off monitoring for the series with the given TVDB id. The
// series object round-trips as raw JSON so fields this client does not model
// survive the update.
func (c *Client) Unmonitor(ctx context.Context, tvdbID string) error {
	raw, err := c.rawSeriesByTVDBID(ctx, tvdbID)
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("no series found in sonarr with tvdb id %s", tvdbID)
	}

	raw["monitored"] = false
	id, ok := raw["id"].(float64)
	if !ok {
		return fmt.Errorf("sonarr series for tvdb id %s has no numeric id", tvdbID)
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal series update: %w", err)
	}

	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v3/series/%d", int(id)), nil, body, nil); err != nil {
		return fmt.Errorf("failed to unmonitor series: %w", err)
	}

	c.logger.WithField("tvdb_id", tvdbID).Info("Unmonitored series in Sonarr")
	return nil
}

// Delete removes the series from Sonarr, optionally deleting its files
func (c *Client) Delete(ctx context.Context, tvdbID string, deleteFiles bool) error {
	series, err := c.seriesByTVDBID(ctx, tvdbID)
	if err != nil {
		return err
	}
	if series == nil {
		return fmt.Errorf("no series found in sonarr with tvdb id %s", tvdbID)
	}

	query := url.Values{"deleteFiles": {fmt.Sprintf("%t", deleteFiles)}}
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v3/series/%d", series.ID), query, nil, nil); err != nil {
		return fmt.Errorf("failed to delete series: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"tvdb_id":      tvdbID,
		"delete_files": deleteFiles,
	}).Info("Deleted series from Sonarr")
	return nil
}

func (c *Client) seriesByTVDBID(ctx context.Context, tvdbID string) (*Series, error) {
	var list []Series
	query := url.Values{"tvdbId": {tvdbID}}
	if err := c.do(ctx, http.MethodGet, "/api/v3/series", query, nil, &list); err != nil {
		return nil, fmt.Errorf("failed to get series by tvdb id: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (c *Client) rawSeriesByTVDBID(ctx context.Context, tvdbID string) (map[string]interface{}, error) {
	var list []map[string]interface{}
	query := url.Values{"tvdbId": {tvdbID}}
	if err := c.do(ctx, http.MethodGet, "/api/v3/series", query, nil, &list); err != nil {
		return nil, fmt.Errorf("failed to get series by tvdb id: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, result interface{}) error {
	if err := c.limiter.Acquire(ctx, models.SourceSonarr); err != nil {
		return err
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    fullURL,
	}).Debug("Making Sonarr API request")

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sonarr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sonarr API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode sonarr response: %w", err)
		}
	}
	return nil
}

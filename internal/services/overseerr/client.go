package overseerr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amaumene/showsweep/internal/config"
	"github.com/amaumene/showsweep/internal/models"
	"github.com/amaumene/showsweep/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

// Overseerr allows up to 100 results per page
const pageSize = 100

// Client handles communication with the Overseerr API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *logrus.Logger

	// One library scan touches every show; the full request list is fetched
	// once per run and filtered per show.
	mu       sync.Mutex
	requests []Request
	fetched  bool
	endpoint string
}

// NewClient creates a new Overseerr client
func NewClient(cfg *config.Config, limiter *ratelimit.Limiter, logger *logrus.Logger) (*Client, error) {
	if cfg.OverseerrURL == "" {
		return nil, fmt.Errorf("overseerr URL is required")
	}
	if cfg.OverseerrAPIKey == "" {
		return nil, fmt.Errorf("overseerr API key is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.OverseerrURL, "/"),
		apiKey:     cfg.OverseerrAPIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Request is one Overseerr request as returned by the API
type Request struct {
	ID          int       `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	Media       MediaInfo `json:"media"`
	RequestedBy User      `json:"requestedBy"`
	Status      int       `json:"status"`
}

// MediaInfo identifies the requested media
type MediaInfo struct {
	RatingKey string `json:"ratingKey"`
	TVDBID    int    `json:"tvdbId"`
	MediaType string `json:"mediaType"`
	Name      string `json:"name"`
}

// User is the requesting user
type User struct {
	DisplayName string `json:"displayName"`
}

type requestsPage struct {
	PageInfo struct {
		Pages int `json:"pages"`
	} `json:"pageInfo"`
	Results []Request `json:"results"`
}

// GetRequests returns the request-tracking records for one show, identified
// by its media server rating key
func (c *Client) GetRequests(ctx context.Context, ratingKey string) ([]models.RequestRecord, error) {
	requests, err := c.allRequests(ctx)
	if err != nil {
		return nil, err
	}

	var records []models.RequestRecord
	for _, request := range requests {
		if request.Media.RatingKey != ratingKey {
			continue
		}
		records = append(records, models.RequestRecord{
			RequestedAt: request.CreatedAt,
			Requester:   request.RequestedBy.DisplayName,
			Status:      strconv.Itoa(request.Status),
		})
	}
	return records, nil
}

// Prefetch loads the full request list ahead of a sweep so per-show lookups
// are in-memory filters
func (c *Client) Prefetch(ctx context.Context) error {
	_, err := c.allRequests(ctx)
	return err
}

// allRequests returns the cached request list, fetching it on first use
func (c *Client) allRequests(ctx context.Context) ([]Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fetched {
		return c.requests, nil
	}

	endpoint, err := c.findEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	var all []Request
	page := 1
	totalPages := 1
	for page <= totalPages {
		c.logger.WithFields(logrus.Fields{
			"page":  page,
			"pages": totalPages,
		}).Debug("Fetching Overseerr requests page")

		var result requestsPage
		query := url.Values{
			"take": {strconv.Itoa(pageSize)},
			"skip": {strconv.Itoa((page - 1) * pageSize)},
			"sort": {"modified"},
		}
		if err := c.get(ctx, endpoint, query, &result); err != nil {
			return nil, fmt.Errorf("failed to fetch requests page %d: %w", page, err)
		}

		if page == 1 && result.PageInfo.Pages > 0 {
			totalPages = result.PageInfo.Pages
		}
		for _, request := range result.Results {
			// Only TV requests are relevant to show reconciliation
			if request.Media.TVDBID != 0 || request.Media.MediaType == "tv" {
				all = append(all, request)
			}
		}
		page++
	}

	c.logger.WithField("count", len(all)).Debug("Fetched Overseerr TV requests")
	c.requests = all
	c.fetched = true
	return all, nil
}

// findEndpoint probes the known request endpoint layouts; some deployments
// serve the API behind a path prefix
func (c *Client) findEndpoint(ctx context.Context) (string, error) {
	if c.endpoint != "" {
		return c.endpoint, nil
	}

	for _, endpoint := range []string{c.baseURL + "/api/v1/request", c.baseURL + "/request"} {
		var probe requestsPage
		err := c.get(ctx, endpoint, url.Values{"take": {"1"}}, &probe)
		if err == nil {
			c.logger.WithField("endpoint", endpoint).Debug("Found working Overseerr endpoint")
			c.endpoint = endpoint
			return endpoint, nil
		}
		c.logger.WithError(err).WithField("endpoint", endpoint).Debug("Overseerr endpoint probe failed")
	}
	return "", fmt.Errorf("no working overseerr API endpoint found, check URL and API key")
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, result interface{}) error {
	if err := c.limiter.Acquire(ctx, models.SourceOverseerr); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("overseerr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("overseerr API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode overseerr response: %w", err)
	}
	return nil
}

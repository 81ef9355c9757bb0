package plex

import (
	"context"
	"encoding/xml"
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

// Client handles communication with the Plex media server API
type Client struct {
	baseURL    string
	token      string
	library    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *logrus.Logger
}

// NewClient creates a new Plex client
func NewClient(cfg *config.Config, limiter *ratelimit.Limiter, logger *logrus.Logger) (*Client, error) {
	if cfg.PlexURL == "" {
		return nil, fmt.Errorf("plex URL is required")
	}
	if cfg.PlexToken == "" {
		return nil, fmt.Errorf("plex token is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.PlexURL, "/"),
		token:      cfg.PlexToken,
		library:    cfg.PlexLibrary,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// MediaContainer is the root element of every Plex API response
type MediaContainer struct {
	XMLName     xml.Name    `xml:"MediaContainer"`
	Size        int         `xml:"size,attr"`
	Directories []Directory `xml:"Directory"`
	Videos      []Video     `xml:"Video"`
}

// Directory represents a library section, show or season
type Directory struct {
	RatingKey string `xml:"ratingKey,attr"`
	Key       string `xml:"key,attr"`
	Type      string `xml:"type,attr"`
	Title     string `xml:"title,attr"`
	Year      int    `xml:"year,attr"`
	GUID      string `xml:"guid,attr"`
	Index     int    `xml:"index,attr"`
	LeafCount int    `xml:"leafCount,attr"`
}

// Video represents an episode or a history entry
type Video struct {
	RatingKey string  `xml:"ratingKey,attr"`
	Type      string  `xml:"type,attr"`
	Title     string  `xml:"title,attr"`
	Index     int     `xml:"index,attr"`
	ViewedAt  int64   `xml:"viewedAt,attr"`
	Media     []Media `xml:"Media"`
}

// Media is one media version of an episode
type Media struct {
	Parts []Part `xml:"Part"`
}

// Part is one file of a media version
type Part struct {
	File string `xml:"file,attr"`
	Size int64  `xml:"size,attr"`
}

// get performs a rate-limited GET and decodes the XML response
func (c *Client) get(ctx context.Context, path string, query url.Values, result *MediaContainer) error {
	return c.do(ctx, http.MethodGet, path, query, result)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, result *MediaContainer) error {
	if err := c.limiter.Acquire(ctx, models.SourcePlex); err != nil {
		return err
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    fullURL,
	}).Debug("Making Plex API request")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Plex-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("plex request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("plex API returned status %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := xml.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to parse plex response: %w", err)
		}
	}
	return nil
}

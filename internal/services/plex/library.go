package plex

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/amaumene/showsweep/internal/models"
)

// ShowEntry is one show as discovered in the Plex library, including its
// downloaded season/episode inventory
type ShowEntry struct {
	RatingKey string
	Title     string
	Year      int
	GUID      string
	Path      string
	Seasons   []models.Season
}

// ListShows returns every show in the configured library section with its
// full season and episode inventory
func (c *Client) ListShows(ctx context.Context) ([]*ShowEntry, error) {
	sectionKey, err := c.findSection(ctx)
	if err != nil {
		return nil, err
	}

	var container MediaContainer
	query := url.Values{"type": {"2"}}
	if err := c.get(ctx, "/library/sections/"+sectionKey+"/all", query, &container); err != nil {
		return nil, fmt.Errorf("failed to list shows: %w", err)
	}

	shows := make([]*ShowEntry, 0, len(container.Directories))
	for _, dir := range container.Directories {
		seasons, path, err := c.seasons(ctx, dir.RatingKey)
		if err != nil {
			c.logger.WithError(err).WithField("title", dir.Title).Error("Failed to fetch seasons")
			return nil, err
		}

		c.logger.WithField("title", dir.Title).Debug("Discovered show")
		shows = append(shows, &ShowEntry{
			RatingKey: dir.RatingKey,
			Title:     dir.Title,
			Year:      dir.Year,
			GUID:      dir.GUID,
			Path:      path,
			Seasons:   seasons,
		})
	}

	c.logger.WithField("count", len(shows)).Debug("Plex library listing completed")
	return shows, nil
}

// seasons fetches the season inventory of one show. The show's library path
// is derived from the first episode file seen.
func (c *Client) seasons(ctx context.Context, showRatingKey string) ([]models.Season, string, error) {
	var container MediaContainer
	if err := c.get(ctx, "/library/metadata/"+showRatingKey+"/children", nil, &container); err != nil {
		return nil, "", fmt.Errorf("failed to fetch seasons: %w", err)
	}

	var seasons []models.Season
	var showPath string
	for _, dir := range container.Directories {
		if dir.Type != "season" {
			continue
		}
		season := models.Season{Number: dir.Index}

		var episodes MediaContainer
		if err := c.get(ctx, "/library/metadata/"+dir.RatingKey+"/children", nil, &episodes); err != nil {
			return nil, "", fmt.Errorf("failed to fetch episodes of season %d: %w", dir.Index, err)
		}
		for _, video := range episodes.Videos {
			episode := models.Episode{Number: video.Index}
			for _, media := range video.Media {
				for _, part := range media.Parts {
					episode.SizeBytes += part.Size
					if showPath == "" && part.File != "" {
						// .../Show Name/Season 01/episode.mkv -> .../Show Name
						showPath = filepath.Dir(filepath.Dir(part.File))
					}
				}
			}
			season.SizeBytes += episode.SizeBytes
			season.Episodes = append(season.Episodes, episode)
		}
		seasons = append(seasons, season)
	}
	return seasons, showPath, nil
}

// findSection resolves the configured library name to its section key
func (c *Client) findSection(ctx context.Context) (string, error) {
	var container MediaContainer
	if err := c.get(ctx, "/library/sections", nil, &container); err != nil {
		return "", fmt.Errorf("failed to list library sections: %w", err)
	}

	for _, dir := range container.Directories {
		if dir.Title == c.library {
			return dir.Key, nil
		}
	}
	return "", fmt.Errorf("library section %q not found", c.library)
}

// HasWatchHistory reports whether the show has any play history in Plex
func (c *Client) HasWatchHistory(ctx context.Context, ratingKey string) (bool, error) {
	var container MediaContainer
	query := url.Values{"metadataItemID": {ratingKey}}
	if err := c.get(ctx, "/status/sessions/history/all", query, &container); err != nil {
		return false, fmt.Errorf("failed to fetch plex history: %w", err)
	}
	return container.Size > 0 || len(container.Videos) > 0, nil
}

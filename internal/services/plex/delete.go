package plex

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// DeleteShow deletes the whole show, files included
func (c *Client) DeleteShow(ctx context.Context, ratingKey string) error {
	c.logger.WithField("rating_key", ratingKey).Info("Deleting show from Plex")
	if err := c.do(ctx, "DELETE", "/library/metadata/"+ratingKey, nil, nil); err != nil {
		return fmt.Errorf("failed to delete show %s: %w", ratingKey, err)
	}
	return nil
}

// KeepFirstSeason deletes every season of the show except the first
func (c *Client) KeepFirstSeason(ctx context.Context, ratingKey string) error {
	seasons, err := c.seasonKeys(ctx, ratingKey)
	if err != nil {
		return err
	}
	if len(seasons) == 0 {
		return fmt.Errorf("no seasons found for show %s", ratingKey)
	}

	for _, season := range seasons[1:] {
		c.logger.WithFields(logrus.Fields{
			"rating_key": ratingKey,
			"season":     season.Index,
		}).Info("Deleting season")
		if err := c.do(ctx, "DELETE", "/library/metadata/"+season.RatingKey, nil, nil); err != nil {
			return fmt.Errorf("failed to delete season %d: %w", season.Index, err)
		}
	}
	return nil
}

// KeepFirstEpisode deletes everything except the first episode of the first
// season
func (c *Client) KeepFirstEpisode(ctx context.Context, ratingKey string) error {
	seasons, err := c.seasonKeys(ctx, ratingKey)
	if err != nil {
		return err
	}
	if len(seasons) == 0 {
		return fmt.Errorf("no seasons found for show %s", ratingKey)
	}

	// Trim the first season down to its first episode
	var episodes MediaContainer
	if err := c.get(ctx, "/library/metadata/"+seasons[0].RatingKey+"/children", nil, &episodes); err != nil {
		return fmt.Errorf("failed to fetch episodes: %w", err)
	}
	videos := episodes.Videos
	sort.Slice(videos, func(i, j int) bool { return videos[i].Index < videos[j].Index })
	if len(videos) == 0 {
		return fmt.Errorf("no episodes found in first season of show %s", ratingKey)
	}
	for _, video := range videos[1:] {
		c.logger.WithFields(logrus.Fields{
			"rating_key": ratingKey,
			"episode":    video.Index,
		}).Info("Deleting episode")
		if err := c.do(ctx, "DELETE", "/library/metadata/"+video.RatingKey, nil, nil); err != nil {
			return fmt.Errorf("failed to delete episode %d: %w", video.Index, err)
		}
	}

	// Then drop the remaining seasons entirely
	for _, season := range seasons[1:] {
		if err := c.do(ctx, "DELETE", "/library/metadata/"+season.RatingKey, nil, nil); err != nil {
			return fmt.Errorf("failed to delete season %d: %w", season.Index, err)
		}
	}
	return nil
}

// seasonKeys lists the show's seasons sorted by season number
func (c *Client) seasonKeys(ctx context.Context, ratingKey string) ([]Directory, error) {
	var container MediaContainer
	if err := c.get(ctx, "/library/metadata/"+ratingKey+"/children", nil, &container); err != nil {
		return nil, fmt.Errorf("failed to fetch seasons: %w", err)
	}

	var seasons []Directory
	for _, dir := range container.Directories {
		if dir.Type == "season" {
			seasons = append(seasons, dir)
		}
	}
	sort.Slice(seasons, func(i, j int) bool { return seasons[i].Index < seasons[j].Index })
	return seasons, nil
}

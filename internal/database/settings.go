package database

import (
	"context"

	"github.com/charmbracelet/log"
)

// SiteSettings returns the settings singleton, creating it with defaults if
// it does not exist yet. The row is keyed by a fixed ID, so two concurrent
// first reads cannot produce two rows: the loser of the insert race re-reads
// the winner's record.
func (c *Client) SiteSettings(ctx context.Context) (*SiteSettings, error) {
	settings := SiteSettings{
		ID:          siteSettingsID,
		EmailPort:   587,
		EmailUseTLS: true,
	}
	err := c.db.WithContext(ctx).Where(SiteSettings{ID: siteSettingsID}).FirstOrCreate(&settings).Error
	if err == nil {
		return &settings, nil
	}
	// A concurrent first read may have won the insert race. The key is fixed,
	// so a plain re-read settles it.
	var existing SiteSettings
	if ferr := c.db.WithContext(ctx).First(&existing, siteSettingsID).Error; ferr == nil {
		return &existing, nil
	}
	log.Error("failed to load site settings", "error", err)
	return nil, err
}

// SaveSiteSettings persists the settings singleton. There is no delete
// operation: once created the record is permanent.
func (c *Client) SaveSiteSettings(ctx context.Context, settings *SiteSettings) error {
	settings.ID = siteSettingsID
	if err := c.db.WithContext(ctx).Save(settings).Error; err != nil {
		log.Error("failed to save site settings", "error", err)
		return err
	}
	return nil
}

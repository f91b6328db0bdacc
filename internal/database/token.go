package database

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreatePasswordResetToken issues a new single-use reset token for the user.
func (c *Client) CreatePasswordResetToken(ctx context.Context, userID uint, ttl time.Duration) (*PasswordResetToken, error) {
	token := PasswordResetToken{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := c.db.WithContext(ctx).Create(&token).Error; err != nil {
		log.Error("failed to create password reset token", "error", err)
		return nil, err
	}
	return &token, nil
}

// GetValidResetToken returns the token record when it exists, has not been
// used, and has not expired. Anything else is ErrRecordNotFound to the caller.
func (c *Client) GetValidResetToken(ctx context.Context, token string) (*PasswordResetToken, error) {
	var record PasswordResetToken
	err := c.db.WithContext(ctx).Preload("User").
		Where("token = ? AND used_at IS NULL AND expires_at > ?", token, time.Now()).
		First(&record).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Error("failed to look up reset token", "error", err)
		}
		return nil, err
	}
	return &record, nil
}

// ConsumeResetToken persists the user's new credential and marks the token
// used as one unit. A reset either fully applies or leaves both the password
// and the token untouched, so a half-applied reset can never leave the token
// replayable.
func (c *Client) ConsumeResetToken(ctx context.Context, record *PasswordResetToken, user *User) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Groups").Save(user).Error; err != nil {
			return err
		}
		now := time.Now()
		if err := tx.Model(record).Update("used_at", now).Error; err != nil {
			log.Error("failed to consume reset token", "error", err)
			return err
		}
		record.UsedAt = &now
		return nil
	})
}

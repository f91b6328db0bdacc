package database

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

func (c *Client) CreateUser(ctx context.Context, user *User) error {
	if err := c.db.WithContext(ctx).Create(user).Error; err != nil {
		log.Error("failed to create user", "error", err)
		return err
	}
	return nil
}

func (c *Client) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).Preload("Groups").First(&user, id).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Error("failed to get user by ID", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).Preload("Groups").Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Error("failed to get user by email", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

// SaveUser persists all fields of an existing user.
func (c *Client) SaveUser(ctx context.Context, user *User) error {
	if err := c.db.WithContext(ctx).Save(user).Error; err != nil {
		log.Error("failed to save user", "error", err)
		return err
	}
	return nil
}

// ListUsers returns a page of users ordered by email, optionally filtered by
// a case-insensitive substring match on email or name, plus the total count
// of matching rows.
func (c *Client) ListUsers(ctx context.Context, query string, page, perPage int) ([]User, int64, error) {
	tx := c.db.WithContext(ctx).Model(&User{})
	if query != "" {
		like := "%" + strings.ToLower(query) + "%"
		tx = tx.Where("lower(email) LIKE ? OR lower(name) LIKE ?", like, like)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	var users []User
	if err := tx.Preload("Groups").Order("email").Limit(perPage).Offset((page - 1) * perPage).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// HasActiveStaff reports whether at least one active staff user exists.
func (c *Client) HasActiveStaff(ctx context.Context) (bool, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(&User{}).
		Where("is_staff = ? AND is_active = ?", true, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateUserGuarded persists an admin edit of a user and replaces its group
// memberships. The last-admin check and the write happen inside one
// transaction: if the edit would leave the system without any other active
// staff user, ErrLastAdmin is returned and nothing is persisted.
func (c *Client) UpdateUserGuarded(ctx context.Context, user *User, groups []Group) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !user.IsStaff || !user.IsActive {
			var others int64
			if err := tx.Model(&User{}).
				Where("is_staff = ? AND is_active = ? AND id <> ?", true, true, user.ID).
				Count(&others).Error; err != nil {
				return err
			}
			if others == 0 {
				return ErrLastAdmin
			}
		}
		if err := tx.Omit("Groups").Save(user).Error; err != nil {
			return err
		}
		return tx.Model(user).Association("Groups").Replace(groups)
	})
}

package database

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

func (c *Client) GetGroupByID(ctx context.Context, id uint) (*Group, error) {
	var group Group
	if err := c.db.WithContext(ctx).First(&group, id).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Error("failed to get group by ID", "error", err)
		}
		return nil, err
	}
	return &group, nil
}

func (c *Client) GetGroupsByIDs(ctx context.Context, ids []uint) ([]Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var groups []Group
	if err := c.db.WithContext(ctx).Where("id IN ?", ids).Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// ListGroups returns a page of groups ordered by name, optionally filtered by
// a case-insensitive substring match, plus the total count of matching rows.
func (c *Client) ListGroups(ctx context.Context, query string, page, perPage int) ([]Group, int64, error) {
	tx := c.db.WithContext(ctx).Model(&Group{})
	if query != "" {
		tx = tx.Where("lower(name) LIKE ?", "%"+strings.ToLower(query)+"%")
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	var groups []Group
	if err := tx.Order("name").Limit(perPage).Offset((page - 1) * perPage).Find(&groups).Error; err != nil {
		return nil, 0, err
	}
	return groups, total, nil
}

// ListAllGroups returns every group ordered by name, for membership pickers.
func (c *Client) ListAllGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.db.WithContext(ctx).Order("name").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// SaveGroup creates or renames a group.
func (c *Client) SaveGroup(ctx context.Context, group *Group) error {
	if err := c.db.WithContext(ctx).Save(group).Error; err != nil {
		log.Error("failed to save group", "error", err)
		return err
	}
	return nil
}

// DeleteGroup removes a group and its membership rows.
func (c *Client) DeleteGroup(ctx context.Context, id uint) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group := Group{Model: gorm.Model{ID: id}}
		if err := tx.Model(&group).Association("Users").Clear(); err != nil {
			return err
		}
		return tx.Delete(&group).Error
	})
}

// Package tags 标签到辩题ID的只追加反向索引
package tags

import (
	"context"
	"fmt"
	"regexp"

	"curation-governance-backend/database"
	"curation-governance-backend/models"
	"curation-governance-backend/settings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Index 标签索引
type Index struct {
	db       *gorm.DB
	settings *settings.Registry
	log      *zap.Logger
}

// New 创建标签索引，长度限制从设置中读取
func New(db *gorm.DB, s *settings.Registry, log *zap.Logger) *Index {
	return &Index{db: db, settings: s, log: log}
}

// Validate 校验标签格式和设置中的长度范围
func (x *Index) Validate(ctx context.Context, tag string) error {
	minLen, err := x.settings.GetInt(ctx, settings.KeyMinTagLength)
	if err != nil {
		return err
	}
	maxLen, err := x.settings.GetInt(ctx, settings.KeyMaxTagLength)
	if err != nil {
		return err
	}
	n := uint64(len(tag))
	if n < minLen || (maxLen > 0 && n > maxLen) {
		return fmt.Errorf("%w: %q must be %d to %d characters", models.ErrInvalidTag, tag, minLen, maxLen)
	}
	if !tagPattern.MatchString(tag) {
		return fmt.Errorf("%w: %q", models.ErrInvalidTag, tag)
	}
	return nil
}

// AddIDWithTag 登记带标签的辩题，仅配置的辩题地址可调用
func (x *Index) AddIDWithTag(ctx context.Context, caller models.Address, tag string, id uint64) error {
	allowed, err := x.settings.GetAddress(ctx, settings.KeyAddressDebates)
	if err != nil {
		return err
	}
	if allowed.IsZero() || caller != allowed {
		return models.ErrUnauthorized
	}
	if err := x.Validate(ctx, tag); err != nil {
		return err
	}
	entry := models.TagEntry{Tag: tag, EntityID: id}
	if err := database.Conn(ctx, x.db).Create(&entry).Error; err != nil {
		return fmt.Errorf("写入标签失败: %w", err)
	}
	x.log.Debug("tagged", zap.String("tag", tag), zap.Uint64("id", id))
	return nil
}

// GetIDsForTag 分页查询标签下的辩题ID
func (x *Index) GetIDsForTag(ctx context.Context, tag string, offset, limit int) (models.Page, error) {
	count, err := x.GetIDsCountForTag(ctx, tag)
	if err != nil {
		return models.Page{}, err
	}
	page := models.Page{Values: []uint64{}, Count: int(count), Offset: offset, Limit: limit}
	if offset < 0 || limit <= 0 {
		return page, nil
	}
	err = database.Conn(ctx, x.db).Model(&models.TagEntry{}).
		Where("tag = ?", tag).Order("id asc").
		Offset(offset).Limit(limit).
		Pluck("entity_id", &page.Values).Error
	return page, err
}

// GetIDsCountForTag 标签下的辩题数量
func (x *Index) GetIDsCountForTag(ctx context.Context, tag string) (int64, error) {
	var count int64
	err := database.Conn(ctx, x.db).Model(&models.TagEntry{}).Where("tag = ?", tag).Count(&count).Error
	return count, err
}

// Package access 由所有者维护的白名单，限制谁可以驱动投票账本
package access

import (
	"context"
	"errors"
	"fmt"

	"curation-governance-backend/database"
	"curation-governance-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry 一个具名白名单，多个白名单共用同一张表
type Registry struct {
	db    *gorm.DB
	name  string
	owner models.Address
	log   *zap.Logger
}

// New 创建名为name的白名单，owner为唯一管理者
func New(db *gorm.DB, name string, owner models.Address, log *zap.Logger) *Registry {
	return &Registry{db: db, name: name, owner: owner, log: log.With(zap.String("registry", name))}
}

// GrantAccess 将target加入白名单，仅所有者可调用
func (r *Registry) GrantAccess(ctx context.Context, caller, target models.Address) error {
	if caller != r.owner {
		return models.ErrUnauthorized
	}
	grant := models.AccessGrant{Registry: r.name, Caller: target}
	err := database.Conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&grant).Error
	if err != nil {
		return fmt.Errorf("授权失败: %w", err)
	}
	r.log.Info("access granted", zap.String("caller", target.String()))
	return nil
}

// DenyAccess 将target移出白名单，仅所有者可调用
func (r *Registry) DenyAccess(ctx context.Context, caller, target models.Address) error {
	if caller != r.owner {
		return models.ErrUnauthorized
	}
	err := database.Conn(ctx, r.db).
		Where("registry = ? AND caller = ?", r.name, target).
		Delete(&models.AccessGrant{}).Error
	if err != nil {
		return fmt.Errorf("撤销授权失败: %w", err)
	}
	r.log.Info("access denied", zap.String("caller", target.String()))
	return nil
}

// HasAccess 判断caller是否在白名单中
func (r *Registry) HasAccess(ctx context.Context, caller models.Address) (bool, error) {
	var grant models.AccessGrant
	err := database.Conn(ctx, r.db).
		Where("registry = ? AND caller = ?", r.name, caller).
		Take(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Require caller不在白名单时返回ErrUnauthorized
func (r *Registry) Require(ctx context.Context, caller models.Address) error {
	ok, err := r.HasAccess(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s may not use %s", models.ErrUnauthorized, caller, r.name)
	}
	return nil
}

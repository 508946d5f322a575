// Package bank 保存原生资产余额，是结算层的转账原语
package bank

import (
	"context"
	"errors"
	"fmt"

	"curation-governance-backend/database"
	"curation-governance-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Bank 原生资产账本
type Bank struct {
	db    *gorm.DB
	owner models.Address
	log   *zap.Logger
}

// New 创建账本，owner可以铸造原生资产
func New(db *gorm.DB, owner models.Address, log *zap.Logger) *Bank {
	return &Bank{db: db, owner: owner, log: log}
}

// BalanceOf 查询余额，未知账户返回零
func (b *Bank) BalanceOf(ctx context.Context, addr models.Address) (models.Amount, error) {
	acct, err := b.load(database.Conn(ctx, b.db), addr)
	if err != nil {
		return models.ZeroAmount, err
	}
	return acct.Balance, nil
}

// Credit 铸造原生资产，仅所有者可调用
func (b *Bank) Credit(ctx context.Context, caller, to models.Address, amount models.Amount) error {
	if caller != b.owner {
		return models.ErrUnauthorized
	}
	return database.Atomic(ctx, b.db, func(ctx context.Context, tx *gorm.DB) error {
		acct, err := b.load(database.ForUpdate(tx), to)
		if err != nil {
			return err
		}
		if acct.Balance, err = acct.Balance.Add(amount); err != nil {
			return err
		}
		if err := tx.Save(&acct).Error; err != nil {
			return fmt.Errorf("入账失败: %w", err)
		}
		b.log.Debug("credited", zap.String("to", to.String()), zap.Stringer("amount", amount))
		return nil
	})
}

// Transfer 精确转账，余额不足返回ErrInsufficientFunds
func (b *Bank) Transfer(ctx context.Context, from, to models.Address, amount models.Amount) error {
	if amount.IsZero() || from == to {
		return nil
	}
	return database.Atomic(ctx, b.db, func(ctx context.Context, tx *gorm.DB) error {
		src, err := b.load(database.ForUpdate(tx), from)
		if err != nil {
			return err
		}
		if src.Balance, err = src.Balance.Sub(amount); err != nil {
			return fmt.Errorf("%w: %s holds less than %s", models.ErrInsufficientFunds, from, amount)
		}
		dst, err := b.load(database.ForUpdate(tx), to)
		if err != nil {
			return err
		}
		if dst.Balance, err = dst.Balance.Add(amount); err != nil {
			return err
		}
		if err := tx.Save(&src).Error; err != nil {
			return fmt.Errorf("转账失败: %w", err)
		}
		if err := tx.Save(&dst).Error; err != nil {
			return fmt.Errorf("转账失败: %w", err)
		}
		return nil
	})
}

func (b *Bank) load(tx *gorm.DB, addr models.Address) (models.Account, error) {
	var acct models.Account
	err := tx.Where("address = ?", addr).Take(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Account{Address: addr}, nil
	}
	if err != nil {
		return acct, fmt.Errorf("读取账户失败: %w", err)
	}
	return acct, nil
}

// Package token 治理质押使用的联合曲线代币。Mint支付的原生资产保存在
// 银行的代币储备账户中
package token

import (
	"context"
	"errors"
	"fmt"

	"curation-governance-backend/bank"
	"curation-governance-backend/database"
	"curation-governance-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReserveAccount 保存支撑供应量的原生资产
const ReserveAccount = models.Address("token:reserve")

const stateID = 1

// ErrNotInitialized 代币尚未初始化
var ErrNotInitialized = errors.New("token not initialized")

// Genesis 初始参数
type Genesis struct {
	Name           string
	Symbol         string
	ReserveRatio   uint32
	InitialSupply  models.Amount
	InitialReserve models.Amount
}

// Token 联合曲线代币
type Token struct {
	db    *gorm.DB
	bank  *bank.Bank
	owner models.Address
	log   *zap.Logger
}

// New 创建代币，owner负责初始化
func New(db *gorm.DB, b *bank.Bank, owner models.Address, log *zap.Logger) *Token {
	return &Token{db: db, bank: b, owner: owner, log: log.With(zap.String("component", "token"))}
}

// Init 以初始储备铸造初始供应量给所有者，重复调用无效果
func (t *Token) Init(ctx context.Context, caller models.Address, g Genesis) error {
	if caller != t.owner {
		return models.ErrUnauthorized
	}
	if g.InitialSupply.IsZero() || g.InitialReserve.IsZero() {
		return fmt.Errorf("%w: genesis needs supply and reserve", models.ErrInvalidAmount)
	}
	if g.ReserveRatio == 0 || g.ReserveRatio > MaxReserveRatio {
		return fmt.Errorf("%w: reserve ratio %d", models.ErrInvalidSetting, g.ReserveRatio)
	}
	return database.Atomic(ctx, t.db, func(ctx context.Context, tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.TokenState{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := t.bank.Credit(ctx, t.owner, ReserveAccount, g.InitialReserve); err != nil {
			return err
		}
		state := models.TokenState{
			ID:             stateID,
			Name:           g.Name,
			Symbol:         g.Symbol,
			Owner:          t.owner,
			TotalSupply:    g.InitialSupply,
			ReserveBalance: g.InitialReserve,
			ReserveRatio:   g.ReserveRatio,
		}
		if err := tx.Create(&state).Error; err != nil {
			return fmt.Errorf("创建代币失败: %w", err)
		}
		if err := t.credit(tx, t.owner, g.InitialSupply); err != nil {
			return err
		}
		t.log.Info("token initialized",
			zap.String("symbol", g.Symbol),
			zap.Stringer("supply", g.InitialSupply),
			zap.Stringer("reserve", g.InitialReserve))
		return nil
	})
}

// Mint 从buyer支付value到储备并返回铸造的代币数量
func (t *Token) Mint(ctx context.Context, buyer models.Address, value models.Amount) (models.Amount, error) {
	if value.IsZero() {
		return models.ZeroAmount, fmt.Errorf("%w: mint requires value", models.ErrInvalidAmount)
	}
	var minted models.Amount
	err := database.Atomic(ctx, t.db, func(ctx context.Context, tx *gorm.DB) error {
		state, err := t.state(database.ForUpdate(tx))
		if err != nil {
			return err
		}
		minted, err = PurchaseReturn(state.TotalSupply, state.ReserveBalance, state.ReserveRatio, value)
		if err != nil {
			return err
		}
		if err := t.bank.Transfer(ctx, buyer, ReserveAccount, value); err != nil {
			return err
		}
		if state.TotalSupply, err = state.TotalSupply.Add(minted); err != nil {
			return err
		}
		if state.ReserveBalance, err = state.ReserveBalance.Add(value); err != nil {
			return err
		}
		if err := tx.Save(&state).Error; err != nil {
			return err
		}
		return t.credit(tx, buyer, minted)
	})
	if err != nil {
		return models.ZeroAmount, err
	}
	t.log.Debug("minted", zap.String("buyer", buyer.String()), zap.Stringer("value", value), zap.Stringer("tokens", minted))
	return minted, nil
}

// Burn 销毁holder的代币并退还原生资产
func (t *Token) Burn(ctx context.Context, holder models.Address, amount models.Amount) (models.Amount, error) {
	if amount.IsZero() {
		return models.ZeroAmount, fmt.Errorf("%w: burn requires an amount", models.ErrInvalidAmount)
	}
	var refund models.Amount
	err := database.Atomic(ctx, t.db, func(ctx context.Context, tx *gorm.DB) error {
		state, err := t.state(database.ForUpdate(tx))
		if err != nil {
			return err
		}
		if err := t.debit(tx, holder, amount); err != nil {
			return err
		}
		refund, err = SaleReturn(state.TotalSupply, state.ReserveBalance, state.ReserveRatio, amount)
		if err != nil {
			return err
		}
		if state.TotalSupply, err = state.TotalSupply.Sub(amount); err != nil {
			return err
		}
		if state.ReserveBalance, err = state.ReserveBalance.Sub(refund); err != nil {
			return err
		}
		if err := tx.Save(&state).Error; err != nil {
			return err
		}
		return t.bank.Transfer(ctx, ReserveAccount, holder, refund)
	})
	if err != nil {
		return models.ZeroAmount, err
	}
	t.log.Debug("burned", zap.String("holder", holder.String()), zap.Stringer("tokens", amount), zap.Stringer("refund", refund))
	return refund, nil
}

// Transfer 代币转账
func (t *Token) Transfer(ctx context.Context, from, to models.Address, amount models.Amount) error {
	return database.Atomic(ctx, t.db, func(ctx context.Context, tx *gorm.DB) error {
		return t.move(tx, from, to, amount)
	})
}

// Approve 设置（而非累加）spender对owner余额的授权额度
func (t *Token) Approve(ctx context.Context, owner, spender models.Address, amount models.Amount) error {
	allowance := models.TokenAllowance{Owner: owner, Spender: spender, Amount: amount}
	return database.Conn(ctx, t.db).Save(&allowance).Error
}

// Allowance 查询授权额度
func (t *Token) Allowance(ctx context.Context, owner, spender models.Address) (models.Amount, error) {
	var a models.TokenAllowance
	err := database.Conn(ctx, t.db).Where("owner = ? AND spender = ?", owner, spender).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ZeroAmount, nil
	}
	return a.Amount, err
}

// TransferFrom spender代from转账并消耗授权
func (t *Token) TransferFrom(ctx context.Context, spender, from, to models.Address, amount models.Amount) error {
	return database.Atomic(ctx, t.db, func(ctx context.Context, tx *gorm.DB) error {
		var a models.TokenAllowance
		err := database.ForUpdate(tx).Where("owner = ? AND spender = ?", from, spender).Take(&a).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		left, err := a.Amount.Sub(amount)
		if err != nil {
			return fmt.Errorf("%w: allowance of %s for %s is %s", models.ErrInsufficientFunds, spender, from, a.Amount)
		}
		a.Owner, a.Spender, a.Amount = from, spender, left
		if err := tx.Save(&a).Error; err != nil {
			return err
		}
		return t.move(tx, from, to, amount)
	})
}

// BalanceOf 代币余额
func (t *Token) BalanceOf(ctx context.Context, holder models.Address) (models.Amount, error) {
	b, err := t.balance(database.Conn(ctx, t.db), holder)
	return b.Balance, err
}

// Info 返回曲线状态
func (t *Token) Info(ctx context.Context) (models.TokenState, error) {
	return t.state(database.Conn(ctx, t.db))
}

// TotalSupply 总供应量
func (t *Token) TotalSupply(ctx context.Context) (models.Amount, error) {
	s, err := t.Info(ctx)
	return s.TotalSupply, err
}

// ReserveBalance 储备余额
func (t *Token) ReserveBalance(ctx context.Context) (models.Amount, error) {
	s, err := t.Info(ctx)
	return s.ReserveBalance, err
}

// ReserveRatio 储备率，单位为百万分之一
func (t *Token) ReserveRatio(ctx context.Context) (uint32, error) {
	s, err := t.Info(ctx)
	return s.ReserveRatio, err
}

func (t *Token) state(tx *gorm.DB) (models.TokenState, error) {
	var s models.TokenState
	err := tx.Where("id = ?", stateID).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s, ErrNotInitialized
	}
	return s, err
}

func (t *Token) balance(tx *gorm.DB, holder models.Address) (models.TokenBalance, error) {
	var b models.TokenBalance
	err := tx.Where("holder = ?", holder).Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.TokenBalance{Holder: holder}, nil
	}
	return b, err
}

func (t *Token) credit(tx *gorm.DB, holder models.Address, amount models.Amount) error {
	b, err := t.balance(database.ForUpdate(tx), holder)
	if err != nil {
		return err
	}
	if b.Balance, err = b.Balance.Add(amount); err != nil {
		return err
	}
	return tx.Save(&b).Error
}

func (t *Token) debit(tx *gorm.DB, holder models.Address, amount models.Amount) error {
	b, err := t.balance(database.ForUpdate(tx), holder)
	if err != nil {
		return err
	}
	if b.Balance, err = b.Balance.Sub(amount); err != nil {
		return fmt.Errorf("%w: %s holds less than %s tokens", models.ErrInsufficientFunds, holder, amount)
	}
	return tx.Save(&b).Error
}

func (t *Token) move(tx *gorm.DB, from, to models.Address, amount models.Amount) error {
	if amount.IsZero() || from == to {
		return nil
	}
	if err := t.debit(tx, from, amount); err != nil {
		return err
	}
	return t.credit(tx, to, amount)
}

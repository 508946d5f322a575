// Package escrow 代组件托管资产。投票账本、策展市场和治理流程只依赖
// Escrow接口，不关心底层介质
package escrow

import (
	"context"
	"errors"
	"fmt"

	"curation-governance-backend/bank"
	"curation-governance-backend/models"
	"curation-governance-backend/token"
)

// Escrow 托管账户
type Escrow interface {
	// Account 托管地址
	Account() models.Address
	// Deposit 从from精确转入amount
	Deposit(ctx context.Context, from models.Address, amount models.Amount) error
	// Release 从托管中支付amount
	Release(ctx context.Context, to models.Address, amount models.Amount) error
	Balance(ctx context.Context) (models.Amount, error)
}

// wrapDeposit 将转入失败视为未支付质押
func wrapDeposit(err error) error {
	if errors.Is(err, models.ErrInsufficientFunds) {
		return fmt.Errorf("%w: %v", models.ErrInsufficientStake, err)
	}
	return err
}

// Native 以银行账户托管原生资产
type Native struct {
	bank    *bank.Bank
	account models.Address
}

// NewNative 创建以account为托管账户的原生资产托管
func NewNative(b *bank.Bank, account models.Address) *Native {
	return &Native{bank: b, account: account}
}

// Account 托管账户地址
func (e *Native) Account() models.Address { return e.account }

// Deposit 从from转入托管
func (e *Native) Deposit(ctx context.Context, from models.Address, amount models.Amount) error {
	return wrapDeposit(e.bank.Transfer(ctx, from, e.account, amount))
}

// Release 从托管转出给to
func (e *Native) Release(ctx context.Context, to models.Address, amount models.Amount) error {
	return e.bank.Transfer(ctx, e.account, to, amount)
}

// Balance 托管余额
func (e *Native) Balance(ctx context.Context) (models.Amount, error) {
	return e.bank.BalanceOf(ctx, e.account)
}

// Token 以代币余额托管。存入方需先向托管账户授权，Deposit消耗该授权
type Token struct {
	token   *token.Token
	account models.Address
}

// NewToken 创建以account为托管账户的代币托管
func NewToken(t *token.Token, account models.Address) *Token {
	return &Token{token: t, account: account}
}

// Account 托管账户地址
func (e *Token) Account() models.Address { return e.account }

// Deposit 通过授权从from转入托管
func (e *Token) Deposit(ctx context.Context, from models.Address, amount models.Amount) error {
	return wrapDeposit(e.token.TransferFrom(ctx, e.account, from, e.account, amount))
}

// Release 从托管转出给to
func (e *Token) Release(ctx context.Context, to models.Address, amount models.Amount) error {
	return e.token.Transfer(ctx, e.account, to, amount)
}

// Balance 托管余额
func (e *Token) Balance(ctx context.Context) (models.Amount, error) {
	return e.token.BalanceOf(ctx, e.account)
}

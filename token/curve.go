package token

import (
	"fmt"

	"curation-governance-backend/models"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MaxReserveRatio 以百万分之一表示的100%
const MaxReserveRatio = 1000000

// 分数次幂运算时保留的小数位数，结果再舍入到powRound位以去除级数误差
const (
	powPrecision = 40
	powRound     = 30
)

var one = decimal.NewFromInt(1)

// PurchaseReturn Bancor购买公式:
//
//	supply * ((1 + deposit/reserveBalance) ^ (reserveRatio/1e6) - 1)
//
// 结果向零截断
func PurchaseReturn(supply, reserveBalance models.Amount, reserveRatio uint32, deposit models.Amount) (models.Amount, error) {
	if err := checkCurve(supply, reserveBalance, reserveRatio); err != nil {
		return models.ZeroAmount, err
	}
	if deposit.IsZero() {
		return models.ZeroAmount, nil
	}
	if reserveRatio == MaxReserveRatio {
		return supply.MulDiv(deposit, reserveBalance)
	}

	s, r, d := toDecimal(supply), toDecimal(reserveBalance), toDecimal(deposit)
	base := one.Add(d.DivRound(r, powPrecision))
	exp := decimal.New(int64(reserveRatio), -6)
	pow, err := base.PowWithPrecision(exp, powPrecision)
	if err != nil {
		return models.ZeroAmount, fmt.Errorf("计算购买数量失败: %w", err)
	}
	return fromDecimal(s.Mul(pow.Round(powRound).Sub(one)))
}

// SaleReturn 购买公式的逆运算:
//
//	reserveBalance * (1 - (1 - amount/supply) ^ (1e6/reserveRatio))
//
// 卖出全部供应量时返回全部储备
func SaleReturn(supply, reserveBalance models.Amount, reserveRatio uint32, amount models.Amount) (models.Amount, error) {
	if err := checkCurve(supply, reserveBalance, reserveRatio); err != nil {
		return models.ZeroAmount, err
	}
	if amount.Gt(supply) {
		return models.ZeroAmount, fmt.Errorf("%w: sale of %s exceeds supply %s", models.ErrInsufficientFunds, amount, supply)
	}
	if amount.IsZero() {
		return models.ZeroAmount, nil
	}
	if amount.Eq(supply) {
		return reserveBalance, nil
	}
	if reserveRatio == MaxReserveRatio {
		return reserveBalance.MulDiv(amount, supply)
	}

	s, r, a := toDecimal(supply), toDecimal(reserveBalance), toDecimal(amount)
	base := one.Sub(a.DivRound(s, powPrecision))
	exp := decimal.NewFromInt(MaxReserveRatio).DivRound(decimal.NewFromInt(int64(reserveRatio)), powPrecision)
	pow, err := base.PowWithPrecision(exp, powPrecision)
	if err != nil {
		return models.ZeroAmount, fmt.Errorf("计算出售金额失败: %w", err)
	}
	out, err := fromDecimal(r.Mul(one.Sub(pow.Round(powRound))))
	if err != nil {
		return models.ZeroAmount, err
	}
	if out.Gt(reserveBalance) {
		return reserveBalance, nil
	}
	return out, nil
}

func checkCurve(supply, reserveBalance models.Amount, reserveRatio uint32) error {
	if supply.IsZero() || reserveBalance.IsZero() {
		return fmt.Errorf("%w: curve has no supply or reserve", models.ErrInvalidAmount)
	}
	if reserveRatio == 0 || reserveRatio > MaxReserveRatio {
		return fmt.Errorf("%w: reserve ratio %d", models.ErrInvalidSetting, reserveRatio)
	}
	return nil
}

func toDecimal(a models.Amount) decimal.Decimal {
	return decimal.NewFromBigInt(a.Int().ToBig(), 0)
}

func fromDecimal(d decimal.Decimal) (models.Amount, error) {
	if d.IsNegative() {
		return models.ZeroAmount, nil
	}
	v, overflow := uint256.FromBig(d.Truncate(0).BigInt())
	if overflow {
		return models.ZeroAmount, models.ErrAmountOverflow
	}
	return models.AmountFromInt(v), nil
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Amount 无符号256位金额，数据库中以十进制字符串保存
type Amount struct {
	u uint256.Int
}

// ZeroAmount 零金额
var ZeroAmount = Amount{}

// NewAmount 从uint64创建金额
func NewAmount(v uint64) Amount {
	var a Amount
	a.u.SetUint64(v)
	return a
}

// AmountFromInt 从uint256创建金额（复制）
func AmountFromInt(v *uint256.Int) Amount {
	var a Amount
	if v != nil {
		a.u.Set(v)
	}
	return a
}

// ParseAmount 解析十进制金额字符串
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroAmount, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return ZeroAmount, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return AmountFromInt(v), nil
}

// MustAmount 解析金额，失败时panic，仅用于常量和测试
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Int 返回底层整数的副本
func (a Amount) Int() *uint256.Int {
	return a.u.Clone()
}

func (a Amount) IsZero() bool { return a.u.IsZero() }

func (a Amount) Cmp(b Amount) int { return a.u.Cmp(&b.u) }

func (a Amount) Eq(b Amount) bool { return a.u.Eq(&b.u) }

func (a Amount) Lt(b Amount) bool { return a.u.Lt(&b.u) }

func (a Amount) Gt(b Amount) bool { return a.u.Gt(&b.u) }

// Add 加法，溢出返回ErrAmountOverflow
func (a Amount) Add(b Amount) (Amount, error) {
	var r Amount
	if _, overflow := r.u.AddOverflow(&a.u, &b.u); overflow {
		return ZeroAmount, ErrAmountOverflow
	}
	return r, nil
}

// Sub 减法，不足返回ErrInsufficientFunds
func (a Amount) Sub(b Amount) (Amount, error) {
	var r Amount
	if _, underflow := r.u.SubOverflow(&a.u, &b.u); underflow {
		return ZeroAmount, ErrInsufficientFunds
	}
	return r, nil
}

// MulDiv 计算 a*num/den，向零截断；den为零时结果为零
func (a Amount) MulDiv(num, den Amount) (Amount, error) {
	if den.IsZero() {
		return ZeroAmount, nil
	}
	var r Amount
	if _, overflow := r.u.MulDivOverflow(&a.u, &num.u, &den.u); overflow {
		return ZeroAmount, ErrAmountOverflow
	}
	return r, nil
}

// Fraction 按分数计算份额
func (a Amount) Fraction(f Fraction) (Amount, error) {
	return a.MulDiv(NewAmount(f.Numerator), NewAmount(f.Denominator))
}

func (a Amount) String() string { return a.u.Dec() }

// Value 实现driver.Valuer
func (a Amount) Value() (driver.Value, error) {
	return a.u.Dec(), nil
}

// Scan 实现sql.Scanner
func (a *Amount) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case nil:
		a.u.Clear()
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("%w: negative %d", ErrInvalidAmount, v)
		}
		a.u.SetUint64(uint64(v))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// GormDataType 数据库列类型
func (Amount) GormDataType() string {
	return "varchar(80)"
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.u.Dec())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Fraction 分子/分母形式的费率
type Fraction struct {
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
}

// IsZero 分母为零或分子为零都视为零
func (f Fraction) IsZero() bool {
	return f.Denominator == 0 || f.Numerator == 0
}

// Valid 分数不能大于1
func (f Fraction) Valid() bool {
	return f.Denominator == 0 || f.Numerator <= f.Denominator
}

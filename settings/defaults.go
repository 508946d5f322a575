package settings

import (
	"context"
	"fmt"
	"math/big"

	"curation-governance-backend/database"
	"curation-governance-backend/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Defaults 启动时写入的设置
type Defaults struct {
	Debates    models.Address
	Opinions   models.Address
	Government models.Address
	Dev        models.Address

	MinTagLength   uint64
	MaxTagLength   uint64
	DebateMinStake uint64

	DebateVoterReward  models.Fraction
	OpinionVoterReward models.Fraction
	OpinionCreator     models.Fraction
	DebateCreator      models.Fraction
	DevFee             models.Fraction
}

// DefaultValues 按给定组件地址返回默认经济参数
func DefaultValues(debates, government, dev models.Address) Defaults {
	return Defaults{
		Debates:            debates,
		Opinions:           debates,
		Government:         government,
		Dev:                dev,
		MinTagLength:       3,
		MaxTagLength:       32,
		DebateMinStake:     100,
		DebateVoterReward:  models.Fraction{Numerator: 1, Denominator: 10},
		OpinionVoterReward: models.Fraction{Numerator: 1, Denominator: 10},
		OpinionCreator:     models.Fraction{Numerator: 1, Denominator: 2},
		DebateCreator:      models.Fraction{Numerator: 1, Denominator: 10},
		DevFee:             models.Fraction{Numerator: 1, Denominator: 20},
	}
}

// Validate 检查任一质押都不会被重复支付。被取代的观点支付自身投票者、
// 新的顶部观点创建者、辩题创建者和开发费；被取代的辩题支付自身投票者、
// 第一个被接受观点的创建者和开发费
func (d Defaults) Validate() error {
	if err := d.validatePayouts(); err != nil {
		return err
	}
	if d.MinTagLength > d.MaxTagLength {
		return fmt.Errorf("%w: MIN_TAG_LENGTH above MAX_TAG_LENGTH", models.ErrInvalidSetting)
	}
	return nil
}

func (d Defaults) validatePayouts() error {
	opinion := sumFractions(d.OpinionVoterReward, d.OpinionCreator, d.DebateCreator, d.DevFee)
	if opinion.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: opinion payouts exceed the stake", models.ErrInvalidSetting)
	}
	debate := sumFractions(d.DebateVoterReward, d.OpinionCreator, d.DevFee)
	if debate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: debate payouts exceed the stake", models.ErrInvalidSetting)
	}
	return nil
}

func sumFractions(fs ...models.Fraction) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fs {
		if f.IsZero() {
			continue
		}
		n := decimal.NewFromBigInt(new(big.Int).SetUint64(f.Numerator), 0)
		d := decimal.NewFromBigInt(new(big.Int).SetUint64(f.Denominator), 0)
		total = total.Add(n.DivRound(d, 18))
	}
	return total
}

// SeedDefaults 在一个事务中写入d
func (r *Registry) SeedDefaults(ctx context.Context, d Defaults) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return database.Atomic(ctx, r.db, func(ctx context.Context, _ *gorm.DB) error {
		addresses := map[string]models.Address{
			KeyAddressDebates:    d.Debates,
			KeyAddressOpinions:   d.Opinions,
			KeyAddressGovernment: d.Government,
			KeyAddressDev:        d.Dev,
		}
		for k, v := range addresses {
			if err := r.SetAddress(ctx, r.owner, k, v); err != nil {
				return err
			}
		}
		ints := map[string]uint64{
			KeyMinTagLength:   d.MinTagLength,
			KeyMaxTagLength:   d.MaxTagLength,
			KeyDebateMinStake: d.DebateMinStake,
		}
		for k, v := range ints {
			if err := r.SetInt(ctx, r.owner, k, v); err != nil {
				return err
			}
		}
		fractions := map[string]models.Fraction{
			FractionDebateVoterReward:  d.DebateVoterReward,
			FractionOpinionVoterReward: d.OpinionVoterReward,
			FractionOpinionCreator:     d.OpinionCreator,
			FractionDebateCreator:      d.DebateCreator,
			FractionDevFee:             d.DevFee,
		}
		for k, v := range fractions {
			if err := r.setFraction(ctx, r.owner, k, v); err != nil {
				return err
			}
		}
		if err := r.validatePayouts(ctx); err != nil {
			return err
		}
		r.log.Info("settings seeded")
		return nil
	})
}

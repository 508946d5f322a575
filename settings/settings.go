// Package settings 类型化的键值设置，各组件从中读取地址和费率
package settings

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"curation-governance-backend/database"
	"curation-governance-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KeyAddressDebates    = "ADDRESS_DEBATES"
	KeyAddressOpinions   = "ADDRESS_OPINIONS"
	KeyAddressGovernment = "ADDRESS_GOVERNMENT"
	KeyAddressDev        = "ADDRESS_DEV"

	KeyMinTagLength   = "MIN_TAG_LENGTH"
	KeyMaxTagLength   = "MAX_TAG_LENGTH"
	KeyDebateMinStake = "DEBATE_MIN_STAKE"

	FractionDebateVoterReward  = "DEBATE_MAJORITY_VOTER_REWARD"
	FractionOpinionVoterReward = "OPINION_MAJORITY_VOTER_REWARD"
	FractionOpinionCreator     = "OPINION_CREATOR_REWARD"
	FractionDebateCreator      = "DEBATE_CREATOR_REWARD"
	FractionDevFee             = "DEV_FEE"
)

// Registry 设置保存在settings表中，仅所有者可写
type Registry struct {
	db    *gorm.DB
	owner models.Address
	log   *zap.Logger
}

// New 创建设置注册表
func New(db *gorm.DB, owner models.Address, log *zap.Logger) *Registry {
	return &Registry{db: db, owner: owner, log: log}
}

// Owner 设置的所有者
func (r *Registry) Owner() models.Address { return r.owner }

func (r *Registry) get(ctx context.Context, kind models.SettingKind, key string) (string, bool, error) {
	var s models.Setting
	err := database.Conn(ctx, r.db).Where("kind = ? AND `key` = ?", kind, key).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取设置 %s 失败: %w", key, err)
	}
	return s.Value, true, nil
}

func (r *Registry) set(ctx context.Context, caller models.Address, kind models.SettingKind, key, value string) error {
	if caller != r.owner {
		return models.ErrUnauthorized
	}
	s := models.Setting{Kind: kind, Key: key, Value: value}
	err := database.Conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
	if err != nil {
		return fmt.Errorf("写入设置 %s 失败: %w", key, err)
	}
	r.log.Debug("setting updated", zap.String("kind", string(kind)), zap.String("key", key))
	return nil
}

// GetInt 读取整数设置，未设置时返回0
func (r *Registry) GetInt(ctx context.Context, key string) (uint64, error) {
	v, ok, err := r.get(ctx, models.SettingInt, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", models.ErrInvalidSetting, key, v)
	}
	return n, nil
}

// SetInt 写入整数设置。写入支付比例的分子或分母时同样校验各比例之和
func (r *Registry) SetInt(ctx context.Context, caller models.Address, key string, value uint64) error {
	if !isPayoutKey(key) {
		return r.set(ctx, caller, models.SettingInt, key, strconv.FormatUint(value, 10))
	}
	return database.Atomic(ctx, r.db, func(ctx context.Context, _ *gorm.DB) error {
		if err := r.set(ctx, caller, models.SettingInt, key, strconv.FormatUint(value, 10)); err != nil {
			return err
		}
		return r.validatePayouts(ctx)
	})
}

// GetAddress 读取地址设置
func (r *Registry) GetAddress(ctx context.Context, key string) (models.Address, error) {
	v, _, err := r.get(ctx, models.SettingAddress, key)
	return models.Address(v), err
}

// SetAddress 写入地址设置
func (r *Registry) SetAddress(ctx context.Context, caller models.Address, key string, value models.Address) error {
	return r.set(ctx, caller, models.SettingAddress, key, string(value))
}

// GetString 读取字符串设置
func (r *Registry) GetString(ctx context.Context, key string) (string, error) {
	v, _, err := r.get(ctx, models.SettingString, key)
	return v, err
}

// SetString 写入字符串设置
func (r *Registry) SetString(ctx context.Context, caller models.Address, key, value string) error {
	return r.set(ctx, caller, models.SettingString, key, value)
}

// GetBool 读取布尔设置
func (r *Registry) GetBool(ctx context.Context, key string) (bool, error) {
	v, _, err := r.get(ctx, models.SettingBool, key)
	return v == "true", err
}

// SetBool 写入布尔设置
func (r *Registry) SetBool(ctx context.Context, caller models.Address, key string, value bool) error {
	return r.set(ctx, caller, models.SettingBool, key, strconv.FormatBool(value))
}

// GetBytes 读取字节设置，以十六进制保存
func (r *Registry) GetBytes(ctx context.Context, key string) ([]byte, error) {
	v, ok, err := r.get(ctx, models.SettingBytes, key)
	if err != nil || !ok {
		return nil, err
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidSetting, key)
	}
	return b, nil
}

// SetBytes 写入字节设置
func (r *Registry) SetBytes(ctx context.Context, caller models.Address, key string, value []byte) error {
	return r.set(ctx, caller, models.SettingBytes, key, hex.EncodeToString(value))
}

// Fraction 读取<name>_NUMERATOR / <name>_DENOMINATOR。
// 分母为零视为零，大于1的分数被拒绝
func (r *Registry) Fraction(ctx context.Context, name string) (models.Fraction, error) {
	num, err := r.GetInt(ctx, name+"_NUMERATOR")
	if err != nil {
		return models.Fraction{}, err
	}
	den, err := r.GetInt(ctx, name+"_DENOMINATOR")
	if err != nil {
		return models.Fraction{}, err
	}
	f := models.Fraction{Numerator: num, Denominator: den}
	if !f.Valid() {
		return models.Fraction{}, fmt.Errorf("%w: %s is %d/%d", models.ErrInvalidSetting, name, num, den)
	}
	return f, nil
}

// SetFraction 写入<name>_NUMERATOR和<name>_DENOMINATOR。写入后的支付比例之和
// 超过质押时整体回滚
func (r *Registry) SetFraction(ctx context.Context, caller models.Address, name string, f models.Fraction) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %s is %d/%d", models.ErrInvalidSetting, name, f.Numerator, f.Denominator)
	}
	return database.Atomic(ctx, r.db, func(ctx context.Context, _ *gorm.DB) error {
		if err := r.setFraction(ctx, caller, name, f); err != nil {
			return err
		}
		return r.validatePayouts(ctx)
	})
}

func (r *Registry) setFraction(ctx context.Context, caller models.Address, name string, f models.Fraction) error {
	if err := r.set(ctx, caller, models.SettingInt, name+"_NUMERATOR", strconv.FormatUint(f.Numerator, 10)); err != nil {
		return err
	}
	return r.set(ctx, caller, models.SettingInt, name+"_DENOMINATOR", strconv.FormatUint(f.Denominator, 10))
}

var payoutFractions = []string{
	FractionDebateVoterReward,
	FractionOpinionVoterReward,
	FractionOpinionCreator,
	FractionDebateCreator,
	FractionDevFee,
}

func isPayoutKey(key string) bool {
	for _, name := range payoutFractions {
		if key == name+"_NUMERATOR" || key == name+"_DENOMINATOR" {
			return true
		}
	}
	return false
}

// validatePayouts 按当前存储的比例检查任一质押都不会被超额支付
func (r *Registry) validatePayouts(ctx context.Context) error {
	var d Defaults
	targets := map[string]*models.Fraction{
		FractionDebateVoterReward:  &d.DebateVoterReward,
		FractionOpinionVoterReward: &d.OpinionVoterReward,
		FractionOpinionCreator:     &d.OpinionCreator,
		FractionDebateCreator:      &d.DebateCreator,
		FractionDevFee:             &d.DevFee,
	}
	for name, f := range targets {
		v, err := r.Fraction(ctx, name)
		if err != nil {
			return err
		}
		*f = v
	}
	return d.validatePayouts()
}

// DevAddress 开发者地址，未设置ADDRESS_DEV时为所有者
func (r *Registry) DevAddress(ctx context.Context) (models.Address, error) {
	dev, err := r.GetAddress(ctx, KeyAddressDev)
	if err != nil {
		return "", err
	}
	if dev.IsZero() {
		return r.owner, nil
	}
	return dev, nil
}

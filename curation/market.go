// Package curation 管理辩题以及挑战辩题的观点。每个条目在策展投票账本上
// 开启一轮投票，条目ID即投票ID
package curation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"curation-governance-backend/cache"
	"curation-governance-backend/database"
	"curation-governance-backend/escrow"
	"curation-governance-backend/models"
	"curation-governance-backend/mq"
	"curation-governance-backend/settings"
	"curation-governance-backend/tags"
	"curation-governance-backend/voteledger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const reserveName = "curation"

// Options 策展市场配置
type Options struct {
	// Address 市场在投票账本和标签索引中的身份
	Address  models.Address
	Owner    models.Address
	Ledger   *voteledger.Ledger
	Stakes   escrow.Escrow
	Settings *settings.Registry
	Tags     *tags.Index
	Locker   cache.Locker
	Events   mq.Publisher
	Log      *zap.Logger
}

// Market 策展市场
type Market struct {
	db       *gorm.DB
	address  models.Address
	owner    models.Address
	ledger   *voteledger.Ledger
	stakes   escrow.Escrow
	settings *settings.Registry
	tags     *tags.Index
	locker   cache.Locker
	events   mq.Publisher
	log      *zap.Logger
}

// New 创建策展市场，未设置的锁、事件发布和日志使用默认实现
func New(db *gorm.DB, opts Options) *Market {
	if opts.Locker == nil {
		opts.Locker = cache.NewLocalLocker()
	}
	if opts.Events == nil {
		opts.Events = mq.Discard
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Market{
		db:       db,
		address:  opts.Address,
		owner:    opts.Owner,
		ledger:   opts.Ledger,
		stakes:   opts.Stakes,
		settings: opts.Settings,
		tags:     opts.Tags,
		locker:   opts.Locker,
		events:   opts.Events,
		log:      opts.Log.With(zap.String("component", "curation")),
	}
}

// Address 市场在投票账本和标签索引中的身份
func (m *Market) Address() models.Address { return m.address }

func debateLock(id uint64) string { return "curation:debate:" + strconv.FormatUint(id, 10) }

const createLock = "curation:create"

// entry 拥有某个投票ID的辩题或观点
type entry struct {
	debate  *models.Debate
	opinion *models.Opinion
}

func (e entry) stake() models.Amount {
	if e.debate != nil {
		return e.debate.Stake
	}
	return e.opinion.Stake
}

func (e entry) id() uint64 {
	if e.debate != nil {
		return e.debate.ID
	}
	return e.opinion.ID
}

func (e entry) pollID() uint64 {
	if e.debate != nil {
		return e.debate.PollID
	}
	return e.opinion.PollID
}

// storedPool 创建方结算时记录的投票者奖励池
func (e entry) storedPool() models.Amount {
	if e.debate != nil {
		return e.debate.VoterPool
	}
	return e.opinion.VoterPool
}

func (e entry) debateID() uint64 {
	if e.debate != nil {
		return e.debate.ID
	}
	return e.opinion.DebateID
}

func (m *Market) loadEntry(tx *gorm.DB, id uint64) (entry, error) {
	var d models.Debate
	err := tx.Where("id = ?", id).Take(&d).Error
	if err == nil {
		return entry{debate: &d}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return entry{}, err
	}
	var o models.Opinion
	err = tx.Where("id = ?", id).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entry{}, fmt.Errorf("%w: entry %d", models.ErrNotFound, id)
	}
	if err != nil {
		return entry{}, err
	}
	return entry{opinion: &o}, nil
}

func (m *Market) loadDebate(tx *gorm.DB, id uint64) (models.Debate, error) {
	var d models.Debate
	err := tx.Where("id = ?", id).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d, fmt.Errorf("%w: debate %d", models.ErrNotFound, id)
	}
	return d, err
}

func (m *Market) loadOpinion(tx *gorm.DB, id uint64) (models.Opinion, error) {
	var o models.Opinion
	err := tx.Where("id = ?", id).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return o, fmt.Errorf("%w: opinion %d", models.ErrNotFound, id)
	}
	return o, err
}

func (m *Market) loadRegistry(tx *gorm.DB, debateID uint64) (models.OpinionRegistry, error) {
	var r models.OpinionRegistry
	err := database.ForUpdate(tx).Where("debate_id = ?", debateID).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.OpinionRegistry{DebateID: debateID}, nil
	}
	return r, err
}

// Vote 在辩题或观点的投票上下注
func (m *Market) Vote(ctx context.Context, voter models.Address, pollID uint64, votedFor bool, amount models.Amount) error {
	if _, err := m.loadEntry(database.Conn(ctx, m.db), pollID); err != nil {
		return err
	}
	return m.ledger.Vote(ctx, m.address, pollID, votedFor, voter, amount)
}

// ReturnVoteFundsAndReward 先结算条目创建方（若尚未结算），再退还投票者锁定的资金，
// 多数方另得奖励。奖励按结算时记录的奖励池计算。创建方结算因配置错误失败时只退还资金，
// 奖励作废
func (m *Market) ReturnVoteFundsAndReward(ctx context.Context, voter models.Address, pollID uint64) (voteledger.Settlement, error) {
	var out voteledger.Settlement
	e, err := m.loadEntry(database.Conn(ctx, m.db), pollID)
	if err != nil {
		return out, err
	}
	err = cache.WithLock(ctx, m.locker, debateLock(e.debateID()), func(ctx context.Context) error {
		err := database.Atomic(ctx, m.db, func(ctx context.Context, tx *gorm.DB) error {
			return m.settleCreatorAmounts(ctx, tx, pollID)
		})
		if errors.Is(err, models.ErrInvalidSetting) || errors.Is(err, models.ErrAmountOverflow) {
			m.log.Warn("创建方结算失败，仅退还投票资金", zap.Uint64("poll", pollID), zap.Error(err))
			out.Refund, err = m.ledger.ReturnFunds(ctx, m.address, pollID, voter)
			return err
		}
		if err != nil {
			return err
		}
		return database.Atomic(ctx, m.db, func(ctx context.Context, tx *gorm.DB) error {
			e, err := m.loadEntry(tx, pollID)
			if err != nil {
				return err
			}
			out, err = m.ledger.ReturnFundsAndReward(ctx, m.address, pollID, voter,
				voteledger.RewardPool{Amount: e.storedPool(), Source: m.stakes})
			return err
		})
	})
	return out, err
}

// voterPool 按当前设置计算条目质押中的投票者份额，无人投给获胜方时为零。
// 只在创建方结算时调用
func (m *Market) voterPool(ctx context.Context, e entry, o voteledger.Outcome) (models.Amount, error) {
	if !o.Closed || o.WinningTotal.IsZero() {
		return models.ZeroAmount, nil
	}
	name := settings.FractionOpinionVoterReward
	if e.debate != nil {
		name = settings.FractionDebateVoterReward
	}
	f, err := m.settings.Fraction(ctx, name)
	if err != nil {
		return models.ZeroAmount, err
	}
	return e.stake().Fraction(f)
}

func (m *Market) addToReserve(tx *gorm.DB, amount models.Amount) error {
	if amount.IsZero() {
		return nil
	}
	var r models.Reserve
	err := database.ForUpdate(tx).Where("name = ?", reserveName).Take(&r).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	r.Name = reserveName
	if r.Balance, err = r.Balance.Add(amount); err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&r).Error
}

// Reserve 无人有权领取的质押余额
func (m *Market) Reserve(ctx context.Context) (models.Amount, error) {
	var r models.Reserve
	err := database.Conn(ctx, m.db).Where("name = ?", reserveName).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ZeroAmount, nil
	}
	return r.Balance, err
}

// SweepReserve 将储备金全部支付给to，仅所有者可调用
func (m *Market) SweepReserve(ctx context.Context, caller, to models.Address) (models.Amount, error) {
	if caller != m.owner {
		return models.ZeroAmount, models.ErrUnauthorized
	}
	var swept models.Amount
	err := database.Atomic(ctx, m.db, func(ctx context.Context, tx *gorm.DB) error {
		var r models.Reserve
		err := database.ForUpdate(tx).Where("name = ?", reserveName).Take(&r).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		swept = r.Balance
		if swept.IsZero() {
			return nil
		}
		if err := tx.Model(&r).Update("balance", models.ZeroAmount).Error; err != nil {
			return err
		}
		return m.stakes.Release(ctx, to, swept)
	})
	if err != nil {
		return models.ZeroAmount, err
	}
	m.log.Info("reserve swept", zap.String("to", to.String()), zap.Stringer("amount", swept))
	return swept, nil
}

func (m *Market) publish(ev mq.LedgerEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.events.Publish(ctx, ev); err != nil {
		m.log.Warn("发布事件失败", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

// Package voteledger 限时、按质押加权的投票原语，策展市场和治理流程都建立
// 在它之上。资产经由escrow.Escrow流转，原生资产和代币两种变体共用这份代码
package voteledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"curation-governance-backend/cache"
	"curation-governance-backend/clock"
	"curation-governance-backend/database"
	"curation-governance-backend/escrow"
	"curation-governance-backend/metrics"
	"curation-governance-backend/models"
	"curation-governance-backend/mq"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Gate 决定哪些调用方可以驱动账本
type Gate interface {
	Require(ctx context.Context, caller models.Address) error
}

// Options 账本配置
type Options struct {
	Name     string
	Duration time.Duration
	Gate     Gate
	Escrow   escrow.Escrow
	Clock    clock.Clock
	Locker   cache.Locker
	Events   mq.Publisher
	Log      *zap.Logger
}

// Ledger 投票账本
type Ledger struct {
	name     string
	db       *gorm.DB
	gate     Gate
	escrow   escrow.Escrow
	clock    clock.Clock
	locker   cache.Locker
	duration time.Duration
	events   mq.Publisher
	log      *zap.Logger
}

// New 创建投票账本，未设置的时钟、锁和事件发布使用默认实现
func New(db *gorm.DB, opts Options) *Ledger {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Locker == nil {
		opts.Locker = cache.NewLocalLocker()
	}
	if opts.Events == nil {
		opts.Events = mq.Discard
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Ledger{
		name:     opts.Name,
		db:       db,
		gate:     opts.Gate,
		escrow:   opts.Escrow,
		clock:    opts.Clock,
		locker:   opts.Locker,
		duration: opts.Duration,
		events:   opts.Events,
		log:      opts.Log.With(zap.String("ledger", opts.Name)),
	}
}

// Name 账本名称
func (l *Ledger) Name() string { return l.name }

// Escrow 托管投票者锁定资金的账户
func (l *Ledger) Escrow() escrow.Escrow { return l.escrow }

// Settlement 一次退还调用支付的金额
type Settlement struct {
	Refund models.Amount `json:"refund"`
	Reward models.Amount `json:"reward"`
}

// Outcome 所属组件看到的投票结果。Closed之前Accepted和WinningTotal为零值
type Outcome struct {
	Closed       bool
	Accepted     bool
	WinningTotal models.Amount
	EndTime      time.Time
}

func (l *Ledger) pollLock(pollID uint64) string {
	return "poll:" + l.name + ":" + strconv.FormatUint(pollID, 10)
}

func (l *Ledger) voterLock(pollID uint64, voter models.Address) string {
	return l.pollLock(pollID) + ":" + voter.String()
}

// StartVote 开启下一轮投票，ID从1开始连续递增
func (l *Ledger) StartVote(ctx context.Context, caller models.Address) (uint64, error) {
	var id uint64
	err := cache.WithLock(ctx, l.locker, "ledger:"+l.name+":seq", func(ctx context.Context) error {
		return database.Atomic(ctx, l.db, func(ctx context.Context, tx *gorm.DB) error {
			if err := l.gate.Require(ctx, caller); err != nil {
				return err
			}
			var last models.Poll
			err := database.ForUpdate(tx).Where("ledger = ?", l.name).
				Order("number desc").Limit(1).Find(&last).Error
			if err != nil {
				return fmt.Errorf("读取投票序号失败: %w", err)
			}

			now := l.clock.Now()
			poll := models.Poll{
				Ledger:    l.name,
				Number:    last.Number + 1,
				StartTime: now,
				EndTime:   now.Add(l.duration),
			}
			if err := tx.Create(&poll).Error; err != nil {
				return fmt.Errorf("创建投票失败: %w", err)
			}
			id = poll.Number

			database.AfterCommit(ctx, func() {
				metrics.PollsStarted.WithLabelValues(l.name).Inc()
				l.publish(mq.NewEvent(mq.EventPollStarted, l.name, id))
			})
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	l.log.Info("poll started", zap.Uint64("poll", id), zap.String("caller", caller.String()))
	return id, nil
}

// Vote 将投票者的amount锁定到账本托管中
func (l *Ledger) Vote(ctx context.Context, caller models.Address, pollID uint64, votedFor bool, voter models.Address, amount models.Amount) error {
	err := cache.WithLock(ctx, l.locker, l.pollLock(pollID), func(ctx context.Context) error {
		return database.Atomic(ctx, l.db, func(ctx context.Context, tx *gorm.DB) error {
			if err := l.gate.Require(ctx, caller); err != nil {
				return err
			}
			poll, err := l.loadPoll(database.ForUpdate(tx), pollID)
			if err != nil {
				return err
			}
			if poll.ClosedAt(l.clock.Now()) {
				return models.ErrVotingClosed
			}
			if amount.IsZero() {
				return fmt.Errorf("%w: vote amount must be positive", models.ErrInsufficientStake)
			}

			var existing int64
			err = tx.Model(&models.VoterRecord{}).
				Where("ledger = ? AND poll_number = ? AND voter = ?", l.name, pollID, voter).
				Count(&existing).Error
			if err != nil {
				return err
			}
			if existing > 0 {
				return models.ErrAlreadyVoted
			}

			if err := l.escrow.Deposit(ctx, voter, amount); err != nil {
				return err
			}

			record := models.VoterRecord{
				Ledger:       l.name,
				PollNumber:   pollID,
				Voter:        voter,
				LockedAmount: amount,
				VotedFor:     votedFor,
			}
			if err := tx.Create(&record).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return models.ErrAlreadyVoted
				}
				return fmt.Errorf("记录投票失败: %w", err)
			}

			if votedFor {
				poll.ForTotal, err = poll.ForTotal.Add(amount)
			} else {
				poll.AgainstTotal, err = poll.AgainstTotal.Add(amount)
			}
			if err != nil {
				return err
			}
			err = tx.Model(&models.Poll{}).Where("id = ?", poll.ID).Updates(map[string]interface{}{
				"for_total":     poll.ForTotal,
				"against_total": poll.AgainstTotal,
			}).Error
			if err != nil {
				return fmt.Errorf("更新票数失败: %w", err)
			}

			database.AfterCommit(ctx, func() {
				metrics.VotesCast.WithLabelValues(l.name).Inc()
			})
			return nil
		})
	})
	if err != nil {
		return err
	}
	l.log.Debug("vote cast", zap.Uint64("poll", pollID), zap.String("voter", voter.String()))
	return nil
}

// ReturnFunds 投票结束后退还投票者锁定的资金，重复调用成功但不再支付
func (l *Ledger) ReturnFunds(ctx context.Context, caller models.Address, pollID uint64, voter models.Address) (models.Amount, error) {
	s, err := l.settle(ctx, caller, pollID, voter, nil)
	return s.Refund, err
}

// RewardPool 由账本所有者出资的奖励池
type RewardPool struct {
	Amount models.Amount
	Source escrow.Escrow
}

// ReturnFundsAndReward 在ReturnFunds基础上，向获胜方投票者从pool.Source支付
// pool * locked / winningTotal
func (l *Ledger) ReturnFundsAndReward(ctx context.Context, caller models.Address, pollID uint64, voter models.Address, pool RewardPool) (Settlement, error) {
	return l.settle(ctx, caller, pollID, voter, &pool)
}

func (l *Ledger) settle(ctx context.Context, caller models.Address, pollID uint64, voter models.Address, pool *RewardPool) (Settlement, error) {
	var out Settlement
	err := cache.WithLock(ctx, l.locker, l.voterLock(pollID, voter), func(ctx context.Context) error {
		return database.Atomic(ctx, l.db, func(ctx context.Context, tx *gorm.DB) error {
			out = Settlement{}
			if err := l.gate.Require(ctx, caller); err != nil {
				return err
			}
			poll, err := l.loadPoll(tx, pollID)
			if err != nil {
				return err
			}
			if !poll.ClosedAt(l.clock.Now()) {
				return models.ErrEarlyReturn
			}

			var rec models.VoterRecord
			err = tx.Where("ledger = ? AND poll_number = ? AND voter = ?", l.name, pollID, voter).Take(&rec).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if rec.Settled {
				return nil
			}

			res := tx.Model(&models.VoterRecord{}).
				Where("id = ? AND settled = ?", rec.ID, false).
				Update("settled", true)
			if res.Error != nil {
				return fmt.Errorf("结算投票失败: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return nil
			}

			if err := l.escrow.Release(ctx, voter, rec.LockedAmount); err != nil {
				return err
			}
			out.Refund = rec.LockedAmount

			if pool != nil && rec.VotedFor == poll.Accepted() && !pool.Amount.IsZero() {
				reward, err := pool.Amount.MulDiv(rec.LockedAmount, poll.WinningTotal())
				if err != nil {
					return err
				}
				if !reward.IsZero() {
					if err := pool.Source.Release(ctx, voter, reward); err != nil {
						return err
					}
				}
				out.Reward = reward
			}

			rewarded := strconv.FormatBool(!out.Reward.IsZero())
			database.AfterCommit(ctx, func() {
				metrics.VoterSettlements.WithLabelValues(l.name, rewarded).Inc()
				ev := mq.NewEvent(mq.EventVoterSettled, l.name, pollID)
				ev.Actor = voter.String()
				l.publish(ev)
			})
			return nil
		})
	})
	if err != nil {
		return Settlement{}, err
	}
	if !out.Refund.IsZero() {
		l.log.Info("voter settled",
			zap.Uint64("poll", pollID),
			zap.String("voter", voter.String()),
			zap.Stringer("refund", out.Refund),
			zap.Stringer("reward", out.Reward))
	}
	return out, nil
}

func (l *Ledger) loadPoll(tx *gorm.DB, pollID uint64) (models.Poll, error) {
	var p models.Poll
	err := tx.Where("ledger = ? AND number = ?", l.name, pollID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, fmt.Errorf("%w: %s #%d", models.ErrPollNotFound, l.name, pollID)
	}
	if err != nil {
		return p, fmt.Errorf("读取投票失败: %w", err)
	}
	return p, nil
}

func (l *Ledger) publish(ev mq.LedgerEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.events.Publish(ctx, ev); err != nil {
		l.log.Warn("发布事件失败", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

// Package governance 用代币奖励池资助提案，并通过代币加权的投票账本
// 裁决相互竞争的实现
package governance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"curation-governance-backend/cache"
	"curation-governance-backend/database"
	"curation-governance-backend/escrow"
	"curation-governance-backend/metrics"
	"curation-governance-backend/models"
	"curation-governance-backend/mq"
	"curation-governance-backend/voteledger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Options 治理流程配置
type Options struct {
	Address models.Address
	Ledger  *voteledger.Ledger
	// Funds 托管奖励池和实现质押
	Funds  escrow.Escrow
	Locker cache.Locker
	Events mq.Publisher
	Log    *zap.Logger
}

// Workflow 治理流程
type Workflow struct {
	db      *gorm.DB
	address models.Address
	ledger  *voteledger.Ledger
	funds   escrow.Escrow
	locker  cache.Locker
	events  mq.Publisher
	log     *zap.Logger
}

// New 创建治理流程，未设置的锁、事件发布和日志使用默认实现
func New(db *gorm.DB, opts Options) *Workflow {
	if opts.Locker == nil {
		opts.Locker = cache.NewLocalLocker()
	}
	if opts.Events == nil {
		opts.Events = mq.Discard
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Workflow{
		db:      db,
		address: opts.Address,
		ledger:  opts.Ledger,
		funds:   opts.Funds,
		locker:  opts.Locker,
		events:  opts.Events,
		log:     opts.Log.With(zap.String("component", "governance")),
	}
}

// Address 治理流程在投票账本中的身份
func (w *Workflow) Address() models.Address { return w.address }

func proposalLock(id uint64) string { return "governance:proposal:" + strconv.FormatUint(id, 10) }

func (w *Workflow) withProposal(ctx context.Context, id uint64, fn func(ctx context.Context, tx *gorm.DB, p *models.Proposal) error) error {
	return cache.WithLock(ctx, w.locker, proposalLock(id), func(ctx context.Context) error {
		return database.Atomic(ctx, w.db, func(ctx context.Context, tx *gorm.DB) error {
			p, err := w.loadProposal(database.ForUpdate(tx), id)
			if err != nil {
				return err
			}
			return fn(ctx, tx, &p)
		})
	})
}

func (w *Workflow) loadProposal(tx *gorm.DB, id uint64) (models.Proposal, error) {
	var p models.Proposal
	err := tx.Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, fmt.Errorf("%w: proposal %d", models.ErrNotFound, id)
	}
	return p, err
}

func (w *Workflow) loadImplementation(tx *gorm.DB, id uint64) (models.Implementation, error) {
	var impl models.Implementation
	err := tx.Where("id = ?", id).Take(&impl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return impl, fmt.Errorf("%w: implementation %d", models.ErrNotFound, id)
	}
	return impl, err
}

func (w *Workflow) contribution(tx *gorm.DB, proposalID uint64, depositor models.Address) (models.ProposalContribution, error) {
	c := models.ProposalContribution{ProposalID: proposalID, Depositor: depositor}
	err := database.ForUpdate(tx).
		Where("proposal_id = ? AND depositor = ?", proposalID, depositor).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c, nil
	}
	return c, err
}

func saveContribution(tx *gorm.DB, c models.ProposalContribution) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&c).Error
}

// CreateProposal 从creator托管reward作为初始奖励池
func (w *Workflow) CreateProposal(ctx context.Context, creator models.Address, contentRef string, reward models.Amount) (uint64, error) {
	if reward.IsZero() {
		return 0, fmt.Errorf("%w: reward must be positive", models.ErrInvalidAmount)
	}
	var id uint64
	err := database.Atomic(ctx, w.db, func(ctx context.Context, tx *gorm.DB) error {
		if err := w.funds.Deposit(ctx, creator, reward); err != nil {
			return err
		}
		p := models.Proposal{ContentRef: contentRef, RewardPool: reward, Creator: creator}
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("创建提案失败: %w", err)
		}
		id = p.ID
		return saveContribution(tx, models.ProposalContribution{ProposalID: p.ID, Depositor: creator, Amount: reward})
	})
	if err != nil {
		return 0, err
	}
	w.log.Info("proposal created",
		zap.Uint64("proposal", id),
		zap.String("creator", creator.String()),
		zap.Stringer("reward", reward))
	return id, nil
}

// AddToProposal 向提案奖励池追加资金
func (w *Workflow) AddToProposal(ctx context.Context, depositor models.Address, proposalID uint64, amount models.Amount) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: amount must be positive", models.ErrInvalidAmount)
	}
	return w.withProposal(ctx, proposalID, func(ctx context.Context, tx *gorm.DB, p *models.Proposal) error {
		if p.PaidRewardOrPunishment {
			return models.ErrProposalClosed
		}
		if err := w.funds.Deposit(ctx, depositor, amount); err != nil {
			return err
		}
		c, err := w.contribution(tx, proposalID, depositor)
		if err != nil {
			return err
		}
		if c.Amount, err = c.Amount.Add(amount); err != nil {
			return err
		}
		if err := saveContribution(tx, c); err != nil {
			return err
		}
		pool, err := p.RewardPool.Add(amount)
		if err != nil {
			return err
		}
		return tx.Model(p).Update("reward_pool", pool).Error
	})
}

// WithdrawFromProposal 取回金额不超过存入者自己的净贡献
func (w *Workflow) WithdrawFromProposal(ctx context.Context, depositor models.Address, proposalID uint64, amount models.Amount) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: amount must be positive", models.ErrInvalidAmount)
	}
	return w.withProposal(ctx, proposalID, func(ctx context.Context, tx *gorm.DB, p *models.Proposal) error {
		if err := w.clearClosedPending(ctx, tx, p); err != nil {
			return err
		}
		if p.PendingImplementationID != 0 {
			return models.ErrImplementationInProgress
		}
		c, err := w.contribution(tx, proposalID, depositor)
		if err != nil {
			return err
		}
		if amount.Gt(c.Amount) {
			return models.ErrInsufficientPool
		}
		pool, err := p.RewardPool.Sub(amount)
		if err != nil {
			return models.ErrInsufficientPool
		}
		c.Amount, _ = c.Amount.Sub(amount)
		if err := saveContribution(tx, c); err != nil {
			return err
		}
		if err := tx.Model(p).Update("reward_pool", pool).Error; err != nil {
			return err
		}
		return w.funds.Release(ctx, depositor, amount)
	})
}

// CreateImplementation 针对提案质押并开启投票。同一时间只能有一个待定实现，
// 投票已结束的实现先被结算
func (w *Workflow) CreateImplementation(ctx context.Context, creator models.Address, proposalID uint64, stake models.Amount, contentRef string) (uint64, error) {
	if stake.IsZero() {
		return 0, fmt.Errorf("%w: stake must be positive", models.ErrInsufficientStake)
	}
	var id uint64
	err := w.withProposal(ctx, proposalID, func(ctx context.Context, tx *gorm.DB, p *models.Proposal) error {
		if err := w.clearClosedPending(ctx, tx, p); err != nil {
			return err
		}
		if p.PaidRewardOrPunishment {
			return models.ErrProposalClosed
		}
		if p.PendingImplementationID != 0 {
			return models.ErrImplementationInProgress
		}
		if err := w.funds.Deposit(ctx, creator, stake); err != nil {
			return err
		}
		pollID, err := w.ledger.StartVote(ctx, w.address)
		if err != nil {
			return err
		}
		impl := models.Implementation{
			ID:         pollID,
			ProposalID: proposalID,
			ContentRef: contentRef,
			Stake:      stake,
			Creator:    creator,
			PollID:     pollID,
		}
		if err := tx.Create(&impl).Error; err != nil {
			return fmt.Errorf("创建实现失败: %w", err)
		}
		p.PendingImplementationID = pollID
		if err := tx.Model(p).Update("pending_implementation_id", pollID).Error; err != nil {
			return err
		}
		id = pollID
		return nil
	})
	if err != nil {
		return 0, err
	}
	w.log.Info("implementation created",
		zap.Uint64("implementation", id),
		zap.Uint64("proposal", proposalID),
		zap.String("creator", creator.String()),
		zap.Stringer("stake", stake))
	return id, nil
}

func (w *Workflow) clearClosedPending(ctx context.Context, tx *gorm.DB, p *models.Proposal) error {
	if p.PendingImplementationID == 0 {
		return nil
	}
	o, err := w.ledger.Outcome(ctx, p.PendingImplementationID)
	if err != nil {
		return err
	}
	if !o.Closed {
		return nil
	}
	impl, err := w.loadImplementation(tx, p.PendingImplementationID)
	if err != nil {
		return err
	}
	return w.settle(ctx, tx, p, impl, o)
}

// Vote 在实现的投票上下注
func (w *Workflow) Vote(ctx context.Context, voter models.Address, implID uint64, votedFor bool, amount models.Amount) error {
	if _, err := w.loadImplementation(database.Conn(ctx, w.db), implID); err != nil {
		return err
	}
	return w.ledger.Vote(ctx, w.address, implID, votedFor, voter, amount)
}

// SettleImplementation 结算已结束的实现投票，重复调用无效果
func (w *Workflow) SettleImplementation(ctx context.Context, implID uint64) error {
	impl, err := w.loadImplementation(database.Conn(ctx, w.db), implID)
	if err != nil {
		return err
	}
	return w.withProposal(ctx, impl.ProposalID, func(ctx context.Context, tx *gorm.DB, p *models.Proposal) error {
		o, err := w.ledger.Outcome(ctx, implID)
		if err != nil {
			return err
		}
		if !o.Closed {
			return models.ErrEarlyReturn
		}
		return w.settle(ctx, tx, p, impl, o)
	})
}

func (w *Workflow) settle(ctx context.Context, tx *gorm.DB, p *models.Proposal, impl models.Implementation, o voteledger.Outcome) error {
	res := tx.Model(&models.Implementation{}).
		Where("id = ? AND paid_back_stake = ?", impl.ID, false).
		Updates(map[string]interface{}{"paid_back_stake": true, "accepted": o.Accepted})
	if res.Error != nil {
		return fmt.Errorf("结算实现失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	payout := impl.Stake
	updates := map[string]interface{}{"pending_implementation_id": 0}
	if o.Accepted {
		var err error
		if payout, err = payout.Add(p.RewardPool); err != nil {
			return err
		}
		updates["reward_pool"] = models.ZeroAmount
		updates["paid_reward_or_punishment"] = true
		err = tx.Model(&models.ProposalContribution{}).
			Where("proposal_id = ?", p.ID).
			Update("amount", models.ZeroAmount).Error
		if err != nil {
			return err
		}
		p.RewardPool = models.ZeroAmount
		p.PaidRewardOrPunishment = true
	}
	if err := tx.Model(p).Updates(updates).Error; err != nil {
		return fmt.Errorf("更新提案失败: %w", err)
	}
	p.PendingImplementationID = 0
	if err := w.funds.Release(ctx, impl.Creator, payout); err != nil {
		return err
	}

	outcome := metrics.Outcome(o.Accepted)
	database.AfterCommit(ctx, func() {
		metrics.EntrySettlements.WithLabelValues("implementation", outcome).Inc()
		ev := mq.NewEvent(mq.EventEntrySettled, w.ledger.Name(), impl.ID)
		ev.Actor = impl.Creator.String()
		ev.Outcome = outcome
		w.publish(ev)
		w.log.Info("implementation settled",
			zap.Uint64("implementation", impl.ID),
			zap.String("outcome", outcome),
			zap.Stringer("payout", payout))
	})
	return nil
}

// ReturnVoteFundsAndReward 必要时先结算实现，再退还投票者锁定的代币。
// 实现投票没有投票者奖励
func (w *Workflow) ReturnVoteFundsAndReward(ctx context.Context, voter models.Address, implID uint64) (voteledger.Settlement, error) {
	var out voteledger.Settlement
	impl, err := w.loadImplementation(database.Conn(ctx, w.db), implID)
	if err != nil {
		return out, err
	}
	err = cache.WithLock(ctx, w.locker, proposalLock(impl.ProposalID), func(ctx context.Context) error {
		return database.Atomic(ctx, w.db, func(ctx context.Context, _ *gorm.DB) error {
			if err := w.SettleImplementation(ctx, implID); err != nil {
				return err
			}
			refund, err := w.ledger.ReturnFunds(ctx, w.address, implID, voter)
			out.Refund = refund
			return err
		})
	})
	return out, err
}

func (w *Workflow) publish(ev mq.LedgerEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.events.Publish(ctx, ev); err != nil {
		w.log.Warn("发布事件失败", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

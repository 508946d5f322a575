package curation

import (
	"context"
	"fmt"

	"curation-governance-backend/cache"
	"curation-governance-backend/database"
	"curation-governance-backend/metrics"
	"curation-governance-backend/models"
	"curation-governance-backend/mq"
	"curation-governance-backend/settings"
	"curation-governance-backend/voteledger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SettleCreatorAmounts 支付已结束辩题或观点的创建方奖励和惩罚，重复调用无效果
func (m *Market) SettleCreatorAmounts(ctx context.Context, pollID uint64) error {
	e, err := m.loadEntry(database.Conn(ctx, m.db), pollID)
	if err != nil {
		return err
	}
	return cache.WithLock(ctx, m.locker, debateLock(e.debateID()), func(ctx context.Context) error {
		return database.Atomic(ctx, m.db, func(ctx context.Context, tx *gorm.DB) error {
			return m.settleCreatorAmounts(ctx, tx, pollID)
		})
	})
}

// settleCreatorAmounts 必须在辩题锁和事务内调用
func (m *Market) settleCreatorAmounts(ctx context.Context, tx *gorm.DB, pollID uint64) error {
	e, err := m.loadEntry(tx, pollID)
	if err != nil {
		return err
	}
	o, err := m.ledger.Outcome(ctx, pollID)
	if err != nil {
		return err
	}
	if !o.Closed {
		return models.ErrEarlyReturn
	}
	if e.debate != nil {
		return m.settleDebate(ctx, tx, *e.debate, o)
	}
	return m.settleOpinion(ctx, tx, *e.opinion, o)
}

// markPaid 只翻转一次结算标记，返回false表示已被其他调用抢先
func markPaid(tx *gorm.DB, model interface{}, id uint64) (bool, error) {
	res := tx.Model(model).
		Where("id = ? AND paid_reward_or_punishment = ?", id, false).
		Update("paid_reward_or_punishment", true)
	if res.Error != nil {
		return false, fmt.Errorf("更新结算标记失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

type shares struct {
	opinionCreator models.Fraction
	debateCreator  models.Fraction
	dev            models.Fraction
	devAddress     models.Address
}

func (m *Market) loadShares(ctx context.Context) (shares, error) {
	var s shares
	var err error
	if s.opinionCreator, err = m.settings.Fraction(ctx, settings.FractionOpinionCreator); err != nil {
		return s, err
	}
	if s.debateCreator, err = m.settings.Fraction(ctx, settings.FractionDebateCreator); err != nil {
		return s, err
	}
	if s.dev, err = m.settings.Fraction(ctx, settings.FractionDevFee); err != nil {
		return s, err
	}
	s.devAddress, err = m.settings.DevAddress(ctx)
	return s, err
}

// payout 从质押托管中转出的一笔
type payout struct {
	to     models.Address
	amount models.Amount
}

// distribute 从total中逐笔支付，扣除投票者奖励池后的剩余计入储备金
func (m *Market) distribute(ctx context.Context, tx *gorm.DB, total, voterPool models.Amount, payouts ...payout) error {
	residual, err := total.Sub(voterPool)
	if err != nil {
		return fmt.Errorf("%w: voter pool exceeds stake", models.ErrInvalidSetting)
	}
	for _, p := range payouts {
		if residual, err = residual.Sub(p.amount); err != nil {
			return fmt.Errorf("%w: payouts exceed stake", models.ErrInvalidSetting)
		}
		if p.amount.IsZero() {
			continue
		}
		if err := m.stakes.Release(ctx, p.to, p.amount); err != nil {
			return err
		}
	}
	return m.addToReserve(tx, residual)
}

// settleDebate 结算辩题创建方。被接受的辩题保留质押等待后续挑战，
// 被否决的辩题支付开发费，投票者奖励池之外的部分计入储备金
func (m *Market) settleDebate(ctx context.Context, tx *gorm.DB, d models.Debate, o voteledger.Outcome) error {
	ok, err := markPaid(tx, &models.Debate{}, d.ID)
	if err != nil || !ok {
		return err
	}
	pool, err := m.fixVoterPool(ctx, tx, entry{debate: &d}, o)
	if err != nil {
		return err
	}
	if !o.Accepted {
		sh, err := m.loadShares(ctx)
		if err != nil {
			return err
		}
		devFee, err := d.Stake.Fraction(sh.dev)
		if err != nil {
			return err
		}
		if err := m.distribute(ctx, tx, d.Stake, pool, payout{sh.devAddress, devFee}); err != nil {
			return err
		}
	}
	m.afterSettle(ctx, "debate", d.ID, d.Creator, o.Accepted)
	return nil
}

// fixVoterPool 在创建方结算时确定投票者奖励池并写入记录，之后的领取只读取该值。
// 逐人向下取整后无人可领的部分立即计入储备金
func (m *Market) fixVoterPool(ctx context.Context, tx *gorm.DB, e entry, o voteledger.Outcome) (models.Amount, error) {
	pool, err := m.voterPool(ctx, e, o)
	if err != nil || pool.IsZero() {
		return pool, err
	}
	owed, err := m.ledger.RewardsOwed(ctx, e.pollID(), pool)
	if err != nil {
		return models.ZeroAmount, err
	}
	q := tx.Model(&models.Opinion{})
	if e.debate != nil {
		q = tx.Model(&models.Debate{})
	}
	if err := q.Where("id = ?", e.id()).Update("voter_pool", pool).Error; err != nil {
		return models.ZeroAmount, fmt.Errorf("记录投票者奖励池失败: %w", err)
	}
	dust, err := pool.Sub(owed)
	if err != nil {
		return models.ZeroAmount, err
	}
	return pool, m.addToReserve(tx, dust)
}

// settleOpinion 在挑战的失败方之间转移价值。观点胜出时失败方为之前的顶部观点，
// 没有顶部观点时为辩题本身，该观点成为新的顶部观点
func (m *Market) settleOpinion(ctx context.Context, tx *gorm.DB, op models.Opinion, o voteledger.Outcome) error {
	ok, err := markPaid(tx, &models.Opinion{}, op.ID)
	if err != nil || !ok {
		return err
	}
	d, err := m.loadDebate(tx, op.DebateID)
	if err != nil {
		return err
	}
	reg, err := m.loadRegistry(tx, op.DebateID)
	if err != nil {
		return err
	}
	sh, err := m.loadShares(ctx)
	if err != nil {
		return err
	}
	pool, err := m.fixVoterPool(ctx, tx, entry{opinion: &op}, o)
	if err != nil {
		return err
	}

	if o.Accepted {
		if err := m.displaceLoser(ctx, tx, op, d, reg, sh); err != nil {
			return err
		}
		if reg.TopOpinionID != 0 {
			if err := appendHistory(tx, d.ID, models.HistoryOldTop, reg.TopOpinionID); err != nil {
				return err
			}
		}
		reg.TopOpinionID = op.ID
	} else {
		beneficiary := d.Creator
		if reg.TopOpinionID != 0 {
			top, err := m.loadOpinion(tx, reg.TopOpinionID)
			if err != nil {
				return err
			}
			beneficiary = top.Creator
		}
		reward, err := op.Stake.Fraction(sh.opinionCreator)
		if err != nil {
			return err
		}
		devFee, err := op.Stake.Fraction(sh.dev)
		if err != nil {
			return err
		}
		err = m.distribute(ctx, tx, op.Stake, pool,
			payout{beneficiary, reward},
			payout{sh.devAddress, devFee})
		if err != nil {
			return err
		}
		if err := appendHistory(tx, d.ID, models.HistoryRejected, op.ID); err != nil {
			return err
		}
	}

	if reg.ChallengingOpinionID == op.ID {
		reg.ChallengingOpinionID = 0
	}
	if err := tx.Save(&reg).Error; err != nil {
		return fmt.Errorf("更新观点注册表失败: %w", err)
	}
	m.afterSettle(ctx, "opinion", op.ID, op.Creator, o.Accepted)
	return nil
}

// displaceLoser 分配被新观点取代的一方的质押。从未结算的辩题先完成结算以确定其奖励池
func (m *Market) displaceLoser(ctx context.Context, tx *gorm.DB, winner models.Opinion, d models.Debate, reg models.OpinionRegistry, sh shares) error {
	loserID := d.ID
	var payouts []payout
	if reg.TopOpinionID != 0 {
		loserID = reg.TopOpinionID
	}
	if err := m.settleCreatorAmounts(ctx, tx, loserID); err != nil {
		return err
	}
	loser, err := m.loadEntry(tx, loserID)
	if err != nil {
		return err
	}
	if loser.opinion != nil {
		debateReward, err := loser.opinion.Stake.Fraction(sh.debateCreator)
		if err != nil {
			return err
		}
		payouts = append(payouts, payout{d.Creator, debateReward})
	}
	stake := loser.stake()
	creatorReward, err := stake.Fraction(sh.opinionCreator)
	if err != nil {
		return err
	}
	devFee, err := stake.Fraction(sh.dev)
	if err != nil {
		return err
	}
	payouts = append(payouts, payout{winner.Creator, creatorReward}, payout{sh.devAddress, devFee})
	return m.distribute(ctx, tx, stake, loser.storedPool(), payouts...)
}

func appendHistory(tx *gorm.DB, debateID uint64, kind models.OpinionHistoryKind, opinionID uint64) error {
	h := models.OpinionHistory{DebateID: debateID, Kind: kind, OpinionID: opinionID}
	if err := tx.Create(&h).Error; err != nil {
		return fmt.Errorf("写入观点历史失败: %w", err)
	}
	return nil
}

func (m *Market) afterSettle(ctx context.Context, kind string, id uint64, creator models.Address, accepted bool) {
	outcome := metrics.Outcome(accepted)
	database.AfterCommit(ctx, func() {
		metrics.EntrySettlements.WithLabelValues(kind, outcome).Inc()
		ev := mq.NewEvent(mq.EventEntrySettled, m.ledger.Name(), id)
		ev.Actor = creator.String()
		ev.Outcome = outcome
		m.publish(ev)
		m.log.Info("entry settled", zap.String("kind", kind), zap.Uint64("id", id), zap.String("outcome", outcome))
	})
}

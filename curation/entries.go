package curation

import (
	"context"
	"fmt"

	"curation-governance-backend/cache"
	"curation-governance-backend/database"
	"curation-governance-backend/models"
	"curation-governance-backend/settings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTags = 3

// CreateDebate 从creator托管质押、开启投票，并以最多三个标签索引辩题。
// 空标签被忽略
func (m *Market) CreateDebate(ctx context.Context, creator models.Address, stake models.Amount, contentRef string, tagList ...string) (uint64, error) {
	if len(tagList) > maxTags {
		return 0, fmt.Errorf("%w: at most %d tags", models.ErrInvalidTag, maxTags)
	}
	var slots [maxTags]string
	for i, tag := range tagList {
		if tag == "" {
			continue
		}
		if err := m.tags.Validate(ctx, tag); err != nil {
			return 0, err
		}
		slots[i] = tag
	}

	minStake, err := m.settings.GetInt(ctx, settings.KeyDebateMinStake)
	if err != nil {
		return 0, err
	}
	if stake.IsZero() || stake.Lt(models.NewAmount(minStake)) {
		return 0, fmt.Errorf("%w: debate stake below %d", models.ErrInsufficientStake, minStake)
	}

	var id uint64
	err = cache.WithLock(ctx, m.locker, createLock, func(ctx context.Context) error {
		return database.Atomic(ctx, m.db, func(ctx context.Context, tx *gorm.DB) error {
			if err := m.stakes.Deposit(ctx, creator, stake); err != nil {
				return err
			}
			pollID, err := m.ledger.StartVote(ctx, m.address)
			if err != nil {
				return err
			}
			d := models.Debate{
				ID:         pollID,
				ContentRef: contentRef,
				Stake:      stake,
				Creator:    creator,
				Tag1:       slots[0],
				Tag2:       slots[1],
				Tag3:       slots[2],
				PollID:     pollID,
			}
			if err := tx.Create(&d).Error; err != nil {
				return fmt.Errorf("创建辩题失败: %w", err)
			}
			if err := tx.Create(&models.OpinionRegistry{DebateID: pollID}).Error; err != nil {
				return fmt.Errorf("创建观点注册表失败: %w", err)
			}
			for _, tag := range slots {
				if tag == "" {
					continue
				}
				if err := m.tags.AddIDWithTag(ctx, m.address, tag, pollID); err != nil {
					return err
				}
			}
			id = pollID
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	m.log.Info("debate created",
		zap.Uint64("debate", id),
		zap.String("creator", creator.String()),
		zap.Stringer("stake", stake))
	return id, nil
}

// CreateOpinion 挑战辩题当前的顶部观点，尚无观点胜出时挑战辩题本身。
// 投票已结束的挑战者先被结算以腾出位置
func (m *Market) CreateOpinion(ctx context.Context, creator models.Address, debateID uint64, stake models.Amount, contentRef string) (uint64, error) {
	var id uint64
	err := cache.WithLock(ctx, m.locker, createLock, func(ctx context.Context) error {
		return cache.WithLock(ctx, m.locker, debateLock(debateID), func(ctx context.Context) error {
			return database.Atomic(ctx, m.db, func(ctx context.Context, tx *gorm.DB) error {
				d, err := m.loadDebate(tx, debateID)
				if err != nil {
					return err
				}
				o, err := m.ledger.Outcome(ctx, d.PollID)
				if err != nil {
					return err
				}
				if !o.Closed || !o.Accepted {
					return models.ErrDebateNotAccepted
				}

				reg, err := m.loadRegistry(tx, debateID)
				if err != nil {
					return err
				}
				if reg.ChallengingOpinionID != 0 {
					co, err := m.ledger.Outcome(ctx, reg.ChallengingOpinionID)
					if err != nil {
						return err
					}
					if !co.Closed {
						return models.ErrChallengeInProgress
					}
					if err := m.settleCreatorAmounts(ctx, tx, reg.ChallengingOpinionID); err != nil {
						return err
					}
					if reg, err = m.loadRegistry(tx, debateID); err != nil {
						return err
					}
				}

				if err := m.checkChallengeStake(tx, d, reg, stake); err != nil {
					return err
				}
				if err := m.stakes.Deposit(ctx, creator, stake); err != nil {
					return err
				}
				pollID, err := m.ledger.StartVote(ctx, m.address)
				if err != nil {
					return err
				}
				op := models.Opinion{
					ID:         pollID,
					DebateID:   debateID,
					ContentRef: contentRef,
					Stake:      stake,
					Creator:    creator,
					PollID:     pollID,
				}
				if err := tx.Create(&op).Error; err != nil {
					return fmt.Errorf("创建观点失败: %w", err)
				}
				reg.ChallengingOpinionID = pollID
				if err := tx.Save(&reg).Error; err != nil {
					return fmt.Errorf("更新观点注册表失败: %w", err)
				}
				id = pollID
				return nil
			})
		})
	})
	if err != nil {
		return 0, err
	}
	m.log.Info("opinion created",
		zap.Uint64("opinion", id),
		zap.Uint64("debate", debateID),
		zap.String("creator", creator.String()),
		zap.Stringer("stake", stake))
	return id, nil
}

// checkChallengeStake 第一个观点的质押至少为辩题质押的一半，之后的观点必须
// 严格大于顶部观点
func (m *Market) checkChallengeStake(tx *gorm.DB, d models.Debate, reg models.OpinionRegistry, stake models.Amount) error {
	if stake.IsZero() {
		return fmt.Errorf("%w: opinion stake must be positive", models.ErrInsufficientStake)
	}
	if reg.TopOpinionID == 0 {
		doubled, err := stake.Add(stake)
		if err != nil {
			return err
		}
		if doubled.Lt(d.Stake) {
			return fmt.Errorf("%w: need at least half of %s", models.ErrInsufficientStake, d.Stake)
		}
		return nil
	}
	top, err := m.loadOpinion(tx, reg.TopOpinionID)
	if err != nil {
		return err
	}
	if !stake.Gt(top.Stake) {
		return fmt.Errorf("%w: need more than %s", models.ErrInsufficientStake, top.Stake)
	}
	return nil
}

package voteledger

import (
	"context"
	"errors"
	"fmt"

	"curation-governance-backend/database"
	"curation-governance-backend/models"

	"gorm.io/gorm"
)

// detail 投票进行中时隐藏总额和结果
func detail(p models.Poll, closed bool) models.PollDetail {
	d := models.PollDetail{
		ID:        p.Number,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Ongoing:   !closed,
	}
	if closed {
		d.ForTotal = p.ForTotal
		d.AgainstTotal = p.AgainstTotal
		d.MajorityAccepted = p.Accepted()
	}
	return d
}

// GetVoteDetail 查询投票详情
func (l *Ledger) GetVoteDetail(ctx context.Context, pollID uint64) (models.PollDetail, error) {
	p, err := l.loadPoll(database.Conn(ctx, l.db), pollID)
	if err != nil {
		return models.PollDetail{}, err
	}
	return detail(p, p.ClosedAt(l.clock.Now())), nil
}

// GetVoterDetail 查询投票者持仓，未投票者返回零值
func (l *Ledger) GetVoterDetail(ctx context.Context, pollID uint64, voter models.Address) (models.VoterDetail, error) {
	tx := database.Conn(ctx, l.db)
	p, err := l.loadPoll(tx, pollID)
	if err != nil {
		return models.VoterDetail{}, err
	}
	closed := p.ClosedAt(l.clock.Now())
	out := models.VoterDetail{PollDetail: detail(p, closed), Voter: voter}

	var rec models.VoterRecord
	err = tx.Where("ledger = ? AND poll_number = ? AND voter = ?", l.name, pollID, voter).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return out, nil
	}
	if err != nil {
		return models.VoterDetail{}, err
	}
	out.LockedAmount = rec.LockedAmount
	out.VotedFor = rec.VotedFor
	out.Settled = rec.Settled
	out.IsInMajority = closed && rec.VotedFor == p.Accepted()
	return out, nil
}

// Outcome 查询投票结果，仅在Closed为true时有意义
func (l *Ledger) Outcome(ctx context.Context, pollID uint64) (Outcome, error) {
	p, err := l.loadPoll(database.Conn(ctx, l.db), pollID)
	if err != nil {
		return Outcome{}, err
	}
	o := Outcome{EndTime: p.EndTime}
	if p.ClosedAt(l.clock.Now()) {
		o.Closed = true
		o.Accepted = p.Accepted()
		o.WinningTotal = p.WinningTotal()
	}
	return o, nil
}

// Outcomes 批量读取投票结果，用于分区列表
func (l *Ledger) Outcomes(ctx context.Context, pollIDs []uint64) (map[uint64]Outcome, error) {
	out := make(map[uint64]Outcome, len(pollIDs))
	if len(pollIDs) == 0 {
		return out, nil
	}
	var polls []models.Poll
	err := database.Conn(ctx, l.db).
		Where("ledger = ? AND number IN ?", l.name, pollIDs).
		Find(&polls).Error
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()
	for _, p := range polls {
		o := Outcome{EndTime: p.EndTime}
		if p.ClosedAt(now) {
			o.Closed = true
			o.Accepted = p.Accepted()
			o.WinningTotal = p.WinningTotal()
		}
		out[p.Number] = o
	}
	return out, nil
}

// RewardsOwed 计算pool中仍需支付给多数方未结算投票者的奖励总额，
// 与ReturnFundsAndReward的逐人向下取整一致。投票必须已结束
func (l *Ledger) RewardsOwed(ctx context.Context, pollID uint64, pool models.Amount) (models.Amount, error) {
	tx := database.Conn(ctx, l.db)
	p, err := l.loadPoll(tx, pollID)
	if err != nil {
		return models.ZeroAmount, err
	}
	if !p.ClosedAt(l.clock.Now()) {
		return models.ZeroAmount, models.ErrEarlyReturn
	}
	winning := p.WinningTotal()
	if pool.IsZero() || winning.IsZero() {
		return models.ZeroAmount, nil
	}
	var recs []models.VoterRecord
	err = tx.Where("ledger = ? AND poll_number = ? AND voted_for = ? AND settled = ?",
		l.name, pollID, p.Accepted(), false).Find(&recs).Error
	if err != nil {
		return models.ZeroAmount, fmt.Errorf("读取投票记录失败: %w", err)
	}
	owed := models.ZeroAmount
	for _, rec := range recs {
		reward, err := pool.MulDiv(rec.LockedAmount, winning)
		if err != nil {
			return models.ZeroAmount, err
		}
		if owed, err = owed.Add(reward); err != nil {
			return models.ZeroAmount, err
		}
	}
	return owed, nil
}

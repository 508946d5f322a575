package curation

import (
	"context"

	"curation-governance-backend/database"
	"curation-governance-backend/models"
)

// DebateDetails 辩题及其投票详情
type DebateDetails struct {
	models.Debate
	Poll models.PollDetail `json:"poll"`
}

// OpinionDetails 观点及其投票详情
type OpinionDetails struct {
	models.Opinion
	Poll models.PollDetail `json:"poll"`
}

// GetDebateDetails 查询辩题详情
func (m *Market) GetDebateDetails(ctx context.Context, id uint64) (DebateDetails, error) {
	d, err := m.loadDebate(database.Conn(ctx, m.db), id)
	if err != nil {
		return DebateDetails{}, err
	}
	poll, err := m.ledger.GetVoteDetail(ctx, d.PollID)
	if err != nil {
		return DebateDetails{}, err
	}
	return DebateDetails{Debate: d, Poll: poll}, nil
}

// GetOpinionDetails 查询观点详情
func (m *Market) GetOpinionDetails(ctx context.Context, id uint64) (OpinionDetails, error) {
	o, err := m.loadOpinion(database.Conn(ctx, m.db), id)
	if err != nil {
		return OpinionDetails{}, err
	}
	poll, err := m.ledger.GetVoteDetail(ctx, o.PollID)
	if err != nil {
		return OpinionDetails{}, err
	}
	return OpinionDetails{Opinion: o, Poll: poll}, nil
}

// GetOpinionRegistryDetails 查询辩题的观点注册表
func (m *Market) GetOpinionRegistryDetails(ctx context.Context, debateID uint64) (models.OpinionRegistryDetail, error) {
	tx := database.Conn(ctx, m.db)
	if _, err := m.loadDebate(tx, debateID); err != nil {
		return models.OpinionRegistryDetail{}, err
	}
	reg, err := m.loadRegistry(tx, debateID)
	if err != nil {
		return models.OpinionRegistryDetail{}, err
	}
	var history []models.OpinionHistory
	if err := tx.Where("debate_id = ?", debateID).Order("id asc").Find(&history).Error; err != nil {
		return models.OpinionRegistryDetail{}, err
	}
	out := models.OpinionRegistryDetail{
		DebateID:             debateID,
		TopOpinionID:         reg.TopOpinionID,
		ChallengingOpinionID: reg.ChallengingOpinionID,
		OldTopOpinionIDs:     []uint64{},
		RejectedOpinionIDs:   []uint64{},
	}
	for _, h := range history {
		switch h.Kind {
		case models.HistoryOldTop:
			out.OldTopOpinionIDs = append(out.OldTopOpinionIDs, h.OpinionID)
		case models.HistoryRejected:
			out.RejectedOpinionIDs = append(out.RejectedOpinionIDs, h.OpinionID)
		}
	}
	return out, nil
}

func (m *Market) debateIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := database.Conn(ctx, m.db).Model(&models.Debate{}).Order("id asc").Pluck("id", &ids).Error
	return ids, err
}

// GetAllDebateIDs 分页列出全部辩题
func (m *Market) GetAllDebateIDs(ctx context.Context, offset, limit int) (models.Page, error) {
	ids, err := m.debateIDs(ctx)
	if err != nil {
		return models.Page{}, err
	}
	return models.Paginate(ids, offset, limit), nil
}

type debateState int

const (
	statePending debateState = iota
	stateAccepted
	stateRejected
)

// debatesIn 在调用时根据投票结果划分，投票一结束辩题即离开待定分区
func (m *Market) debatesIn(ctx context.Context, want debateState, offset, limit int) (models.Page, error) {
	ids, err := m.debateIDs(ctx)
	if err != nil {
		return models.Page{}, err
	}
	outcomes, err := m.ledger.Outcomes(ctx, ids)
	if err != nil {
		return models.Page{}, err
	}
	matched := make([]uint64, 0, len(ids))
	for _, id := range ids {
		o := outcomes[id]
		state := statePending
		switch {
		case o.Closed && o.Accepted:
			state = stateAccepted
		case o.Closed:
			state = stateRejected
		}
		if state == want {
			matched = append(matched, id)
		}
	}
	return models.Paginate(matched, offset, limit), nil
}

// GetAcceptedDebateIDs 分页列出被接受的辩题
func (m *Market) GetAcceptedDebateIDs(ctx context.Context, offset, limit int) (models.Page, error) {
	return m.debatesIn(ctx, stateAccepted, offset, limit)
}

// GetRejectedDebateIDs 分页列出被否决的辩题
func (m *Market) GetRejectedDebateIDs(ctx context.Context, offset, limit int) (models.Page, error) {
	return m.debatesIn(ctx, stateRejected, offset, limit)
}

// GetPendingDebateIDs 分页列出投票进行中的辩题
func (m *Market) GetPendingDebateIDs(ctx context.Context, offset, limit int) (models.Page, error) {
	return m.debatesIn(ctx, statePending, offset, limit)
}

// GetOpinionIDs 按创建顺序列出辩题的观点
func (m *Market) GetOpinionIDs(ctx context.Context, debateID uint64, offset, limit int) (models.Page, error) {
	var ids []uint64
	err := database.Conn(ctx, m.db).Model(&models.Opinion{}).
		Where("debate_id = ?", debateID).Order("id asc").Pluck("id", &ids).Error
	if err != nil {
		return models.Page{}, err
	}
	return models.Paginate(ids, offset, limit), nil
}

// GetDebateIDsForTag 分页列出标签下的辩题
func (m *Market) GetDebateIDsForTag(ctx context.Context, tag string, offset, limit int) (models.Page, error) {
	return m.tags.GetIDsForTag(ctx, tag, offset, limit)
}

// GetVoterLockedAmount 投票者在条目上锁定的金额
func (m *Market) GetVoterLockedAmount(ctx context.Context, pollID uint64, voter models.Address) (models.Amount, error) {
	d, err := m.ledger.GetVoterDetail(ctx, pollID, voter)
	if err != nil {
		return models.ZeroAmount, err
	}
	return d.LockedAmount, nil
}

// GetVoterDetail 投票者在条目上的持仓
func (m *Market) GetVoterDetail(ctx context.Context, pollID uint64, voter models.Address) (models.VoterDetail, error) {
	return m.ledger.GetVoterDetail(ctx, pollID, voter)
}

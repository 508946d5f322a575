package governance

import (
	"context"

	"curation-governance-backend/database"
	"curation-governance-backend/models"
)

// ProposalDetails 提案及其奖励池
type ProposalDetails struct {
	models.Proposal
	ImplementationIDs []uint64 `json:"implementation_ids"`
}

// ImplementationDetails 实现及其投票详情
type ImplementationDetails struct {
	models.Implementation
	Poll models.PollDetail `json:"poll"`
}

// GetProposalIDs 分页列出提案
func (w *Workflow) GetProposalIDs(ctx context.Context, offset, limit int) (models.Page, error) {
	var ids []uint64
	if err := database.Conn(ctx, w.db).Model(&models.Proposal{}).Order("id asc").Pluck("id", &ids).Error; err != nil {
		return models.Page{}, err
	}
	return models.Paginate(ids, offset, limit), nil
}

// GetProposalDetails 查询提案详情
func (w *Workflow) GetProposalDetails(ctx context.Context, id uint64) (ProposalDetails, error) {
	tx := database.Conn(ctx, w.db)
	p, err := w.loadProposal(tx, id)
	if err != nil {
		return ProposalDetails{}, err
	}
	out := ProposalDetails{Proposal: p, ImplementationIDs: []uint64{}}
	err = tx.Model(&models.Implementation{}).Where("proposal_id = ?", id).
		Order("id asc").Pluck("id", &out.ImplementationIDs).Error
	return out, err
}

// GetContribution 存入者对提案的净贡献
func (w *Workflow) GetContribution(ctx context.Context, proposalID uint64, depositor models.Address) (models.Amount, error) {
	tx := database.Conn(ctx, w.db)
	if _, err := w.loadProposal(tx, proposalID); err != nil {
		return models.ZeroAmount, err
	}
	c, err := w.contribution(tx, proposalID, depositor)
	return c.Amount, err
}

// GetImplementationDetails 查询实现详情
func (w *Workflow) GetImplementationDetails(ctx context.Context, id uint64) (ImplementationDetails, error) {
	impl, err := w.loadImplementation(database.Conn(ctx, w.db), id)
	if err != nil {
		return ImplementationDetails{}, err
	}
	poll, err := w.ledger.GetVoteDetail(ctx, impl.PollID)
	if err != nil {
		return ImplementationDetails{}, err
	}
	return ImplementationDetails{Implementation: impl, Poll: poll}, nil
}

// implementationsIn 按结果筛选已结束的实现投票，无论是否已结算
func (w *Workflow) implementationsIn(ctx context.Context, accepted bool, offset, limit int) (models.Page, error) {
	var ids []uint64
	if err := database.Conn(ctx, w.db).Model(&models.Implementation{}).Order("id asc").Pluck("id", &ids).Error; err != nil {
		return models.Page{}, err
	}
	outcomes, err := w.ledger.Outcomes(ctx, ids)
	if err != nil {
		return models.Page{}, err
	}
	matched := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if o := outcomes[id]; o.Closed && o.Accepted == accepted {
			matched = append(matched, id)
		}
	}
	return models.Paginate(matched, offset, limit), nil
}

// GetAcceptedImplementationIDs 分页列出被接受的实现
func (w *Workflow) GetAcceptedImplementationIDs(ctx context.Context, offset, limit int) (models.Page, error) {
	return w.implementationsIn(ctx, true, offset, limit)
}

// GetRejectedImplementationIDs 分页列出被否决的实现
func (w *Workflow) GetRejectedImplementationIDs(ctx context.Context, offset, limit int) (models.Page, error) {
	return w.implementationsIn(ctx, false, offset, limit)
}

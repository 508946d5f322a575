package handlers

import (
	"net/http"

	"curation-governance-backend/models"

	"github.com/gin-gonic/gin"
)

// CreateProposalInput 创建提案请求
type CreateProposalInput struct {
	ContentRef string        `json:"content_ref" binding:"required"`
	Reward     models.Amount `json:"reward"`
}

// AmountInput 单一金额请求
type AmountInput struct {
	Amount models.Amount `json:"amount"`
}

// CreateImplementationInput 提交实现请求
type CreateImplementationInput struct {
	ContentRef string        `json:"content_ref" binding:"required"`
	Stake      models.Amount `json:"stake"`
}

func (h *Handler) CreateProposal(c *gin.Context) {
	var input CreateProposalInput
	if !bind(c, &input) {
		return
	}
	id, err := h.c.Workflow.CreateProposal(c.Request.Context(), callerOf(c), input.ContentRef, input.Reward)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) ListProposals(c *gin.Context) {
	offset, limit := pageParams(c)
	page, err := h.c.Workflow.GetProposalIDs(c.Request.Context(), offset, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetProposal(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.c.Workflow.GetProposalDetails(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetContribution(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	amount, err := h.c.Workflow.GetContribution(c.Request.Context(), id, models.Address(c.Param("depositor")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount})
}

func (h *Handler) AddToProposal(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input AmountInput
	if !bind(c, &input) {
		return
	}
	if err := h.c.Workflow.AddToProposal(c.Request.Context(), callerOf(c), id, input.Amount); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

func (h *Handler) WithdrawFromProposal(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input AmountInput
	if !bind(c, &input) {
		return
	}
	if err := h.c.Workflow.WithdrawFromProposal(c.Request.Context(), callerOf(c), id, input.Amount); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "withdrawn"})
}

func (h *Handler) CreateImplementation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input CreateImplementationInput
	if !bind(c, &input) {
		return
	}
	implID, err := h.c.Workflow.CreateImplementation(c.Request.Context(), callerOf(c), id, input.Stake, input.ContentRef)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": implID})
}

// ListImplementations state=accepted|rejected
func (h *Handler) ListImplementations(c *gin.Context) {
	ctx := c.Request.Context()
	offset, limit := pageParams(c)
	var (
		page models.Page
		err  error
	)
	switch c.Query("state") {
	case "accepted":
		page, err = h.c.Workflow.GetAcceptedImplementationIDs(ctx, offset, limit)
	case "rejected":
		page, err = h.c.Workflow.GetRejectedImplementationIDs(ctx, offset, limit)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be accepted or rejected"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetImplementation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	d, err := h.c.Workflow.GetImplementationDetails(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) VoteOnImplementation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input VoteInput
	if !bind(c, &input) {
		return
	}
	if err := h.c.Workflow.Vote(c.Request.Context(), callerOf(c), id, *input.VotedFor, input.Amount); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "voted"})
}

func (h *Handler) SettleImplementation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.c.Workflow.SettleImplementation(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "settled"})
}

func (h *Handler) ReturnImplementationFunds(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s, err := h.c.Workflow.ReturnVoteFundsAndReward(c.Request.Context(), callerOf(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

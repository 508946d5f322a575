package handlers

import (
	"net/http"

	"curation-governance-backend/models"

	"github.com/gin-gonic/gin"
)

// CreateDebateInput 创建辩题请求
type CreateDebateInput struct {
	Stake      models.Amount `json:"stake"`
	ContentRef string        `json:"content_ref" binding:"required"`
	Tags       []string      `json:"tags" binding:"max=3"`
}

// CreateOpinionInput 创建观点请求
type CreateOpinionInput struct {
	Stake      models.Amount `json:"stake"`
	ContentRef string        `json:"content_ref" binding:"required"`
}

// VoteInput 投票请求
type VoteInput struct {
	VotedFor *bool         `json:"voted_for" binding:"required"`
	Amount   models.Amount `json:"amount"`
}

func (h *Handler) CreateDebate(c *gin.Context) {
	var input CreateDebateInput
	if !bind(c, &input) {
		return
	}
	id, err := h.c.Market.CreateDebate(c.Request.Context(), callerOf(c), input.Stake, input.ContentRef, input.Tags...)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// ListDebates state=all|accepted|rejected|pending；指定tag时按标签查询
func (h *Handler) ListDebates(c *gin.Context) {
	ctx := c.Request.Context()
	offset, limit := pageParams(c)

	var (
		page models.Page
		err  error
	)
	if tag := c.Query("tag"); tag != "" {
		page, err = h.c.Market.GetDebateIDsForTag(ctx, tag, offset, limit)
	} else {
		switch c.DefaultQuery("state", "all") {
		case "all":
			page, err = h.c.Market.GetAllDebateIDs(ctx, offset, limit)
		case "accepted":
			page, err = h.c.Market.GetAcceptedDebateIDs(ctx, offset, limit)
		case "rejected":
			page, err = h.c.Market.GetRejectedDebateIDs(ctx, offset, limit)
		case "pending":
			page, err = h.c.Market.GetPendingDebateIDs(ctx, offset, limit)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "state must be all, accepted, rejected or pending"})
			return
		}
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetDebate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	d, err := h.c.Market.GetDebateDetails(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) GetOpinionRegistry(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	reg, err := h.c.Market.GetOpinionRegistryDetails(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (h *Handler) ListOpinions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	offset, limit := pageParams(c)
	page, err := h.c.Market.GetOpinionIDs(c.Request.Context(), id, offset, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) CreateOpinion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input CreateOpinionInput
	if !bind(c, &input) {
		return
	}
	opinionID, err := h.c.Market.CreateOpinion(c.Request.Context(), callerOf(c), id, input.Stake, input.ContentRef)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": opinionID})
}

func (h *Handler) GetOpinion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	o, err := h.c.Market.GetOpinionDetails(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// VoteOnEntry 对辩题或观点投票
func (h *Handler) VoteOnEntry(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input VoteInput
	if !bind(c, &input) {
		return
	}
	if err := h.c.Market.Vote(c.Request.Context(), callerOf(c), id, *input.VotedFor, input.Amount); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "voted"})
}

func (h *Handler) SettleEntry(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.c.Market.SettleCreatorAmounts(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "settled"})
}

func (h *Handler) ReturnEntryFunds(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s, err := h.c.Market.ReturnVoteFundsAndReward(c.Request.Context(), callerOf(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) GetReserve(c *gin.Context) {
	r, err := h.c.Market.Reserve(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reserve": r})
}

// SweepInput 转出储备金
type SweepInput struct {
	To models.Address `json:"to" binding:"required"`
}

func (h *Handler) SweepReserve(c *gin.Context) {
	var input SweepInput
	if !bind(c, &input) {
		return
	}
	swept, err := h.c.Market.SweepReserve(c.Request.Context(), callerOf(c), input.To)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": swept})
}

func (h *Handler) GetTagPage(c *gin.Context) {
	offset, limit := pageParams(c)
	page, err := h.c.Tags.GetIDsForTag(c.Request.Context(), c.Param("tag"), offset, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

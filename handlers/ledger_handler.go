package handlers

import (
	"net/http"

	"curation-governance-backend/models"

	"github.com/gin-gonic/gin"
)

// GetPoll 投票详情，进行中的投票不返回票数
func (h *Handler) GetPoll(c *gin.Context) {
	ledger, found := h.c.Ledger(c.Param("ledger"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown ledger"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	d, err := ledger.GetVoteDetail(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) GetVoter(c *gin.Context) {
	ledger, found := h.c.Ledger(c.Param("ledger"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown ledger"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	d, err := ledger.GetVoterDetail(c.Request.Context(), id, models.Address(c.Param("voter")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GetAccount 原生余额和代币余额
func (h *Handler) GetAccount(c *gin.Context) {
	ctx := c.Request.Context()
	addr := models.Address(c.Param("address"))
	native, err := h.c.Bank.BalanceOf(ctx, addr)
	if err != nil {
		h.respondError(c, err)
		return
	}
	tokens, err := h.c.Token.BalanceOf(ctx, addr)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr, "native": native, "tokens": tokens})
}

func (h *Handler) GetTokenInfo(c *gin.Context) {
	info, err := h.c.Token.Info(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// MintInput 用原生资产购买代币
type MintInput struct {
	Value models.Amount `json:"value"`
}

func (h *Handler) MintTokens(c *gin.Context) {
	var input MintInput
	if !bind(c, &input) {
		return
	}
	minted, err := h.c.Token.Mint(c.Request.Context(), callerOf(c), input.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"minted": minted})
}

func (h *Handler) BurnTokens(c *gin.Context) {
	var input AmountInput
	if !bind(c, &input) {
		return
	}
	refund, err := h.c.Token.Burn(c.Request.Context(), callerOf(c), input.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refund": refund})
}

// TransferInput 转账或授权
type TransferInput struct {
	To     models.Address `json:"to" binding:"required"`
	Amount models.Amount  `json:"amount"`
}

func (h *Handler) TransferTokens(c *gin.Context) {
	var input TransferInput
	if !bind(c, &input) {
		return
	}
	if err := h.c.Token.Transfer(c.Request.Context(), callerOf(c), input.To, input.Amount); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "transferred"})
}

// ApproveTokens 授权托管账户扣款，to为被授权方
func (h *Handler) ApproveTokens(c *gin.Context) {
	var input TransferInput
	if !bind(c, &input) {
		return
	}
	if err := h.c.Token.Approve(c.Request.Context(), callerOf(c), input.To, input.Amount); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (h *Handler) TransferNative(c *gin.Context) {
	var input TransferInput
	if !bind(c, &input) {
		return
	}
	if err := h.c.Bank.Transfer(c.Request.Context(), callerOf(c), input.To, input.Amount); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "transferred"})
}

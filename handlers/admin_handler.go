package handlers

import (
	"net/http"

	"curation-governance-backend/models"

	"github.com/gin-gonic/gin"
)

// 以下接口的所有者校验由各组件完成

func (h *Handler) Credit(c *gin.Context) {
	var input TransferInput
	if !bind(c, &input) {
		return
	}
	if err := h.c.Bank.Credit(c.Request.Context(), callerOf(c), input.To, input.Amount); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "credited"})
}

// AccessInput 账本访问授权
type AccessInput struct {
	Target models.Address `json:"target" binding:"required"`
}

func (h *Handler) GrantAccess(c *gin.Context) {
	h.changeAccess(c, true)
}

func (h *Handler) DenyAccess(c *gin.Context) {
	h.changeAccess(c, false)
}

func (h *Handler) changeAccess(c *gin.Context, grant bool) {
	registry, found := h.c.AccessRegistry(c.Param("ledger"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown ledger"})
		return
	}
	var input AccessInput
	if !bind(c, &input) {
		return
	}
	var err error
	if grant {
		err = registry.GrantAccess(c.Request.Context(), callerOf(c), input.Target)
	} else {
		err = registry.DenyAccess(c.Request.Context(), callerOf(c), input.Target)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"target": input.Target, "access": grant})
}

// SettingInput 设置项，按kind使用对应字段
type SettingInput struct {
	Kind        string         `json:"kind" binding:"required,oneof=int address string bool fraction"`
	Key         string         `json:"key" binding:"required"`
	Int         uint64         `json:"int"`
	Address     models.Address `json:"address"`
	String      string         `json:"string"`
	Bool        bool           `json:"bool"`
	Numerator   uint64         `json:"numerator"`
	Denominator uint64         `json:"denominator"`
}

func (h *Handler) SetSetting(c *gin.Context) {
	var input SettingInput
	if !bind(c, &input) {
		return
	}
	ctx := c.Request.Context()
	caller := callerOf(c)
	s := h.c.Settings

	var err error
	switch input.Kind {
	case "int":
		err = s.SetInt(ctx, caller, input.Key, input.Int)
	case "address":
		err = s.SetAddress(ctx, caller, input.Key, input.Address)
	case "string":
		err = s.SetString(ctx, caller, input.Key, input.String)
	case "bool":
		err = s.SetBool(ctx, caller, input.Key, input.Bool)
	case "fraction":
		err = s.SetFraction(ctx, caller, input.Key, models.Fraction{Numerator: input.Numerator, Denominator: input.Denominator})
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// GetSetting kind取int、address、string、bool或fraction
func (h *Handler) GetSetting(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")
	s := h.c.Settings

	var (
		value interface{}
		err   error
	)
	switch c.Param("kind") {
	case "int":
		value, err = s.GetInt(ctx, key)
	case "address":
		value, err = s.GetAddress(ctx, key)
	case "string":
		value, err = s.GetString(ctx, key)
	case "bool":
		value, err = s.GetBool(ctx, key)
	case "fraction":
		value, err = s.Fraction(ctx, key)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown setting kind"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

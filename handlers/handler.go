package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"curation-governance-backend/cache"
	"curation-governance-backend/models"
	"curation-governance-backend/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// Handler HTTP处理器，持有组件容器
type Handler struct {
	c   *service.Container
	log *zap.Logger
}

// New 创建处理器
func New(c *service.Container) *Handler {
	return &Handler{c: c, log: c.Log.With(zap.String("component", "http"))}
}

// respondError 将领域错误映射为HTTP状态码
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrPollNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrVotingClosed),
		errors.Is(err, models.ErrEarlyReturn),
		errors.Is(err, models.ErrAlreadyVoted),
		errors.Is(err, models.ErrChallengeInProgress),
		errors.Is(err, models.ErrImplementationInProgress),
		errors.Is(err, models.ErrDebateNotAccepted),
		errors.Is(err, models.ErrProposalClosed):
		return http.StatusConflict
	case errors.Is(err, models.ErrInsufficientStake),
		errors.Is(err, models.ErrInsufficientPool),
		errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvalidTag),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrAmountOverflow),
		errors.Is(err, models.ErrInvalidSetting):
		return http.StatusBadRequest
	case errors.Is(err, cache.ErrLockNotAcquired):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// paramID 解析路径中的数字ID
func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// pageParams 读取offset/limit，limit上限为maxLimit
func pageParams(c *gin.Context) (int, int) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}

func bind(c *gin.Context, input interface{}) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

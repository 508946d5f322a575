package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status       string                 `json:"status"`
	Version      string                 `json:"version"`
	Uptime       string                 `json:"uptime"`
	StartTime    time.Time              `json:"start_time"`
	CurrentTime  time.Time              `json:"current_time"`
	GoVersion    string                 `json:"go_version"`
	NumGoroutine int                    `json:"num_goroutine"`
	NumCPU       int                    `json:"num_cpu"`
	DBStatus     string                 `json:"db_status"`
	Queue        map[string]interface{} `json:"queue"`
}

var (
	startTime = time.Now()
	version   = "0.1.0" // 应用版本，可通过构建参数注入
)

// HealthCheck 提供基本健康检查端点
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息
func (h *Handler) SystemStatus(c *gin.Context) {
	// 检查数据库连接
	dbStatus := "ok"
	sqlDB, err := h.c.DB.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		dbStatus = "error"
	}

	info := SystemInfo{
		Status:       "ok",
		Version:      version,
		Uptime:       time.Since(startTime).String(),
		StartTime:    startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     dbStatus,
		Queue:        h.c.Broker.Stats(),
	}
	if dbStatus != "ok" {
		info.Status = "degraded"
	}
	c.JSON(http.StatusOK, info)
}

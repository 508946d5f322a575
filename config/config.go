package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database 数据库配置
type Database struct {
	Driver     string // mysql | sqlite
	User       string
	Password   string
	Host       string
	Port       string
	Name       string
	SQLitePath string
}

// DSN 构建MySQL连接串
func (d Database) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// Redis 配置，Addr为空时不使用Redis
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Token 联合曲线代币的创世参数
type Token struct {
	Name           string
	Symbol         string
	ReserveRatio   uint32 // 百万分比
	InitialSupply  string
	InitialReserve string
}

// RateLimit 按调用方限流
type RateLimit struct {
	Enabled   bool
	UserRate  int
	UserBurst int
}

// Config 服务全部配置
type Config struct {
	Environment  string
	HTTPAddr     string
	Owner        string
	JWTSecret    string
	VoteDuration time.Duration

	Database  Database
	Redis     Redis
	MQDriver  string // redis | rocketmq | memory
	RocketMQ  string
	RateLimit RateLimit
	Token     Token
}

// Load 从环境变量读取配置，存在.env文件时先加载
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("加载环境文件 %s 失败: %w", f, err)
			}
		}
	}

	voteDuration, err := time.ParseDuration(getEnv("VOTE_DURATION", "72h"))
	if err != nil {
		return nil, fmt.Errorf("VOTE_DURATION格式错误: %w", err)
	}
	ratio, err := strconv.ParseUint(getEnv("TOKEN_RESERVE_RATIO", "500000"), 10, 32)
	if err != nil || ratio == 0 || ratio > 1000000 {
		return nil, fmt.Errorf("TOKEN_RESERVE_RATIO必须在1到1000000之间")
	}

	cfg := &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8090"),
		Owner:        getEnv("OWNER_ADDRESS", "owner"),
		JWTSecret:    getEnv("JWT_SECRET", "change-me"),
		VoteDuration: voteDuration,
		Database: Database{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			User:       getEnv("DB_USER", "voteuser"),
			Password:   getEnv("DB_PASSWORD", "votepassword"),
			Host:       getEnv("DB_HOST", "mysql"),
			Port:       getEnv("DB_PORT", "3306"),
			Name:       getEnv("DB_NAME", "curationdb"),
			SQLitePath: getEnv("SQLITE_PATH", "curation.db"),
		},
		Redis: Redis{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MQDriver: strings.ToLower(getEnv("MQ_DRIVER", "memory")),
		RocketMQ: getEnv("ROCKETMQ_NAMESRV_ADDR", "localhost:9876"),
		RateLimit: RateLimit{
			Enabled:   getEnv("ENABLE_RATE_LIMIT", "false") == "true",
			UserRate:  getEnvInt("USER_RATE_LIMIT", 10),
			UserBurst: getEnvInt("USER_RATE_LIMIT", 10) * 2,
		},
		Token: Token{
			Name:           getEnv("TOKEN_NAME", "Curation Token"),
			Symbol:         getEnv("TOKEN_SYMBOL", "CUR"),
			ReserveRatio:   uint32(ratio),
			InitialSupply:  getEnv("TOKEN_INITIAL_SUPPLY", "1000000"),
			InitialReserve: getEnv("TOKEN_INITIAL_RESERVE", "500000"),
		},
	}

	switch cfg.Database.Driver {
	case "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("不支持的DB_DRIVER: %s", cfg.Database.Driver)
	}
	switch cfg.MQDriver {
	case "redis", "rocketmq", "memory":
	default:
		return nil, fmt.Errorf("不支持的MQ_DRIVER: %s", cfg.MQDriver)
	}
	return cfg, nil
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv 获取环境变量值或使用默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

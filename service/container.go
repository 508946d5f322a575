// Package service wires the ledgers, the curation market and the governance
// workflow onto one database, one locker and one event broker.
package service

import (
	"context"
	"fmt"
	"time"

	"curation-governance-backend/access"
	"curation-governance-backend/bank"
	"curation-governance-backend/cache"
	"curation-governance-backend/clock"
	"curation-governance-backend/config"
	"curation-governance-backend/curation"
	"curation-governance-backend/escrow"
	"curation-governance-backend/governance"
	"curation-governance-backend/models"
	"curation-governance-backend/mq"
	"curation-governance-backend/settings"
	"curation-governance-backend/tags"
	"curation-governance-backend/token"
	"curation-governance-backend/voteledger"
	"curation-governance-backend/websocket"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 组件身份与托管账户
const (
	CurationAddress   = models.Address("curation")
	GovernanceAddress = models.Address("governance")

	CurationLedger   = "curation"
	GovernanceLedger = "governance"

	curationVotes   = models.Address("curation:votes")
	curationStakes  = models.Address("curation:stakes")
	governanceVotes = models.Address("governance:votes")
	governanceFunds = models.Address("governance:funds")
)

// Deps 外部资源，Redis和Clock可为nil
type Deps struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Clock  clock.Clock
	Log    *zap.Logger
}

// Container 持有全部组件
type Container struct {
	Config *config.Config
	DB     *gorm.DB
	Owner  models.Address
	Log    *zap.Logger

	Locker  cache.Locker
	Limiter *cache.UserRateLimiter
	Broker  mq.Broker
	Hub     *websocket.Hub

	Bank     *bank.Bank
	Token    *token.Token
	Settings *settings.Registry
	Tags     *tags.Index

	CurationAccess   *access.Registry
	GovernanceAccess *access.Registry
	Ledgers          map[string]*voteledger.Ledger

	Market   *curation.Market
	Workflow *governance.Workflow

	curationEscrow escrow.Escrow
}

// New 构建组件图，不写数据库
func New(d Deps) *Container {
	cfg := d.Config
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	owner := models.Address(cfg.Owner)

	c := &Container{
		Config:  cfg,
		DB:      d.DB,
		Owner:   owner,
		Log:     log,
		Ledgers: make(map[string]*voteledger.Ledger, 2),
	}

	// 有Redis时用redsync分布式锁和Redis令牌桶，否则进程内实现
	var limiterClient cache.RedisClient
	if d.Redis != nil {
		c.Locker = cache.NewRedisLocker(d.Redis, 30*time.Second)
		limiterClient = d.Redis
	} else {
		c.Locker = cache.NewLocalLocker()
	}
	c.Limiter = cache.NewUserRateLimiter(limiterClient, "api", cfg.RateLimit.UserRate, cfg.RateLimit.UserBurst)
	c.Broker = mq.New(cfg.MQDriver, cfg.RocketMQ, d.Redis, log)
	c.Hub = websocket.NewHub(log)

	c.Bank = bank.New(d.DB, owner, log)
	c.Token = token.New(d.DB, c.Bank, owner, log)
	c.Settings = settings.New(d.DB, owner, log)
	c.Tags = tags.New(d.DB, c.Settings, log)

	c.CurationAccess = access.New(d.DB, CurationLedger, owner, log)
	c.GovernanceAccess = access.New(d.DB, GovernanceLedger, owner, log)

	curationLedger := voteledger.New(d.DB, voteledger.Options{
		Name:     CurationLedger,
		Duration: cfg.VoteDuration,
		Gate:     c.CurationAccess,
		Escrow:   escrow.NewNative(c.Bank, curationVotes),
		Clock:    d.Clock,
		Locker:   c.Locker,
		Events:   c.Broker,
		Log:      log,
	})
	governanceLedger := voteledger.New(d.DB, voteledger.Options{
		Name:     GovernanceLedger,
		Duration: cfg.VoteDuration,
		Gate:     c.GovernanceAccess,
		Escrow:   escrow.NewToken(c.Token, governanceVotes),
		Clock:    d.Clock,
		Locker:   c.Locker,
		Events:   c.Broker,
		Log:      log,
	})
	c.Ledgers[CurationLedger] = curationLedger
	c.Ledgers[GovernanceLedger] = governanceLedger

	c.curationEscrow = escrow.NewNative(c.Bank, curationStakes)
	c.Market = curation.New(d.DB, curation.Options{
		Address:  CurationAddress,
		Owner:    owner,
		Ledger:   curationLedger,
		Stakes:   c.curationEscrow,
		Settings: c.Settings,
		Tags:     c.Tags,
		Locker:   c.Locker,
		Events:   c.Broker,
		Log:      log,
	})
	c.Workflow = governance.New(d.DB, governance.Options{
		Address: GovernanceAddress,
		Ledger:  governanceLedger,
		Funds:   escrow.NewToken(c.Token, governanceFunds),
		Locker:  c.Locker,
		Events:  c.Broker,
		Log:     log,
	})
	return c
}

// Bootstrap 授权组件访问账本、写入默认设置、创建代币。可重复执行
func (c *Container) Bootstrap(ctx context.Context) error {
	if err := c.CurationAccess.GrantAccess(ctx, c.Owner, CurationAddress); err != nil {
		return fmt.Errorf("授权curation账本失败: %w", err)
	}
	if err := c.GovernanceAccess.GrantAccess(ctx, c.Owner, GovernanceAddress); err != nil {
		return fmt.Errorf("授权governance账本失败: %w", err)
	}

	// 已有设置时保留所有者修改过的值
	debates, err := c.Settings.GetAddress(ctx, settings.KeyAddressDebates)
	if err != nil {
		return err
	}
	if debates.IsZero() {
		defaults := settings.DefaultValues(CurationAddress, GovernanceAddress, c.Owner)
		if err := c.Settings.SeedDefaults(ctx, defaults); err != nil {
			return fmt.Errorf("写入默认设置失败: %w", err)
		}
	}

	supply, err := models.ParseAmount(c.Config.Token.InitialSupply)
	if err != nil {
		return fmt.Errorf("TOKEN_INITIAL_SUPPLY: %w", err)
	}
	reserve, err := models.ParseAmount(c.Config.Token.InitialReserve)
	if err != nil {
		return fmt.Errorf("TOKEN_INITIAL_RESERVE: %w", err)
	}
	err = c.Token.Init(ctx, c.Owner, token.Genesis{
		Name:           c.Config.Token.Name,
		Symbol:         c.Config.Token.Symbol,
		ReserveRatio:   c.Config.Token.ReserveRatio,
		InitialSupply:  supply,
		InitialReserve: reserve,
	})
	if err != nil {
		return fmt.Errorf("代币初始化失败: %w", err)
	}
	c.Log.Info("bootstrap complete", zap.String("owner", c.Owner.String()))
	return nil
}

// Start 启动WebSocket集线器并把消息队列事件转发给它
func (c *Container) Start(ctx context.Context) error {
	go c.Hub.Run(ctx)
	if err := c.Broker.Subscribe(c.Hub.HandleEvent); err != nil {
		return fmt.Errorf("订阅账本事件失败: %w", err)
	}
	return nil
}

// Ledger 按名称查找投票账本
func (c *Container) Ledger(name string) (*voteledger.Ledger, bool) {
	l, ok := c.Ledgers[name]
	return l, ok
}

// AccessRegistry 按账本名称查找访问控制表
func (c *Container) AccessRegistry(name string) (*access.Registry, bool) {
	switch name {
	case CurationLedger:
		return c.CurationAccess, true
	case GovernanceLedger:
		return c.GovernanceAccess, true
	}
	return nil, false
}

// Close 关闭消息队列
func (c *Container) Close() {
	c.Broker.Close()
}

package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"curation-governance-backend/config"
	"curation-governance-backend/models"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库连接
func InitDB(cfg config.Database, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := Open(dialector, logger.Warn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	log.Info("数据库连接成功", zap.String("driver", cfg.Driver))
	return db, nil
}

// Open 打开连接并配置连接池。sqlite只允许一个连接，事务天然串行
func Open(dialector gorm.Dialector, level logger.LogLevel) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if db.Dialector.Name() == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

// Migrate 自动迁移全部模型
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("迁移模型失败: %w", err)
	}
	return nil
}

// CloseDB 关闭数据库连接
func CloseDB(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("获取数据库连接失败", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("关闭数据库连接失败", zap.Error(err))
		return
	}
	log.Info("数据库连接已关闭")
}

type txKey struct{}

type txState struct {
	tx          *gorm.DB
	afterCommit []func()
}

// Atomic 在一个事务内执行fn。ctx中已有事务时直接加入外层事务，
// 只有最外层负责提交，提交成功后依次执行AfterCommit注册的回调
func Atomic(ctx context.Context, db *gorm.DB, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx, st.tx)
	}

	st := &txState{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st.tx = tx
		return fn(context.WithValue(ctx, txKey{}, st), tx)
	})
	if err != nil {
		return err
	}
	for _, hook := range st.afterCommit {
		hook()
	}
	return nil
}

// AfterCommit 注册在最外层事务提交后执行的回调；不在事务中时立即执行
func AfterCommit(ctx context.Context, hook func()) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		st.afterCommit = append(st.afterCommit, hook)
		return
	}
	hook()
}

// Conn 返回ctx中的事务，没有则返回带ctx的普通连接
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return st.tx
	}
	return db.WithContext(ctx)
}

// ForUpdate 行锁，sqlite不支持SELECT ... FOR UPDATE
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

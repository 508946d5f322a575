package migrate

import (
	"fmt"

	"curation-governance-backend/config"
	"curation-governance-backend/database"
	"curation-governance-backend/logger"

	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Creates or updates the database schema",
		RunE:  migrateFunc,
	}
	c.Flags().String("env-file", ".env", "环境变量文件")
	return c
}

func migrateFunc(c *cobra.Command, _ []string) error {
	envFile, err := c.Flags().GetString("env-file")
	if err != nil {
		return err
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Environment)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.InitDB(cfg.Database, log)
	if err != nil {
		return err
	}
	defer database.CloseDB(db, log)

	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info("数据库迁移完成")
	return nil
}

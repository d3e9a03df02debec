package database

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options 数据库连接参数
type Options struct {
	DSN      string
	LogLevel logger.LogLevel // 默认 Warn
	Logger   *zap.Logger
}

// dialectorOf 按 DSN 选择驱动
// postgres:// / postgresql:// / key=value 形式走 postgres，sqlite: 前缀或 .db 文件走 sqlite
func dialectorOf(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasSuffix(dsn, ".db"), dsn == ":memory:":
		return sqlite.Open(dsn)
	default:
		return postgres.Open(dsn)
	}
}

// InitDB 初始化数据库连接
// models: 需要自动建表/迁移的结构体指针
func InitDB(opts Options, models ...interface{}) (*gorm.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("数据库 DSN 为空")
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(dialectorOf(opts.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(opts.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	// 获取底层的 sqlDB 对象，用于设置连接池参数
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 SQL DB 失败: %w", err)
	}
	if db.Dialector.Name() == "sqlite" {
		// sqlite 单写者
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("自动建表出错: %w", err)
		}
	}

	log.Info("[Database] 数据库连接成功", zap.String("driver", db.Dialector.Name()))
	return db, nil
}

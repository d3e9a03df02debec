package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ==================== 全局日志 ====================

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// Options 日志配置
type Options struct {
	Level  string // debug / info / warn / error
	Format string // json / console
}

// New 按配置构建 zap.Logger
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.Set(strings.ToLower(opts.Level)); err != nil {
			return nil, err
		}
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(opts.Format, "console") {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// 批处理场景下采样会吞掉同类告警
	cfg.Sampling = nil

	return cfg.Build()
}

// Init 初始化全局日志
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set 替换全局日志 (测试中可注入 zaptest / Nop)
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	global = l
	mu.Unlock()
}

// L 获取全局日志
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync 刷新缓冲
func Sync() {
	_ = L().Sync()
}

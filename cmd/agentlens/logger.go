package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentkitai/agentlens/config"
)

// initLogger 按配置构建 logger。返回的 AtomicLevel 由配置重载器调整，
// 构建失败时退回 zap.NewProduction。
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	console := cfg.Format == "console"

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	encoding := "json"
	if console {
		enc = zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	logger, err := zap.Config{
		Level:             level,
		Development:       console,
		Encoding:          encoding,
		EncoderConfig:     enc,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger, level
}

// parseLevel 无法识别的级别按 info 处理
func parseLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil || lvl < zapcore.DebugLevel || lvl > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return lvl
}

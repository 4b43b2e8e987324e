package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🗄️ 连接池
// =============================================================================

// ErrPoolClosed Close 之后的调用返回该错误
var ErrPoolClosed = errors.New("pool is closed")

// StatsRecorder 接收健康检查时采集的连接数
type StatsRecorder interface {
	RecordDBConnections(database string, open, idle int)
}

// PoolOption 配置 PoolManager
type PoolOption func(*PoolManager)

// WithStatsRecorder 每次健康检查后以 name 为标签上报连接数
func WithStatsRecorder(name string, recorder StatsRecorder) PoolOption {
	return func(pm *PoolManager) {
		pm.name = name
		pm.recorder = recorder
	}
}

// PoolConfig 连接池参数；HealthCheckInterval 为 0 时不做后台探活
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns        int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

func (c PoolConfig) Validate() error {
	switch {
	case c.MaxOpenConns <= 0:
		return errors.New("max_open_conns must be positive")
	case c.MaxIdleConns <= 0:
		return errors.New("max_idle_conns must be positive")
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// PoolManager 持有 GORM 实例与底层 sql.DB，负责探活与关闭
type PoolManager struct {
	db       *gorm.DB
	sqlDB    *sql.DB
	config   PoolConfig
	logger   *zap.Logger
	recorder StatsRecorder
	name     string

	mu     sync.RWMutex
	closed bool
	stop   context.CancelFunc
}

// NewPoolManager 应用连接池参数并按需启动后台探活
func NewPoolManager(db *gorm.DB, config PoolConfig, logger *zap.Logger, opts ...PoolOption) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, stop := context.WithCancel(context.Background())
	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "db_pool")),
		name:   db.Dialector.Name(),
		stop:   stop,
	}
	for _, opt := range opts {
		opt(pm)
	}

	if config.HealthCheckInterval > 0 {
		go pm.probe(ctx)
	}

	pm.logger.Info("database pool initialized",
		zap.String("name", pm.name),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns),
	)
	return pm, nil
}

func (pm *PoolManager) DB() *gorm.DB {
	return pm.db
}

func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

func (pm *PoolManager) Stats() sql.DBStats {
	return pm.sqlDB.Stats()
}

// Close 幂等
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.closed {
		return nil
	}
	pm.closed = true
	pm.stop()
	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

// probe 定时探活并上报连接数，ctx 取消后退出
func (pm *PoolManager) probe(ctx context.Context) {
	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := pm.Ping(pingCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				pm.logger.Error("database health check failed", zap.Error(err))
			}
			continue
		}

		stats := pm.Stats()
		if pm.recorder != nil {
			pm.recorder.RecordDBConnections(pm.name, stats.OpenConnections, stats.Idle)
		}
		pm.logger.Debug("database health check passed",
			zap.Int("open", stats.OpenConnections),
			zap.Int("in_use", stats.InUse),
			zap.Int("idle", stats.Idle),
		)
	}
}

// =============================================================================
// 🔄 事务重试
// =============================================================================

// TransactionFunc 事务回调，只能使用传入的 tx
type TransactionFunc func(tx *gorm.DB) error

// TransactionWithRetry 执行事务，瞬时错误（见 IsRetryableError）按
// 100ms、200ms、400ms... 退避重试，最多 maxRetries 次；其他错误直接返回。
func TransactionWithRetry(ctx context.Context, db *gorm.DB, maxRetries int, fn TransactionFunc, logger *zap.Logger) error {
	maxRetries = max(maxRetries, 1)
	if logger == nil {
		logger = zap.NewNop()
	}

	var err error
	for attempt := range maxRetries {
		if err = db.WithContext(ctx).Transaction(fn); err == nil || !IsRetryableError(err) {
			return err
		}
		if attempt == maxRetries-1 {
			break
		}
		logger.Warn("transaction failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)

		timer := time.NewTimer(100 * time.Millisecond << attempt)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("transaction failed after %d retries: %w", maxRetries, err)
}

// retryableMarkers 死锁、序列化失败 (SQLSTATE 40001)、锁等待超时与断连
var retryableMarkers = []string{
	"deadlock",
	"serialization failure",
	"could not serialize",
	"40001",
	"lock timeout",
	"lock wait timeout",
	"connection reset",
	"connection refused",
	"broken pipe",
	"bad connection",
	"database is locked",
}

// IsRetryableError 判断错误是否为可重试的瞬时错误
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

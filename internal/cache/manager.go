package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrClosed    = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为未命中
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config Redis 连接与缓存参数
type Config struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"password"`
	DB           int    `yaml:"db" json:"db"`
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns"`

	// Set 的 ttl 为 0 时使用
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 0 表示不做后台探活
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	// 为 nil 时使用明文连接
	TLSConfig *tls.Config `yaml:"-" json:"-"`
}

func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		DefaultTTL:          5 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// =============================================================================
// 💾 Manager
// =============================================================================

// Manager 持有进程内唯一的 Redis 连接：租户策略缓存直接使用键值方法，
// 委托传输与分布式限流通过 Client 复用同一连接池。
type Manager struct {
	client *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   context.CancelFunc
}

// NewManager 建立连接并 Ping，失败时返回错误
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		TLSConfig:    config.TLSConfig,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	m := &Manager{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stop:   stop,
	}
	if config.HealthCheckInterval > 0 {
		go m.probe(ctx)
	}

	m.logger.Info("cache manager initialized",
		zap.String("addr", config.Addr),
		zap.Bool("tls", config.TLSConfig != nil),
		zap.Int("pool_size", config.PoolSize),
	)
	return m, nil
}

// Client 返回底层连接，供传输与限流使用
func (m *Manager) Client() redis.UniversalClient {
	return m.client
}

// open 在读锁下执行 fn，已关闭时返回 ErrClosed
func (m *Manager) open(fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn()
}

func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := m.open(func() error {
		var err error
		val, err = m.client.Get(ctx, key).Result()
		return err
	})
	switch {
	case errors.Is(err, redis.Nil):
		return "", ErrCacheMiss
	case errors.Is(err, ErrClosed):
		return "", err
	case err != nil:
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}
	return val, nil
}

func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	err := m.open(func() error {
		return m.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return err
}

// GetJSON 读取并反序列化到 dest，未命中返回 ErrCacheMiss
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := m.open(func() error {
		return m.client.Del(ctx, keys...).Err()
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return err
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.open(func() error {
		return m.client.Ping(ctx).Err()
	})
}

// Close 幂等；关闭后所有方法返回 ErrClosed
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.stop()
	m.logger.Info("closing cache manager")
	return m.client.Close()
}

func (m *Manager) probe(ctx context.Context) {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := m.Ping(pingCtx); err != nil && ctx.Err() == nil {
			m.logger.Error("cache health check failed", zap.Error(err))
		}
		cancel()
	}
}

// 配置文件轮询重载。
//
// 按修改时间轮询配置文件，变更后重新走完整加载流程并校验，
// 校验失败时保留当前配置。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback 在配置成功重载后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// Reloader 监听配置文件并在变更时重新加载
type Reloader struct {
	mu sync.RWMutex

	path         string
	envPrefix    string
	pollInterval time.Duration

	current   *Config
	lastMod   time.Time
	callbacks []ReloadCallback

	logger *zap.Logger
}

// ReloaderOption 配置 Reloader
type ReloaderOption func(*Reloader)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithReloaderLogger 设置日志记录器
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReloaderEnvPrefix 设置重载时使用的环境变量前缀
func WithReloaderEnvPrefix(prefix string) ReloaderOption {
	return func(r *Reloader) {
		r.envPrefix = prefix
	}
}

// NewReloader 创建重载器，initial 为当前生效的配置
func NewReloader(path string, initial *Config, opts ...ReloaderOption) (*Reloader, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if initial == nil {
		return nil, fmt.Errorf("initial config is required")
	}

	r := &Reloader{
		path:         path,
		envPrefix:    "AGENTLENS",
		pollInterval: time.Second,
		current:      initial,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "config_reloader"))

	if info, err := os.Stat(path); err == nil {
		r.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}

	return r, nil
}

// OnReload 注册重载回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Run 轮询配置文件直到 ctx 结束
func (r *Reloader) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Info("watching config file",
		zap.String("path", r.path),
		zap.Duration("poll_interval", r.pollInterval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !r.changed() {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Warn("config reload rejected, keeping current config", zap.Error(err))
			}
		}
	}
}

// changed 检查文件修改时间是否前进
func (r *Reloader) changed() bool {
	info, err := os.Stat(r.path)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !info.ModTime().After(r.lastMod) {
		return false
	}
	r.lastMod = info.ModTime()
	return true
}

// Reload 重新加载并校验配置，成功后通知回调
func (r *Reloader) Reload() error {
	next, err := NewLoader().
		WithConfigPath(r.path).
		WithEnvPrefix(r.envPrefix).
		Load()
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	old := r.current
	r.current = next
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	r.logger.Info("config reloaded", zap.String("path", r.path))
	for _, cb := range callbacks {
		cb(old, next)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentkitai/agentlens/agent/delegation"
	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/agent/identity"
	"github.com/agentkitai/agentlens/agent/observability"
	"github.com/agentkitai/agentlens/agent/persistence"
	"github.com/agentkitai/agentlens/agent/transport"
	"github.com/agentkitai/agentlens/api/handlers"
	"github.com/agentkitai/agentlens/config"
	"github.com/agentkitai/agentlens/internal/cache"
	"github.com/agentkitai/agentlens/internal/database"
	"github.com/agentkitai/agentlens/internal/metrics"
	"github.com/agentkitai/agentlens/internal/server"
	"github.com/agentkitai/agentlens/internal/telemetry"
	"github.com/agentkitai/agentlens/internal/tlsutil"
)

// statsWindow 进程内统计为每个任务类型保留的最近耗时样本数
const statsWindow = 1000

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentLens 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel
	providers  *telemetry.Providers
	collector  *metrics.Collector

	// 后端连接
	db    *database.PoolManager
	cache *cache.Manager
	mongo *mongo.Client

	// 服务
	identities *identity.Manager
	registry   *discovery.CapabilityRegistry
	discovery  *discovery.Service
	delegation *delegation.Service
	transport  transport.Transport
	stats      *observability.Collector

	// Handlers
	healthHandler     *handlers.HealthHandler
	capabilityHandler *handlers.CapabilityHandler
	discoveryHandler  *handlers.DiscoveryHandler
	delegationHandler *handlers.DelegationHandler

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	reloader *config.Reloader

	// 限流清理与配置轮询的生命周期
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer 创建服务器实例；configPath 非空时启用配置轮询重载
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel,
	providers *telemetry.Providers, collector *metrics.Collector) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
		providers:  providers,
		collector:  collector,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化依赖并启动所有服务
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// 1. 后端、服务与 handlers
	if err := s.init(ctx); err != nil {
		return err
	}

	// 2. 配置重载
	if err := s.initReloader(ctx); err != nil {
		return fmt.Errorf("failed to init config reloader: %w", err)
	}

	// 3. HTTP 服务器
	if err := s.startHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 4. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("transport", s.cfg.Delegation.Transport),
		zap.String("store", s.cfg.Delegation.Store),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != ""),
		zap.Bool("auth_enabled", s.cfg.Auth.Enabled),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)
	return nil
}

// init 依次初始化后端连接、领域服务与 handlers
func (s *Server) init(ctx context.Context) error {
	if err := s.initBackends(ctx); err != nil {
		return fmt.Errorf("failed to init backends: %w", err)
	}
	if err := s.initServices(ctx); err != nil {
		return fmt.Errorf("failed to init services: %w", err)
	}
	s.initHandlers()
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) needsDatabase() bool {
	d := s.cfg.Delegation
	return d.Store == string(persistence.StoreTypeDatabase) || d.LogStore == string(persistence.StoreTypeDatabase)
}

func (s *Server) needsRedis() bool {
	d := s.cfg.Delegation
	return d.Transport == "redis" || d.RateLimiter == "redis"
}

// initBackends 按配置打开数据库、Redis 与 MongoDB 连接
func (s *Server) initBackends(ctx context.Context) error {
	if s.needsDatabase() {
		pm, err := database.Open(s.cfg.Database, s.logger,
			database.WithStatsRecorder(s.cfg.Database.Driver, s.collector))
		if err != nil {
			return err
		}
		s.db = pm
		if err := persistence.InitDatabase(pm.DB()); err != nil {
			return err
		}
	}

	if s.needsRedis() {
		rc := s.cfg.Redis
		cc := cache.DefaultConfig()
		cc.Addr = rc.Addr
		cc.Password = rc.Password
		cc.DB = rc.DB
		cc.PoolSize = rc.PoolSize
		cc.MinIdleConns = rc.MinIdleConns
		if s.cfg.Delegation.ConfigCacheTTL > 0 {
			cc.DefaultTTL = s.cfg.Delegation.ConfigCacheTTL
		}
		if rc.TLSEnabled {
			cc.TLSConfig = tlsutil.RedisTLSConfig(rc.Addr)
		}
		m, err := cache.NewManager(cc, s.logger)
		if err != nil {
			return err
		}
		s.cache = m
	}

	if s.cfg.Delegation.LogStore == string(persistence.StoreTypeMongo) {
		mc := s.cfg.Mongo
		if mc.ConnectTimeout <= 0 {
			mc.ConnectTimeout = config.DefaultConfig().Mongo.ConnectTimeout
		}
		client, err := mongo.Connect(options.Client().
			ApplyURI(mc.URI).
			SetConnectTimeout(mc.ConnectTimeout))
		if err != nil {
			return fmt.Errorf("failed to connect mongo: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, mc.ConnectTimeout)
		defer cancel()
		if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.Background())
			return fmt.Errorf("failed to ping mongo: %w", err)
		}
		s.mongo = client
		s.logger.Info("Mongo connected", zap.String("database", mc.Database))
	}
	return nil
}

// initServices 组装存储、身份、注册表、发现与委托服务
func (s *Server) initServices(ctx context.Context) error {
	d := s.cfg.Delegation

	var backends persistence.Backends
	if s.db != nil {
		backends.DB = s.db.DB()
	}
	backends.Mongo = s.mongo
	stores, err := persistence.NewStores(ctx, persistence.StoreConfig{
		Type:            persistence.StoreType(d.Store),
		LogType:         persistence.StoreType(d.LogStore),
		MongoDatabase:   s.cfg.Mongo.Database,
		MongoCollection: s.cfg.Mongo.Collection,
	}, backends, s.logger)
	if err != nil {
		return err
	}

	configs := stores.Configs
	if s.cache != nil && d.ConfigCacheTTL > 0 {
		configs = persistence.NewCachedConfigStore(configs, s.cache, d.ConfigCacheTTL, s.logger)
	}

	// 可观测性：OTel 指标、Prometheus 与进程内统计
	otelMetrics, err := observability.NewMetrics(
		observability.WithMeterProvider(s.providers.MeterProvider()),
		observability.WithTracerProvider(s.providers.TracerProvider()),
	)
	if err != nil {
		return fmt.Errorf("failed to create delegation metrics: %w", err)
	}
	s.stats = observability.NewCollector(statsWindow)
	observer := observability.Multi{otelMetrics, s.collector, s.stats}

	s.identities = identity.NewManager(stores.Identities, identity.Config{
		TTL:          d.IdentityTTL,
		ResolveGrace: d.IdentityResolveGrace,
	}, s.logger)

	registryCfg := discovery.DefaultRegistryConfig()
	registryCfg.DefaultInboundRateLimit = d.DefaultInboundRateLimit
	registryCfg.DefaultOutboundRateLimit = d.DefaultOutboundRateLimit
	s.registry = discovery.NewCapabilityRegistry(stores.Capabilities, s.identities, registryCfg, s.logger)

	var limiter discovery.RateLimiter
	if d.RateLimiter == "redis" {
		limiter = discovery.NewRedisRateLimiter(s.cache.Client(), "agentlens:ratelimit:", d.RateLimitWindow)
	} else {
		limiter = discovery.NewFixedWindowLimiter(d.RateLimitWindow)
	}

	s.discovery = discovery.NewService(stores.Capabilities, configs, s.identities, limiter, &discovery.ServiceConfig{
		ResultCap:                d.DiscoveryResultCap,
		DefaultMinTrustThreshold: d.DefaultMinTrustThreshold,
		DefaultDelegationEnabled: d.DefaultDelegationEnabled,
		DefaultOutboundRateLimit: d.DefaultOutboundRateLimit,
	}, s.logger,
		discovery.WithObserver(observer),
		discovery.WithTracer(otelMetrics.Tracer()),
	)

	if d.Transport == "redis" {
		rt, err := transport.NewRedisTransport(s.cache.Client(), transport.RedisConfig{
			Retention: d.TransportRetention,
		}, s.logger)
		if err != nil {
			return err
		}
		s.transport = rt
	} else {
		s.transport = transport.NewLocalTransport(s.logger)
	}

	s.delegation, err = delegation.NewService(delegation.Dependencies{
		Transport:  s.transport,
		Discovery:  s.discovery,
		Registry:   s.registry,
		Identities: s.identities,
		Logs:       stores.Logs,
		Observer:   observer,
		Tracer:     otelMetrics.Tracer(),
	}, &delegation.Config{
		DefaultTimeout:    d.DefaultTimeout,
		MaxTimeout:        d.MaxTimeout,
		DefaultMaxRetries: d.DefaultMaxRetries,
		MaxRetriesCap:     d.MaxRetriesCap,
	}, s.logger)
	if err != nil {
		return err
	}

	s.logger.Info("Services initialized",
		zap.String("transport", d.Transport),
		zap.String("rate_limiter", d.RateLimiter),
		zap.Bool("config_cache", configs != stores.Configs),
	)
	return nil
}

// initHandlers 初始化所有 handlers 并注册就绪检查
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.db != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("database", s.db.Ping))
	}
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("redis", s.cache.Ping))
	}
	if s.mongo != nil {
		client := s.mongo
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("mongo", func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		}))
	}

	s.capabilityHandler = handlers.NewCapabilityHandler(s.registry, s.logger)
	s.discoveryHandler = handlers.NewDiscoveryHandler(s.discovery, s.logger)
	s.delegationHandler = handlers.NewDelegationHandler(s.delegation, s.stats, s.logger)

	s.logger.Info("Handlers initialized")
}

// initReloader 启动配置文件轮询，日志级别随配置即时生效
func (s *Server) initReloader(ctx context.Context) error {
	if s.configPath == "" {
		return nil
	}
	r, err := config.NewReloader(s.configPath, s.cfg, config.WithReloaderLogger(s.logger))
	if err != nil {
		return err
	}
	r.OnReload(func(oldConfig, newConfig *config.Config) {
		if oldConfig.Log.Level != newConfig.Log.Level {
			if err := s.level.UnmarshalText([]byte(newConfig.Log.Level)); err != nil {
				s.logger.Warn("invalid log level in reloaded config", zap.String("level", newConfig.Log.Level))
				return
			}
			s.logger.Info("Log level changed",
				zap.String("from", oldConfig.Log.Level),
				zap.String("to", newConfig.Log.Level))
		}
		s.logger.Info("Configuration reloaded; non-logging changes apply on restart")
	})
	s.reloader = r

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := r.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("config reloader stopped", zap.Error(err))
		}
	}()
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// publicPaths 无需认证的路径
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

// routes 注册所有路由
func (s *Server) routes(mux *http.ServeMux) {
	// ========================================
	// 健康检查
	// ========================================
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 能力注册
	// ========================================
	mux.HandleFunc("POST /api/v1/capabilities", s.capabilityHandler.HandleCreate)
	mux.HandleFunc("GET /api/v1/capabilities", s.capabilityHandler.HandleList)
	mux.HandleFunc("GET /api/v1/capabilities/{id}", s.capabilityHandler.HandleGet)
	mux.HandleFunc("DELETE /api/v1/capabilities/{id}", s.capabilityHandler.HandleDelete)
	mux.HandleFunc("PUT /api/v1/capabilities/{id}/permissions", s.capabilityHandler.HandleUpdatePermissions)

	// ========================================
	// 发现与租户策略
	// ========================================
	mux.HandleFunc("GET /api/v1/discover", s.discoveryHandler.HandleDiscover)
	mux.HandleFunc("GET /api/v1/discovery/config", s.discoveryHandler.HandleGetConfig)
	mux.HandleFunc("PUT /api/v1/discovery/config", s.discoveryHandler.HandleUpdateConfig)

	// ========================================
	// 委托
	// ========================================
	mux.HandleFunc("POST /api/v1/delegations", s.delegationHandler.HandleDelegate)
	mux.HandleFunc("GET /api/v1/delegations/inbox", s.delegationHandler.HandleInbox)
	mux.HandleFunc("POST /api/v1/delegations/{id}/accept", s.delegationHandler.HandleAccept)
	mux.HandleFunc("POST /api/v1/delegations/{id}/complete", s.delegationHandler.HandleComplete)
	mux.HandleFunc("POST /api/v1/delegations/{id}/reject", s.delegationHandler.HandleReject)
	mux.HandleFunc("POST /api/v1/delegations/{id}/fail", s.delegationHandler.HandleFail)
	mux.HandleFunc("GET /api/v1/delegations/logs", s.delegationHandler.HandleLogs)
	mux.HandleFunc("GET /api/v1/delegations/logs/export", s.delegationHandler.HandleExport)
	mux.HandleFunc("GET /api/v1/delegations/stats", s.delegationHandler.HandleStats)
}

// buildHandler 构建路由与中间件链
func (s *Server) buildHandler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)

	var auth Middleware
	if s.cfg.Auth.Enabled {
		auth = JWTAuth(s.cfg.Auth, publicPaths, s.logger)
	} else {
		s.logger.Warn("Authentication disabled; identity is read from X-Tenant-ID / X-Agent-ID headers")
		auth = HeaderAuth(publicPaths)
	}

	rps, burst := float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst
	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, rps, burst, s.logger),
		auth,
		TenantRateLimiter(ctx, rps, burst, s.logger),
	)
}

// startHTTPServer 启动 API 服务器，配置了证书时以 HTTPS 启动
func (s *Server) startHTTPServer(ctx context.Context) error {
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		TLSCertFile:     s.cfg.Server.TLSCertFile,
		TLSKeyFile:      s.cfg.Server.TLSKeyFile,
	}

	s.httpManager = server.NewManager(s.buildHandler(ctx), serverConfig, s.logger)
	if err := s.httpManager.Run(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 在独立端口暴露 /metrics；端口为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 先停止对外服务，再释放后端连接
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 1. 并行关闭 HTTP 与 Metrics 服务器
	var g errgroup.Group
	for name, m := range map[string]*server.Manager{"http": s.httpManager, "metrics": s.metricsManager} {
		if m == nil {
			continue
		}
		g.Go(func() error {
			if err := m.Shutdown(ctx); err != nil {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Server shutdown error", zap.Error(err))
	}

	// 2. 停止后台协程
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	// 3. 释放传输与后端连接
	s.closeBackends(ctx)

	// 4. 刷新遥测
	if err := s.providers.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}

func (s *Server) closeBackends(ctx context.Context) {
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.logger.Error("Transport close error", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
	}
	if s.mongo != nil {
		if err := s.mongo.Disconnect(ctx); err != nil {
			s.logger.Error("Mongo disconnect error", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Database close error", zap.Error(err))
		}
	}
}

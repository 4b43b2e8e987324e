package config

import "time"

// DefaultConfig 开箱即用的单进程配置：内存存储、本地传输、关闭认证与遥测。
// 写超时覆盖最长委托等待，避免同步委托请求被服务端提前截断。
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9091,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    6 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    100,
			RateLimitBurst:  200,
		},
		Auth: AuthConfig{Issuer: "agentlens"},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "agentlens",
			Name:            "agentlens",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Mongo: MongoConfig{
			Database:       "agentlens",
			Collection:     "delegation_logs",
			ConnectTimeout: 10 * time.Second,
		},
		Delegation: DelegationConfig{
			Transport:          "local",
			TransportRetention: time.Minute,
			Store:              "memory",
			RateLimiter:        "memory",
			RateLimitWindow:    time.Minute,
			ConfigCacheTTL:     30 * time.Second,

			DefaultTimeout:    30 * time.Second,
			MaxTimeout:        5 * time.Minute,
			DefaultMaxRetries: 1,
			MaxRetriesCap:     5,

			DiscoveryResultCap:   20,
			IdentityTTL:          24 * time.Hour,
			IdentityResolveGrace: 5 * time.Minute,

			// 新租户默认关闭委托，需显式开启
			DefaultMinTrustThreshold: 60,
			DefaultOutboundRateLimit: 20,
			DefaultInboundRateLimit:  10,
		},
		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			OutputPaths:  []string{"stdout"},
			EnableCaller: true,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "agentlens",
			SampleRate:   0.1,
		},
	}
}

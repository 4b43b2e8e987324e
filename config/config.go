package config

import "time"

// =============================================================================
// 🎯 配置结构
// =============================================================================
// yaml 标签对应配置文件键；env 标签逐层拼接为环境变量名，
// 例如 Delegation.DefaultTimeout -> AGENTLENS_DELEGATION_DEFAULT_TIMEOUT。

type Config struct {
	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	Auth       AuthConfig       `yaml:"auth" env:"AUTH"`
	Redis      RedisConfig      `yaml:"redis" env:"REDIS"`
	Database   DatabaseConfig   `yaml:"database" env:"DATABASE"`
	Mongo      MongoConfig      `yaml:"mongo" env:"MONGO"`
	Delegation DelegationConfig `yaml:"delegation" env:"DELEGATION"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" env:"TELEMETRY"`
}

type ServerConfig struct {
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 0 表示不启动独立的 /metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`

	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 需大于 Delegation.MaxTimeout，否则长委托的响应会被截断
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// 为空时不发送 CORS 头；环境变量以逗号分隔
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	// 按客户端 IP 的令牌桶
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// 均设置时以 HTTPS 启动
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// AuthConfig 关闭时从 X-Tenant-ID / X-Agent-ID 头读取身份，仅用于开发环境
type AuthConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HS256 密钥
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	TLSEnabled   bool   `yaml:"tls_enabled" env:"TLS_ENABLED"`
}

type DatabaseConfig struct {
	// postgres, mysql, sqlite
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	// sqlite 时为文件路径
	Name    string `yaml:"name" env:"NAME"`
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// MongoConfig 委托日志的文档存储
type MongoConfig struct {
	URI            string        `yaml:"uri" env:"URI"`
	Database       string        `yaml:"database" env:"DATABASE"`
	Collection     string        `yaml:"collection" env:"COLLECTION"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// DelegationConfig 发现、匿名身份与委托协议
type DelegationConfig struct {
	// local | redis
	Transport string `yaml:"transport" env:"TRANSPORT"`
	// redis 传输中已结束请求的保留时间
	TransportRetention time.Duration `yaml:"transport_retention" env:"TRANSPORT_RETENTION"`
	// memory | database
	Store string `yaml:"store" env:"STORE"`
	// memory | database | mongo；为空时与 Store 相同
	LogStore string `yaml:"log_store" env:"LOG_STORE"`
	// memory | redis
	RateLimiter     string        `yaml:"rate_limiter" env:"RATE_LIMITER"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window" env:"RATE_LIMIT_WINDOW"`
	// 租户策略缓存，仅 redis 可用时生效，0 关闭
	ConfigCacheTTL time.Duration `yaml:"config_cache_ttl" env:"CONFIG_CACHE_TTL"`

	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
	MaxTimeout     time.Duration `yaml:"max_timeout" env:"MAX_TIMEOUT"`
	// 开启回退但未指定重试次数时使用
	DefaultMaxRetries int `yaml:"default_max_retries" env:"DEFAULT_MAX_RETRIES"`
	MaxRetriesCap     int `yaml:"max_retries_cap" env:"MAX_RETRIES_CAP"`

	DiscoveryResultCap int `yaml:"discovery_result_cap" env:"DISCOVERY_RESULT_CAP"`
	// 匿名 ID 的有效期与过期后仍可解析的宽限期
	IdentityTTL          time.Duration `yaml:"identity_ttl" env:"IDENTITY_TTL"`
	IdentityResolveGrace time.Duration `yaml:"identity_resolve_grace" env:"IDENTITY_RESOLVE_GRACE"`

	// 以下用于尚未保存 DiscoveryConfig 的租户；限额按每个窗口计
	DefaultMinTrustThreshold float64 `yaml:"default_min_trust_threshold" env:"DEFAULT_MIN_TRUST_THRESHOLD"`
	DefaultDelegationEnabled bool    `yaml:"default_delegation_enabled" env:"DEFAULT_DELEGATION_ENABLED"`
	DefaultOutboundRateLimit int     `yaml:"default_outbound_rate_limit" env:"DEFAULT_OUTBOUND_RATE_LIMIT"`
	DefaultInboundRateLimit  int     `yaml:"default_inbound_rate_limit" env:"DEFAULT_INBOUND_RATE_LIMIT"`
}

type LogConfig struct {
	// debug | info | warn | error，可热更新
	Level string `yaml:"level" env:"LEVEL"`
	// json | console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

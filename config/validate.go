package config

import (
	"fmt"
	"slices"
	"strings"
)

// problems 收集校验失败项，一次性返回全部问题
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("config validation errors: %s", strings.Join(p, "; "))
}

// Validate 校验字段取值与跨字段约束
func (c *Config) Validate() error {
	var p problems

	s := c.Server
	p.check(s.HTTPPort > 0 && s.HTTPPort <= 65535, "invalid HTTP port")
	p.check(s.MetricsPort >= 0 && s.MetricsPort <= 65535, "invalid metrics port")
	p.check((s.TLSCertFile == "") == (s.TLSKeyFile == ""), "tls_cert_file and tls_key_file must be set together")
	p.check(!c.Auth.Enabled || c.Auth.JWTSecret != "", "auth.jwt_secret is required when auth is enabled")

	d := c.Delegation
	p.check(slices.Contains([]string{"local", "redis"}, d.Transport), "unsupported delegation transport %q", d.Transport)
	p.check(slices.Contains([]string{"memory", "database"}, d.Store), "unsupported delegation store %q", d.Store)
	p.check(slices.Contains([]string{"", "memory", "database", "mongo"}, d.LogStore), "unsupported delegation log store %q", d.LogStore)
	p.check(slices.Contains([]string{"memory", "redis"}, d.RateLimiter), "unsupported rate limiter %q", d.RateLimiter)

	usesDB := d.Store == "database" || d.LogStore == "database"
	p.check(!usesDB || c.Database.Driver != "", "database.driver is required for the database store")
	p.check(d.LogStore != "mongo" || c.Mongo.URI != "", "mongo.uri is required for the mongo log store")

	p.check(d.RateLimitWindow > 0, "rate_limit_window must be positive")
	if d.DefaultTimeout <= 0 || d.MaxTimeout <= 0 {
		p.check(false, "delegation timeouts must be positive")
	} else {
		p.check(d.DefaultTimeout <= d.MaxTimeout, "default_timeout must not exceed max_timeout")
	}
	p.check(d.DefaultMaxRetries >= 0 && d.MaxRetriesCap >= 0, "retry counts must not be negative")
	p.check(d.DiscoveryResultCap > 0, "discovery_result_cap must be positive")
	p.check(d.IdentityTTL > 0, "identity_ttl must be positive")
	p.check(d.DefaultMinTrustThreshold >= 0 && d.DefaultMinTrustThreshold <= 100, "default_min_trust_threshold must be between 0 and 100")
	p.check(d.DefaultOutboundRateLimit > 0 && d.DefaultInboundRateLimit > 0, "default rate limits must be positive")

	p.check(slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level), "unsupported log level %q", c.Log.Level)
	p.check(c.Telemetry.SampleRate >= 0 && c.Telemetry.SampleRate <= 1, "sample_rate must be between 0 and 1")

	return p.err()
}

// DSN 按驱动生成 gorm 连接串；未知驱动返回空串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name
	}
	return ""
}

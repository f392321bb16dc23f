package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g.
	// QRDESK_SERVER_LISTEN.
	EnvPrefix = "QRDESK"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultSessionTTL is the default lifetime of an API session.
	DefaultSessionTTL = "12h"

	// DefaultLockoutDuration is the default lockout window.
	DefaultLockoutDuration = "90s"

	// DefaultLockoutSweepInterval is how often expired lockouts are cleared.
	DefaultLockoutSweepInterval = "1s"

	// DefaultMaxAttempts is the default number of failures before lockout.
	DefaultMaxAttempts = 3

	// DefaultSQLitePath keeps all state in process memory.
	DefaultSQLitePath = ":memory:"
)

// Lockout scopes.
const (
	LockoutScopeGlobal = "global"
	LockoutScopeClient = "client"
)

// Config is the root configuration for qrdesk.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Directory DirectoryConfig `yaml:"directory,omitempty" mapstructure:"directory"`
	Export    ExportConfig    `yaml:"export,omitempty" mapstructure:"export"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
	// TrustedProxies lists the addresses or CIDR ranges whose
	// X-Forwarded-For header is believed. Empty trusts no proxy.
	TrustedProxies []string `yaml:"trusted_proxies,omitempty" mapstructure:"trusted_proxies"`
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address becomes a
// single-host prefix.
func (s *ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(s.TrustedProxies))

	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)

		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}

			prefixes = append(prefixes, p.Masked())

			continue
		}

		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}

		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return prefixes, nil
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Auth          RateLimitTier `yaml:"auth,omitempty" mapstructure:"auth"`
	Authenticated RateLimitTier `yaml:"authenticated,omitempty" mapstructure:"authenticated"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// AuthConfig contains login, lockout and credential settings.
type AuthConfig struct {
	SessionTTL string        `yaml:"session_ttl" mapstructure:"session_ttl"`
	Lockout    LockoutConfig `yaml:"lockout" mapstructure:"lockout"`
	// Secrets maps staff roles to their secret. Values may be plain text
	// or bcrypt hashes.
	Secrets    map[string]string `yaml:"secrets,omitempty" mapstructure:"secrets"`
	BcryptCost int               `yaml:"bcrypt_cost,omitempty" mapstructure:"bcrypt_cost"`
}

// LockoutConfig configures brute-force lockout.
type LockoutConfig struct {
	MaxAttempts   int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	Duration      string `yaml:"duration" mapstructure:"duration"`
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	// Scope is "global" (one counter for every login) or "client" (one
	// counter per client address).
	Scope string `yaml:"scope" mapstructure:"scope"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// DirectoryConfig seeds client accounts at startup.
type DirectoryConfig struct {
	Users []DirectoryUser `yaml:"users,omitempty" mapstructure:"users"`
}

// DirectoryUser defines a directory account from config.
type DirectoryUser struct {
	Username string `yaml:"username" mapstructure:"username"`
	Phone    string `yaml:"phone" mapstructure:"phone"`
	Role     string `yaml:"role,omitempty" mapstructure:"role"`
}

// ExportConfig configures ledger snapshot targets.
type ExportConfig struct {
	Local *LocalExportConfig `yaml:"local,omitempty" mapstructure:"local"`
	S3    *S3ExportConfig    `yaml:"s3,omitempty" mapstructure:"s3"`
}

// LocalExportConfig writes snapshots to a directory.
type LocalExportConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
	// Owner is an optional "UID:GID" applied to written snapshots.
	Owner string `yaml:"owner,omitempty" mapstructure:"owner"`
}

// S3ExportConfig uploads snapshots to an S3-compatible bucket.
type S3ExportConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
}

// Load reads and merges the given YAML files in order, applies
// QRDESK_-prefixed environment overrides and fills defaults. With no paths
// the defaults and environment alone are used.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	for i, path := range paths {
		v.SetConfigFile(path)

		read := v.MergeInConfig
		if i == 0 {
			read = v.ReadInConfig
		}

		if err := read(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// the key is absent from the files.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.auth.requests_per_minute", 30)
	v.SetDefault("server.rate_limit.authenticated.requests_per_minute", 300)

	v.SetDefault("auth.session_ttl", DefaultSessionTTL)
	v.SetDefault("auth.lockout.max_attempts", DefaultMaxAttempts)
	v.SetDefault("auth.lockout.duration", DefaultLockoutDuration)
	v.SetDefault("auth.lockout.sweep_interval", DefaultLockoutSweepInterval)
	v.SetDefault("auth.lockout.scope", LockoutScopeGlobal)
	v.SetDefault("auth.bcrypt_cost", 0)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "qrdesk")
	v.SetDefault("database.postgres.ssl_mode", "disable")
}

// applyDefaults fills values viper cannot default, such as nested maps.
func (c *Config) applyDefaults() {
	if c.Auth.Secrets == nil {
		c.Auth.Secrets = make(map[string]string, 6)
	}

	for i := range c.Directory.Users {
		if c.Directory.Users[i].Role == "" {
			c.Directory.Users[i].Role = string(domain.RoleClient)
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}

	if _, err := time.ParseDuration(c.Auth.SessionTTL); err != nil {
		return fmt.Errorf("auth.session_ttl: %w", err)
	}

	if err := c.Auth.Lockout.validate(); err != nil {
		return fmt.Errorf("auth.lockout: %w", err)
	}

	for role := range c.Auth.Secrets {
		r, err := domain.ParseRole(role)
		if err != nil {
			return fmt.Errorf("auth.secrets: %w", err)
		}

		if !r.IsStaff() {
			return fmt.Errorf("auth.secrets: role %q cannot have a secret", role)
		}
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	seen := make(map[string]struct{}, len(c.Directory.Users))

	for i, u := range c.Directory.Users {
		if u.Username == "" || u.Phone == "" {
			return fmt.Errorf("directory.users[%d]: username and phone are required", i)
		}

		if _, err := domain.ParseRole(u.Role); err != nil {
			return fmt.Errorf("directory.users[%d]: %w", i, err)
		}

		if _, exists := seen[u.Phone]; exists {
			return fmt.Errorf("directory.users[%d]: duplicate phone %q", i, u.Phone)
		}

		seen[u.Phone] = struct{}{}
	}

	if c.Export.Local != nil && c.Export.Local.Enabled && c.Export.Local.Dir == "" {
		return fmt.Errorf("export.local.dir is required")
	}

	if c.Export.S3 != nil && c.Export.S3.Enabled && c.Export.S3.Bucket == "" {
		return fmt.Errorf("export.s3.bucket is required")
	}

	return nil
}

func (l *LockoutConfig) validate() error {
	if l.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}

	if _, err := time.ParseDuration(l.Duration); err != nil {
		return fmt.Errorf("duration: %w", err)
	}

	if _, err := time.ParseDuration(l.SweepInterval); err != nil {
		return fmt.Errorf("sweep_interval: %w", err)
	}

	if l.Scope != LockoutScopeGlobal && l.Scope != LockoutScopeClient {
		return fmt.Errorf("scope must be %q or %q", LockoutScopeGlobal, LockoutScopeClient)
	}

	return nil
}

// SessionTTLDuration returns the parsed session TTL.
func (a *AuthConfig) SessionTTLDuration() time.Duration {
	d, _ := time.ParseDuration(a.SessionTTL)

	return d
}

// DurationValue returns the parsed lockout window.
func (l *LockoutConfig) DurationValue() time.Duration {
	d, _ := time.ParseDuration(l.Duration)

	return d
}

// SweepIntervalValue returns the parsed sweep interval.
func (l *LockoutConfig) SweepIntervalValue() time.Duration {
	d, _ := time.ParseDuration(l.SweepInterval)

	return d
}

// RoleSecrets returns the configured secrets keyed by role, falling back
// to fallback for roles that are not configured.
func (a *AuthConfig) RoleSecrets(
	fallback map[domain.Role]string,
) (map[domain.Role]string, error) {
	out := make(map[domain.Role]string, len(fallback))
	for role, secret := range fallback {
		out[role] = secret
	}

	for name, secret := range a.Secrets {
		role, err := domain.ParseRole(name)
		if err != nil {
			return nil, err
		}

		out[role] = secret
	}

	return out, nil
}

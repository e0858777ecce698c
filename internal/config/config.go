// Package config loads the linkhealth service configuration from YAML
// with environment variable overrides.
package config

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServiceName  = "linkhealth"
	defaultServicePort  = 8097
	defaultVersion      = "0.1.0"
	defaultLoggingLevel = "info"
	defaultLoggingFmt   = "json"

	defaultDBHost    = "localhost"
	defaultDBPort    = 5432
	defaultDBName    = "linkhealth"
	defaultDBUser    = "postgres"
	defaultDBSSLMode = "disable"

	defaultRedisAddress = "localhost:6379"

	defaultMaxHops         = 10
	defaultSoftHopCap      = 3
	defaultTraceTimeoutS   = 10
	defaultTraceRetries    = 3
	defaultRetryInitialMs  = 200
	defaultTraceUserAgent  = "linkhealth-auditor/0.1"
	defaultAuditWorkers    = 5
	defaultMinIntervalMin  = 60
	defaultLockTTLMin      = 15
	defaultNextFullHours   = 24
	defaultNextIncrHours   = 6
	defaultNextEmergencyH  = 1
	defaultRateCacheTTLMin = 10

	defaultConversionRate  = 0.03
	defaultAverageOrderVal = 50.0
	defaultMinMonthlyClick = 10
	defaultMinMonthlyGain  = 10.0

	defaultMaxAuditsPerMinute = 6
	defaultRateLimitWindowS   = 60
)

// Config holds the application configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Audit     AuditConfig     `yaml:"audit"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Port        int      `env:"LINKHEALTH_PORT" yaml:"port"`
	Debug       bool     `env:"APP_DEBUG"       yaml:"debug"`
	CORSOrigins []string `env:"CORS_ORIGINS"    yaml:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host     string `env:"POSTGRES_LINKHEALTH_HOST"     yaml:"host"`
	Port     int    `env:"POSTGRES_LINKHEALTH_PORT"     yaml:"port"`
	User     string `env:"POSTGRES_LINKHEALTH_USER"     yaml:"user"`
	Password string `env:"POSTGRES_LINKHEALTH_PASSWORD" yaml:"password"`
	Database string `env:"POSTGRES_LINKHEALTH_DB"       yaml:"database"`
	SSLMode  string `env:"POSTGRES_LINKHEALTH_SSLMODE"  yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RedisConfig holds Redis connection configuration. Redis backs the
// per-owner audit lock and the commission rate-table cache.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// TracerConfig holds redirect tracer configuration.
type TracerConfig struct {
	MaxHops        int           `yaml:"max_hops"`
	SoftHopCap     int           `yaml:"soft_hop_cap"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	UserAgent      string        `yaml:"user_agent"`
}

// AuditConfig holds audit orchestration configuration.
type AuditConfig struct {
	Workers         int           `env:"AUDIT_WORKERS" yaml:"workers"`
	MinInterval     time.Duration `yaml:"min_interval"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
	NextFull        time.Duration `yaml:"next_full"`
	NextIncremental time.Duration `yaml:"next_incremental"`
	NextEmergency   time.Duration `yaml:"next_emergency"`
	RateCacheTTL    time.Duration `yaml:"rate_cache_ttl"`
}

// OptimizerConfig holds commission optimizer heuristics. These are
// tunable estimates, not measured values.
type OptimizerConfig struct {
	ConversionRate    float64 `yaml:"conversion_rate"`
	AverageOrderValue float64 `yaml:"average_order_value"`
	MinMonthlyClicks  int     `yaml:"min_monthly_clicks"`
	MinMonthlyGain    float64 `yaml:"min_monthly_gain"`
}

// SchedulerConfig holds cron scheduling configuration.
type SchedulerConfig struct {
	Enabled         bool   `yaml:"enabled"`
	FullAuditCron   string `yaml:"full_audit_cron"`
	IncrementalCron string `yaml:"incremental_cron"`
}

// RateLimitConfig holds rate limiting for the audit trigger endpoint.
type RateLimitConfig struct {
	MaxAuditsPerMinute int `yaml:"max_audits_per_minute"`
	WindowSeconds      int `yaml:"window_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return load(path)
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setRedisDefaults(&cfg.Redis)
	setTracerDefaults(&cfg.Tracer)
	setAuditDefaults(&cfg.Audit)
	setOptimizerDefaults(&cfg.Optimizer)
	setSchedulerDefaults(&cfg.Scheduler)
	setRateLimitDefaults(&cfg.RateLimit)
	setLoggingDefaults(&cfg.Logging)
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if len(svc.CORSOrigins) == 0 {
		svc.CORSOrigins = []string{"http://localhost:3000"}
	}
}

func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Host == "" {
		db.Host = defaultDBHost
	}
	if db.Port == 0 {
		db.Port = defaultDBPort
	}
	if db.User == "" {
		db.User = defaultDBUser
	}
	if db.Database == "" {
		db.Database = defaultDBName
	}
	if db.SSLMode == "" {
		db.SSLMode = defaultDBSSLMode
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.Address == "" {
		r.Address = defaultRedisAddress
	}
}

func setTracerDefaults(t *TracerConfig) {
	if t.MaxHops == 0 {
		t.MaxHops = defaultMaxHops
	}
	if t.SoftHopCap == 0 {
		t.SoftHopCap = defaultSoftHopCap
	}
	if t.RequestTimeout == 0 {
		t.RequestTimeout = defaultTraceTimeoutS * time.Second
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = defaultTraceRetries
	}
	if t.RetryBaseDelay == 0 {
		t.RetryBaseDelay = defaultRetryInitialMs * time.Millisecond
	}
	if t.UserAgent == "" {
		t.UserAgent = defaultTraceUserAgent
	}
}

func setAuditDefaults(a *AuditConfig) {
	if a.Workers == 0 {
		a.Workers = defaultAuditWorkers
	}
	if a.MinInterval == 0 {
		a.MinInterval = defaultMinIntervalMin * time.Minute
	}
	if a.LockTTL == 0 {
		a.LockTTL = defaultLockTTLMin * time.Minute
	}
	if a.NextFull == 0 {
		a.NextFull = defaultNextFullHours * time.Hour
	}
	if a.NextIncremental == 0 {
		a.NextIncremental = defaultNextIncrHours * time.Hour
	}
	if a.NextEmergency == 0 {
		a.NextEmergency = defaultNextEmergencyH * time.Hour
	}
	if a.RateCacheTTL == 0 {
		a.RateCacheTTL = defaultRateCacheTTLMin * time.Minute
	}
}

func setOptimizerDefaults(o *OptimizerConfig) {
	if o.ConversionRate == 0 {
		o.ConversionRate = defaultConversionRate
	}
	if o.AverageOrderValue == 0 {
		o.AverageOrderValue = defaultAverageOrderVal
	}
	if o.MinMonthlyClicks == 0 {
		o.MinMonthlyClicks = defaultMinMonthlyClick
	}
	if o.MinMonthlyGain == 0 {
		o.MinMonthlyGain = defaultMinMonthlyGain
	}
}

func setSchedulerDefaults(s *SchedulerConfig) {
	if s.FullAuditCron == "" {
		s.FullAuditCron = "0 3 * * *"
	}
	if s.IncrementalCron == "" {
		s.IncrementalCron = "0 */6 * * *"
	}
}

func setRateLimitDefaults(rl *RateLimitConfig) {
	if rl.MaxAuditsPerMinute == 0 {
		rl.MaxAuditsPerMinute = defaultMaxAuditsPerMinute
	}
	if rl.WindowSeconds == 0 {
		rl.WindowSeconds = defaultRateLimitWindowS
	}
}

func setLoggingDefaults(log *LoggingConfig) {
	if log.Level == "" {
		log.Level = defaultLoggingLevel
	}
	if log.Format == "" {
		log.Format = defaultLoggingFmt
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if c.Tracer.MaxHops < 1 {
		return &ValidationError{Field: "tracer.max_hops", Message: "must be at least 1"}
	}
	if c.Audit.Workers < 1 {
		return &ValidationError{Field: "audit.workers", Message: "must be at least 1"}
	}
	if c.Optimizer.ConversionRate <= 0 || c.Optimizer.ConversionRate >= 1 {
		return &ValidationError{Field: "optimizer.conversion_rate", Message: "must be between 0 and 1"}
	}
	return nil
}

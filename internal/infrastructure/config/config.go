// Package config loads the payroll service configuration from config.toml
// and PAYROLL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root of the service configuration. Each field maps to one
// TOML table; PAYROLL_<TABLE>_<KEY> overrides any key.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Authz        AuthzConfig        `mapstructure:"authz"`
	Log          LogConfig          `mapstructure:"log"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	TaxEngine    TaxEngineConfig    `mapstructure:"tax_engine"`
	Disbursement DisbursementConfig `mapstructure:"disbursement"`
	Payroll      PayrollConfig      `mapstructure:"payroll"`
	Idempotency  IdempotencyConfig  `mapstructure:"idempotency"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

func (a AppConfig) IsProduction() bool { return a.Env == "production" }

// DatabaseConfig describes the PostgreSQL connection. Lifetimes are minutes.
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"`
}

// DSN renders a postgres:// URL with user info escaped
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig is optional. Without it idempotency keys and revoked tokens
// live in process memory.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret                string        `mapstructure:"secret"`
	Issuer                string        `mapstructure:"issuer"`
	AccessTokenExpiration time.Duration `mapstructure:"access_token_expiration"`
}

// AuthzConfig points at the casbin model and policy. Mode is enforce,
// shadow or disabled.
type AuthzConfig struct {
	Mode       string `mapstructure:"mode"`
	ModelPath  string `mapstructure:"model_path"`
	PolicyPath string `mapstructure:"policy_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type HTTPConfig struct {
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes   int           `mapstructure:"max_header_bytes"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	CORSAllowOrigins []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies   []string      `mapstructure:"trusted_proxies"`
}

// StorageConfig is the S3-compatible bucket for payslips and employee
// documents. Disabled storage falls back to an in-process stub.
type StorageConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Endpoint          string        `mapstructure:"endpoint"`
	Region            string        `mapstructure:"region"`
	Bucket            string        `mapstructure:"bucket"`
	AccessKey         string        `mapstructure:"access_key"`
	SecretKey         string        `mapstructure:"secret_key"`
	UseSSL            bool          `mapstructure:"use_ssl"`
	UsePathStyle      bool          `mapstructure:"use_path_style"`
	PresignExpiration time.Duration `mapstructure:"presign_expiration"`
	DownloadExpiry    time.Duration `mapstructure:"download_expiry"`
}

type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"`
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"`
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
	// LogsEnabled exports zap entries to the collector as well.
	LogsEnabled       bool          `mapstructure:"logs_enabled"`

	ProfilingEnabled      bool   `mapstructure:"profiling_enabled"`
	ProfilerAddress       string `mapstructure:"profiler_address"`
	ProfilerMutexFraction int    `mapstructure:"profiler_mutex_fraction"`
	ProfilerBlockRate     int    `mapstructure:"profiler_block_rate"`
}

// TaxEngineConfig selects the statutory deduction engine. An empty BaseURL
// uses the built-in flat-rate stub.
type TaxEngineConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

// DisbursementConfig selects the payment gateway. An empty BaseURL uses a
// stub that accepts every transfer. Transfers are sent once; there is no
// retry setting.
type DisbursementConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PayrollConfig struct {
	DefaultCurrency  string        `mapstructure:"default_currency"`
	PayslipCompany   string        `mapstructure:"payslip_company"`
	PayslipsEnabled  bool          `mapstructure:"payslips_enabled"`
	WorkflowCacheTTL time.Duration `mapstructure:"workflow_cache_ttl"`
}

type IdempotencyConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// defaults lists every key. Env overrides only reach Unmarshal for keys
// viper knows about, so secrets appear here with empty values.
var defaults = map[string]any{
	"app.name": "payroll-backend",
	"app.env":  "development",
	"app.port": "8080",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "payroll",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  60,
	"database.conn_max_idle_time": 30,

	"redis.enabled":  false,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"jwt.secret":                  "",
	"jwt.issuer":                  "payroll-backend",
	"jwt.access_token_expiration": 15 * time.Minute,

	"authz.mode":        "enforce",
	"authz.model_path":  "config/authz/model.conf",
	"authz.policy_path": "config/authz/policy.csv",

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout": 15 * time.Second,
	// payment batches call the gateway once per record
	"http.write_timeout":      120 * time.Second,
	"http.idle_timeout":       60 * time.Second,
	"http.max_header_bytes":   1 << 20,
	"http.max_body_size":      int64(10 << 20),
	"http.request_timeout":    110 * time.Second,
	"http.cors_allow_origins": []string{},
	"http.cors_allow_methods": []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
	"http.cors_allow_headers": []string{"Content-Type", "Authorization", "X-Request-ID", "X-Business-ID", "Idempotency-Key"},
	"http.trusted_proxies":    []string{},

	"storage.enabled":            false,
	"storage.endpoint":           "",
	"storage.region":             "us-east-1",
	"storage.bucket":             "payroll-documents",
	"storage.access_key":         "",
	"storage.secret_key":         "",
	"storage.use_ssl":            false,
	"storage.use_path_style":     false,
	"storage.presign_expiration": 15 * time.Minute,
	"storage.download_expiry":    time.Hour,

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "payroll-backend",
	"telemetry.insecure":                false,
	"telemetry.metrics_enabled":         false,
	"telemetry.metrics_interval":        time.Minute,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,
	"telemetry.logs_enabled":            false,
	"telemetry.profiling_enabled":       false,
	"telemetry.profiler_address":        "http://localhost:4040",
	"telemetry.profiler_mutex_fraction": 0,
	"telemetry.profiler_block_rate":     0,

	"tax_engine.base_url":    "",
	"tax_engine.api_key":     "",
	"tax_engine.timeout":     10 * time.Second,
	"tax_engine.concurrency": 8,

	"disbursement.base_url": "",
	"disbursement.api_key":  "",
	"disbursement.timeout":  30 * time.Second,

	"payroll.default_currency":   "KES",
	"payroll.payslip_company":    "Payroll",
	"payroll.payslips_enabled":   false,
	"payroll.workflow_cache_ttl": 5 * time.Minute,

	"idempotency.ttl":        24 * time.Hour,
	"idempotency.key_prefix": "idempotency:",
}

// Load reads ./config.toml (or /app/config.toml) when present, applies
// PAYROLL_* environment overrides and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PAYROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	db := c.Database
	switch {
	case db.MaxOpenConns <= 0:
		return errors.New("database.max_open_conns must be positive")
	case db.MaxIdleConns < 0:
		return errors.New("database.max_idle_conns cannot be negative")
	case db.MaxIdleConns > db.MaxOpenConns:
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			db.MaxIdleConns, db.MaxOpenConns)
	case c.TaxEngine.Concurrency < 0:
		return errors.New("tax_engine.concurrency cannot be negative")
	case len(c.Payroll.DefaultCurrency) != 3:
		return fmt.Errorf("payroll.default_currency must be a 3-letter ISO code, got %q", c.Payroll.DefaultCurrency)
	case c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilerAddress == "":
		return errors.New("telemetry.profiler_address is required when profiling is enabled")
	case c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1:
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	case c.Storage.Enabled && (c.Storage.AccessKey == "" || c.Storage.SecretKey == ""):
		return errors.New("storage.access_key and storage.secret_key are required when storage is enabled")
	}
	if c.App.IsProduction() {
		return c.validateProduction()
	}
	return nil
}

// validateProduction rejects development conveniences: stub collaborators,
// per-instance idempotency keys and weak secrets.
func (c *Config) validateProduction() error {
	switch {
	case c.JWT.Secret == "":
		return errors.New("jwt.secret is required in production")
	case len(c.JWT.Secret) < 32:
		return errors.New("jwt.secret must be at least 32 characters in production")
	case c.Database.Password == "":
		return errors.New("database.password is required in production")
	case c.Database.SSLMode == "disable":
		return errors.New("database.sslmode cannot be 'disable' in production")
	case c.Disbursement.BaseURL == "":
		return errors.New("disbursement.base_url is required in production")
	case c.TaxEngine.BaseURL == "":
		return errors.New("tax_engine.base_url is required in production")
	case !c.Redis.Enabled:
		return errors.New("redis.enabled must be true in production")
	case c.Authz.Mode != "enforce":
		return errors.New("authz.mode must be 'enforce' in production")
	case c.Telemetry.DBLogFullSQL:
		return errors.New("telemetry.db_log_full_sql must be false in production")
	}
	for _, origin := range c.HTTP.CORSAllowOrigins {
		if origin == "*" {
			return errors.New("http.cors_allow_origins cannot be '*' in production")
		}
	}
	return nil
}

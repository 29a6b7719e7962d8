package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Lark      LarkConfig      `mapstructure:"lark"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Lock      LockConfig      `mapstructure:"lock"`
	Authz     AuthzConfig     `mapstructure:"authz"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Currency  CurrencyConfig  `mapstructure:"currency"`
	Claims    ClaimsConfig    `mapstructure:"claims"`
	Export    ExportConfig    `mapstructure:"export"`
	Reminder  ReminderConfig  `mapstructure:"reminder"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// LarkConfig holds Lark messaging configuration. Notifications are only
// logged when AppID is empty.
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
	// AppURL is the web UI base used for links in notification cards
	AppURL string `mapstructure:"app_url"`
}

// Enabled reports whether Lark credentials are configured
func (c LarkConfig) Enabled() bool { return c.AppID != "" }

// OpenAIConfig holds the advisory reviewer configuration. Advisory review
// is disabled when APIKey is empty.
type OpenAIConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	PolicyPath  string `mapstructure:"policy_path"`
	PromptsPath string `mapstructure:"prompts_path"`
}

// Enabled reports whether advisory review is configured
func (c OpenAIConfig) Enabled() bool { return c.APIKey != "" }

// RedisConfig holds the Redis connection used by the distributed lock
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LockConfig selects the per-claim lock backend
type LockConfig struct {
	Backend     string        `mapstructure:"backend"` // local or redis
	KeyPrefix   string        `mapstructure:"key_prefix"`
	TTL         time.Duration `mapstructure:"ttl"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// AuthzConfig configures route authorization
type AuthzConfig struct {
	Mode       string `mapstructure:"mode"` // enforce, shadow or disabled
	ModelPath  string `mapstructure:"model_path"`
	PolicyPath string `mapstructure:"policy_path"`
}

// RoutingConfig points at the optional routing policy file
type RoutingConfig struct {
	PolicyPath string `mapstructure:"policy_path"`
}

// CurrencyConfig configures foreign-currency conversion. Rates are quoted
// against a single base, for example USD: 1, EUR: 0.92.
type CurrencyConfig struct {
	Rates      map[string]float64 `mapstructure:"rates"`
	APIURL     string             `mapstructure:"api_url"`
	CacheTTL   time.Duration      `mapstructure:"cache_ttl"`
	Timeout    time.Duration      `mapstructure:"timeout"`
	MaxRetries uint64             `mapstructure:"max_retries"`
}

// Enabled reports whether any converter is configured
func (c CurrencyConfig) Enabled() bool { return len(c.Rates) > 0 || c.APIURL != "" }

// ClaimsConfig holds claim submission limits
type ClaimsConfig struct {
	// MaxAmount in company currency; empty or zero disables the ceiling
	MaxAmount string `mapstructure:"max_amount"`
}

// MaxAmountDecimal parses MaxAmount
func (c ClaimsConfig) MaxAmountDecimal() (decimal.Decimal, error) {
	if strings.TrimSpace(c.MaxAmount) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(c.MaxAmount))
}

// ExportConfig configures report export archiving
type ExportConfig struct {
	// ArchiveDir keeps a copy of every export; empty disables archiving
	ArchiveDir    string        `mapstructure:"archive_dir"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// ReminderConfig configures the pending-claim reminder worker
type ReminderConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	After     time.Duration `mapstructure:"after"`
	BatchSize int           `mapstructure:"batch_size"`
}

// BootstrapConfig seeds the first company and administrator on startup
type BootstrapConfig struct {
	CompanyName string `mapstructure:"company_name"`
	Currency    string `mapstructure:"currency"`
	AdminEmail  string `mapstructure:"admin_email"`
	AdminName   string `mapstructure:"admin_name"`
}

// Enabled reports whether a bootstrap admin is configured
func (c BootstrapConfig) Enabled() bool { return c.AdminEmail != "" }

// Load loads configuration from file and environment variables. Variables
// from a .env file in the working directory are applied first; variables
// already set in the environment win.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "data/expense.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("openai.model", "gpt-4o-mini")

	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.key_prefix", "expense:claim-lock:")
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.wait_timeout", 10*time.Second)

	v.SetDefault("authz.mode", "enforce")

	v.SetDefault("currency.cache_ttl", time.Hour)
	v.SetDefault("currency.timeout", 10*time.Second)
	v.SetDefault("currency.max_retries", 3)

	v.SetDefault("export.retention", 30*24*time.Hour)
	v.SetDefault("export.prune_interval", 24*time.Hour)

	v.SetDefault("reminder.enabled", true)
	v.SetDefault("reminder.interval", time.Hour)
	v.SetDefault("reminder.after", 24*time.Hour)
	v.SetDefault("reminder.batch_size", 100)

	v.SetDefault("bootstrap.currency", "USD")
	v.SetDefault("bootstrap.admin_name", "Administrator")
}

// bindEnvVars binds secrets to their conventional variable names
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"lark.app_id":           "LARK_APP_ID",
		"lark.app_secret":       "LARK_APP_SECRET",
		"openai.api_key":        "OPENAI_API_KEY",
		"redis.addr":            "REDIS_ADDR",
		"redis.password":        "REDIS_PASSWORD",
		"bootstrap.admin_email": "BOOTSTRAP_ADMIN_EMAIL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	if c.Lark.AppID != "" && c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required when lark.app_id is set")
	}

	switch c.Lock.Backend {
	case "local":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when lock.backend is redis")
		}
	default:
		return fmt.Errorf("lock.backend must be local or redis, got %q", c.Lock.Backend)
	}

	switch strings.ToLower(c.Authz.Mode) {
	case "", "enforce", "shadow", "disabled":
	default:
		return fmt.Errorf("authz.mode must be enforce, shadow or disabled, got %q", c.Authz.Mode)
	}
	if (c.Authz.ModelPath == "") != (c.Authz.PolicyPath == "") {
		return fmt.Errorf("authz.model_path and authz.policy_path must be set together")
	}

	for code, rate := range c.Currency.Rates {
		if rate <= 0 {
			return fmt.Errorf("currency.rates.%s must be positive", code)
		}
	}

	max, err := c.Claims.MaxAmountDecimal()
	if err != nil {
		return fmt.Errorf("claims.max_amount: %w", err)
	}
	if max.IsNegative() {
		return fmt.Errorf("claims.max_amount must not be negative")
	}

	if c.Reminder.Enabled {
		if c.Reminder.Interval <= 0 || c.Reminder.After <= 0 {
			return fmt.Errorf("reminder.interval and reminder.after must be positive")
		}
	}

	if c.Export.ArchiveDir != "" && (c.Export.Retention <= 0 || c.Export.PruneInterval <= 0) {
		return fmt.Errorf("export.retention and export.prune_interval must be positive when archiving")
	}

	if c.Bootstrap.Enabled() && c.Bootstrap.CompanyName == "" {
		return fmt.Errorf("bootstrap.company_name is required when bootstrap.admin_email is set")
	}

	return nil
}

// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the dripper daemon. Values come from
// defaults, an optional YAML file, and DRIPPER_* environment variables, with
// the FBTC_* credential overrides bound explicitly for compatibility with
// existing deployments.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Site        SiteConfig        `mapstructure:"site" yaml:"site"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler" yaml:"scheduler"`
	Bonuses     BonusesConfig     `mapstructure:"bonuses" yaml:"bonuses"`
	Settings    SettingsConfig    `mapstructure:"settings" yaml:"settings"`
	Report      ReportConfig      `mapstructure:"report" yaml:"report"`
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
}

// LoggerConfig controls the zap logger construction.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig allows overriding the console level colors.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// CredentialsConfig carries the account credentials. All three values can be
// overridden by the FBTC_ADDRESS, FBTC_PASSWORD and FBTC_TOTP_SECRET
// environment variables; the env value wins whenever it is non-empty.
type CredentialsConfig struct {
	Address    string `mapstructure:"address" yaml:"address"`
	Password   string `mapstructure:"password" yaml:"-"`
	TotpSecret string `mapstructure:"totp_secret" yaml:"-"`
}

// SiteConfig describes the faucet site and the patience the automation
// extends to it.
type SiteConfig struct {
	BaseURL         string            `mapstructure:"base_url" yaml:"base_url"`
	UserAgent       string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers         map[string]string `mapstructure:"headers" yaml:"headers"`
	PageLoadTimeout time.Duration     `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	ElementTimeout  time.Duration     `mapstructure:"element_timeout" yaml:"element_timeout"`
	PostLoadWait    time.Duration     `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	DisableCache bool     `mapstructure:"disable_cache" yaml:"disable_cache"`
	Debug        bool     `mapstructure:"debug" yaml:"debug"`
	// Stealth masks the usual headless-automation tells before any page loads.
	Stealth bool     `mapstructure:"stealth" yaml:"stealth"`
	Args    []string `mapstructure:"args" yaml:"args"`
	// OpsPerSecond paces channel operations so the site never sees bursts.
	OpsPerSecond float64 `mapstructure:"ops_per_second" yaml:"ops_per_second"`
	SnapshotDir  string  `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
}

// SchedulerConfig tunes the play/claim loop. Every ceiling here bounds a
// retry or wait; none of them may be zero or negative after validation.
type SchedulerConfig struct {
	LoginAttempts    int           `mapstructure:"login_attempts" yaml:"login_attempts"`
	PlayAttempts     int           `mapstructure:"play_attempts" yaml:"play_attempts"`
	BackoffBase      time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap       time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
	SiteDownBase     time.Duration `mapstructure:"site_down_base" yaml:"site_down_base"`
	SiteDownAttempts int           `mapstructure:"site_down_attempts" yaml:"site_down_attempts"`
	IdleThreshold    time.Duration `mapstructure:"idle_threshold" yaml:"idle_threshold"`
	MaxIdle          time.Duration `mapstructure:"max_idle" yaml:"max_idle"`
	BonusClaimCap    int           `mapstructure:"bonus_claim_cap" yaml:"bonus_claim_cap"`
	MismatchCeiling  int           `mapstructure:"mismatch_ceiling" yaml:"mismatch_ceiling"`
	Jitter           bool          `mapstructure:"jitter" yaml:"jitter"`
}

// BonusesConfig orders the reward bonuses and selects which product to claim
// from each reward table. Picks holds the product key, not a point cost: the
// 1000 in the "1000%" free BTC bonus, or the spin count for wheel-of-fortune
// bonuses. Point costs are read from the page at claim time. A bonus is only
// claimed when every earlier bonus in Order is already active and the account
// holds enough reward points to cover the cost.
type BonusesConfig struct {
	Enabled bool             `mapstructure:"enabled" yaml:"enabled"`
	Order   []string         `mapstructure:"order" yaml:"order"`
	Picks   map[string]int64 `mapstructure:"picks" yaml:"picks"`
}

// SettingsConfig declares desired account settings. Desired maps a settings
// field name to the value it should hold; the applier diffs against the page
// and submits only what differs.
type SettingsConfig struct {
	ApplyOn string            `mapstructure:"apply_on" yaml:"apply_on"`
	Desired map[string]string `mapstructure:"desired" yaml:"desired"`
}

// ReportConfig controls the account report output.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// StoreConfig enables claim-history persistence when a DSN is present.
type StoreConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// Enabled reports whether persistence is configured.
func (s StoreConfig) Enabled() bool { return s.URL != "" }

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "dripper")
	v.SetDefault("logger.log_file", "dripper.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Site --
	v.SetDefault("site.base_url", "https://freebitco.in")
	v.SetDefault("site.page_load_timeout", "30s")
	v.SetDefault("site.element_timeout", "10s")
	v.SetDefault("site.post_load_wait", "2s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.ops_per_second", 2.0)

	// -- Scheduler --
	v.SetDefault("scheduler.login_attempts", 3)
	v.SetDefault("scheduler.play_attempts", 3)
	v.SetDefault("scheduler.backoff_base", "5s")
	v.SetDefault("scheduler.backoff_cap", "5m")
	v.SetDefault("scheduler.site_down_base", "5m")
	v.SetDefault("scheduler.site_down_attempts", 5)
	v.SetDefault("scheduler.idle_threshold", "30m")
	v.SetDefault("scheduler.max_idle", "60m")
	v.SetDefault("scheduler.bonus_claim_cap", 2)
	v.SetDefault("scheduler.mismatch_ceiling", 5)
	v.SetDefault("scheduler.jitter", true)

	// -- Bonuses --
	v.SetDefault("bonuses.enabled", true)
	v.SetDefault("bonuses.order", []string{"btc", "wof"})
	v.SetDefault("bonuses.picks", map[string]int64{"btc": 1000, "wof": 5})

	// -- Settings --
	v.SetDefault("settings.apply_on", "startup")

	// -- Report --
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("credentials.address", "FBTC_ADDRESS")
	v.BindEnv("credentials.password", "FBTC_PASSWORD")
	v.BindEnv("credentials.totp_secret", "FBTC_TOTP_SECRET")
	v.BindEnv("store.url", "DRIPPER_STORE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal misses bound env vars that have no config-file key.
	if env := os.Getenv("FBTC_ADDRESS"); env != "" {
		cfg.Credentials.Address = env
	}
	if env := os.Getenv("FBTC_PASSWORD"); env != "" {
		cfg.Credentials.Password = env
	}
	if env := os.Getenv("FBTC_TOTP_SECRET"); env != "" {
		cfg.Credentials.TotpSecret = env
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is a required configuration field")
	}
	if !strings.HasPrefix(c.Site.BaseURL, "http://") && !strings.HasPrefix(c.Site.BaseURL, "https://") {
		return fmt.Errorf("site.base_url must include a scheme, got %q", c.Site.BaseURL)
	}
	if c.Site.PageLoadTimeout <= 0 || c.Site.ElementTimeout <= 0 {
		return fmt.Errorf("site timeouts must be positive durations")
	}
	if c.Browser.OpsPerSecond <= 0 {
		return fmt.Errorf("browser.ops_per_second must be positive")
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler configuration invalid: %w", err)
	}
	if err := c.Bonuses.Validate(); err != nil {
		return fmt.Errorf("bonuses configuration invalid: %w", err)
	}
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("settings configuration invalid: %w", err)
	}
	switch c.Report.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("report.format must be text or json, got %q", c.Report.Format)
	}
	return nil
}

// Validate checks the scheduler ceilings.
func (s *SchedulerConfig) Validate() error {
	if s.LoginAttempts <= 0 || s.PlayAttempts <= 0 {
		return fmt.Errorf("login_attempts and play_attempts must be positive")
	}
	if s.BackoffBase <= 0 || s.BackoffCap < s.BackoffBase {
		return fmt.Errorf("backoff_base must be positive and backoff_cap >= backoff_base")
	}
	if s.SiteDownBase <= 0 || s.SiteDownAttempts <= 0 {
		return fmt.Errorf("site_down_base and site_down_attempts must be positive")
	}
	if s.IdleThreshold <= 0 || s.MaxIdle <= 0 {
		return fmt.Errorf("idle_threshold and max_idle must be positive durations")
	}
	if s.BonusClaimCap < 0 {
		return fmt.Errorf("bonus_claim_cap must not be negative")
	}
	if s.MismatchCeiling <= 0 {
		return fmt.Errorf("mismatch_ceiling must be positive")
	}
	return nil
}

// validBonusNames are the reward tables the site exposes.
var validBonusNames = map[string]bool{"btc": true, "lott": true, "wof": true}

// Validate checks the bonus ordering against the pick table.
func (b *BonusesConfig) Validate() error {
	if !b.Enabled {
		return nil
	}
	seen := make(map[string]bool, len(b.Order))
	for _, name := range b.Order {
		if !validBonusNames[name] {
			return fmt.Errorf("bonuses.order lists unknown bonus %q (valid: btc, lott, wof)", name)
		}
		if seen[name] {
			return fmt.Errorf("bonuses.order lists %q twice", name)
		}
		seen[name] = true
		pick, ok := b.Picks[name]
		if !ok {
			return fmt.Errorf("bonuses.order lists %q but bonuses.picks has no entry for it", name)
		}
		if pick <= 0 {
			return fmt.Errorf("bonuses.picks[%q] must be positive, got %d", name, pick)
		}
	}
	return nil
}

// Validate checks the settings application policy.
func (s *SettingsConfig) Validate() error {
	switch s.ApplyOn {
	case "", "startup", "never":
		return nil
	default:
		return fmt.Errorf("settings.apply_on must be startup or never, got %q", s.ApplyOn)
	}
}

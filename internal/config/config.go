// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Values come from the
// config file, environment variables (CLASSSYNC_ prefix) and CLI flags, in
// increasing order of precedence.
type Config struct {
	Logger         LoggerConfig         `mapstructure:"logger" yaml:"logger"`
	Browser        BrowserConfig        `mapstructure:"browser" yaml:"browser"`
	Sites          SitesConfig          `mapstructure:"sites" yaml:"sites"`
	Flow           FlowConfig           `mapstructure:"flow" yaml:"flow"`
	Store          StoreConfig          `mapstructure:"store" yaml:"store"`
	Server         ServerConfig         `mapstructure:"server" yaml:"server"`
	PayloadService PayloadServiceConfig `mapstructure:"payload_service" yaml:"payload_service"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File output (rotated by lumberjack). Empty disables file logging.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the headless Chrome instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// SitesConfig describes the two external sites and the labels the automation
// hunts for. Neither site is under our control, so everything here is a
// heuristic hint rather than a stable contract.
type SitesConfig struct {
	HostURL  string `mapstructure:"host_url" yaml:"host_url"`
	ChildURL string `mapstructure:"child_url" yaml:"child_url"`

	// Trigger card on the host landing page.
	TriggerKeyword  string   `mapstructure:"trigger_keyword" yaml:"trigger_keyword"`
	TriggerImageAlt string   `mapstructure:"trigger_image_alt" yaml:"trigger_image_alt"`
	LooseKeywords   []string `mapstructure:"loose_keywords" yaml:"loose_keywords"`

	// Controls on the child scheduling site.
	PendingWeekTab     string   `mapstructure:"pending_week_tab" yaml:"pending_week_tab"`
	ReportButtonLabel  string   `mapstructure:"report_button_label" yaml:"report_button_label"`
	SubmitButtonLabels []string `mapstructure:"submit_button_labels" yaml:"submit_button_labels"`
	ButtonClassHint    string   `mapstructure:"button_class_hint" yaml:"button_class_hint"`

	// Form dialog structure.
	DialogSelectors    []string `mapstructure:"dialog_selectors" yaml:"dialog_selectors"`
	DayBlockSelector   string   `mapstructure:"day_block_selector" yaml:"day_block_selector"`
	DayHeadingSelector string   `mapstructure:"day_heading_selector" yaml:"day_heading_selector"`

	// Location vocabulary.
	SentinelOption  string `mapstructure:"sentinel_option" yaml:"sentinel_option"`
	DefaultLocation string `mapstructure:"default_location" yaml:"default_location"`
}

// FlowConfig carries every attempt ceiling, interval and threshold used by
// the navigation flow. Every retry loop in the system is bounded by one of
// these values.
type FlowConfig struct {
	HostReadyAttempts    int           `mapstructure:"host_ready_attempts" yaml:"host_ready_attempts"`
	HostReadyInterval    time.Duration `mapstructure:"host_ready_interval" yaml:"host_ready_interval"`
	TriggerClickAttempts int           `mapstructure:"trigger_click_attempts" yaml:"trigger_click_attempts"`
	TriggerClickDelay    time.Duration `mapstructure:"trigger_click_delay" yaml:"trigger_click_delay"`
	TriggerClickBackoff  time.Duration `mapstructure:"trigger_click_backoff" yaml:"trigger_click_backoff"`
	PostClickSettle      time.Duration `mapstructure:"post_click_settle" yaml:"post_click_settle"`
	ChildTabTimeout      time.Duration `mapstructure:"child_tab_timeout" yaml:"child_tab_timeout"`
	ElementWaitAttempts  int           `mapstructure:"element_wait_attempts" yaml:"element_wait_attempts"`
	ElementWaitInterval  time.Duration `mapstructure:"element_wait_interval" yaml:"element_wait_interval"`
	ClickRetryAttempts   int           `mapstructure:"click_retry_attempts" yaml:"click_retry_attempts"`
	ClickRetryDelay      time.Duration `mapstructure:"click_retry_delay" yaml:"click_retry_delay"`
	ModalReadyAttempts   int           `mapstructure:"modal_ready_attempts" yaml:"modal_ready_attempts"`
	ModalReadyInterval   time.Duration `mapstructure:"modal_ready_interval" yaml:"modal_ready_interval"`
	FillAttempts         int           `mapstructure:"fill_attempts" yaml:"fill_attempts"`
	FillRetryDelay       time.Duration `mapstructure:"fill_retry_delay" yaml:"fill_retry_delay"`
	FillAcceptRate       float64       `mapstructure:"fill_accept_rate" yaml:"fill_accept_rate"`
	FillAbortRate        float64       `mapstructure:"fill_abort_rate" yaml:"fill_abort_rate"`
	CustomInputTimeout   time.Duration `mapstructure:"custom_input_timeout" yaml:"custom_input_timeout"`
	SubmitAttempts       int           `mapstructure:"submit_attempts" yaml:"submit_attempts"`
	SubmitRetryDelay     time.Duration `mapstructure:"submit_retry_delay" yaml:"submit_retry_delay"`
	ConfirmAttempts      int           `mapstructure:"confirm_attempts" yaml:"confirm_attempts"`
	ConfirmInterval      time.Duration `mapstructure:"confirm_interval" yaml:"confirm_interval"`
}

// StoreConfig controls the session-scoped payload cache.
type StoreConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	Key           string        `mapstructure:"key" yaml:"key"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// ServerConfig controls the `serve` command surface.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// PayloadServiceConfig points at the external payload-generation service.
type PayloadServiceConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	TokenURL          string        `mapstructure:"token_url" yaml:"token_url"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// NewDefaultConfig returns a Config populated with sane defaults. The site
// labels default to the production 1Campus/tschoolkit vocabulary.
func NewDefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "classsync",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      14,
		},
		Browser: BrowserConfig{
			Headless:          true,
			NavigationTimeout: 30 * time.Second,
		},
		Sites: SitesConfig{
			HostURL:            "https://app.1campus.net",
			ChildURL:           "https://tschoolkit.web.app",
			TriggerKeyword:     "學習週曆",
			TriggerImageAlt:    "學習週曆",
			LooseKeywords:      []string{"學習", "週曆", "calendar", "learning"},
			PendingWeekTab:     "待填下週",
			ReportButtonLabel:  "週曆填報",
			SubmitButtonLabels: []string{"回報計劃", "提交", "送出"},
			ButtonClassHint:    "btn-neutral",
			DialogSelectors:    []string{".modal-box", "[role=\"dialog\"]", ".modal"},
			DayBlockSelector:   ".p-4.space-y-4",
			DayHeadingSelector: "p.text-xl.text-primary",
			SentinelOption:     "其他地點",
			DefaultLocation:    "在家中",
		},
		Flow: FlowConfig{
			HostReadyAttempts:    50,
			HostReadyInterval:    time.Second,
			TriggerClickAttempts: 8,
			TriggerClickDelay:    time.Second,
			TriggerClickBackoff:  200 * time.Millisecond,
			PostClickSettle:      1500 * time.Millisecond,
			ChildTabTimeout:      30 * time.Second,
			ElementWaitAttempts:  20,
			ElementWaitInterval:  400 * time.Millisecond,
			ClickRetryAttempts:   8,
			ClickRetryDelay:      400 * time.Millisecond,
			ModalReadyAttempts:   15,
			ModalReadyInterval:   500 * time.Millisecond,
			FillAttempts:         5,
			FillRetryDelay:       800 * time.Millisecond,
			FillAcceptRate:       0.8,
			FillAbortRate:        0.5,
			CustomInputTimeout:   3 * time.Second,
			SubmitAttempts:       5,
			SubmitRetryDelay:     500 * time.Millisecond,
			ConfirmAttempts:      20,
			ConfirmInterval:      500 * time.Millisecond,
		},
		Store: StoreConfig{
			Key: "classsync_payload",
			TTL: 12 * time.Hour,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
			AllowedOrigins: []string{
				"https://tschoolkit.web.app",
				"http://localhost:3000",
			},
		},
		PayloadService: PayloadServiceConfig{
			Timeout:           15 * time.Second,
			RequestsPerMinute: 30,
		},
	}
}

// Load reads configuration from the given file (or ./config.yaml when empty),
// merges environment overrides and unmarshals on top of the defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CLASSSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}

	cfg := NewDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that would make the flow
// misbehave in ways that are hard to diagnose at runtime.
func (c *Config) Validate() error {
	if c.Sites.HostURL == "" || c.Sites.ChildURL == "" {
		return fmt.Errorf("sites.host_url and sites.child_url are required")
	}
	if !strings.HasPrefix(c.Sites.HostURL, "http") || !strings.HasPrefix(c.Sites.ChildURL, "http") {
		return fmt.Errorf("site URLs must include a scheme")
	}
	if c.Flow.FillAcceptRate < 0 || c.Flow.FillAcceptRate > 1 {
		return fmt.Errorf("flow.fill_accept_rate must be between 0.0 and 1.0")
	}
	if c.Flow.FillAbortRate < 0 || c.Flow.FillAbortRate > c.Flow.FillAcceptRate {
		return fmt.Errorf("flow.fill_abort_rate must be between 0.0 and flow.fill_accept_rate")
	}
	for _, n := range []struct {
		name string
		val  int
	}{
		{"flow.host_ready_attempts", c.Flow.HostReadyAttempts},
		{"flow.trigger_click_attempts", c.Flow.TriggerClickAttempts},
		{"flow.fill_attempts", c.Flow.FillAttempts},
		{"flow.submit_attempts", c.Flow.SubmitAttempts},
		{"flow.confirm_attempts", c.Flow.ConfirmAttempts},
	} {
		if n.val <= 0 {
			return fmt.Errorf("%s must be a positive integer", n.name)
		}
	}
	if c.Flow.ChildTabTimeout <= 0 {
		return fmt.Errorf("flow.child_tab_timeout must be positive")
	}
	if c.Store.Key == "" {
		return fmt.Errorf("store.key is required")
	}
	return nil
}

// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds the entire application configuration for a single run.
// It is built once at startup and passed explicitly to every component;
// nothing reads configuration as ambient state after Load returns.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Flow      FlowConfig      `mapstructure:"flow"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Qwen      QwenConfig      `mapstructure:"qwen"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	AddSource   bool   `mapstructure:"add_source"`
	ServiceName string `mapstructure:"service_name"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

// Selectors are the CSS selectors used on the registration page.
type Selectors struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Submit   string `mapstructure:"submit"`
	Error    string `mapstructure:"error"`
}

// FlowConfig describes the registration journey under test.
type FlowConfig struct {
	BaseURL             string    `mapstructure:"base_url"`
	RegisterPath        string    `mapstructure:"register_path"`
	DashboardURLPattern string    `mapstructure:"dashboard_url_pattern"`
	Locale              string    `mapstructure:"locale"`
	Selectors           Selectors `mapstructure:"selectors"`
}

// RegisterURL joins the base URL and the registration path.
func (f FlowConfig) RegisterURL() string {
	return strings.TrimRight(f.BaseURL, "/") + f.RegisterPath
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless bool     `mapstructure:"headless"`
	Args     []string `mapstructure:"args"`
}

// RetryConfig bounds the attempt loop.
type RetryConfig struct {
	MaxRetries   int `mapstructure:"max_retries"`
	DelaySeconds int `mapstructure:"delay_seconds"`
	TimeoutMS    int `mapstructure:"timeout_ms"`
	// OverallTimeoutSeconds caps the wall clock of the whole run. Zero means
	// derive it from the per-attempt budget.
	OverallTimeoutSeconds int `mapstructure:"overall_timeout_seconds"`
}

// Delay is the pause between attempts when the decision step does not
// override it.
func (r RetryConfig) Delay() time.Duration {
	return time.Duration(r.DelaySeconds) * time.Second
}

// Timeout is the per-step/per-attempt budget.
func (r RetryConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// OverallTimeout bounds the full run. The derived default leaves room for
// every attempt plus its retry delay, with slack for browser startup.
func (r RetryConfig) OverallTimeout() time.Duration {
	if r.OverallTimeoutSeconds > 0 {
		return time.Duration(r.OverallTimeoutSeconds) * time.Second
	}
	perAttempt := r.Timeout() + r.Delay()
	return time.Duration(r.MaxRetries)*perAttempt + 30*time.Second
}

// QwenConfig configures the optional remote reasoning service. The server is
// expected to speak the OpenAI chat-completions dialect.
type QwenConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ModelServer string `mapstructure:"model_server"`
	Model       string `mapstructure:"model"`
	APIKey      string `mapstructure:"api_key"`
	MaxTokens   int    `mapstructure:"max_tokens"`
}

// ArtifactsConfig says where screenshots, videos, and the report land.
type ArtifactsConfig struct {
	VideoDir    string `mapstructure:"video_dir"`
	ArtifactDir string `mapstructure:"artifact_dir"`
}

// envBindings maps viper keys to the environment variables the tool has
// always honored. Explicit bindings keep nested keys working with flat env
// names.
var envBindings = map[string]string{
	"flow.base_url":                 "BASE_URL",
	"flow.register_path":            "REGISTER_PATH",
	"flow.dashboard_url_pattern":    "DASHBOARD_URL_PATTERN",
	"flow.locale":                   "LOCALE",
	"flow.selectors.email":          "EMAIL_SELECTOR",
	"flow.selectors.password":       "PASSWORD_SELECTOR",
	"flow.selectors.name":           "NAME_SELECTOR",
	"flow.selectors.submit":         "SUBMIT_SELECTOR",
	"flow.selectors.error":          "ERROR_SELECTOR",
	"browser.headless":              "HEADLESS",
	"retry.max_retries":             "MAX_RETRIES",
	"retry.delay_seconds":           "RETRY_DELAY_SECONDS",
	"retry.timeout_ms":              "TIMEOUT_MS",
	"retry.overall_timeout_seconds": "OVERALL_TIMEOUT_SECONDS",
	"qwen.enabled":                  "QWEN_ENABLED",
	"qwen.model_server":             "QWEN_MODEL_SERVER",
	"qwen.model":                    "QWEN_MODEL",
	"qwen.api_key":                  "QWEN_API_KEY",
	"qwen.max_tokens":               "QWEN_MAX_TOKENS",
	"artifacts.video_dir":           "VIDEO_DIR",
	"artifacts.artifact_dir":        "ARTIFACT_DIR",
	"logger.level":                  "LOG_LEVEL",
	"logger.format":                 "LOG_FORMAT",
	"logger.log_file":               "LOG_FILE",
}

// SetDefaults registers every default on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "regsmoke")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)

	v.SetDefault("flow.register_path", "/en/user/register")
	v.SetDefault("flow.dashboard_url_pattern", "/en/generate")
	v.SetDefault("flow.locale", "en-US")
	v.SetDefault("flow.selectors.email", `input[name="email"]`)
	v.SetDefault("flow.selectors.password", `input[name="password"]`)
	v.SetDefault("flow.selectors.name", `input[name="name"]`)
	v.SetDefault("flow.selectors.submit", `button[type="submit"]`)
	v.SetDefault("flow.selectors.error", `.error-message, .alert-danger, [role='alert']`)

	v.SetDefault("browser.headless", true)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.delay_seconds", 3)
	v.SetDefault("retry.timeout_ms", 30000)

	v.SetDefault("qwen.enabled", false)
	v.SetDefault("qwen.model_server", "http://localhost:11434/v1")
	v.SetDefault("qwen.model", "Qwen/Qwen3-14B")
	v.SetDefault("qwen.api_key", "EMPTY")
	v.SetDefault("qwen.max_tokens", 512)

	v.SetDefault("artifacts.video_dir", "test_recordings")
	v.SetDefault("artifacts.artifact_dir", "artifacts")
}

// BindEnvironment wires the documented environment variables into viper.
func BindEnvironment(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error; an unreadable or malformed one is.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from the given viper instance, which is
// expected to already carry flag bindings. Defaults and env bindings are
// applied here so callers only deal with overrides.
func Load(v *viper.Viper, envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	SetDefaults(v)
	if err := BindEnvironment(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the run cannot start with. These are the
// only fatal errors in the program; everything downstream is recorded in the
// report and retried instead.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Flow.BaseURL) == "" {
		return fmt.Errorf("BASE_URL is required (set it in the env file or pass --base-url)")
	}
	if !strings.HasPrefix(c.Flow.BaseURL, "http://") && !strings.HasPrefix(c.Flow.BaseURL, "https://") {
		c.Flow.BaseURL = "https://" + c.Flow.BaseURL
	}
	if _, err := regexp.Compile(c.Flow.DashboardURLPattern); err != nil {
		return fmt.Errorf("invalid dashboard URL pattern %q: %w", c.Flow.DashboardURLPattern, err)
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.TimeoutMS <= 0 {
		return fmt.Errorf("timeout must be positive, got %dms", c.Retry.TimeoutMS)
	}
	if c.Qwen.Enabled && strings.TrimSpace(c.Qwen.ModelServer) == "" {
		return fmt.Errorf("QWEN_MODEL_SERVER is required when QWEN_ENABLED is true")
	}
	return nil
}

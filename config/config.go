package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the digest service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Email     EmailConfig     `mapstructure:"email"`
	Cron      CronConfig      `mapstructure:"cron"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains server-wide settings.
type GeneralConfig struct {
	Listen string `mapstructure:"listen"`
	Debug  bool   `mapstructure:"debug"`
}

// LLMConfig describes the OpenAI-compatible completions endpoint used by the
// discovery and elaboration phases.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EmailConfig describes the transactional email provider and the recipient
// list used by scheduled sends.
type EmailConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	From       string        `mapstructure:"from"`
	Recipients []string      `mapstructure:"recipients"`
	SendDelay  time.Duration `mapstructure:"send_delay"`
}

// CronConfig controls the unattended job: shared secret for the HTTP trigger,
// retry policy, and an optional in-process schedule.
type CronConfig struct {
	Secret     string        `mapstructure:"secret"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Schedule   string        `mapstructure:"schedule"`
}

// RedisConfig is optional; when a host is set the scheduled job takes a
// distributed lock so overlapping triggers do not double-send.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Pass string `mapstructure:"pass"`
	DB   int    `mapstructure:"db"`
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from an optional YAML file plus environment
// overrides. A missing file is fine; the environment alone can configure the
// scheduled job.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
	}

	v.SetDefault("general.listen", ":8080")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.max_tokens", 8000)
	v.SetDefault("llm.timeout", 5*time.Minute)
	v.SetDefault("email.base_url", "https://api.resend.com")
	v.SetDefault("email.from", "Daily Digest <digest@resend.dev>")
	v.SetDefault("email.send_delay", 600*time.Millisecond)
	v.SetDefault("cron.max_retries", 3)
	v.SetDefault("cron.retry_delay", 30*time.Second)
	v.SetDefault("telemetry.enabled", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Environment names follow the deployment contract for the cron job.
	bindEnv(v, "llm.api_key", "AI_API_KEY")
	bindEnv(v, "llm.base_url", "AI_BASE_URL")
	bindEnv(v, "llm.model", "AI_MODEL")
	bindEnv(v, "email.api_key", "RESEND_API_KEY")
	bindEnv(v, "email.recipients_raw", "DIGEST_RECIPIENTS")
	bindEnv(v, "cron.secret", "CRON_SECRET")
	bindEnv(v, "general.listen", "LISTEN_ADDR")
	bindEnv(v, "redis.host", "REDIS_HOST")
	bindEnv(v, "redis.port", "REDIS_PORT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if raw := v.GetString("email.recipients_raw"); raw != "" {
		cfg.Email.Recipients = SplitRecipients(raw)
	}
	return &cfg, nil
}

func bindEnv(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}

// SplitRecipients parses the comma-separated recipient list used by the
// environment contract.
func SplitRecipients(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the credentials the completion phases need.
func (c LLMConfig) Validate() error {
	if m := c.missing(); len(m) > 0 {
		return fmt.Errorf("llm config incomplete: missing %s", strings.Join(m, ", "))
	}
	return nil
}

func (c LLMConfig) missing() []string {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "llm.api_key (AI_API_KEY)")
	}
	if c.BaseURL == "" {
		missing = append(missing, "llm.base_url (AI_BASE_URL)")
	}
	if c.Model == "" {
		missing = append(missing, "llm.model (AI_MODEL)")
	}
	return missing
}

// Validate checks the fields scheduled delivery needs.
func (c EmailConfig) Validate() error {
	if m := c.missing(); len(m) > 0 {
		return fmt.Errorf("email config incomplete: missing %s", strings.Join(m, ", "))
	}
	return nil
}

func (c EmailConfig) missing() []string {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "email.api_key (RESEND_API_KEY)")
	}
	if len(c.Recipients) == 0 {
		missing = append(missing, "email.recipients (DIGEST_RECIPIENTS)")
	}
	return missing
}

// ValidateJob checks that everything the unattended job needs is present.
// Every missing value is reported at once so the operator fixes them in one
// pass.
func (c *Config) ValidateJob() error {
	missing := c.LLM.missing()
	missing = append(missing, c.Email.missing()...)
	if len(missing) > 0 {
		return fmt.Errorf("configuration incomplete: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderResponses LLMProvider = "responses"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderYandex    LLMProvider = "yandex"
)

type RiskGuard string

const (
	// RiskGuardBlock answers a question-phase call with the safety message instead of calling the model.
	RiskGuardBlock RiskGuard = "block"
	// RiskGuardLog only logs the hit and calls the model as usual.
	RiskGuardLog RiskGuard = "log"
	RiskGuardOff RiskGuard = "off"
)

// Config is read once at process start and passed down explicitly.
// The API credential is optional here: a missing key is reported per request.
type Config struct {
	Port      int    `env:"PORT" envDefault:"8787"`
	StaticDir string `env:"STATIC_DIR"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"responses"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Relay
	RelayTimeout    time.Duration `env:"RELAY_TIMEOUT" envDefault:"25s"`
	MaxOutputTokens int           `env:"MAX_OUTPUT_TOKENS" envDefault:"600"`
	Temperature     float32       `env:"TEMPERATURE" envDefault:"0.35"`
	RiskGuard       RiskGuard     `env:"RISK_GUARD" envDefault:"block"`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS" envDefault:"2"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" envDefault:"6"`

	// HTTP
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	SessionIdleTTL     time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	RephraseQuestions  bool          `env:"REPHRASE_QUESTIONS" envDefault:"false"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Audit log of relay calls (metadata only)
	AuditLogPath string `env:"AUDIT_LOG_PATH" envDefault:"logs/relay.jsonl"`

	// Telegram front-end, enabled when the token is set
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
}

// Parse reads the configuration from the environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderResponses, ProviderOpenAI, ProviderYandex:
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLMProvider)
	}
	switch c.RiskGuard {
	case RiskGuardBlock, RiskGuardLog, RiskGuardOff:
	default:
		return fmt.Errorf("unknown risk guard policy: %s", c.RiskGuard)
	}
	if c.RelayTimeout <= 0 {
		return fmt.Errorf("relay timeout must be positive, got %s", c.RelayTimeout)
	}
	// the relay reads zero as unset
	if c.Temperature <= 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in (0, 2], got %v", c.Temperature)
	}
	return nil
}

// HasCredential reports whether the selected provider has what it needs to call out.
func (c *Config) HasCredential() bool {
	switch c.LLMProvider {
	case ProviderYandex:
		return c.YandexOAuthToken != "" && c.YandexFolderID != ""
	default:
		return c.OpenAIAPIKey != ""
	}
}

// ModelName is the model reported by /health and the audit log.
func (c *Config) ModelName() string {
	if c.LLMProvider == ProviderYandex {
		return "yandexgpt-lite"
	}
	return c.OpenAIModel
}

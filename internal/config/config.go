package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Core
	DatabaseURL  string `env:"DATABASE_URL,required"`
	AdminAccount string `env:"ADMIN_ACCOUNT,required"`

	// WeCom callback
	CallbackToken  string        `env:"WECOM_TOKEN,required"`
	EncodingAESKey string        `env:"WECOM_AES_KEY,required"`
	CorpID         string        `env:"WECOM_CORP_ID,required"`
	TimestampSkew  time.Duration `env:"WECOM_TIMESTAMP_SKEW" envDefault:"5m"`

	// Per-app credentials as agent_id:value pairs, e.g. "1000002:tok,0:contacts-tok".
	// Apps not listed use WECOM_TOKEN and WECOM_AES_KEY.
	AppTokens  map[string]string `env:"WECOM_APP_TOKENS"`
	AppAESKeys map[string]string `env:"WECOM_APP_AES_KEYS"`

	// Provider
	ProviderAPIKey   string        `env:"PROVIDER_API_KEY,required"`
	ProviderAPIType  string        `env:"PROVIDER_API_TYPE" envDefault:"openai"`
	ProviderEndpoint string        `env:"PROVIDER_ENDPOINT"`
	ProviderTimeout  time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"60s"`

	// Conversations
	ConversationIdleTimeout time.Duration `env:"CONVERSATION_IDLE_TIMEOUT" envDefault:"30m"`
	ContextWindowMessages   int           `env:"CONTEXT_WINDOW_MESSAGES" envDefault:"50"`

	// Server
	Port int `env:"PORT" envDefault:"8088"`

	// Telegram alerts
	LogTelegramBotToken string `env:"LOG_TELEGRAM_BOT_TOKEN"`
	LogTelegramChatID   int64  `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError       int    `env:"LOG_TOPIC_ERROR"`
	LogTopicOverdraft   int    `env:"LOG_TOPIC_OVERDRAFT"`
	LogTopicSecurity    int    `env:"LOG_TOPIC_SECURITY"`
	LogTopicBalance     int    `env:"LOG_TOPIC_BALANCE"`
	LogTopicGuest       int    `env:"LOG_TOPIC_GUEST"`

	apps map[int64]AppCredentials
}

// AppCredentials are the callback token and AES key of one WeCom app.
type AppCredentials struct {
	Token          string
	EncodingAESKey string
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ProviderAPIType {
	case ProviderAPIOpenAI, ProviderAPIAzure:
	default:
		return fmt.Errorf("unsupported PROVIDER_API_TYPE %q", c.ProviderAPIType)
	}
	if c.ContextWindowMessages <= 0 {
		return fmt.Errorf("CONTEXT_WINDOW_MESSAGES must be positive")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	return c.parseApps()
}

func (c *Config) parseApps() error {
	c.apps = make(map[int64]AppCredentials, len(c.AppTokens))
	for raw, token := range c.AppTokens {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			return fmt.Errorf("WECOM_APP_TOKENS: bad agent id %q", raw)
		}
		key, ok := c.AppAESKeys[raw]
		if !ok || key == "" || token == "" {
			return fmt.Errorf("agent %d needs both a token and an AES key", id)
		}
		c.apps[id] = AppCredentials{Token: token, EncodingAESKey: key}
	}
	for raw := range c.AppAESKeys {
		if _, ok := c.AppTokens[raw]; !ok {
			return fmt.Errorf("WECOM_APP_AES_KEYS: agent %q has no token", raw)
		}
	}
	return nil
}

// Apps returns the per-agent callback credentials.
func (c *Config) Apps() map[int64]AppCredentials {
	return c.apps
}

// NonceTTL is how long a claimed callback nonce is remembered.
func (c *Config) NonceTTL() time.Duration {
	if c.TimestampSkew <= 0 {
		return DefaultNonceTTL
	}
	return 2 * c.TimestampSkew
}

func (c *Config) TelegramAlertsEnabled() bool {
	return c.LogTelegramBotToken != "" && c.LogTelegramChatID != 0
}

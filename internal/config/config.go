package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Operating modes for the messaging-platform ingress.
const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	Telegram TelegramConfig `env:",prefix=TELEGRAM_"`
	Whoop    WhoopConfig    `env:",prefix=WHOOP_"`
	AI       AIConfig       `env:",prefix=AI_"`
	Trigger  TriggerConfig  `env:",prefix=TRIGGER_"`
	Security SecurityConfig `env:",prefix="`

	// ProjectID is the cloud project hosting Firestore.
	ProjectID string `env:"GCP_PROJECT_ID,required"`
	// PublicURL is the service's own invocation URL. It is the OAuth redirect
	// base and the default audience for scheduler identity tokens.
	PublicURL string `env:"URL,required"`
	// Mode selects webhook or polling ingress for Telegram updates.
	Mode string `env:"BOT_MODE,default=webhook"`
	Env  string `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=300s"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type TelegramConfig struct {
	Token string `env:"TOKEN,required"`
	// APIBaseURL is overridable for tests and local Bot API servers.
	APIBaseURL string `env:"API_URL,default=https://api.telegram.org"`
	// WebhookSecret is echoed back by Telegram in the
	// X-Telegram-Bot-Api-Secret-Token header of every webhook delivery.
	WebhookSecret string   `env:"WEBHOOK_SECRET,default="`
	PollTimeout   Duration `env:"POLL_TIMEOUT,default=30s"`
	SendTimeout   Duration `env:"SEND_TIMEOUT,default=10s"`
}

type WhoopConfig struct {
	ClientID     string   `env:"CLIENT_ID,required"`
	ClientSecret string   `env:"CLIENT_SECRET,required"`
	AuthURL      string   `env:"AUTH_URL,default=https://api.prod.whoop.com/oauth/oauth2/auth"`
	TokenURL     string   `env:"TOKEN_URL,default=https://api.prod.whoop.com/oauth/oauth2/token"`
	APIBaseURL   string   `env:"API_BASE_URL,default=https://api.prod.whoop.com/developer"`
	Scopes       []string `env:"SCOPES,default=offline,read:profile,read:recovery,read:sleep,read:workout"`
	// RefreshMargin is the safety window before expiry within which the vault
	// refreshes rather than hands out the cached token.
	RefreshMargin Duration `env:"REFRESH_MARGIN,default=60s"`
	Timeout       Duration `env:"TIMEOUT,default=10s"`
	PageLimit     int      `env:"PAGE_LIMIT,default=25"`
}

type AIConfig struct {
	APIKey  string   `env:"API_KEY,required"`
	BaseURL string   `env:"BASE_URL,default=https://api.openai.com/v1"`
	Model   string   `env:"MODEL,default=gpt-4o-mini"`
	Timeout Duration `env:"TIMEOUT,default=20s"`
}

type TriggerConfig struct {
	// Budget is the per-request wall clock, kept below the scheduler's ~320s
	// attempt deadline so the handler fails fast instead of being killed.
	Budget Duration `env:"BUDGET,default=280s"`
	// Audience overrides the identity-token audience; empty means PublicURL.
	Audience string `env:"AUDIENCE,default="`
	// SyncLookback bounds the first sync of a user with no cursor yet.
	SyncLookback Duration `env:"SYNC_LOOKBACK,default=7d"`
}

type SecurityConfig struct {
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=30"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// IdentityAudience returns the audience expected in scheduler identity tokens.
func (c Config) IdentityAudience() string {
	if c.Trigger.Audience != "" {
		return c.Trigger.Audience
	}
	return c.PublicURL
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if config.Mode != ModeWebhook && config.Mode != ModePolling {
		return nil, fmt.Errorf("BOT_MODE must be %q or %q, got %q", ModeWebhook, ModePolling, config.Mode)
	}

	if config.Mode == ModeWebhook && config.Telegram.WebhookSecret == "" {
		return nil, fmt.Errorf("TELEGRAM_WEBHOOK_SECRET is required in webhook mode")
	}

	return &config, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}

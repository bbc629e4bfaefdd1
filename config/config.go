package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

type Config struct {
	Configuration struct {
		Port     string `envconfig:"PORT" default:"8080"`
		LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

		RateLimitPerSecond        int `envconfig:"RATE_LIMIT_PER_SECOND" default:"2"`
		RateLimitBurstLimit       int `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"5"`
		CachedRateLimitPerSecond  int `envconfig:"CACHED_RATE_LIMIT_PER_SECOND" default:"10"`
		CachedRateLimitBurstLimit int `envconfig:"CACHED_RATE_LIMIT_BURST_LIMIT" default:"20"`

		CacheBackend           string `envconfig:"CACHE_BACKEND" default:"bolt"` // bolt or redis
		CacheDBPath            string `envconfig:"CACHE_DB_PATH" default:"./data/cache.db"`
		CacheBackupPath        string `envconfig:"CACHE_BACKUP_PATH" default:"./data/backups"`
		CacheAccessToken       string `envconfig:"CACHE_ACCESS_TOKEN" default:""`
		RedisURL               string `envconfig:"REDIS_URL" default:""`
		RedisKeyPrefix         string `envconfig:"REDIS_KEY_PREFIX" default:"lyrics-sync:"`
		RedisTTLInSeconds      int    `envconfig:"REDIS_TTL_SECONDS" default:"0"` // 0 keeps entries forever
		NegativeCacheTTLInDays int    `envconfig:"NEGATIVE_CACHE_TTL_DAYS" default:"7"`
		StatsDBPath            string `envconfig:"STATS_DB_PATH" default:"./data/stats.db"`

		APIKey         string `envconfig:"API_KEY" default:""`
		APIKeyRequired bool   `envconfig:"API_KEY_REQUIRED" default:"false"`
		AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`

		// Lyric sources
		ProviderOrder     string `envconfig:"PROVIDER_ORDER" default:"local,remote"`
		LyricsDir         string `envconfig:"LYRICS_DIR" default:""`
		MusicDir          string `envconfig:"MUSIC_DIR" default:""` // path= lookups must stay inside; empty disables them
		RemoteBaseURL     string `envconfig:"REMOTE_BASE_URL" default:""`
		RemoteTimeoutSecs int    `envconfig:"REMOTE_TIMEOUT_SECS" default:"10"`

		CircuitBreakerThreshold    int `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`     // Consecutive failures before circuit opens
		CircuitBreakerCooldownSecs int `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"300"` // Seconds to wait before retrying

		// Sessions
		LyricsUpdateIntervalMs int `envconfig:"LYRICS_UPDATE_INTERVAL_MS" default:"100"`
		SessionIdleTimeoutMins int `envconfig:"SESSION_IDLE_TIMEOUT_MINS" default:"60"`
	}

	// Operator alerts. A channel is enabled when its first field is set.
	Notifiers struct {
		SMTPHost          string `envconfig:"NOTIFIER_SMTP_HOST" default:""`
		SMTPPort          string `envconfig:"NOTIFIER_SMTP_PORT" default:"587"`
		SMTPUsername      string `envconfig:"NOTIFIER_SMTP_USERNAME" default:""`
		SMTPPassword      string `envconfig:"NOTIFIER_SMTP_PASSWORD" default:""`
		FromEmail         string `envconfig:"NOTIFIER_FROM_EMAIL" default:""`
		ToEmail           string `envconfig:"NOTIFIER_TO_EMAIL" default:""`
		TelegramBotToken  string `envconfig:"NOTIFIER_TELEGRAM_BOT_TOKEN" default:""`
		TelegramChatID    string `envconfig:"NOTIFIER_TELEGRAM_CHAT_ID" default:""`
		NtfyTopic         string `envconfig:"NOTIFIER_NTFY_TOPIC" default:""`
		NtfyServer        string `envconfig:"NOTIFIER_NTFY_SERVER" default:"https://ntfy.sh"`
		AlertCooldownMins int    `envconfig:"ALERT_COOLDOWN_MINS" default:"15"`
	}

	FeatureFlags struct {
		CacheCompression bool `envconfig:"FF_CACHE_COMPRESSION" default:"true"`
		CacheOnlyMode    bool `envconfig:"FF_CACHE_ONLY_MODE" default:"false"`
	}
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Warnf("Error loading env config: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

func Get() Config {
	return conf
}

// Providers returns the configured provider names in lookup order
func (c Config) Providers() []string {
	return splitList(c.Configuration.ProviderOrder)
}

// Origins returns the CORS allowed origins
func (c Config) Origins() []string {
	return splitList(c.Configuration.AllowedOrigins)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

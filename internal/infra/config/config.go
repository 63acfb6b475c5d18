package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"

	"cerebrate-bot/internal/infra/ratelimit"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token     string `envconfig:"TG_BOT_TOKEN"`
		GlobalRPS int    `envconfig:"TG_GLOBAL_RPS" default:"25"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	AMQPURL   string `envconfig:"AMQP_URL"`

	Scheduler struct {
		TickInterval        time.Duration `envconfig:"TICK_INTERVAL" default:"60s"`
		CacheTTL            time.Duration `envconfig:"CACHE_TTL" default:"24h"`
		MaintenanceInterval time.Duration `envconfig:"MAINTENANCE_INTERVAL" default:"24h"`
		NotificationTTLDays int           `envconfig:"NOTIFICATION_TTL_DAYS" default:"90"`
	} `envconfig:""`

	Broadcast struct {
		BatchSize    int           `envconfig:"BROADCAST_BATCH_SIZE" default:"10"`
		BatchDelay   time.Duration `envconfig:"BROADCAST_BATCH_DELAY" default:"1s"`
		MessageDelay time.Duration `envconfig:"BROADCAST_MESSAGE_DELAY" default:"0s"`
		MaxRetries   int           `envconfig:"BROADCAST_MAX_RETRIES" default:"3"`
		QueueKey     string        `envconfig:"BROADCAST_QUEUE_KEY" default:"broadcast_jobs"`
	} `envconfig:""`

	RateLimit struct {
		GeneralMax      int           `envconfig:"RATE_LIMIT_GENERAL_MAX" default:"20"`
		GeneralWindow   time.Duration `envconfig:"RATE_LIMIT_GENERAL_WINDOW" default:"60s"`
		FriendMax       int           `envconfig:"RATE_LIMIT_FRIEND_MAX" default:"10"`
		FriendWindow    time.Duration `envconfig:"RATE_LIMIT_FRIEND_WINDOW" default:"60s"`
		AdminMax        int           `envconfig:"RATE_LIMIT_ADMIN_MAX" default:"2"`
		AdminWindow     time.Duration `envconfig:"RATE_LIMIT_ADMIN_WINDOW" default:"60s"`
		VoiceMax        int           `envconfig:"RATE_LIMIT_VOICE_MAX" default:"5"`
		VoiceWindow     time.Duration `envconfig:"RATE_LIMIT_VOICE_WINDOW" default:"60s"`
		BroadcastMax    int           `envconfig:"RATE_LIMIT_BROADCAST_MAX" default:"30"`
		BroadcastWindow time.Duration `envconfig:"RATE_LIMIT_BROADCAST_WINDOW" default:"60s"`
		CompactInterval time.Duration `envconfig:"RATE_LIMIT_COMPACT_INTERVAL" default:"1h"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// RateLimitTiers собирает тарифы лимитера из конфига.
func (c AppConfig) RateLimitTiers() map[ratelimit.Action]ratelimit.Tier {
	return map[ratelimit.Action]ratelimit.Tier{
		ratelimit.ActionGeneral:            {MaxRequests: c.RateLimit.GeneralMax, Window: c.RateLimit.GeneralWindow},
		ratelimit.ActionFriendRequest:      {MaxRequests: c.RateLimit.FriendMax, Window: c.RateLimit.FriendWindow},
		ratelimit.ActionBroadcastAdmin:     {MaxRequests: c.RateLimit.AdminMax, Window: c.RateLimit.AdminWindow},
		ratelimit.ActionVoiceTranscription: {MaxRequests: c.RateLimit.VoiceMax, Window: c.RateLimit.VoiceWindow},
		ratelimit.ActionBroadcast:          {MaxRequests: c.RateLimit.BroadcastMax, Window: c.RateLimit.BroadcastWindow},
	}
}

// NotificationTTL возвращает срок хранения записей об уведомлениях.
func (c AppConfig) NotificationTTL() time.Duration {
	days := c.Scheduler.NotificationTTLDays
	if days <= 0 {
		days = 90
	}
	return time.Duration(days) * 24 * time.Hour
}

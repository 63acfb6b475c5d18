package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cerebrate-bot/internal/adapters/repo"
	"cerebrate-bot/internal/adapters/telegram"
	"cerebrate-bot/internal/domain"
	"cerebrate-bot/internal/infra/config"
	"cerebrate-bot/internal/infra/db"
	"cerebrate-bot/internal/infra/log"
	"cerebrate-bot/internal/infra/metrics"
	"cerebrate-bot/internal/infra/queue"
	"cerebrate-bot/internal/infra/ratelimit"
	"cerebrate-bot/internal/usecase/broadcast"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("broadcast-worker: нет подключения к БД")
	}
	defer pool.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("broadcast-worker: не удалось создать бота")
	}

	repoAdapter := repo.NewPostgres(pool, cfg.NotificationTTL())
	sender := telegram.NewSender(botAPI, cfg.Telegram.GlobalRPS, logger)
	limiter := ratelimit.New(cfg.RateLimitTiers())
	go limiter.RunCompaction(ctx, cfg.RateLimit.CompactInterval)

	dispatcher := broadcast.NewService(repoAdapter, sender, limiter, broadcast.Defaults{
		BatchSize:    cfg.Broadcast.BatchSize,
		BatchDelay:   cfg.Broadcast.BatchDelay,
		MessageDelay: cfg.Broadcast.MessageDelay,
		MaxRetries:   cfg.Broadcast.MaxRetries,
	}, logger.With().Str("component", "broadcast").Logger())

	broadcastQueue := buildQueue(cfg, logger)

	metrics.StartServer(ctx, logger, fmt.Sprintf(":%d", cfg.Port))
	logger.Info().Msg("broadcast-worker: запущен")

	for {
		job, err := broadcastQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error().Err(err).Msg("broadcast-worker: ошибка чтения очереди")
			continue
		}
		result, err := dispatcher.Dispatch(ctx, job, func(p domain.BroadcastProgress) {
			logger.Info().
				Str("job", job.ID).
				Int("batch", p.Batch).
				Int("batches", p.TotalBatches).
				Int("sent", p.Sent).
				Int("failed", p.Failed).
				Dur("elapsed", p.Elapsed).
				Dur("remaining", p.Remaining).
				Msg("рассылка: прогресс")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Str("job", job.ID).Msg("broadcast-worker: рассылка прервана")
		}
		logger.Info().
			Str("job", job.ID).
			Int("total", result.Total).
			Int("sent", result.Sent).
			Int("failed", result.Failed).
			Dur("duration", result.Duration).
			Msg("broadcast-worker: итог рассылки")
	}
	logger.Info().Msg("broadcast-worker: остановлен")
}

// buildQueue выбирает бэкенд очереди: AMQP при заданном AMQP_URL, иначе Redis.
func buildQueue(cfg config.AppConfig, logger zerolog.Logger) domain.BroadcastQueue {
	if cfg.AMQPURL != "" {
		q, err := queue.NewRabbitBroadcastQueue(cfg.AMQPURL, cfg.Broadcast.QueueKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("broadcast-worker: не удалось подключиться к RabbitMQ")
		}
		return q
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Fatal().Err(err).Msg("broadcast-worker: нет подключения к Redis")
	}
	return queue.NewRedisBroadcastQueue(client, cfg.Broadcast.QueueKey)
}

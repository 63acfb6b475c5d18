package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"cerebrate-bot/internal/adapters/repo"
	"cerebrate-bot/internal/adapters/telegram"
	"cerebrate-bot/internal/infra/cache"
	"cerebrate-bot/internal/infra/config"
	"cerebrate-bot/internal/infra/db"
	"cerebrate-bot/internal/infra/log"
	"cerebrate-bot/internal/infra/metrics"
	"cerebrate-bot/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: нет подключения к БД")
	}
	defer pool.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось создать бота")
	}

	repoAdapter := repo.NewPostgres(pool, cfg.NotificationTTL())
	sender := telegram.NewSender(botAPI, cfg.Telegram.GlobalRPS, logger)

	memo := cache.New[int64, time.Time](time.Minute)
	defer memo.Close()

	scheduler := schedule.NewService(
		repoAdapter,
		repoAdapter,
		repoAdapter,
		sender,
		memo,
		cfg.Scheduler.CacheTTL,
		cfg.Scheduler.TickInterval,
		logger.With().Str("component", "scheduler").Logger(),
	)

	metrics.StartServer(ctx, logger, fmt.Sprintf(":%d", cfg.Port))
	go scheduler.RunMaintenanceLoop(ctx, cfg.Scheduler.MaintenanceInterval)

	logger.Info().Dur("tick", cfg.Scheduler.TickInterval).Msg("notifier: планировщик запущен")
	scheduler.Run(ctx)
	logger.Info().Msg("notifier: остановлен")
}

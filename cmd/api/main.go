package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cerebrate-bot/internal/domain"
	"cerebrate-bot/internal/infra/config"
	httpinfra "cerebrate-bot/internal/infra/http"
	"cerebrate-bot/internal/infra/log"
	"cerebrate-bot/internal/infra/metrics"
	"cerebrate-bot/internal/infra/queue"
	"cerebrate-bot/internal/infra/ratelimit"
)

type broadcastRequest struct {
	Message      string  `json:"message"`
	Recipients   []int64 `json:"recipients,omitempty"`
	BatchSize    int     `json:"batch_size,omitempty"`
	MessageDelay string  `json:"message_delay,omitempty"`
	BatchDelay   string  `json:"batch_delay,omitempty"`
	MaxRetries   int     `json:"max_retries,omitempty"`
}

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broadcastQueue := buildQueue(cfg, logger)
	limiter := ratelimit.New(cfg.RateLimitTiers())
	go limiter.RunCompaction(ctx, cfg.RateLimit.CompactInterval)

	server := httpinfra.NewServer(logger)
	server.Router.Post("/api/broadcasts", broadcastHandler(broadcastQueue, limiter, logger))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(fmt.Sprintf(":%d", cfg.Port)) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: сервер остановлен с ошибкой")
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: ошибка остановки сервера")
		}
	}
	logger.Info().Msg("api: остановлен")
}

// broadcastHandler валидирует запрос оператора и ставит рассылку в очередь.
func broadcastHandler(broadcastQueue domain.BroadcastQueue, limiter *ratelimit.Limiter, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operator := r.Header.Get("X-Operator-ID")
		if operator == "" {
			http.Error(w, "заголовок X-Operator-ID обязателен", http.StatusBadRequest)
			return
		}
		if ok, retryAfter := limiter.Allow(operator, ratelimit.ActionBroadcastAdmin); !ok {
			metrics.RateLimitRejections.WithLabelValues(string(ratelimit.ActionBroadcastAdmin)).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			http.Error(w, "слишком много рассылок, подождите", http.StatusTooManyRequests)
			return
		}

		var req broadcastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Message == "" {
			http.Error(w, "поле message обязательно", http.StatusBadRequest)
			return
		}
		job := domain.BroadcastJob{
			ID:          uuid.NewString(),
			Message:     req.Message,
			Recipients:  req.Recipients,
			BatchSize:   req.BatchSize,
			MaxRetries:  req.MaxRetries,
			RequestedAt: time.Now().UTC(),
		}
		if req.MessageDelay != "" {
			d, err := time.ParseDuration(req.MessageDelay)
			if err != nil {
				http.Error(w, "некорректное значение message_delay", http.StatusBadRequest)
				return
			}
			job.MessageDelay = d
		}
		if req.BatchDelay != "" {
			d, err := time.ParseDuration(req.BatchDelay)
			if err != nil {
				http.Error(w, "некорректное значение batch_delay", http.StatusBadRequest)
				return
			}
			job.BatchDelay = d
		}
		if err := broadcastQueue.Enqueue(r.Context(), job); err != nil {
			logger.Error().Err(err).Str("job", job.ID).Msg("api: не удалось поставить рассылку в очередь")
			http.Error(w, "очередь недоступна", http.StatusServiceUnavailable)
			return
		}
		logger.Info().Str("job", job.ID).Str("operator", operator).Msg("api: рассылка поставлена в очередь")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": job.ID})
	}
}

// buildQueue выбирает бэкенд очереди: AMQP при заданном AMQP_URL, иначе Redis.
func buildQueue(cfg config.AppConfig, logger zerolog.Logger) domain.BroadcastQueue {
	if cfg.AMQPURL != "" {
		q, err := queue.NewRabbitBroadcastQueue(cfg.AMQPURL, cfg.Broadcast.QueueKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: не удалось подключиться к RabbitMQ")
		}
		return q
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к Redis")
	}
	return queue.NewRedisBroadcastQueue(client, cfg.Broadcast.QueueKey)
}

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cerebrate-bot/internal/domain"
	"cerebrate-bot/internal/infra/metrics"
	"cerebrate-bot/internal/infra/ratelimit"
)

// ErrEmptyMessage возвращается для рассылки без текста.
var ErrEmptyMessage = errors.New("текст рассылки пуст")

// maxErrorMessages ограничивает список ошибок в итоговом отчёте.
const maxErrorMessages = 50

// Defaults — параметры рассылки, когда задача их не переопределяет.
type Defaults struct {
	BatchSize    int
	BatchDelay   time.Duration
	MessageDelay time.Duration
	MaxRetries   int
}

// ProgressFunc вызывается после каждого батча с агрегированными счётчиками.
type ProgressFunc func(domain.BroadcastProgress)

// Service раздаёт сообщение списку получателей батчами фиксированного
// размера: внутри батча отправки параллельны, батчи строго последовательны.
// Двухуровневая задержка (между сообщениями и между батчами) удерживает
// поток под потолком транспорта.
type Service struct {
	users    domain.UserRepo
	sender   domain.Sender
	limiter  *ratelimit.Limiter
	defaults Defaults
	log      zerolog.Logger

	now         func() time.Time
	backoffBase time.Duration
}

// NewService создаёт диспетчер рассылок.
func NewService(users domain.UserRepo, sender domain.Sender, limiter *ratelimit.Limiter, defaults Defaults, log zerolog.Logger) *Service {
	if defaults.BatchSize <= 0 {
		defaults.BatchSize = 10
	}
	if defaults.MaxRetries < 0 {
		defaults.MaxRetries = 0
	}
	return &Service{
		users:       users,
		sender:      sender,
		limiter:     limiter,
		defaults:    defaults,
		log:         log,
		now:         time.Now,
		backoffBase: time.Second,
	}
}

// Dispatch выполняет рассылку и возвращает агрегированный отчёт.
// Пустой список получателей означает «все известные пользователи».
// Отмена контекста срабатывает между батчами: начатый батч дорабатывает,
// оставшиеся получатели учитываются как недоставленные.
func (s *Service) Dispatch(ctx context.Context, job domain.BroadcastJob, onProgress ProgressFunc) (domain.BroadcastResult, error) {
	message := strings.TrimSpace(job.Message)
	if message == "" {
		return domain.BroadcastResult{}, ErrEmptyMessage
	}

	recipients := job.Recipients
	if len(recipients) == 0 {
		var err error
		recipients, err = s.users.ListRecipientIDs()
		if err != nil {
			return domain.BroadcastResult{}, fmt.Errorf("получение получателей: %w", err)
		}
	}

	batchSize := job.BatchSize
	if batchSize <= 0 {
		batchSize = s.defaults.BatchSize
	}
	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.defaults.MaxRetries
	}
	batchDelay := job.BatchDelay
	if batchDelay <= 0 {
		batchDelay = s.defaults.BatchDelay
	}
	messageDelay := job.MessageDelay
	if messageDelay <= 0 {
		messageDelay = s.defaults.MessageDelay
	}

	start := s.now()
	result := domain.BroadcastResult{Total: len(recipients)}
	batches := partition(recipients, batchSize)

	s.log.Info().
		Str("job", job.ID).
		Int("recipients", len(recipients)).
		Int("batches", len(batches)).
		Msg("рассылка начата")

	var cancelled error
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			s.markUnattempted(&result, batches[i:])
			cancelled = err
			break
		}
		if i > 0 && batchDelay > 0 {
			if err := sleepCtx(ctx, batchDelay); err != nil {
				s.markUnattempted(&result, batches[i:])
				cancelled = err
				break
			}
		}

		s.runBatch(ctx, batch, message, maxRetries, messageDelay, &result)

		if onProgress != nil {
			completed := i + 1
			elapsed := s.now().Sub(start)
			var remaining time.Duration
			if rest := len(batches) - completed; rest > 0 {
				remaining = elapsed / time.Duration(completed) * time.Duration(rest)
			}
			onProgress(domain.BroadcastProgress{
				Sent:         result.Sent,
				Failed:       result.Failed,
				Batch:        completed,
				TotalBatches: len(batches),
				Elapsed:      elapsed,
				Remaining:    remaining,
			})
		}
	}

	result.Duration = s.now().Sub(start)
	metrics.BroadcastDurationSeconds.Observe(result.Duration.Seconds())
	s.log.Info().
		Str("job", job.ID).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("рассылка завершена")
	return result, cancelled
}

// runBatch отправляет одному батчу параллельно; запуск отправок
// растягивается на messageDelay, чтобы не выстреливать батч залпом.
func (s *Service) runBatch(ctx context.Context, batch []int64, message string, maxRetries int, messageDelay time.Duration, result *domain.BroadcastResult) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i, recipientID := range batch {
		if i > 0 && messageDelay > 0 {
			if sleepCtx(ctx, messageDelay) != nil {
				// отмена внутри батча: уже запущенные отправки доработают,
				// остальные получатели батча уйдут в недоставленные
				mu.Lock()
				for _, rest := range batch[i:] {
					s.recordFailure(result, rest, ctx.Err())
				}
				mu.Unlock()
				break
			}
		}
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			err := s.sendWithRetry(ctx, id, message, maxRetries)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.recordFailure(result, id, err)
				return
			}
			result.Sent++
			metrics.BroadcastSent.Inc()
		}(recipientID)
	}
	wg.Wait()
}

// sendWithRetry доставляет сообщение одному получателю. Терминальный отказ
// не повторяется; временный — повторяется с линейным бэкоффом до maxRetries раз.
func (s *Service) sendWithRetry(ctx context.Context, recipientID int64, message string, maxRetries int) error {
	if err := s.admit(ctx, recipientID); err != nil {
		return err
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		_, err := s.sender.Send(ctx, recipientID, message)
		if err == nil {
			return nil
		}
		lastErr = err
		if domain.IsPermanentSendError(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		if err := sleepCtx(ctx, s.backoffBase*time.Duration(attempt+1)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// admit пропускает получателя через лимитер, пережидая отказы.
func (s *Service) admit(ctx context.Context, recipientID int64) error {
	if s.limiter == nil {
		return nil
	}
	subject := strconv.FormatInt(recipientID, 10)
	for {
		ok, retryAfter := s.limiter.Allow(subject, ratelimit.ActionBroadcast)
		if ok {
			return nil
		}
		metrics.RateLimitRejections.WithLabelValues(string(ratelimit.ActionBroadcast)).Inc()
		if err := sleepCtx(ctx, retryAfter); err != nil {
			return err
		}
	}
}

func (s *Service) recordFailure(result *domain.BroadcastResult, recipientID int64, err error) {
	result.Failed++
	metrics.BroadcastFailed.Inc()
	result.FailedRecipients = append(result.FailedRecipients, recipientID)
	if len(result.Errors) < maxErrorMessages {
		result.Errors = append(result.Errors, fmt.Sprintf("%d: %v", recipientID, err))
	}
}

// markUnattempted записывает оставшиеся батчи как недоставленные, чтобы
// sent+failed всегда сходились с total.
func (s *Service) markUnattempted(result *domain.BroadcastResult, rest [][]int64) {
	for _, batch := range rest {
		for _, recipientID := range batch {
			s.recordFailure(result, recipientID, errors.New("рассылка отменена"))
		}
	}
}

func partition(recipients []int64, batchSize int) [][]int64 {
	var batches [][]int64
	for start := 0; start < len(recipients); start += batchSize {
		end := start + batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batches = append(batches, recipients[start:end])
	}
	return batches
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

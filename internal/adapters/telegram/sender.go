package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"cerebrate-bot/internal/domain"
	"cerebrate-bot/internal/infra/metrics"
)

// Sender реализует domain.Sender через Telegram Bot API.
// Глобальный лимитер сглаживает исходящий поток, чтобы не упираться
// в потолок Bot API при рассылках.
type Sender struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	log     zerolog.Logger
}

var _ domain.Sender = (*Sender)(nil)

// NewSender создаёт отправителя. globalRPS ≤ 0 отключает глобальный лимит.
func NewSender(bot *tgbotapi.BotAPI, globalRPS int, log zerolog.Logger) *Sender {
	var limiter *rate.Limiter
	if globalRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(globalRPS), globalRPS)
	}
	return &Sender{bot: bot, limiter: limiter, log: log}
}

// Send отправляет текст получателю и возвращает id последнего сообщения.
// Длинный текст режется на части по лимиту Bot API.
func (s *Sender) Send(ctx context.Context, recipientID int64, text string) (int64, error) {
	parts := SplitMessage(text)
	if len(parts) == 0 {
		return 0, domain.NewPermanentSendError(domain.SendReasonUnknown, errors.New("пустое сообщение"))
	}

	var lastID int64
	for _, part := range parts {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return 0, domain.NewTransientSendError(domain.SendReasonTimeout, err)
			}
		}
		msg := tgbotapi.NewMessage(recipientID, part)
		start := time.Now()
		sent, err := s.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "send_message", "bot_api", start, err)
		if err != nil {
			return 0, classify(err)
		}
		lastID = int64(sent.MessageID)
	}
	return lastID, nil
}

// classify переводит ошибку Bot API в типизированную ошибку транспорта.
// Терминальные состояния получателя (блокировка, удалённый аккаунт,
// несуществующий чат) не подлежат повтору.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		message := strings.ToLower(apiErr.Message)
		switch {
		case apiErr.Code == 403 && strings.Contains(message, "deactivated"):
			return domain.NewPermanentSendError(domain.SendReasonDeactivated, err)
		case apiErr.Code == 403:
			return domain.NewPermanentSendError(domain.SendReasonBlocked, err)
		case apiErr.Code == 400 && strings.Contains(message, "chat not found"):
			return domain.NewPermanentSendError(domain.SendReasonNotFound, err)
		case apiErr.Code == 400 && strings.Contains(message, "user not found"):
			return domain.NewPermanentSendError(domain.SendReasonNotFound, err)
		case apiErr.Code == 429:
			retryAfter := time.Duration(apiErr.RetryAfter) * time.Second
			return domain.NewTransientSendError(domain.SendReasonRateLimited,
				fmt.Errorf("bot api просит подождать %s: %w", retryAfter, err))
		}
		return domain.NewTransientSendError(domain.SendReasonUnknown, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewTransientSendError(domain.SendReasonTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTransientSendError(domain.SendReasonTimeout, err)
	}
	return domain.NewTransientSendError(domain.SendReasonUnknown, err)
}

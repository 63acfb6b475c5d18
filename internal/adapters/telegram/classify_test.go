package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cerebrate-bot/internal/domain"
)

func reasonOf(t *testing.T, err error) (string, bool) {
	t.Helper()
	var sendErr *domain.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("ожидали domain.SendError, получили %T: %v", err, err)
	}
	return sendErr.Reason, sendErr.Permanent
}

func TestClassifyBlocked(t *testing.T) {
	err := classify(&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"})
	reason, permanent := reasonOf(t, err)
	if reason != domain.SendReasonBlocked || !permanent {
		t.Fatalf("блокировка бота — терминальный отказ, получили %s (permanent=%v)", reason, permanent)
	}
}

func TestClassifyDeactivated(t *testing.T) {
	err := classify(&tgbotapi.Error{Code: 403, Message: "Forbidden: user is deactivated"})
	reason, permanent := reasonOf(t, err)
	if reason != domain.SendReasonDeactivated || !permanent {
		t.Fatalf("удалённый аккаунт — терминальный отказ, получили %s (permanent=%v)", reason, permanent)
	}
}

func TestClassifyChatNotFound(t *testing.T) {
	err := classify(&tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"})
	reason, permanent := reasonOf(t, err)
	if reason != domain.SendReasonNotFound || !permanent {
		t.Fatalf("несуществующий чат — терминальный отказ, получили %s (permanent=%v)", reason, permanent)
	}
}

func TestClassifyRateLimited(t *testing.T) {
	err := classify(&tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 5",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 5},
	})
	reason, permanent := reasonOf(t, err)
	if reason != domain.SendReasonRateLimited || permanent {
		t.Fatalf("429 — временный отказ, получили %s (permanent=%v)", reason, permanent)
	}
}

func TestClassifyBadRequestTransient(t *testing.T) {
	err := classify(&tgbotapi.Error{Code: 400, Message: "Bad Request: message is too long"})
	_, permanent := reasonOf(t, err)
	if permanent {
		t.Fatalf("прочие 400 считаются временными")
	}
}

func TestClassifyDeadline(t *testing.T) {
	err := classify(context.DeadlineExceeded)
	reason, permanent := reasonOf(t, err)
	if reason != domain.SendReasonTimeout || permanent {
		t.Fatalf("таймаут — временный отказ, получили %s (permanent=%v)", reason, permanent)
	}
}

func TestClassifyUnknownTransient(t *testing.T) {
	err := classify(errors.New("connection reset by peer"))
	reason, permanent := reasonOf(t, err)
	if reason != domain.SendReasonUnknown || permanent {
		t.Fatalf("неизвестная ошибка — временный отказ, получили %s (permanent=%v)", reason, permanent)
	}
}

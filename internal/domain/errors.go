package domain

import (
	"errors"
	"fmt"
)

// Причины отказа транспорта.
const (
	SendReasonBlocked     = "blocked"
	SendReasonNotFound    = "not_found"
	SendReasonDeactivated = "deactivated"
	SendReasonTimeout     = "timeout"
	SendReasonRateLimited = "rate_limited"
	SendReasonUnknown     = "unknown"
)

// SendError — типизированная ошибка транспорта.
// Permanent=true означает терминальное состояние получателя: повторять отправку бессмысленно.
type SendError struct {
	Reason    string
	Permanent bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("отправка не удалась: %s", e.Reason)
	}
	return fmt.Sprintf("отправка не удалась (%s): %v", e.Reason, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// NewPermanentSendError создаёт ошибку терминального отказа.
func NewPermanentSendError(reason string, err error) *SendError {
	return &SendError{Reason: reason, Permanent: true, Err: err}
}

// NewTransientSendError создаёт ошибку временного отказа.
func NewTransientSendError(reason string, err error) *SendError {
	return &SendError{Reason: reason, Permanent: false, Err: err}
}

// IsPermanentSendError сообщает, является ли ошибка терминальным отказом получателя.
func IsPermanentSendError(err error) bool {
	var sendErr *SendError
	return errors.As(err, &sendErr) && sendErr.Permanent
}

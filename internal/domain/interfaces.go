package domain

import "context"

// UserRepo управляет пользователями.
type UserRepo interface {
	// ListNotifiable возвращает пользователей с включёнными уведомлениями.
	ListNotifiable() ([]User, error)
	// ListRecipientIDs возвращает Telegram-идентификаторы всех известных пользователей.
	ListRecipientIDs() ([]int64, error)
}

// QuestionRepo управляет вопросами.
type QuestionRepo interface {
	ListActive(ownerID int64) ([]Question, error)
	GetByID(questionID int64) (Question, error)
	// FindDefault возвращает активный вопрос по умолчанию или nil.
	FindDefault(ownerID int64) (*Question, error)
	Create(question Question) (Question, error)
	Deactivate(questionID int64) error
}

// NotificationRepo управляет записями об отправленных уведомлениях.
type NotificationRepo interface {
	// LastForQuestion возвращает последнее уведомление по вопросу или nil.
	LastForQuestion(questionID int64) (*Notification, error)
	Save(ownerID, questionID, tgMessageID int64) (Notification, error)
	// DeleteExpired удаляет уведомления с истёкшим expires_at и возвращает их количество.
	DeleteExpired() (int64, error)
}

// Sender отправляет одно сообщение одному получателю и возвращает id сообщения.
// Ошибка отправки классифицируется через SendError (см. errors.go).
type Sender interface {
	Send(ctx context.Context, recipientID int64, text string) (int64, error)
}

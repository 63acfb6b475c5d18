package domain

import (
	"errors"
	"fmt"
	"time"
)

// MinIntervalMinutes — нижняя граница интервала между уведомлениями по одному вопросу.
const MinIntervalMinutes = 30

// DefaultNotificationTTL — срок хранения записи об отправленном уведомлении.
const DefaultNotificationTTL = 90 * 24 * time.Hour

// ErrInvalidDayTime возвращается при некорректном времени суток.
var ErrInvalidDayTime = errors.New("некорректное время суток, ожидается ЧЧ:ММ")

// User описывает пользователя Telegram в системе.
type User struct {
	ID            int64
	TGUserID      int64
	FirstName     string
	Locale        string
	Timezone      string
	NotifyEnabled bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DayTime — время суток без даты, используется для границ окна уведомлений.
type DayTime struct {
	Hour   int
	Minute int
}

// ParseDayTime разбирает строку вида «22:00».
func ParseDayTime(raw string) (DayTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(raw, "%d:%d", &h, &m); err != nil {
		return DayTime{}, ErrInvalidDayTime
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return DayTime{}, ErrInvalidDayTime
	}
	return DayTime{Hour: h, Minute: m}, nil
}

// DayTimeFromMinutes восстанавливает время суток из минут с полуночи.
func DayTimeFromMinutes(total int) DayTime {
	total %= 24 * 60
	if total < 0 {
		total += 24 * 60
	}
	return DayTime{Hour: total / 60, Minute: total % 60}
}

// TotalMinutes возвращает минуты с полуночи.
func (d DayTime) TotalMinutes() int {
	return d.Hour*60 + d.Minute
}

// String форматирует время как «ЧЧ:ММ».
func (d DayTime) String() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// Question описывает настраиваемый вопрос пользователя.
type Question struct {
	ID              int64
	OwnerID         int64
	Text            string
	WindowStart     DayTime
	WindowEnd       DayTime
	IntervalMinutes int
	IsDefault       bool
	Active          bool
	ParentID        *int64
	CreatedAt       time.Time
}

// Interval возвращает интервал между уведомлениями как time.Duration.
func (q Question) Interval() time.Duration {
	return time.Duration(q.IntervalMinutes) * time.Minute
}

// WindowContains проверяет, попадает ли момент времени в окно уведомлений.
// Окно с window_start > window_end переходит через полночь.
func (q Question) WindowContains(at time.Time) bool {
	now := at.Hour()*60 + at.Minute()
	start := q.WindowStart.TotalMinutes()
	end := q.WindowEnd.TotalMinutes()
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// Notification представляет одну успешную отправку уведомления.
type Notification struct {
	ID          int64
	OwnerID     int64
	QuestionID  int64
	TGMessageID int64
	SentAt      time.Time
	ExpiresAt   time.Time
}

package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cerebrate-bot/internal/domain"
	"cerebrate-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool            *pgxpool.Pool
	notificationTTL time.Duration
}

var _ domain.UserRepo = (*Postgres)(nil)
var _ domain.QuestionRepo = (*Postgres)(nil)
var _ domain.NotificationRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД. notificationTTL определяет expires_at новых уведомлений.
func NewPostgres(pool *pgxpool.Pool, notificationTTL time.Duration) *Postgres {
	if notificationTTL <= 0 {
		notificationTTL = domain.DefaultNotificationTTL
	}
	return &Postgres{pool: pool, notificationTTL: notificationTTL}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// ListNotifiable реализует domain.UserRepo.
func (p *Postgres) ListNotifiable() ([]domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, tg_user_id, COALESCE(first_name, ''), locale, COALESCE(tz, ''), notify_enabled, created_at, updated_at
FROM users
WHERE notify_enabled
`)
	metrics.ObserveNetworkRequest("postgres", "users_list_notifiable", "users", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка пользователей: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.TGUserID, &u.FirstName, &u.Locale, &u.Timezone, &u.NotifyEnabled, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("чтение пользователя: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListRecipientIDs реализует domain.UserRepo.
func (p *Postgres) ListRecipientIDs() ([]int64, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT tg_user_id FROM users ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "users_list_recipients", "users", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка получателей: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("чтение получателя: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const questionColumns = `id, owner_id, text, window_start, window_end, interval_minutes, is_default, active, parent_id, created_at`

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q        domain.Question
		startMin int
		endMin   int
	)
	if err := row.Scan(&q.ID, &q.OwnerID, &q.Text, &startMin, &endMin, &q.IntervalMinutes, &q.IsDefault, &q.Active, &q.ParentID, &q.CreatedAt); err != nil {
		return domain.Question{}, err
	}
	q.WindowStart = domain.DayTimeFromMinutes(startMin)
	q.WindowEnd = domain.DayTimeFromMinutes(endMin)
	return q, nil
}

// ListActive реализует domain.QuestionRepo.
func (p *Postgres) ListActive(ownerID int64) ([]domain.Question, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+questionColumns+`
FROM questions
WHERE owner_id = $1 AND active
ORDER BY id
`, ownerID)
	metrics.ObserveNetworkRequest("postgres", "questions_list_active", "questions", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка вопросов: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение вопроса: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetByID реализует domain.QuestionRepo.
func (p *Postgres) GetByID(questionID int64) (domain.Question, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, questionID)
	q, err := scanQuestion(row)
	metrics.ObserveNetworkRequest("postgres", "questions_get", "questions", start, err)
	if err != nil {
		return domain.Question{}, fmt.Errorf("получение вопроса %d: %w", questionID, err)
	}
	return q, nil
}

// FindDefault реализует domain.QuestionRepo.
func (p *Postgres) FindDefault(ownerID int64) (*domain.Question, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+questionColumns+`
FROM questions
WHERE owner_id = $1 AND is_default AND active
LIMIT 1
`, ownerID)
	q, err := scanQuestion(row)
	metrics.ObserveNetworkRequest("postgres", "questions_find_default", "questions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("поиск вопроса по умолчанию: %w", err)
	}
	return &q, nil
}

// Create реализует domain.QuestionRepo.
func (p *Postgres) Create(question domain.Question) (domain.Question, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO questions (owner_id, text, window_start, window_end, interval_minutes, is_default, active, parent_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at
`, question.OwnerID, question.Text, question.WindowStart.TotalMinutes(), question.WindowEnd.TotalMinutes(),
		question.IntervalMinutes, question.IsDefault, question.Active, question.ParentID).
		Scan(&question.ID, &question.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "questions_insert", "questions", start, err)
	if err != nil {
		return domain.Question{}, fmt.Errorf("создание вопроса: %w", err)
	}
	return question, nil
}

// Deactivate реализует domain.QuestionRepo. Вопросы не удаляются, только выключаются.
func (p *Postgres) Deactivate(questionID int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE questions SET active = false WHERE id = $1`, questionID)
	metrics.ObserveNetworkRequest("postgres", "questions_deactivate", "questions", start, err)
	if err != nil {
		return fmt.Errorf("деактивация вопроса %d: %w", questionID, err)
	}
	return nil
}

// LastForQuestion реализует domain.NotificationRepo.
func (p *Postgres) LastForQuestion(questionID int64) (*domain.Notification, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var n domain.Notification
	err := p.pool.QueryRow(ctx, `
SELECT id, owner_id, question_id, tg_message_id, sent_at, expires_at
FROM notifications
WHERE question_id = $1
ORDER BY sent_at DESC
LIMIT 1
`, questionID).Scan(&n.ID, &n.OwnerID, &n.QuestionID, &n.TGMessageID, &n.SentAt, &n.ExpiresAt)
	metrics.ObserveNetworkRequest("postgres", "notifications_last", "notifications", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("последнее уведомление вопроса %d: %w", questionID, err)
	}
	return &n, nil
}

// Save реализует domain.NotificationRepo.
func (p *Postgres) Save(ownerID, questionID, tgMessageID int64) (domain.Notification, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	sentAt := time.Now().UTC()
	n := domain.Notification{OwnerID: ownerID, QuestionID: questionID, TGMessageID: tgMessageID}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO notifications (owner_id, question_id, tg_message_id, sent_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, sent_at, expires_at
`, ownerID, questionID, tgMessageID, sentAt, sentAt.Add(p.notificationTTL)).Scan(&n.ID, &n.SentAt, &n.ExpiresAt)
	metrics.ObserveNetworkRequest("postgres", "notifications_insert", "notifications", start, err)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("сохранение уведомления: %w", err)
	}
	return n, nil
}

// DeleteExpired реализует domain.NotificationRepo.
func (p *Postgres) DeleteExpired() (int64, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM notifications WHERE expires_at < now()`)
	metrics.ObserveNetworkRequest("postgres", "notifications_delete_expired", "notifications", start, err)
	if err != nil {
		return 0, fmt.Errorf("удаление просроченных уведомлений: %w", err)
	}
	return tag.RowsAffected(), nil
}

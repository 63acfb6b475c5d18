package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cerebrate-bot/internal/domain"
	"cerebrate-bot/internal/infra/cache"
	"cerebrate-bot/internal/infra/metrics"
)

// Service периодически решает, пора ли отправить уведомление по каждому
// активному вопросу каждого пользователя, и отправляет его.
//
// Memo хранит время последней отправки по id вопроса и экономит обращение
// к БД на каждом тике. Источник истины — БД: промах memo всегда ведёт к
// чтению последнего уведомления перед решением «пора».
type Service struct {
	users         domain.UserRepo
	questions     domain.QuestionRepo
	notifications domain.NotificationRepo
	sender        domain.Sender
	memo          *cache.Cache[int64, time.Time]
	memoTTL       time.Duration
	tick          time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

// NewService создаёт планировщик уведомлений.
func NewService(
	users domain.UserRepo,
	questions domain.QuestionRepo,
	notifications domain.NotificationRepo,
	sender domain.Sender,
	memo *cache.Cache[int64, time.Time],
	memoTTL time.Duration,
	tick time.Duration,
	log zerolog.Logger,
) *Service {
	if tick <= 0 {
		tick = time.Minute
	}
	if memoTTL <= 0 {
		memoTTL = 24 * time.Hour
	}
	return &Service{
		users:         users,
		questions:     questions,
		notifications: notifications,
		sender:        sender,
		memo:          memo,
		memoTTL:       memoTTL,
		tick:          tick,
		log:           log,
		now:           time.Now,
	}
}

// Run крутит цикл планировщика до отмены контекста. Тики строго
// последовательны: работа выполняется в той же горутине, а затянувшийся
// тик приводит к пропуску следующего, не к параллельному запуску.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("планировщик остановлен")
			return
		case <-ticker.C:
			s.RunTick(ctx)
		}
	}
}

// RunTick выполняет один проход по всем пользователям и вопросам.
// Ошибка по одному элементу не прерывает обработку остальных.
func (s *Service) RunTick(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.SchedulerTickSeconds.Observe(time.Since(start).Seconds())
	}()

	users, err := s.users.ListNotifiable()
	if err != nil {
		s.log.Error().Err(err).Msg("тик: не удалось получить пользователей")
		return
	}

	for _, user := range users {
		if ctx.Err() != nil {
			return
		}
		questions, err := s.questions.ListActive(user.ID)
		if err != nil {
			s.log.Error().Err(err).Int64("user", user.ID).Msg("тик: не удалось получить вопросы")
			continue
		}
		for _, question := range questions {
			if err := s.processQuestion(ctx, user, question); err != nil {
				s.log.Error().Err(err).
					Int64("user", user.ID).
					Int64("question", question.ID).
					Msg("тик: уведомление не отправлено")
			}
		}
	}
}

func (s *Service) processQuestion(ctx context.Context, user domain.User, question domain.Question) error {
	now := s.now()
	due, err := s.isDue(question, now)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}

	text := RenderTemplate(question.Text, user.FirstName, now)
	messageID, err := s.sender.Send(ctx, user.TGUserID, text)
	if err != nil {
		// счётчик отказов считает только ошибки транспорта, не ошибки чтения БД
		metrics.NotificationsFailed.Inc()
		return fmt.Errorf("отправка вопроса: %w", err)
	}

	// Memo обновляется даже при неудачной записи в БД: сообщение уже ушло,
	// и до рестарта процесса дубль недопустим.
	s.memo.Set(question.ID, now, s.memoTTL)

	if _, err := s.notifications.Save(user.ID, question.ID, messageID); err != nil {
		return fmt.Errorf("сохранение уведомления: %w", err)
	}
	metrics.NotificationsSent.Inc()
	return nil
}

// isDue проверяет окно и интервал. Время последней отправки берётся из
// memo, при промахе — из БД.
func (s *Service) isDue(question domain.Question, now time.Time) (bool, error) {
	if !question.WindowContains(now) {
		return false, nil
	}

	last, ok := s.memo.Get(question.ID)
	if !ok {
		stored, err := s.notifications.LastForQuestion(question.ID)
		if err != nil {
			return false, fmt.Errorf("последнее уведомление: %w", err)
		}
		if stored != nil {
			last = stored.SentAt
			ok = true
			s.memo.Set(question.ID, last, s.memoTTL)
		}
	}
	if ok && now.Sub(last) < question.Interval() {
		return false, nil
	}
	return true, nil
}

// RunMaintenance очищает memo и удаляет просроченные записи об уведомлениях.
func (s *Service) RunMaintenance(ctx context.Context) {
	s.memo.Clear()
	removed, err := s.notifications.DeleteExpired()
	if err != nil {
		s.log.Error().Err(err).Msg("обслуживание: не удалось удалить просроченные уведомления")
		return
	}
	metrics.NotificationsSwept.Add(float64(removed))
	s.log.Info().Int64("removed", removed).Msg("обслуживание: просроченные уведомления удалены")
}

// RunMaintenanceLoop запускает ежедневное обслуживание до отмены контекста.
func (s *Service) RunMaintenanceLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 24 * time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunMaintenance(ctx)
		}
	}
}

package questions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"cerebrate-bot/internal/domain"
)

// ErrEmptyText возвращается для вопроса без текста.
var ErrEmptyText = errors.New("текст вопроса пуст")

// Параметры вопроса по умолчанию: спрашиваем днём каждые два часа.
var (
	DefaultText        = "Чем занимаешься, {name}?"
	defaultWindowStart = domain.DayTime{Hour: 9}
	defaultWindowEnd   = domain.DayTime{Hour: 22}
	defaultInterval    = 120
)

// Service управляет жизненным циклом вопросов: создание, смена текста
// через цепочку версий, мягкая деактивация.
type Service struct {
	questions domain.QuestionRepo
	log       zerolog.Logger
}

// NewService создаёт сервис вопросов.
func NewService(questions domain.QuestionRepo, log zerolog.Logger) *Service {
	return &Service{questions: questions, log: log}
}

// EnsureDefault возвращает активный вопрос по умолчанию, создавая его при
// первом обращении. У владельца не бывает двух активных вопросов по умолчанию.
func (s *Service) EnsureDefault(ownerID int64) (domain.Question, error) {
	existing, err := s.questions.FindDefault(ownerID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("поиск вопроса по умолчанию: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}
	created, err := s.questions.Create(domain.Question{
		OwnerID:         ownerID,
		Text:            DefaultText,
		WindowStart:     defaultWindowStart,
		WindowEnd:       defaultWindowEnd,
		IntervalMinutes: defaultInterval,
		IsDefault:       true,
		Active:          true,
	})
	if err != nil {
		return domain.Question{}, err
	}
	s.log.Info().Int64("owner", ownerID).Int64("question", created.ID).Msg("создан вопрос по умолчанию")
	return created, nil
}

// Create добавляет пользовательский вопрос. Интервал ниже пола поднимается до него.
func (s *Service) Create(ownerID int64, text string, windowStart, windowEnd domain.DayTime, intervalMinutes int) (domain.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Question{}, ErrEmptyText
	}
	if intervalMinutes < domain.MinIntervalMinutes {
		intervalMinutes = domain.MinIntervalMinutes
	}
	return s.questions.Create(domain.Question{
		OwnerID:         ownerID,
		Text:            text,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		IntervalMinutes: intervalMinutes,
		Active:          true,
	})
}

// UpdateText меняет текст вопроса через версионирование: старая запись
// деактивируется, новая ссылается на неё через parent_id. История ответов
// по старой версии остаётся привязанной к её id.
func (s *Service) UpdateText(questionID int64, text string) (domain.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Question{}, ErrEmptyText
	}
	old, err := s.questions.GetByID(questionID)
	if err != nil {
		return domain.Question{}, err
	}
	if err := s.questions.Deactivate(old.ID); err != nil {
		return domain.Question{}, err
	}
	parentID := old.ID
	return s.questions.Create(domain.Question{
		OwnerID:         old.OwnerID,
		Text:            text,
		WindowStart:     old.WindowStart,
		WindowEnd:       old.WindowEnd,
		IntervalMinutes: old.IntervalMinutes,
		IsDefault:       old.IsDefault,
		Active:          true,
		ParentID:        &parentID,
	})
}

// Deactivate выключает вопрос, не удаляя его.
func (s *Service) Deactivate(questionID int64) error {
	return s.questions.Deactivate(questionID)
}

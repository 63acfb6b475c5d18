package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Action — тип пользовательского действия с собственным лимитом.
type Action string

const (
	// ActionGeneral — обычные команды; запасной тариф для неизвестных действий.
	ActionGeneral Action = "general"
	// ActionFriendRequest — заявки в друзья.
	ActionFriendRequest Action = "friend_request"
	// ActionBroadcastAdmin — административные команды рассылки.
	ActionBroadcastAdmin Action = "broadcast_admin"
	// ActionVoiceTranscription — расшифровка голосовых сообщений.
	ActionVoiceTranscription Action = "voice_transcription"
	// ActionBroadcast — допуск отдельного получателя внутри рассылки.
	ActionBroadcast Action = "broadcast"
)

// Tier задаёт лимит: не более MaxRequests за скользящее окно Window.
type Tier struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultTiers возвращает тарифы по умолчанию.
func DefaultTiers() map[Action]Tier {
	return map[Action]Tier{
		ActionGeneral:            {MaxRequests: 20, Window: time.Minute},
		ActionFriendRequest:      {MaxRequests: 10, Window: time.Minute},
		ActionBroadcastAdmin:     {MaxRequests: 2, Window: time.Minute},
		ActionVoiceTranscription: {MaxRequests: 5, Window: time.Minute},
		ActionBroadcast:          {MaxRequests: 30, Window: time.Minute},
	}
}

type bucket struct {
	mu     sync.Mutex
	stamps []time.Time
}

// Limiter — скользящее окно на пару (subject, action).
// Бакеты создаются лениво и живут до Compact.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	tiers   map[Action]Tier
	now     func() time.Time
}

// New создаёт лимитер. Отсутствующий тариф general дополняется значением по умолчанию.
func New(tiers map[Action]Tier) *Limiter {
	merged := make(map[Action]Tier, len(tiers))
	for action, tier := range tiers {
		merged[action] = tier
	}
	if _, ok := merged[ActionGeneral]; !ok {
		merged[ActionGeneral] = DefaultTiers()[ActionGeneral]
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		tiers:   merged,
		now:     time.Now,
	}
}

// Allow решает, допустить ли запрос subject по действию action.
// При отказе возвращает время, через которое стоит повторить (не менее секунды).
// Граница строгая: ровно MaxRequests запросов в окне — уже отказ новому.
func (l *Limiter) Allow(subject string, action Action) (bool, time.Duration) {
	tier, ok := l.tiers[action]
	if !ok {
		action = ActionGeneral
		tier = l.tiers[ActionGeneral]
	}

	b := l.bucketFor(subject, action)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-tier.Window)
	live := b.stamps[:0]
	for _, ts := range b.stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	b.stamps = live

	if len(b.stamps) < tier.MaxRequests {
		b.stamps = append(b.stamps, now)
		return true, 0
	}

	// тариф с MaxRequests ≤ 0 запрещает всё: бакет пуст, повторять раньше окна нет смысла
	retryAfter := tier.Window
	if len(b.stamps) > 0 {
		retryAfter = b.stamps[0].Add(tier.Window).Sub(now)
	}
	secs := int64(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return false, time.Duration(secs) * time.Second
}

// Compact удаляет бакеты без живых запросов и возвращает их количество.
func (l *Limiter) Compact() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		empty := len(b.stamps) == 0
		if !empty {
			// бакет жив, только если в нём есть отметки моложе самого длинного окна
			newest := b.stamps[len(b.stamps)-1]
			empty = now.Sub(newest) > l.longestWindow()
		}
		b.mu.Unlock()
		if empty {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// RunCompaction периодически убирает опустевшие бакеты до отмены контекста.
func (l *Limiter) RunCompaction(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Compact()
		}
	}
}

func (l *Limiter) bucketFor(subject string, action Action) *bucket {
	key := subject + "|" + string(action)
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	return b
}

func (l *Limiter) longestWindow() time.Duration {
	longest := time.Duration(0)
	for _, tier := range l.tiers {
		if tier.Window > longest {
			longest = tier.Window
		}
	}
	return longest
}

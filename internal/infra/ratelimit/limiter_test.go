package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestLimiter(tiers map[Action]Tier) (*Limiter, *time.Time) {
	l := New(tiers)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowBoundary(t *testing.T) {
	l, _ := newTestLimiter(map[Action]Tier{
		ActionGeneral: {MaxRequests: 5, Window: time.Minute},
	})

	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow("user1", ActionGeneral); !ok {
			t.Fatalf("запрос %d должен быть допущен", i+1)
		}
	}
	ok, retryAfter := l.Allow("user1", ActionGeneral)
	if ok {
		t.Fatalf("шестой запрос должен быть отклонён")
	}
	if retryAfter < time.Second {
		t.Fatalf("retry_after должен быть не меньше секунды, получили %s", retryAfter)
	}
}

func TestWindowSlide(t *testing.T) {
	l, now := newTestLimiter(map[Action]Tier{
		ActionGeneral: {MaxRequests: 2, Window: time.Minute},
	})

	l.Allow("user1", ActionGeneral)
	l.Allow("user1", ActionGeneral)
	if ok, _ := l.Allow("user1", ActionGeneral); ok {
		t.Fatalf("лимит исчерпан, запрос должен быть отклонён")
	}

	*now = now.Add(61 * time.Second)
	if ok, _ := l.Allow("user1", ActionGeneral); !ok {
		t.Fatalf("после сдвига окна запрос должен быть допущен")
	}
}

func TestUnknownActionFallsBackToGeneral(t *testing.T) {
	l, _ := newTestLimiter(map[Action]Tier{
		ActionGeneral: {MaxRequests: 1, Window: time.Minute},
	})

	if ok, _ := l.Allow("user1", Action("нет такого действия")); !ok {
		t.Fatalf("первый запрос должен быть допущен по тарифу general")
	}
	if ok, _ := l.Allow("user1", Action("нет такого действия")); ok {
		t.Fatalf("второй запрос должен быть отклонён по тарифу general")
	}
}

func TestSubjectsIndependent(t *testing.T) {
	l, _ := newTestLimiter(map[Action]Tier{
		ActionGeneral: {MaxRequests: 1, Window: time.Minute},
	})

	l.Allow("user1", ActionGeneral)
	if ok, _ := l.Allow("user2", ActionGeneral); !ok {
		t.Fatalf("лимит одного пользователя не должен влиять на другого")
	}
}

func TestActionsIndependent(t *testing.T) {
	l, _ := newTestLimiter(map[Action]Tier{
		ActionGeneral:        {MaxRequests: 1, Window: time.Minute},
		ActionBroadcastAdmin: {MaxRequests: 1, Window: time.Minute},
	})

	l.Allow("user1", ActionGeneral)
	if ok, _ := l.Allow("user1", ActionBroadcastAdmin); !ok {
		t.Fatalf("лимиты разных действий должны быть независимы")
	}
}

func TestRetryAfterCeil(t *testing.T) {
	l, now := newTestLimiter(map[Action]Tier{
		ActionGeneral: {MaxRequests: 1, Window: time.Minute},
	})

	l.Allow("user1", ActionGeneral)
	*now = now.Add(30*time.Second + 500*time.Millisecond)
	ok, retryAfter := l.Allow("user1", ActionGeneral)
	if ok {
		t.Fatalf("запрос внутри окна должен быть отклонён")
	}
	// осталось 29.5 секунды, округляем вверх до целых секунд
	if retryAfter != 30*time.Second {
		t.Fatalf("ожидали retry_after 30s, получили %s", retryAfter)
	}
}

func TestZeroMaxRequestsAlwaysRejects(t *testing.T) {
	l, _ := newTestLimiter(map[Action]Tier{
		ActionGeneral: {MaxRequests: 0, Window: time.Minute},
	})

	ok, retryAfter := l.Allow("user1", ActionGeneral)
	if ok {
		t.Fatalf("тариф с нулевым лимитом ничего не пропускает")
	}
	if retryAfter != time.Minute {
		t.Fatalf("при пустом бакете повтор не раньше окна, получили %s", retryAfter)
	}

	// повторный вызов не должен паниковать и менять ответ
	ok, retryAfter = l.Allow("user1", ActionGeneral)
	if ok || retryAfter != time.Minute {
		t.Fatalf("повторный отказ должен совпадать с первым: %v, %s", ok, retryAfter)
	}
}

func TestRunCompactionRemovesIdleBuckets(t *testing.T) {
	l, now := newTestLimiter(map[Action]Tier{
		ActionGeneral: {MaxRequests: 5, Window: time.Minute},
	})

	l.Allow("user1", ActionGeneral)
	*now = now.Add(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.RunCompaction(ctx, time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		n := len(l.buckets)
		l.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("фоновая уборка не удалила простаивающий бакет")
}

func TestCompactRemovesIdleBuckets(t *testing.T) {
	l, now := newTestLimiter(map[Action]Tier{
		ActionGeneral: {MaxRequests: 5, Window: time.Minute},
	})

	l.Allow("user1", ActionGeneral)
	l.Allow("user2", ActionGeneral)

	*now = now.Add(time.Hour)
	if removed := l.Compact(); removed != 2 {
		t.Fatalf("ожидали удаление 2 бакетов, получили %d", removed)
	}

	l.Allow("user3", ActionGeneral)
	if removed := l.Compact(); removed != 0 {
		t.Fatalf("живой бакет не должен удаляться, удалено %d", removed)
	}
}

package cache

import (
	"testing"
	"time"
)

func TestSetZeroTTLReadsAbsent(t *testing.T) {
	c := New[string, int](time.Minute)
	defer c.Close()

	c.Set("k", 42, 0)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("запись с ttl=0 должна читаться как отсутствующая")
	}
	if c.Len() != 0 {
		t.Fatalf("просроченная запись должна удаляться при чтении, осталось %d", c.Len())
	}
}

func TestGetRemovesExpired(t *testing.T) {
	c := New[string, string](time.Minute)
	defer c.Close()

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("k", "v", time.Hour)

	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("ожидали живую запись, получили %q, %v", v, ok)
	}

	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, ok := c.Get("k"); ok {
		t.Fatalf("просроченная запись не должна читаться")
	}
	if c.Len() != 0 {
		t.Fatalf("просроченная запись должна удаляться при чтении")
	}
}

func TestInvalidateIdempotent(t *testing.T) {
	c := New[string, int](time.Minute)
	defer c.Close()

	c.Invalidate("нет такого ключа")
	c.Set("k", 1, time.Hour)
	c.Invalidate("k")
	c.Invalidate("k")
	if c.Len() != 0 {
		t.Fatalf("ожидали пустой кэш")
	}
}

func TestSweepCountsRemoved(t *testing.T) {
	c := New[int, int](time.Minute)
	defer c.Close()

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set(1, 1, time.Minute)
	c.Set(2, 2, time.Minute)
	c.Set(3, 3, time.Hour)

	c.now = func() time.Time { return now.Add(10 * time.Minute) }
	if removed := c.Sweep(); removed != 2 {
		t.Fatalf("ожидали 2 удалённые записи, получили %d", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("ожидали 1 живую запись, осталось %d", c.Len())
	}
}

func TestSweeperStopsWhenEmptied(t *testing.T) {
	c := New[string, int](10 * time.Millisecond)
	defer c.Close()

	c.Set("k", 1, time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		stopped := !c.sweeper && len(c.entries) == 0
		c.mu.Unlock()
		if stopped {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("уборщик не остановился после опустошения кэша")
}

func TestClear(t *testing.T) {
	c := New[string, int](time.Minute)
	defer c.Close()

	c.Set("a", 1, time.Hour)
	c.Set("b", 2, time.Hour)
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("ожидали пустой кэш после Clear")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("после Clear записи не должны читаться")
	}
}

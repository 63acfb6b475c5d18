package cache

import (
	"sync"
	"time"
)

const defaultSweepPeriod = time.Minute

type entry[V any] struct {
	value     V
	createdAt time.Time
	expiresAt time.Time
}

// Cache — потокобезопасный in-memory кэш с TTL на каждую запись.
// Фоновая уборка запускается лениво при первой записи и останавливает
// себя сама, как только кэш опустел.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	period  time.Duration
	now     func() time.Time
	sweeper bool
	closed  bool
	stop    chan struct{}
}

// New создаёт кэш с указанным периодом фоновой уборки.
// Нулевой или отрицательный период заменяется на минуту.
func New[K comparable, V any](sweepPeriod time.Duration) *Cache[K, V] {
	if sweepPeriod <= 0 {
		sweepPeriod = defaultSweepPeriod
	}
	return &Cache[K, V]{
		entries: make(map[K]entry[V]),
		period:  sweepPeriod,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Get возвращает значение по ключу. Просроченная запись читается как
// отсутствующая и сразу удаляется.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set сохраняет значение с указанным TTL. TTL ≤ 0 делает запись
// просроченной сразу же.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = entry[V]{value: value, createdAt: now, expiresAt: now.Add(ttl)}
	if !c.sweeper && !c.closed {
		c.sweeper = true
		go c.sweepLoop()
	}
}

// Invalidate удаляет запись. Отсутствующий ключ — no-op.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear удаляет все записи.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Len возвращает число записей, включая ещё не убранные просроченные.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep удаляет просроченные записи и возвращает их количество.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

// Close останавливает фоновую уборку. Повторный вызов безопасен.
func (c *Cache[K, V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.stop)
}

func (c *Cache[K, V]) sweepLocked() int {
	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache[K, V]) sweepLoop() {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			c.mu.Lock()
			c.sweeper = false
			c.mu.Unlock()
			return
		case <-ticker.C:
			c.mu.Lock()
			c.sweepLocked()
			if len(c.entries) == 0 {
				// пустому кэшу уборка не нужна; следующий Set перезапустит её
				c.sweeper = false
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

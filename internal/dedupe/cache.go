// ABOUTME: Thread-safe TTL cache mapping idempotency keys to created resources.
// ABOUTME: Used by the task API so a retried submission returns the first room.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// result is one remembered key. ready is closed once value/err are final.
type result struct {
	value    string
	err      error
	ready    chan struct{}
	storedAt time.Time
	elem     *list.Element
}

// Cache remembers the value produced for a key for ttl, holding at most
// maxSize keys. The oldest key is evicted first when full.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*result
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// New creates a cache and starts its background sweeper. Call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		entries: make(map[string]*result),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Lookup returns the value stored for key if it is present and fresh.
// A key whose producer is still running reports not found.
func (c *Cache) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries[key]
	if !ok || c.expiredLocked(r) {
		return "", false
	}
	select {
	case <-r.ready:
		return r.value, r.err == nil
	default:
		return "", false
	}
}

// Do returns the value remembered for key, or runs fn to produce it.
// Concurrent calls with the same key wait for the first caller's fn.
// Errors are not remembered: the next call runs fn again. The boolean is
// true when the value came from an earlier call.
func (c *Cache) Do(key string, fn func() (string, error)) (string, bool, error) {
	c.mu.Lock()
	if r, ok := c.entries[key]; ok && !c.expiredLocked(r) {
		c.mu.Unlock()
		<-r.ready
		if r.err != nil {
			// The earlier attempt failed; try again as a fresh call.
			return c.Do(key, fn)
		}
		return r.value, true, nil
	}

	r := &result{ready: make(chan struct{})}
	c.insertLocked(key, r)
	c.mu.Unlock()

	value, err := fn()

	c.mu.Lock()
	r.value, r.err = value, err
	r.storedAt = c.now()
	if err != nil {
		c.removeLocked(key, r)
	}
	close(r.ready)
	c.mu.Unlock()

	return value, false, err
}

// Len reports the number of keys currently held, including in-flight ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) expiredLocked(r *result) bool {
	select {
	case <-r.ready:
		return c.now().Sub(r.storedAt) >= c.ttl
	default:
		return false
	}
}

func (c *Cache) insertLocked(key string, r *result) {
	if old, ok := c.entries[key]; ok {
		c.order.Remove(old.elem)
		delete(c.entries, key)
	}
	for len(c.entries) >= c.maxSize {
		if !c.evictOldestLocked() {
			break
		}
	}
	r.storedAt = c.now()
	r.elem = c.order.PushBack(key)
	c.entries[key] = r
}

// evictOldestLocked drops the oldest settled key. In-flight keys are skipped
// so their waiters still see the result.
func (c *Cache) evictOldestLocked() bool {
	for e := c.order.Front(); e != nil; e = e.Next() {
		key, _ := e.Value.(string)
		r := c.entries[key]
		select {
		case <-r.ready:
			c.order.Remove(e)
			delete(c.entries, key)
			return true
		default:
		}
	}
	return false
}

func (c *Cache) removeLocked(key string, r *result) {
	if cur, ok := c.entries[key]; ok && cur == r {
		c.order.Remove(r.elem)
		delete(c.entries, key)
	}
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes every expired key.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, r := range c.entries {
		if c.expiredLocked(r) {
			c.order.Remove(r.elem)
			delete(c.entries, key)
		}
	}
}

// Close stops the background sweeper. It is safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

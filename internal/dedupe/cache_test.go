// ABOUTME: Tests for the idempotency cache used by task submission.
// ABOUTME: Validates TTL expiration, size limits, error handling, and concurrent callers.

package dedupe

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move the cache's notion of now.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration, maxSize int) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	c := New(ttl, maxSize)
	c.now = clock.Now
	t.Cleanup(c.Close)
	return c, clock
}

func TestCache_Do_FirstCallRuns(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	value, cached, err := c.Do("key", func() (string, error) { return "room-1", nil })
	require.NoError(t, err)
	assert.Equal(t, "room-1", value)
	assert.False(t, cached)

	got, ok := c.Lookup("key")
	assert.True(t, ok)
	assert.Equal(t, "room-1", got)
}

func TestCache_Do_RepeatReturnsFirst(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	_, _, err := c.Do("key", func() (string, error) { return "room-1", nil })
	require.NoError(t, err)

	value, cached, err := c.Do("key", func() (string, error) {
		t.Fatal("producer should not run for a remembered key")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "room-1", value)
	assert.True(t, cached)
}

func TestCache_Do_ErrorNotRemembered(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	_, _, err := c.Do("key", func() (string, error) { return "", errors.New("boom") })
	require.Error(t, err)

	_, ok := c.Lookup("key")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	value, cached, err := c.Do("key", func() (string, error) { return "room-2", nil })
	require.NoError(t, err)
	assert.Equal(t, "room-2", value)
	assert.False(t, cached)
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	_, _, _ = c.Do("key", func() (string, error) { return "room-1", nil })

	clock.Advance(59 * time.Second)
	_, ok := c.Lookup("key")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Lookup("key")
	assert.False(t, ok)

	value, cached, err := c.Do("key", func() (string, error) { return "room-2", nil })
	require.NoError(t, err)
	assert.Equal(t, "room-2", value)
	assert.False(t, cached)
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	for i := range 3 {
		key := fmt.Sprintf("key-%d", i)
		_, _, _ = c.Do(key, func() (string, error) { return key, nil })
	}
	require.Equal(t, 3, c.Len())

	clock.Advance(2 * time.Minute)
	c.sweep()
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsOldest(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 2)

	for _, key := range []string{"a", "b", "c"} {
		_, _, _ = c.Do(key, func() (string, error) { return key, nil })
	}

	assert.Equal(t, 2, c.Len())
	_, ok := c.Lookup("a")
	assert.False(t, ok, "oldest key should be evicted")
	_, ok = c.Lookup("b")
	assert.True(t, ok)
	_, ok = c.Lookup("c")
	assert.True(t, ok)
}

func TestCache_Do_ConcurrentSingleProducer(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	var calls atomic.Int32
	release := make(chan struct{})
	producer := func() (string, error) {
		calls.Add(1)
		<-release
		return "room-1", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	values := make([]string, callers)
	started := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		values[0], _, _ = c.Do("key", producer)
	}()
	<-started
	// Wait until the first producer is running before starting the others.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], _, _ = c.Do("key", producer)
		}(i)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range values {
		assert.Equal(t, "room-1", v)
	}
}

func TestCache_Close(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}

package session

import (
	"net/http"
	"net/http/cookiejar"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newJar(t *testing.T) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return jar
}

func TestStoreLookup(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewStore(30*time.Second, clock)

	_, res := store.Lookup(7)
	assert.Equal(t, Absent, res)

	jar := newJar(t)
	sess := store.Put(7, "hash-1", "token-1", jar)
	assert.Equal(t, clock.Now().Add(30*time.Second), sess.ExpiresAt)

	got, res := store.Lookup(7)
	require.Equal(t, Found, res)
	assert.Equal(t, "hash-1", got.PromoHash)
	assert.Equal(t, "token-1", got.Token)
	assert.Same(t, jar, got.Cookies)
}

func TestStoreExpiryOnRead(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewStore(30*time.Second, clock)

	store.Put(7, "hash-1", "token-1", newJar(t))

	clock.Advance(29 * time.Second)
	_, res := store.Lookup(7)
	assert.Equal(t, Found, res)

	clock.Advance(time.Second)
	_, res = store.Lookup(7)
	assert.Equal(t, Expired, res)

	// Deleted on first expired read, absent afterwards.
	_, res = store.Lookup(7)
	assert.Equal(t, Absent, res)
	assert.Equal(t, 0, store.Len())
}

func TestStorePutResetsTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewStore(30*time.Second, clock)

	store.Put(7, "hash-1", "token-1", newJar(t))
	clock.Advance(20 * time.Second)

	jar := newJar(t)
	store.Put(7, "hash-2", "token-2", jar)
	clock.Advance(20 * time.Second)

	got, res := store.Lookup(7)
	require.Equal(t, Found, res)
	assert.Equal(t, "hash-2", got.PromoHash)
	assert.Equal(t, "token-2", got.Token)
	assert.Same(t, jar, got.Cookies)
}

func TestStoreRemove(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewStore(30*time.Second, clock)

	store.Put(7, "hash-1", "token-1", newJar(t))
	store.Remove(7)

	_, res := store.Lookup(7)
	assert.Equal(t, Absent, res)

	store.Remove(7) // no-op
}

func TestStoreSweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewStore(30*time.Second, clock)

	store.Put(1, "h1", "t1", newJar(t))
	store.Put(2, "h2", "t2", newJar(t))
	clock.Advance(15 * time.Second)
	store.Put(3, "h3", "t3", newJar(t))

	clock.Advance(15 * time.Second)
	assert.Equal(t, 2, store.Sweep())
	assert.Equal(t, 1, store.Len())

	_, res := store.Lookup(3)
	assert.Equal(t, Found, res)
}

func TestStoreIsolatedUsers(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewStore(30*time.Second, clock)

	store.Put(1, "h1", "t1", newJar(t))
	store.Put(2, "h2", "t2", newJar(t))
	store.Remove(1)

	_, res := store.Lookup(2)
	assert.Equal(t, Found, res)
}

func TestLockUserSerializes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewStore(30*time.Second, clock)

	var (
		mu      sync.Mutex
		current int
		max     int
	)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := store.LockUser(7)
			defer unlock()

			mu.Lock()
			current++
			if current > max {
				max = current
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, max)

	// Released locks do not leak entries.
	store.mu.Lock()
	assert.Empty(t, store.locks)
	store.mu.Unlock()
}

func TestLockUserDistinctUsersDoNotBlock(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewStore(30*time.Second, clock)

	unlock1 := store.LockUser(1)
	done := make(chan struct{})
	go func() {
		unlock2 := store.LockUser(2)
		unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for another user blocked")
	}
	unlock1()
}

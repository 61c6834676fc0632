package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/m3rciful/giftbot/core/logger"
)

// Session is the per-user claim state. The promo hash, CSRF token and the
// cookie jar always come from the same upstream exchange and are replaced
// together on every Put.
type Session struct {
	UserID    int64
	PromoHash string
	Token     string
	Cookies   http.CookieJar
	ExpiresAt time.Time
}

// LookupResult distinguishes a missing session from one that was present but
// expired, so callers can tell the user to request a new gift rather than a
// first one.
type LookupResult int

const (
	Found LookupResult = iota
	Absent
	Expired
)

func (r LookupResult) String() string {
	switch r {
	case Found:
		return "found"
	case Absent:
		return "absent"
	case Expired:
		return "expired"
	}
	return "unknown"
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Store keeps active sessions keyed by Telegram user ID. Reads apply the TTL
// lazily: an expired entry is deleted the moment it is observed, whether or
// not the janitor is running.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]Session
	locks    map[int64]*userLock
	ttl      time.Duration
	clock    Clock
}

// NewStore builds a store with the given session TTL. A nil clock falls back
// to SystemClock.
func NewStore(ttl time.Duration, clock Clock) *Store {
	if clock == nil {
		clock = SystemClock()
	}
	return &Store{
		sessions: make(map[int64]Session),
		locks:    make(map[int64]*userLock),
		ttl:      ttl,
		clock:    clock,
	}
}

// Put replaces the user's session with the given triple and restarts the TTL.
// It returns the stored session with ExpiresAt filled in.
func (s *Store) Put(userID int64, promoHash, token string, cookies http.CookieJar) Session {
	sess := Session{
		UserID:    userID,
		PromoHash: promoHash,
		Token:     token,
		Cookies:   cookies,
		ExpiresAt: s.clock.Now().Add(s.ttl),
	}
	s.mu.Lock()
	s.sessions[userID] = sess
	s.mu.Unlock()
	return sess
}

// Lookup returns the user's live session. An entry past its deadline is
// removed and reported as Expired.
func (s *Store) Lookup(userID int64) (Session, LookupResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, Absent
	}
	if !s.clock.Now().Before(sess.ExpiresAt) {
		delete(s.sessions, userID)
		return Session{}, Expired
	}
	return sess, Found
}

// Remove drops the user's session if present.
func (s *Store) Remove(userID int64) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// Len reports the number of stored sessions, expired entries included until
// they are observed or swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes every session past its deadline and returns how many were
// dropped.
func (s *Store) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps the store on the given interval until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.Sweep(); removed > 0 {
					logger.LogEvent(ctx, logger.SESS, slog.LevelDebug, "janitor.sweep",
						slog.Int("removed", removed),
						slog.Int("sessions", s.Len()),
					)
				}
			}
		}
	}()
}

// LockUser serializes claim flows for a single user. The returned func must
// be called to release the lock. Locks for distinct users never contend.
func (s *Store) LockUser(userID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

package flow

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/giftbot/promo"
	"github.com/m3rciful/giftbot/session"
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

type redeemCall struct {
	hash  string
	phone string
	token string
	jar   http.CookieJar
}

type stubPromo struct {
	mu sync.Mutex

	token    string
	jar      http.CookieJar
	tokenErr error

	offers     []promo.GiftOffer
	claimErr   error
	claimCalls []string // tokens seen

	redeemOK    bool
	redeemErr   error
	redeemCalls []redeemCall
}

func (s *stubPromo) AcquireToken(ctx context.Context) (string, http.CookieJar, error) {
	if s.tokenErr != nil {
		return "", nil, s.tokenErr
	}
	return s.token, s.jar, nil
}

func (s *stubPromo) ClaimGift(ctx context.Context, token string, jar http.CookieJar) (promo.GiftOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimCalls = append(s.claimCalls, token)
	if s.claimErr != nil {
		return promo.GiftOffer{}, s.claimErr
	}
	offer := s.offers[0]
	if len(s.offers) > 1 {
		s.offers = s.offers[1:]
	}
	return offer, nil
}

func (s *stubPromo) RedeemGift(ctx context.Context, hash, phone, token string, jar http.CookieJar) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redeemCalls = append(s.redeemCalls, redeemCall{hash: hash, phone: phone, token: token, jar: jar})
	if s.redeemErr != nil {
		return false, s.redeemErr
	}
	return s.redeemOK, nil
}

type recordingJournal struct {
	mu      sync.Mutex
	records []redeemCall
	err     error
}

func (j *recordingJournal) RecordRedemption(ctx context.Context, userID int64, hash, phone string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, redeemCall{hash: hash, phone: phone})
	return j.err
}

func newFixture(t *testing.T) (*Flow, *stubPromo, *session.Store, *fakeClock) {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := session.NewStore(30*time.Second, clock)
	client := &stubPromo{
		token:    "tok-1",
		jar:      jar,
		offers:   []promo.GiftOffer{{DisplayLine: "Кофе в подарок", TermsLine: "До конца месяца", PromoHash: "hash-x"}},
		redeemOK: true,
	}
	return New(client, store, nil), client, store, clock
}

func TestHandleStart(t *testing.T) {
	f, _, _, _ := newFixture(t)

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: Start})
	assert.Equal(t, int64(7), resp.UserID)
	assert.Equal(t, greetingText, resp.Text)
	require.Len(t, resp.Buttons, 1)
	assert.Equal(t, KeyGetGift, resp.Buttons[0].Key)
}

func TestHandleClaimStoresSession(t *testing.T) {
	f, client, store, clock := newFixture(t)

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	assert.Equal(t, "Ваш подарок: Кофе в подарок\nУсловия: До конца месяца", resp.Text)
	require.Len(t, resp.Buttons, 2)
	assert.Equal(t, KeyReplace, resp.Buttons[0].Key)
	assert.Equal(t, KeyEnterPhone, resp.Buttons[1].Key)

	sess, res := store.Lookup(7)
	require.Equal(t, session.Found, res)
	assert.Equal(t, "hash-x", sess.PromoHash)
	assert.Equal(t, "tok-1", sess.Token)
	assert.Same(t, client.jar, sess.Cookies)
	assert.Equal(t, clock.Now().Add(30*time.Second), sess.ExpiresAt)
}

func TestHandleClaimTokenFailure(t *testing.T) {
	f, client, store, _ := newFixture(t)
	client.tokenErr = promo.ErrUpstreamUnavailable

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	assert.Equal(t, claimFailedText, resp.Text)
	assert.Empty(t, resp.Buttons)

	_, res := store.Lookup(7)
	assert.Equal(t, session.Absent, res)
}

func TestHandleClaimFailureDropsOldSession(t *testing.T) {
	f, client, store, _ := newFixture(t)

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	client.claimErr = promo.ErrClaimRejected

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	assert.Equal(t, claimFailedText, resp.Text)

	_, res := store.Lookup(7)
	assert.Equal(t, session.Absent, res)
}

func TestHandleReplaceWithoutSession(t *testing.T) {
	f, _, _, _ := newFixture(t)

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: Replace})
	assert.Equal(t, claimFirstText, resp.Text)
}

func TestHandleReplaceReusesTokenAndSwapsHash(t *testing.T) {
	f, client, store, _ := newFixture(t)
	client.offers = []promo.GiftOffer{
		{DisplayLine: "Кофе", TermsLine: "Условия А", PromoHash: "hash-x"},
		{DisplayLine: "Чай", TermsLine: "Условия Б", PromoHash: "hash-y"},
	}

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: Replace})

	assert.Equal(t, "Новый подарок: Чай\nУсловия: Условия Б", resp.Text)
	require.Len(t, resp.Buttons, 2)

	// Both claim calls carried the same token.
	require.Len(t, client.claimCalls, 2)
	assert.Equal(t, "tok-1", client.claimCalls[1])

	sess, res := store.Lookup(7)
	require.Equal(t, session.Found, res)
	assert.Equal(t, "hash-y", sess.PromoHash)
	assert.Equal(t, "tok-1", sess.Token)
}

func TestHandleReplaceFailureKeepsSession(t *testing.T) {
	f, client, store, _ := newFixture(t)

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	client.claimErr = promo.ErrUpstreamUnavailable

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: Replace})
	assert.Equal(t, claimFailedText, resp.Text)

	sess, res := store.Lookup(7)
	require.Equal(t, session.Found, res)
	assert.Equal(t, "hash-x", sess.PromoHash)
}

func TestHandleReplaceExpired(t *testing.T) {
	f, _, store, clock := newFixture(t)

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	clock.Advance(31 * time.Second)

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: Replace})
	assert.Equal(t, expiredText, resp.Text)

	_, res := store.Lookup(7)
	assert.Equal(t, session.Absent, res)
}

func TestHandleRequestPhone(t *testing.T) {
	f, _, _, clock := newFixture(t)

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: RequestPhone})
	assert.Equal(t, claimFirstText, resp.Text)

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	resp = f.Handle(context.Background(), Action{UserID: 7, Kind: RequestPhone})
	assert.Equal(t, enterPhoneText, resp.Text)

	clock.Advance(31 * time.Second)
	resp = f.Handle(context.Background(), Action{UserID: 7, Kind: RequestPhone})
	assert.Equal(t, expiredText, resp.Text)
}

func TestHandleTextReprompt(t *testing.T) {
	f, _, _, _ := newFixture(t)

	for _, text := range []string{"привет", "123", "799912345678", "номер"} {
		resp := f.Handle(context.Background(), Action{UserID: 7, Kind: TextInput, Text: text})
		assert.Equal(t, enterPhoneText, resp.Text, "input %q", text)
	}
}

func TestSubmitPhoneSuccess(t *testing.T) {
	f, client, store, _ := newFixture(t)

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	f.Handle(context.Background(), Action{UserID: 7, Kind: RequestPhone})

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: TextInput, Text: "79991234567"})
	assert.Equal(t, redeemOKText, resp.Text)

	require.Len(t, client.redeemCalls, 1)
	call := client.redeemCalls[0]
	assert.Equal(t, "hash-x", call.hash)
	assert.Equal(t, "+7 999 123 4567", call.phone)
	assert.Equal(t, "tok-1", call.token)
	assert.Same(t, client.jar, call.jar)

	_, res := store.Lookup(7)
	assert.Equal(t, session.Absent, res)

	// A second submit has no session to act on.
	resp = f.Handle(context.Background(), Action{UserID: 7, Kind: TextInput, Text: "79991234567"})
	assert.Equal(t, claimFirstText, resp.Text)
}

func TestSubmitPhoneAfterReplaceUsesNewHash(t *testing.T) {
	f, client, _, _ := newFixture(t)
	client.offers = []promo.GiftOffer{
		{DisplayLine: "Кофе", TermsLine: "А", PromoHash: "hash-x"},
		{DisplayLine: "Чай", TermsLine: "Б", PromoHash: "hash-y"},
	}

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	f.Handle(context.Background(), Action{UserID: 7, Kind: Replace})
	f.Handle(context.Background(), Action{UserID: 7, Kind: TextInput, Text: "79991234567"})

	require.Len(t, client.redeemCalls, 1)
	assert.Equal(t, "hash-y", client.redeemCalls[0].hash)
}

func TestSubmitPhoneExpired(t *testing.T) {
	f, client, store, clock := newFixture(t)

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	clock.Advance(31 * time.Second)

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: TextInput, Text: "79991234567"})
	assert.Equal(t, expiredText, resp.Text)
	assert.Empty(t, client.redeemCalls)

	_, res := store.Lookup(7)
	assert.Equal(t, session.Absent, res)
}

func TestSubmitPhoneBadFormatKeepsSession(t *testing.T) {
	f, client, store, _ := newFixture(t)

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})

	// 11 digits but wrong country code.
	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: TextInput, Text: "89991234567"})
	assert.Equal(t, badPhoneText, resp.Text)
	assert.Empty(t, client.redeemCalls)

	_, res := store.Lookup(7)
	assert.Equal(t, session.Found, res)
}

func TestSubmitPhoneDeclinedKeepsSession(t *testing.T) {
	f, client, store, _ := newFixture(t)
	client.redeemOK = false

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: TextInput, Text: "79991234567"})
	assert.Equal(t, redeemDeclinedText, resp.Text)

	_, res := store.Lookup(7)
	assert.Equal(t, session.Found, res)
}

func TestSubmitPhoneUpstreamErrorKeepsSession(t *testing.T) {
	f, client, store, _ := newFixture(t)
	client.redeemErr = promo.ErrUpstreamUnavailable

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})

	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: TextInput, Text: "79991234567"})
	assert.Equal(t, redeemFailedText, resp.Text)

	_, res := store.Lookup(7)
	assert.Equal(t, session.Found, res)
}

func TestSubmitPhoneRecordsJournal(t *testing.T) {
	f, _, _, _ := newFixture(t)
	journal := &recordingJournal{}
	f.journal = journal

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	f.Handle(context.Background(), Action{UserID: 7, Kind: TextInput, Text: "79991234567"})

	require.Len(t, journal.records, 1)
	assert.Equal(t, "hash-x", journal.records[0].hash)
	assert.Equal(t, "+7 999 123 4567", journal.records[0].phone)
}

func TestJournalErrorDoesNotChangeResponse(t *testing.T) {
	f, _, _, _ := newFixture(t)
	f.journal = &recordingJournal{err: errors.New("db down")}

	f.Handle(context.Background(), Action{UserID: 7, Kind: Claim})
	resp := f.Handle(context.Background(), Action{UserID: 7, Kind: TextInput, Text: "79991234567"})
	assert.Equal(t, redeemOKText, resp.Text)
}

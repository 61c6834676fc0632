package promo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/giftbot/core/config"
)

const tokenPage = `<!DOCTYPE html>
<html>
<head>
<meta name="csrf-token" content="csrf-abc123">
</head>
<body>promo</body>
</html>`

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(coreconfig.PromoConfig{
		BaseURL:        srv.URL,
		ClaimPath:      "/getgift",
		RedeemPath:     "/sendgift",
		TimeoutSeconds: 5,
	})
	return client, srv
}

func TestAcquireToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		http.SetCookie(w, &http.Cookie{Name: "laravel_session", Value: "sess-1"})
		_, _ = w.Write([]byte(tokenPage))
	})

	client, srv := newTestClient(t, mux)

	token, jar, err := client.AcquireToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "csrf-abc123", token)
	require.NotNil(t, jar)

	// The jar holds the cookies issued during the exchange.
	parsed, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	cookies := jar.Cookies(parsed.URL)
	require.Len(t, cookies, 1)
	assert.Equal(t, "laravel_session", cookies[0].Name)
}

func TestAcquireTokenMarkerMissing(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>no marker here</body></html>"))
	}))

	_, _, err := client.AcquireToken(context.Background())
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestAcquireTokenUpstreamError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, _, err := client.AcquireToken(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestAcquireTokenFreshJarPerCall(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tokenPage))
	}))

	_, jar1, err := client.AcquireToken(context.Background())
	require.NoError(t, err)
	_, jar2, err := client.AcquireToken(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, jar1, jar2)
}

func TestAcquireTokenSettleDelayCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tokenPage))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(coreconfig.PromoConfig{
		BaseURL:       srv.URL,
		SettleDelayMS: 5000,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := client.AcquireToken(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClaimGift(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getgift", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "csrf-abc123", r.PostForm.Get("_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"gift": {"white_line": "Кофе в подарок", "blue_line": "До 31 декабря"},
			"promocode": {"hash": "deadbeefcafe"}
		}`))
	})

	client, _ := newTestClient(t, mux)

	offer, err := client.ClaimGift(context.Background(), "csrf-abc123", nil)
	require.NoError(t, err)
	assert.Equal(t, "Кофе в подарок", offer.DisplayLine)
	assert.Equal(t, "До 31 декабря", offer.TermsLine)
	assert.Equal(t, "deadbeefcafe", offer.PromoHash)
}

func TestClaimGiftRejected(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": false}`))
	}))

	_, err := client.ClaimGift(context.Background(), "tok", nil)
	assert.ErrorIs(t, err, ErrClaimRejected)
}

func TestClaimGiftMalformedBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))

	_, err := client.ClaimGift(context.Background(), "tok", nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClaimGiftUpstreamError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.ClaimGift(context.Background(), "tok", nil)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestRedeemGift(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sendgift", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "deadbeefcafe", r.PostForm.Get("hash"))
		assert.Equal(t, "yes", r.PostForm.Get("variant"))
		assert.Equal(t, "+7 999 123 4567", r.PostForm.Get("phone"))
		assert.Equal(t, "csrf-abc123", r.PostForm.Get("_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true}`))
	})

	client, _ := newTestClient(t, mux)

	ok, err := client.RedeemGift(context.Background(), "deadbeefcafe", "+7 999 123 4567", "csrf-abc123", nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedeemGiftDeclined(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": false}`))
	}))

	// A declined redemption is a result, not an error.
	ok, err := client.RedeemGift(context.Background(), "h", "+7 999 123 4567", "tok", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedeemGiftUpstreamError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	_, err := client.RedeemGift(context.Background(), "h", "+7 999 123 4567", "tok", nil)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

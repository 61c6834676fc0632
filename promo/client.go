package promo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	coreconfig "github.com/m3rciful/giftbot/core/config"
	"github.com/m3rciful/giftbot/core/logger"
	"log/slog"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"
	// redeemVariant is sent verbatim on every redemption; the site rejects
	// requests without it.
	redeemVariant = "yes"
)

var csrfTokenRe = regexp.MustCompile(`name="csrf-token" content="([^"]+)"`)

// GiftOffer is the result of a claim or replace call. It is never stored
// upstream of the session; the hash alone identifies the claimed gift.
type GiftOffer struct {
	DisplayLine string
	TermsLine   string
	PromoHash   string
}

// Client performs the three upstream operations against the promo site.
// Every operation opens its own connection context with a fresh or caller
// provided cookie jar; cookies never leak between unrelated acquisitions.
type Client struct {
	baseURL     string
	claimPath   string
	redeemPath  string
	timeout     time.Duration
	settleDelay time.Duration
}

// NewClient builds a Client from promo configuration.
func NewClient(cfg coreconfig.PromoConfig) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		claimPath:   cfg.ClaimPath,
		redeemPath:  cfg.RedeemPath,
		timeout:     cfg.Timeout(),
		settleDelay: cfg.SettleDelay(),
	}
}

func (c *Client) httpClient(jar http.CookieJar) *http.Client {
	return &http.Client{
		Timeout: c.timeout,
		Jar:     jar,
	}
}

// AcquireToken fetches the site root, extracts the anti-forgery token and
// returns it together with the cookies issued during that exchange. The
// token and the jar must only ever be reused as a pair.
func (c *Client) AcquireToken(ctx context.Context) (string, http.CookieJar, error) {
	reqID := uuid.NewString()
	start := time.Now()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", nil, fmt.Errorf("promo: cookie jar: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return "", nil, fmt.Errorf("promo: build token request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient(jar).Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.PROMO.Warn("token fetch rejected",
			slog.String("event", "token.fetch"),
			slog.String("req_id", reqID),
			slog.Int("http_code", resp.StatusCode),
		)
		return "", nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}

	m := csrfTokenRe.FindSubmatch(body)
	if m == nil {
		return "", nil, ErrTokenNotFound
	}

	logger.Debug(ctx, "promo", "token.acquired",
		slog.String("req_id", reqID),
		slog.Duration("duration", time.Since(start)),
	)

	// The site intermittently rejects claims fired immediately after the
	// root page exchange; a short settle pause avoids that. Only the
	// calling goroutine waits.
	if c.settleDelay > 0 {
		timer := time.NewTimer(c.settleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", nil, ctx.Err()
		case <-timer.C:
		}
	}

	return string(m[1]), jar, nil
}

type claimResponse struct {
	Success bool `json:"success"`
	Gift    struct {
		WhiteLine string `json:"white_line"`
		BlueLine  string `json:"blue_line"`
	} `json:"gift"`
	Promocode struct {
		Hash string `json:"hash"`
	} `json:"promocode"`
}

// ClaimGift requests a gift offer using a previously acquired token and its
// paired cookie jar.
func (c *Client) ClaimGift(ctx context.Context, token string, jar http.CookieJar) (GiftOffer, error) {
	reqID := uuid.NewString()
	start := time.Now()

	form := url.Values{"_token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.claimPath, strings.NewReader(form.Encode()))
	if err != nil {
		return GiftOffer{}, fmt.Errorf("promo: build claim request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")

	resp, err := c.httpClient(jar).Do(req)
	if err != nil {
		return GiftOffer{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.PROMO.Warn("claim rejected by transport",
			slog.String("event", "claim.request"),
			slog.String("req_id", reqID),
			slog.Int("http_code", resp.StatusCode),
		)
		return GiftOffer{}, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var decoded claimResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return GiftOffer{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !decoded.Success {
		return GiftOffer{}, ErrClaimRejected
	}

	logger.Debug(ctx, "promo", "claim.success",
		slog.String("req_id", reqID),
		slog.String("hash", shortHash(decoded.Promocode.Hash)),
		slog.Duration("duration", time.Since(start)),
	)

	return GiftOffer{
		DisplayLine: decoded.Gift.WhiteLine,
		TermsLine:   decoded.Gift.BlueLine,
		PromoHash:   decoded.Promocode.Hash,
	}, nil
}

type redeemResponse struct {
	Success bool `json:"success"`
}

// RedeemGift submits the phone number against a claimed hash. A false result
// with nil error is a normal outcome: the site declined the redemption,
// most commonly because the phone was already used.
func (c *Client) RedeemGift(ctx context.Context, hash, phone, token string, jar http.CookieJar) (bool, error) {
	reqID := uuid.NewString()
	start := time.Now()

	form := url.Values{
		"hash":    {hash},
		"variant": {redeemVariant},
		"phone":   {phone},
		"_token":  {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.redeemPath, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("promo: build redeem request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient(jar).Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.PROMO.Warn("redeem rejected by transport",
			slog.String("event", "redeem.request"),
			slog.String("req_id", reqID),
			slog.Int("http_code", resp.StatusCode),
		)
		return false, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var decoded redeemResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	logger.Debug(ctx, "promo", "redeem.done",
		slog.String("req_id", reqID),
		slog.String("hash", shortHash(hash)),
		slog.Bool("accepted", decoded.Success),
		slog.Duration("duration", time.Since(start)),
	)

	return decoded.Success, nil
}

func shortHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8]
}

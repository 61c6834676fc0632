// Package flow implements the claim state machine: claim a gift, optionally
// replace it, then redeem it to a phone number before the session expires.
package flow

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/m3rciful/giftbot/core/logger"
	"github.com/m3rciful/giftbot/promo"
	"github.com/m3rciful/giftbot/session"
)

// PromoClient is the upstream surface the flow depends on.
type PromoClient interface {
	AcquireToken(ctx context.Context) (string, http.CookieJar, error)
	ClaimGift(ctx context.Context, token string, jar http.CookieJar) (promo.GiftOffer, error)
	RedeemGift(ctx context.Context, promoHash, phone, token string, jar http.CookieJar) (bool, error)
}

// Journal records terminal redemption facts. A nil journal disables
// recording; failures are logged and never surfaced to the user.
type Journal interface {
	RecordRedemption(ctx context.Context, userID int64, promoHash, phone string) error
}

// Flow orchestrates claim, replace and redeem against the session store.
type Flow struct {
	promo    PromoClient
	sessions *session.Store
	journal  Journal
}

// New builds a Flow. journal may be nil.
func New(client PromoClient, sessions *session.Store, journal Journal) *Flow {
	return &Flow{promo: client, sessions: sessions, journal: journal}
}

// Handle processes one user action and always produces a response. Actions
// for the same user are serialized so a racing replace and redeem cannot mix
// hashes and tokens from different claims.
func (f *Flow) Handle(ctx context.Context, a Action) Response {
	switch a.Kind {
	case Start:
		return f.handleStart(a)
	case Claim:
		return f.handleClaim(ctx, a)
	case Replace:
		return f.handleReplace(ctx, a)
	case RequestPhone:
		return f.handleRequestPhone(a)
	case TextInput:
		return f.handleText(ctx, a)
	}
	return Response{UserID: a.UserID, Text: enterPhoneText}
}

func offerButtons() []Button {
	return []Button{
		{Text: replaceBtnText, Key: KeyReplace},
		{Text: sendPromoBtnText, Key: KeyEnterPhone},
	}
}

func (f *Flow) handleStart(a Action) Response {
	return Response{
		UserID:  a.UserID,
		Text:    greetingText,
		Buttons: []Button{{Text: getGiftBtnText, Key: KeyGetGift}},
	}
}

func (f *Flow) handleClaim(ctx context.Context, a Action) Response {
	unlock := f.sessions.LockUser(a.UserID)
	defer unlock()

	token, jar, err := f.promo.AcquireToken(ctx)
	if err != nil {
		logger.LogEvent(ctx, logger.FLOW, slog.LevelWarn, "claim.token_failed", slog.Int64("user_id", a.UserID), slog.String("err", err.Error()))
		f.sessions.Remove(a.UserID)
		return Response{UserID: a.UserID, Text: claimFailedText}
	}

	offer, err := f.promo.ClaimGift(ctx, token, jar)
	if err != nil {
		logger.LogEvent(ctx, logger.FLOW, slog.LevelWarn, "claim.failed", slog.Int64("user_id", a.UserID), slog.String("err", err.Error()))
		f.sessions.Remove(a.UserID)
		return Response{UserID: a.UserID, Text: claimFailedText}
	}

	sess := f.sessions.Put(a.UserID, offer.PromoHash, token, jar)
	logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "claim.success",
		slog.Int64("user_id", a.UserID),
		slog.Time("expires_at", sess.ExpiresAt),
	)
	return Response{
		UserID:  a.UserID,
		Text:    offerText(offer.DisplayLine, offer.TermsLine),
		Buttons: offerButtons(),
	}
}

func (f *Flow) handleReplace(ctx context.Context, a Action) Response {
	unlock := f.sessions.LockUser(a.UserID)
	defer unlock()

	sess, res := f.sessions.Lookup(a.UserID)
	switch res {
	case session.Absent:
		return Response{UserID: a.UserID, Text: claimFirstText}
	case session.Expired:
		return Response{UserID: a.UserID, Text: expiredText}
	}

	// Reuse the live token and cookies; only the hash changes upstream.
	offer, err := f.promo.ClaimGift(ctx, sess.Token, sess.Cookies)
	if err != nil {
		logger.LogEvent(ctx, logger.FLOW, slog.LevelWarn, "replace.failed", slog.Int64("user_id", a.UserID), slog.String("err", err.Error()))
		// Prior offer stays valid, session untouched.
		return Response{UserID: a.UserID, Text: claimFailedText}
	}

	f.sessions.Put(a.UserID, offer.PromoHash, sess.Token, sess.Cookies)
	logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "replace.success", slog.Int64("user_id", a.UserID))
	return Response{
		UserID:  a.UserID,
		Text:    newOfferText(offer.DisplayLine, offer.TermsLine),
		Buttons: offerButtons(),
	}
}

func (f *Flow) handleRequestPhone(a Action) Response {
	unlock := f.sessions.LockUser(a.UserID)
	defer unlock()

	_, res := f.sessions.Lookup(a.UserID)
	switch res {
	case session.Absent:
		return Response{UserID: a.UserID, Text: claimFirstText}
	case session.Expired:
		return Response{UserID: a.UserID, Text: expiredText}
	}
	// Validity is re-checked on submission; arbitrary time may pass before
	// the user types the number.
	return Response{UserID: a.UserID, Text: enterPhoneText}
}

func (f *Flow) handleText(ctx context.Context, a Action) Response {
	if !promo.IsPhoneCandidate(a.Text) {
		return Response{UserID: a.UserID, Text: enterPhoneText}
	}
	return f.handleSubmitPhone(ctx, a)
}

func (f *Flow) handleSubmitPhone(ctx context.Context, a Action) Response {
	unlock := f.sessions.LockUser(a.UserID)
	defer unlock()

	sess, res := f.sessions.Lookup(a.UserID)
	switch res {
	case session.Absent:
		return Response{UserID: a.UserID, Text: claimFirstText}
	case session.Expired:
		return Response{UserID: a.UserID, Text: expiredText}
	}

	phone, ok := promo.FormatPhone(a.Text)
	if !ok {
		return Response{UserID: a.UserID, Text: badPhoneText}
	}

	sent, err := f.promo.RedeemGift(ctx, sess.PromoHash, phone, sess.Token, sess.Cookies)
	if err != nil {
		logger.LogEvent(ctx, logger.FLOW, slog.LevelWarn, "redeem.failed", slog.Int64("user_id", a.UserID), slog.String("err", err.Error()))
		// Session stays so the user can retry.
		return Response{UserID: a.UserID, Text: redeemFailedText}
	}
	if !sent {
		logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "redeem.declined", slog.Int64("user_id", a.UserID))
		return Response{UserID: a.UserID, Text: redeemDeclinedText}
	}

	f.sessions.Remove(a.UserID)
	logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "redeem.success", slog.Int64("user_id", a.UserID))

	if f.journal != nil {
		if err := f.journal.RecordRedemption(ctx, a.UserID, sess.PromoHash, phone); err != nil {
			logger.LogEvent(ctx, logger.FLOW, slog.LevelWarn, "journal.record_failed", slog.Int64("user_id", a.UserID), slog.String("err", err.Error()))
		}
	}
	return Response{UserID: a.UserID, Text: redeemOKText}
}

package app

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/giftbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/giftbot/core/telegram/helpers"
	"github.com/m3rciful/giftbot/core/telegram/keyboard"
	"github.com/m3rciful/giftbot/flow"
	"github.com/m3rciful/giftbot/session"
	"github.com/m3rciful/giftbot/storage"
)

func (a *App) registerHandlers() {
	a.registry.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Получить подарок",
	})
	a.registry.RegisterCommand("/stats", commands.Command{
		Handler:     a.handleStats,
		Description: "Статистика бота",
		AdminOnly:   true,
		Hidden:      true,
	})

	_ = a.registry.RegisterCallback(flow.KeyGetGift, a.handleGetGift)
	_ = a.registry.RegisterCallback(flow.KeyReplace, a.handleReplaceGift)
	_ = a.registry.RegisterCallback(flow.KeyEnterPhone, a.handleEnterPhone)

	a.registry.SetTextFallback(a.handleText)
}

func responseMarkup(resp flow.Response) *tele.ReplyMarkup {
	if len(resp.Buttons) == 0 {
		return nil
	}
	row := make([]keyboard.InlineBtn, 0, len(resp.Buttons))
	for _, b := range resp.Buttons {
		row = append(row, keyboard.InlineBtn{Text: b.Text, Unique: b.Key})
	}
	return keyboard.InlineButtonsRows(row)
}

func senderID(c tele.Context) int64 {
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

func (a *App) handleStart(c tele.Context) error {
	resp := a.flow.Handle(tghelpers.BuildContext(c), flow.Action{
		UserID: senderID(c),
		Kind:   flow.Start,
	})
	return tghelpers.SendWithKeyboard(c, resp.Text, responseMarkup(resp))
}

func (a *App) handleGetGift(c tele.Context) error {
	resp := a.flow.Handle(tghelpers.BuildContext(c), flow.Action{
		UserID: senderID(c),
		Kind:   flow.Claim,
	})
	if markup := responseMarkup(resp); markup != nil {
		return tghelpers.SendWithKeyboard(c, resp.Text, markup)
	}
	return tghelpers.SendText(c, resp.Text)
}

// handleReplaceGift edits the offer message in place: first an interim
// notice while the upstream call is in flight, then the new offer.
func (a *App) handleReplaceGift(c tele.Context) error {
	userID := senderID(c)

	if _, res := a.sessions.Lookup(userID); res == session.Found {
		var current *tele.ReplyMarkup
		if msg := c.Message(); msg != nil {
			current = msg.ReplyMarkup
		}
		_ = tghelpers.Edit(c, flow.ReplacePendingText, current)
	}

	resp := a.flow.Handle(tghelpers.BuildContext(c), flow.Action{
		UserID: userID,
		Kind:   flow.Replace,
	})
	if markup := responseMarkup(resp); markup != nil {
		return tghelpers.Edit(c, resp.Text, markup)
	}
	return tghelpers.SendText(c, resp.Text)
}

func (a *App) handleEnterPhone(c tele.Context) error {
	resp := a.flow.Handle(tghelpers.BuildContext(c), flow.Action{
		UserID: senderID(c),
		Kind:   flow.RequestPhone,
	})
	return tghelpers.SendText(c, resp.Text)
}

func (a *App) handleText(c tele.Context) error {
	resp := a.flow.Handle(tghelpers.BuildContext(c), flow.Action{
		UserID: senderID(c),
		Kind:   flow.TextInput,
		Text:   c.Text(),
	})
	return tghelpers.SendText(c, resp.Text)
}

func (a *App) handleStats(c tele.Context) error {
	var (
		total  int64
		recent []storage.Redemption
	)
	if a.journal != nil {
		ctx := tghelpers.BuildContext(c)
		if n, err := a.journal.CountRedemptions(ctx); err == nil {
			total = n
		}
		if rows, err := a.journal.RecentRedemptions(ctx, recentStatsLimit); err == nil {
			recent = rows
		}
	}
	return tghelpers.SendText(c, formatStats(a.sessions.Len(), a.journal != nil, total, recent))
}

const recentStatsLimit = 5

func formatStats(sessions int, journalEnabled bool, total int64, recent []storage.Redemption) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Активных сессий: %d", sessions)
	if !journalEnabled {
		return b.String()
	}
	fmt.Fprintf(&b, "\nОтправлено промокодов: %d", total)
	if len(recent) > 0 {
		b.WriteString("\n\nПоследние отправки:")
		for _, r := range recent {
			fmt.Fprintf(&b, "\n%s — %s", r.RedeemedAt.Format("02.01 15:04"), r.Phone)
		}
	}
	return b.String()
}

package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/giftbot/storage"
)

func TestFormatStatsWithoutJournal(t *testing.T) {
	got := formatStats(3, false, 0, nil)
	assert.Equal(t, "Активных сессий: 3", got)
}

func TestFormatStatsEmptyJournal(t *testing.T) {
	got := formatStats(0, true, 0, nil)
	assert.Equal(t, "Активных сессий: 0\nОтправлено промокодов: 0", got)
}

func TestFormatStatsWithRecent(t *testing.T) {
	at := time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)
	got := formatStats(2, true, 7, []storage.Redemption{
		{Phone: "+7 999 123 4567", RedeemedAt: at},
		{Phone: "+7 912 000 1122", RedeemedAt: at.Add(-time.Hour)},
	})

	assert.Contains(t, got, "Активных сессий: 2")
	assert.Contains(t, got, "Отправлено промокодов: 7")
	assert.Contains(t, got, "Последние отправки:")
	assert.Contains(t, got, "30.08 14:05 — +7 999 123 4567")
	assert.Contains(t, got, "30.08 13:05 — +7 912 000 1122")
}

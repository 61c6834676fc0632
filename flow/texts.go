package flow

import "fmt"

// User-facing texts. The audience is Russian-speaking, matching the promo
// site itself.
const (
	greetingText     = "Привет! Нажмите на кнопку ниже, чтобы получить подарок 🎁."
	getGiftBtnText   = "Получить подарок 🎁"
	replaceBtnText   = "Заменить подарок 🔄"
	sendPromoBtnText = "Отправить СМС с промо ☎️"

	claimFirstText = "Сначала запросите подарок."
	expiredText    = "Промокод истек! Запросите новый."
	enterPhoneText = "Введите номер телефона в формате 79999999999."
	badPhoneText   = "Некорректный формат номера. Введите номер в формате 79999999999."

	redeemOKText       = "Промокод успешно отправлен!"
	redeemDeclinedText = "Ошибка отправки промокода. Возможно, по этому номеру уже был отправлен подарок."

	claimFailedText  = "Ошибка при получении подарка. Попробуйте позже."
	redeemFailedText = "Ошибка при отправке промокода. Попробуйте позже."

	// ReplacePendingText is shown in place of the old offer while the
	// replacement request is in flight.
	ReplacePendingText = "Обновление подарка..."
)

func offerText(display, terms string) string {
	return fmt.Sprintf("Ваш подарок: %s\nУсловия: %s", display, terms)
}

func newOfferText(display, terms string) string {
	return fmt.Sprintf("Новый подарок: %s\nУсловия: %s", display, terms)
}

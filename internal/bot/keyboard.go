package bot

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/payment"
)

// Callback data prefixes. Option callbacks carry the option index, not the
// option text: Telegram limits callback data to 64 bytes and option texts
// are free-form.
const (
	cbTariffPrefix = "tariff:"
	cbPayPrefix    = "pay:"
	cbAnswerPrefix = "q:ans:"
	cbTogglePrefix = "q:tog:"
	cbSlotPrefix   = "slot:"
	cbMultiDone    = "q:done"
	cbBack         = "q:back"
)

const (
	checkedMark   = "☑️ "
	uncheckedMark = "⬜ "
	backLabel     = "⬅️ Назад"
	doneLabel     = "✅ Готово"
)

// tariffKeyboard lists tariffs one per row with price tags.
func tariffKeyboard(tariffs []models.Tariff) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tariffs))
	for _, t := range tariffs {
		label := fmt.Sprintf("%s — %.0f ₽", t.Name, t.Price)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbTariffPrefix+t.Name)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// paymentKeyboard offers the checkout link and a "paid" check button.
func paymentKeyboard(p *payment.Payment) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("💳 Оплатить", p.ConfirmationURL)),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Я оплатил(а)", cbPayPrefix+p.ID)),
	)
}

// questionKeyboard renders the option buttons for one question. Multi-choice
// options toggle with checkmarks and close with a done button; every
// keyboard past the first question carries a back button.
func questionKeyboard(spec *models.RenderSpec) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	selected := make(map[string]bool, len(spec.Selected))
	for _, s := range spec.Selected {
		selected[s] = true
	}
	for i, opt := range spec.Options {
		label := opt
		data := cbAnswerPrefix + strconv.Itoa(i)
		if spec.Multi {
			mark := uncheckedMark
			if selected[opt] {
				mark = checkedMark
			}
			label = mark + opt
			data = cbTogglePrefix + strconv.Itoa(i)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}
	if spec.Multi {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(doneLabel, cbMultiDone)))
	}
	if spec.CanGoBack {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(backLabel, cbBack)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// slotKeyboard lists bookable slots one per row.
func slotKeyboard(slots []models.TimeSlot) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(slots))
	for _, slot := range slots {
		label := slot.StartsAt.Format("02.01 15:04")
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbSlotPrefix+strconv.FormatInt(slot.ID, 10))))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func formatSlot(t time.Time) string {
	return t.Format("02.01.2006 в 15:04")
}

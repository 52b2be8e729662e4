package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/payment"
)

const (
	greetingText = "Здравствуйте! Я помогу записаться на консультацию.\n" +
		"Сначала выберите подходящий тариф:"
	helpText = "Команды:\n/start — выбрать тариф и начать\n/help — эта справка\n\n" +
		"После оплаты я задам несколько вопросов и предложу время консультации."
	paymentPendingText = "Оплата ещё не прошла. Попробуйте ещё раз через минуту."
	allCompleteText    = "Спасибо! Все анкеты заполнены."
	chooseSlotText     = "Выберите удобное время консультации:"
	noSlotsText        = "Свободных слотов пока нет. Мы напишем вам, когда они появятся."
	slotTakenText      = "Это время уже занято, выберите другое."
	firstQuestionText  = "Это первый вопрос, назад некуда."
	notInFlowText      = "Сейчас я не жду ответа. Начните с команды /start."
	expectPhotoText    = "Для этого вопроса пришлите, пожалуйста, фотографию."
	expectAnswerText   = "Пожалуйста, ответьте кнопкой под вопросом."
	somethingWrongText = "Что-то пошло не так. Попробуйте ещё раз или начните заново: /start."
)

func sessionID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	slog.Debug("Telegram message received", "chatID", chatID, "isCommand", msg.IsCommand())

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.handleStart(ctx, msg)
		case "help":
			b.sendText(chatID, helpText)
		default:
			b.sendText(chatID, helpText)
		}
		return
	}

	spec, err := b.ctrl.Current(ctx, sessionID(chatID))
	if err != nil {
		b.sendText(chatID, notInFlowText)
		return
	}

	switch {
	case len(msg.Photo) > 0 && spec.AwaitPhoto:
		// The largest rendition is last; its file id is the stored answer.
		fileID := msg.Photo[len(msg.Photo)-1].FileID
		b.submitAnswer(ctx, chatID, fileID)
	case spec.AwaitPhoto:
		b.sendText(chatID, expectPhotoText)
	case spec.AwaitText:
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			b.sendText(chatID, expectAnswerText)
			return
		}
		b.submitAnswer(ctx, chatID, text)
	default:
		b.sendText(chatID, expectAnswerText)
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	username := ""
	if msg.From != nil {
		username = msg.From.UserName
	}
	if _, err := b.store.GetOrCreateUser(ctx, chatID, username); err != nil {
		slog.Error("GetOrCreateUser failed", "chatID", chatID, "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}

	tariffs, err := b.store.ListTariffs(ctx)
	if err != nil || len(tariffs) == 0 {
		slog.Error("ListTariffs failed", "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}

	out := tgbotapi.NewMessage(chatID, greetingText)
	out.ReplyMarkup = tariffKeyboard(tariffs)
	b.send(out)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data
	slog.Debug("Telegram callback received", "chatID", chatID, "data", data)

	// Ack immediately so the button stops spinning; toasts replace the ack
	// where a short inline notice is clearer than a new message.
	ack := func(toast string) {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, toast)); err != nil {
			slog.Debug("Callback ack failed", "error", err)
		}
	}

	switch {
	case strings.HasPrefix(data, cbTariffPrefix):
		ack("")
		b.handleTariffSelected(ctx, cb, strings.TrimPrefix(data, cbTariffPrefix))
	case strings.HasPrefix(data, cbPayPrefix):
		b.handlePaymentCheck(ctx, cb, strings.TrimPrefix(data, cbPayPrefix), ack)
	case strings.HasPrefix(data, cbAnswerPrefix):
		ack("")
		b.handleOptionAnswer(ctx, chatID, strings.TrimPrefix(data, cbAnswerPrefix))
	case strings.HasPrefix(data, cbTogglePrefix):
		ack("")
		b.handleOptionToggle(ctx, cb, strings.TrimPrefix(data, cbTogglePrefix))
	case data == cbMultiDone:
		ack("")
		b.submitAnswer(ctx, chatID, "")
	case data == cbBack:
		b.handleGoBack(ctx, chatID, ack)
	case strings.HasPrefix(data, cbSlotPrefix):
		b.handleSlotPicked(ctx, cb, strings.TrimPrefix(data, cbSlotPrefix), ack)
	default:
		ack("")
		slog.Warn("Unknown callback data", "data", data)
	}
}

func (b *Bot) handleTariffSelected(ctx context.Context, cb *tgbotapi.CallbackQuery, name string) {
	chatID := cb.Message.Chat.ID

	tariff, err := b.store.GetTariff(ctx, name)
	if err != nil {
		slog.Error("GetTariff failed", "tariff", name, "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}
	if err := b.store.SetUserTariff(ctx, chatID, tariff.Name); err != nil {
		slog.Error("SetUserTariff failed", "chatID", chatID, "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}

	p, err := b.payments.CreatePayment(ctx, payment.CreateRequest{
		Amount:      tariff.Price,
		Description: fmt.Sprintf("Консультация, тариф «%s»", tariff.Name),
	})
	if err != nil {
		slog.Error("CreatePayment failed", "chatID", chatID, "tariff", tariff.Name, "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}
	if err := b.store.AddPayment(ctx, models.Payment{
		TelegramID: chatID,
		Amount:     tariff.Price,
		Currency:   "RUB",
		Status:     models.PaymentStatusPending,
		ProviderID: p.ID,
	}); err != nil {
		slog.Error("AddPayment failed", "chatID", chatID, "error", err)
	}

	text := fmt.Sprintf("Тариф «%s» — %.0f ₽.\n%s\n\nПосле оплаты нажмите «Я оплатил(а)».",
		tariff.Name, tariff.Price, tariff.Description)
	out := tgbotapi.NewMessage(chatID, text)
	out.ReplyMarkup = paymentKeyboard(p)
	b.send(out)
}

func (b *Bot) handlePaymentCheck(ctx context.Context, cb *tgbotapi.CallbackQuery, providerID string, ack func(string)) {
	chatID := cb.Message.Chat.ID

	p, err := b.payments.GetPayment(ctx, providerID)
	if err != nil {
		slog.Error("GetPayment failed", "providerID", providerID, "error", err)
		ack(paymentPendingText)
		return
	}
	if p.Status != payment.StatusSucceeded && !p.Paid {
		ack(paymentPendingText)
		return
	}
	ack("")

	if err := b.store.UpdatePaymentStatus(ctx, providerID, models.PaymentStatusSucceeded); err != nil {
		slog.Error("UpdatePaymentStatus failed", "providerID", providerID, "error", err)
	}
	if err := b.store.MarkUserPaid(ctx, chatID); err != nil {
		slog.Error("MarkUserPaid failed", "chatID", chatID, "error", err)
	}

	user, err := b.store.GetOrCreateUser(ctx, chatID, "")
	if err != nil {
		slog.Error("GetOrCreateUser failed", "chatID", chatID, "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}
	tariff, err := b.store.GetTariff(ctx, user.Tariff)
	if err != nil {
		slog.Error("GetTariff failed after payment", "tariff", user.Tariff, "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}
	// Repeat-consultation tariffs carry no questionnaires and go straight
	// to slot booking.
	if len(tariff.Questionnaires) == 0 {
		b.sendText(chatID, "Оплата получена! Давайте выберем время консультации.")
		b.offerSlots(ctx, chatID)
		return
	}

	sid := sessionID(chatID)
	if err := b.ctrl.SeedQueue(ctx, sid, tariff.Questionnaires[1:]); err != nil {
		slog.Error("SeedQueue failed", "sessionID", sid, "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}
	spec, err := b.ctrl.Start(ctx, sid, tariff.Questionnaires[0])
	if err != nil {
		slog.Error("Start failed", "sessionID", sid, "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}
	b.sendText(chatID, "Оплата получена! Перейдём к анкете.")
	b.renderSpec(ctx, chatID, spec)
}

// handleOptionAnswer resolves the tapped option index against the current
// question before submitting; a stale index after a reload is rejected by
// the controller's option check.
func (b *Bot) handleOptionAnswer(ctx context.Context, chatID int64, rawIdx string) {
	option, ok := b.optionByIndex(ctx, chatID, rawIdx)
	if !ok {
		return
	}
	b.submitAnswer(ctx, chatID, option)
}

func (b *Bot) handleOptionToggle(ctx context.Context, cb *tgbotapi.CallbackQuery, rawIdx string) {
	chatID := cb.Message.Chat.ID
	option, ok := b.optionByIndex(ctx, chatID, rawIdx)
	if !ok {
		return
	}
	spec, err := b.ctrl.ToggleMultiOption(ctx, sessionID(chatID), option)
	if err != nil {
		slog.Error("ToggleMultiOption failed", "chatID", chatID, "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}
	// Redraw checkmarks in place instead of sending a new message.
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID, questionKeyboard(spec))
	b.send(edit)
}

func (b *Bot) handleGoBack(ctx context.Context, chatID int64, ack func(string)) {
	spec, err := b.ctrl.GoBack(ctx, sessionID(chatID))
	if err != nil {
		ack("")
		slog.Error("GoBack failed", "chatID", chatID, "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}
	if spec.CannotGoBack {
		ack(firstQuestionText)
		return
	}
	ack("")
	b.renderSpec(ctx, chatID, spec)
}

func (b *Bot) handleSlotPicked(ctx context.Context, cb *tgbotapi.CallbackQuery, rawID string, ack func(string)) {
	chatID := cb.Message.Chat.ID
	slotID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		ack("")
		return
	}

	booked, err := b.booking.Book(ctx, slotID, sessionID(chatID))
	if errors.Is(err, models.ErrSlotUnavailable) {
		ack(slotTakenText)
		b.offerSlots(ctx, chatID)
		return
	}
	if err != nil {
		ack("")
		b.sendText(chatID, somethingWrongText)
		return
	}
	ack("")

	slots, err := b.booking.UpcomingSlots(ctx)
	startsAt := ""
	if err == nil {
		for _, s := range slots {
			if s.ID == booked.SlotID {
				startsAt = formatSlot(s.StartsAt)
			}
		}
	}
	if startsAt == "" {
		b.sendText(chatID, "Вы записаны на консультацию. До встречи!")
		return
	}
	b.sendText(chatID, fmt.Sprintf("Вы записаны на %s. До встречи!", startsAt))
}

// submitAnswer pushes one answer into the engine, enqueues a gender-specific
// questionnaire when the tariff calls for one, and renders what comes next.
func (b *Bot) submitAnswer(ctx context.Context, chatID int64, value string) {
	sid := sessionID(chatID)
	spec, err := b.ctrl.SubmitAnswer(ctx, sid, value)
	if err != nil {
		var stateErr *models.SessionStateError
		if errors.As(err, &stateErr) {
			b.sendText(chatID, expectAnswerText)
			return
		}
		slog.Error("SubmitAnswer failed", "sessionID", sid, "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}
	if !spec.Done {
		b.maybeEnqueueGendered(ctx, chatID)
	}
	b.renderSpec(ctx, chatID, spec)
}

// maybeEnqueueGendered appends the tariff's gender-specific questionnaire
// once the gender question has been answered. Enqueueing is idempotent, so
// calling this after every answer is harmless.
func (b *Bot) maybeEnqueueGendered(ctx context.Context, chatID int64) {
	user, err := b.store.GetOrCreateUser(ctx, chatID, "")
	if err != nil || user.Tariff == "" {
		return
	}
	tariff, err := b.store.GetTariff(ctx, user.Tariff)
	if err != nil || len(tariff.GenderQuestionnaires) == 0 {
		return
	}

	sid := sessionID(chatID)
	answer, ok, err := b.ctrl.AnswerByRole(ctx, sid, models.RoleGender)
	if err != nil || !ok {
		return
	}
	name, ok := tariff.GenderQuestionnaires[answer.Text]
	if !ok {
		return
	}
	if err := b.ctrl.EnqueueQuestionnaire(ctx, sid, name); err != nil {
		slog.Error("EnqueueQuestionnaire failed", "sessionID", sid, "questionnaire", name, "error", err)
	}
}

// renderSpec draws the engine's next instruction: a question with its
// keyboard, or the completion hand-off into slot booking.
func (b *Bot) renderSpec(ctx context.Context, chatID int64, spec *models.RenderSpec) {
	if spec.Done && spec.AllComplete {
		text := spec.Text
		if text == "" {
			text = allCompleteText
		}
		b.sendText(chatID, text)
		b.offerSlots(ctx, chatID)
		return
	}

	out := tgbotapi.NewMessage(chatID, spec.Text)
	if len(spec.Options) > 0 || spec.Multi || spec.CanGoBack {
		out.ReplyMarkup = questionKeyboard(spec)
	}
	b.send(out)
}

func (b *Bot) offerSlots(ctx context.Context, chatID int64) {
	slots, err := b.booking.UpcomingSlots(ctx)
	if err != nil {
		slog.Error("UpcomingSlots failed", "error", err)
		b.sendText(chatID, somethingWrongText)
		return
	}
	if len(slots) == 0 {
		b.sendText(chatID, noSlotsText)
		return
	}
	out := tgbotapi.NewMessage(chatID, chooseSlotText)
	out.ReplyMarkup = slotKeyboard(slots)
	b.send(out)
}

func (b *Bot) optionByIndex(ctx context.Context, chatID int64, rawIdx string) (string, bool) {
	idx, err := strconv.Atoi(rawIdx)
	if err != nil {
		return "", false
	}
	spec, err := b.ctrl.Current(ctx, sessionID(chatID))
	if err != nil {
		b.sendText(chatID, notInFlowText)
		return "", false
	}
	if idx < 0 || idx >= len(spec.Options) {
		slog.Warn("Stale option index", "chatID", chatID, "index", idx)
		b.sendText(chatID, expectAnswerText)
		return "", false
	}
	return spec.Options[idx], true
}

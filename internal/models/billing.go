package models

import "time"

// Tariff is a purchasable service tier. Questionnaires lists the names owed
// to the user after payment, in order. GenderQuestionnaires maps a recorded
// gender answer literal to an extra questionnaire enqueued mid-flow once the
// gender question is answered.
type Tariff struct {
	Name                 string            `json:"name" yaml:"name"`
	Description          string            `json:"description,omitempty" yaml:"description,omitempty"`
	Price                float64           `json:"price" yaml:"price"`
	Questionnaires       []string          `json:"questionnaires,omitempty" yaml:"questionnaires,omitempty"`
	GenderQuestionnaires map[string]string `json:"gender_questionnaires,omitempty" yaml:"gender_questionnaires,omitempty"`
}

// User is one Telegram user known to the service.
type User struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username,omitempty"`
	Tariff     string    `json:"tariff,omitempty"`
	HasPaid    bool      `json:"has_paid"`
	CreatedAt  time.Time `json:"created_at"`
}

// PaymentStatus values mirror the gateway's lifecycle.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusCanceled  = "canceled"
)

// Payment is one payment attempt recorded against a user.
type Payment struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	ProviderID string    `json:"provider_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TimeSlot is one bookable consultation slot.
type TimeSlot struct {
	ID        int64     `json:"id"`
	StartsAt  time.Time `json:"starts_at"`
	Available bool      `json:"available"`
}

// Booking records a reserved slot for a session.
type Booking struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	SlotID    int64     `json:"slot_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Package store provides storage backends for the ConsultOS bot.
//
// It includes SQLite and PostgreSQL stores behind a shared Store interface,
// plus an in-memory store for tests and seed-file development mode. The store
// is the durable side of the system: questionnaire definitions, tariffs,
// users, payments, collected answers, time slots, and bookings.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// otherwise (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store is the durable storage contract shared by all backends.
type Store interface {
	// LoadDefinitions reads all questionnaire definitions; it implements the
	// engine's DefinitionSource contract.
	LoadDefinitions(ctx context.Context) ([]models.QuestionnaireDefinition, error)

	ListTariffs(ctx context.Context) ([]models.Tariff, error)
	GetTariff(ctx context.Context, name string) (*models.Tariff, error)

	GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*models.User, error)
	SetUserTariff(ctx context.Context, telegramID int64, tariff string) error
	MarkUserPaid(ctx context.Context, telegramID int64) error

	AddPayment(ctx context.Context, payment models.Payment) error
	UpdatePaymentStatus(ctx context.Context, providerID, status string) error

	// RecordAnswer implements the engine's AnswerRecorder contract.
	RecordAnswer(ctx context.Context, answer models.Answer) error
	AnswersBySession(ctx context.Context, sessionID string) ([]models.Answer, error)

	AddTimeSlot(ctx context.Context, slot models.TimeSlot) error
	AvailableSlots(ctx context.Context, from time.Time) ([]models.TimeSlot, error)
	// BookSlot reserves an available slot for a session; it returns
	// models.ErrSlotUnavailable (wrapped) when the slot is taken.
	BookSlot(ctx context.Context, slotID int64, sessionID string) (*models.Booking, error)

	// ImportSeed loads questionnaires and tariffs from a parsed seed file,
	// replacing existing definitions with the same names.
	ImportSeed(ctx context.Context, seed *SeedFile) error

	Close() error
}

// Package store provides storage backends for the ConsultOS bot.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is the file-backed store used for single-host deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path).
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// LoadDefinitions reads all questionnaire definitions.
func (s *SQLiteStore) LoadDefinitions(ctx context.Context) ([]models.QuestionnaireDefinition, error) {
	defs, err := loadDefinitionsFromDB(ctx, s.db)
	if err != nil {
		slog.Error("SQLiteStore LoadDefinitions failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore LoadDefinitions succeeded", "count", len(defs))
	return defs, nil
}

// ListTariffs returns all tariffs ordered by price.
func (s *SQLiteStore) ListTariffs(ctx context.Context) ([]models.Tariff, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, price, questionnaires, gender_questionnaires
		FROM tariffs ORDER BY price`)
	if err != nil {
		slog.Error("SQLiteStore ListTariffs query failed", "error", err)
		return nil, fmt.Errorf("query tariffs: %w", err)
	}
	defer rows.Close()

	var tariffs []models.Tariff
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			slog.Error("SQLiteStore ListTariffs scan failed", "error", err)
			return nil, err
		}
		tariffs = append(tariffs, t)
	}
	return tariffs, rows.Err()
}

// GetTariff returns one tariff by name.
func (s *SQLiteStore) GetTariff(ctx context.Context, name string) (*models.Tariff, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, price, questionnaires, gender_questionnaires
		FROM tariffs WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("query tariff %q: %w", name, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, fmt.Errorf("tariff %q not found", name)
	}
	t, err := scanTariff(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetOrCreateUser fetches the user for a Telegram id, creating it on first contact.
func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, username, created_at) VALUES (?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET username = excluded.username`,
		telegramID, nilIfEmpty(username), time.Now())
	if err != nil {
		slog.Error("SQLiteStore GetOrCreateUser upsert failed", "error", err, "telegramID", telegramID)
		return nil, fmt.Errorf("upsert user %d: %w", telegramID, err)
	}
	return s.getUser(ctx, telegramID)
}

func (s *SQLiteStore) getUser(ctx context.Context, telegramID int64) (*models.User, error) {
	var (
		u        models.User
		username sql.NullString
		tariff   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, telegram_id, username, tariff, has_paid, created_at
		FROM users WHERE telegram_id = ?`, telegramID).
		Scan(&u.ID, &u.TelegramID, &username, &tariff, &u.HasPaid, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query user %d: %w", telegramID, err)
	}
	u.Username = username.String
	u.Tariff = tariff.String
	return &u, nil
}

// SetUserTariff records the tariff a user selected.
func (s *SQLiteStore) SetUserTariff(ctx context.Context, telegramID int64, tariff string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET tariff = ? WHERE telegram_id = ?`, tariff, telegramID)
	if err != nil {
		slog.Error("SQLiteStore SetUserTariff failed", "error", err, "telegramID", telegramID)
		return fmt.Errorf("set tariff for user %d: %w", telegramID, err)
	}
	return nil
}

// MarkUserPaid flags a user as having completed payment.
func (s *SQLiteStore) MarkUserPaid(ctx context.Context, telegramID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET has_paid = 1 WHERE telegram_id = ?`, telegramID)
	if err != nil {
		slog.Error("SQLiteStore MarkUserPaid failed", "error", err, "telegramID", telegramID)
		return fmt.Errorf("mark user %d paid: %w", telegramID, err)
	}
	return nil
}

// AddPayment records a payment attempt.
func (s *SQLiteStore) AddPayment(ctx context.Context, p models.Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (telegram_id, amount, currency, status, provider_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.TelegramID, p.Amount, p.Currency, p.Status, nilIfEmpty(p.ProviderID), time.Now())
	if err != nil {
		slog.Error("SQLiteStore AddPayment failed", "error", err, "telegramID", p.TelegramID)
		return fmt.Errorf("insert payment for user %d: %w", p.TelegramID, err)
	}
	return nil
}

// UpdatePaymentStatus updates the status of a payment by provider id.
func (s *SQLiteStore) UpdatePaymentStatus(ctx context.Context, providerID, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE payments SET status = ? WHERE provider_id = ?`, status, providerID)
	if err != nil {
		slog.Error("SQLiteStore UpdatePaymentStatus failed", "error", err, "providerID", providerID)
		return fmt.Errorf("update payment %s: %w", providerID, err)
	}
	return nil
}

// RecordAnswer persists one submitted answer.
func (s *SQLiteStore) RecordAnswer(ctx context.Context, a models.Answer) error {
	value, err := marshalJSON(a.Value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO answers (session_id, questionnaire, question_id, value, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.SessionID, a.Questionnaire, a.QuestionID, value, time.Now())
	if err != nil {
		slog.Error("SQLiteStore RecordAnswer failed", "error", err, "sessionID", a.SessionID)
		return fmt.Errorf("insert answer for session %s: %w", a.SessionID, err)
	}
	return nil
}

// AnswersBySession returns all recorded answers for a session in submit order.
func (s *SQLiteStore) AnswersBySession(ctx context.Context, sessionID string) ([]models.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, questionnaire, question_id, value, created_at
		FROM answers WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore AnswersBySession query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("query answers for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		var (
			a     models.Answer
			value sql.NullString
		)
		if err := rows.Scan(&a.SessionID, &a.Questionnaire, &a.QuestionID, &value, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan answer row: %w", err)
		}
		if err := unmarshalJSON(value, &a.Value); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// AddTimeSlot registers a bookable consultation slot.
func (s *SQLiteStore) AddTimeSlot(ctx context.Context, slot models.TimeSlot) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO time_slots (starts_at, available) VALUES (?, 1)`, slot.StartsAt)
	if err != nil {
		slog.Error("SQLiteStore AddTimeSlot failed", "error", err)
		return fmt.Errorf("insert time slot: %w", err)
	}
	return nil
}

// AvailableSlots lists open slots starting at or after from.
func (s *SQLiteStore) AvailableSlots(ctx context.Context, from time.Time) ([]models.TimeSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, starts_at, available FROM time_slots
		WHERE available = 1 AND starts_at >= ? ORDER BY starts_at`, from)
	if err != nil {
		slog.Error("SQLiteStore AvailableSlots query failed", "error", err)
		return nil, fmt.Errorf("query time slots: %w", err)
	}
	defer rows.Close()

	var slots []models.TimeSlot
	for rows.Next() {
		var slot models.TimeSlot
		if err := rows.Scan(&slot.ID, &slot.StartsAt, &slot.Available); err != nil {
			return nil, fmt.Errorf("scan time slot row: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// BookSlot reserves a slot for a session inside one transaction, so two
// concurrent bookings of the same slot cannot both succeed.
func (s *SQLiteStore) BookSlot(ctx context.Context, slotID int64, sessionID string) (*models.Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE time_slots SET available = 0 WHERE id = ? AND available = 1`, slotID)
	if err != nil {
		return nil, fmt.Errorf("reserve slot %d: %w", slotID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reserve slot %d: %w", slotID, err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("slot %d: %w", slotID, models.ErrSlotUnavailable)
	}

	booking := models.Booking{SessionID: sessionID, SlotID: slotID, Status: "confirmed", CreatedAt: time.Now()}
	res, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (session_id, slot_id, status, created_at) VALUES (?, ?, ?, ?)`,
		booking.SessionID, booking.SlotID, booking.Status, booking.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	booking.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("booking id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}
	slog.Info("Slot booked", "slotID", slotID, "sessionID", sessionID)
	return &booking, nil
}

// ImportSeed replaces questionnaires and tariffs with the seed file contents.
func (s *SQLiteStore) ImportSeed(ctx context.Context, seed *SeedFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback()

	for _, def := range seed.Questionnaires {
		if _, err := tx.ExecContext(ctx, `DELETE FROM questionnaires WHERE name = ?`, def.Name); err != nil {
			return fmt.Errorf("delete questionnaire %q: %w", def.Name, err)
		}
		var start interface{}
		if def.StartQuestionID != nil {
			start = int64(*def.StartQuestionID)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO questionnaires (name, start_question_id) VALUES (?, ?)`, def.Name, start); err != nil {
			return fmt.Errorf("insert questionnaire %q: %w", def.Name, err)
		}
		for _, q := range def.Questions {
			options, err := marshalJSON(q.Options)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO questions (id, questionnaire_name, text, kind, options, role, depends_on_role)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				q.ID, def.Name, q.Text, q.Kind, options, nilIfEmpty(string(q.Role)), nilIfEmpty(string(q.DependsOnRole))); err != nil {
				return fmt.Errorf("insert question %d: %w", q.ID, err)
			}
		}
		for _, r := range def.Rules {
			var next interface{}
			if r.NextQuestionID != nil {
				next = int64(*r.NextQuestionID)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO branch_rules (question_id, answer, next_question_id) VALUES (?, ?, ?)`,
				r.QuestionID, r.Answer, next); err != nil {
				return fmt.Errorf("insert branch rule (%d, %q): %w", r.QuestionID, r.Answer, err)
			}
		}
	}

	for _, t := range seed.Tariffs {
		quests, err := marshalJSON(t.Questionnaires)
		if err != nil {
			return err
		}
		genderQuests, err := marshalJSON(t.GenderQuestionnaires)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tariffs (name, description, price, questionnaires, gender_questionnaires)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				description = excluded.description,
				price = excluded.price,
				questionnaires = excluded.questionnaires,
				gender_questionnaires = excluded.gender_questionnaires`,
			t.Name, nilIfEmpty(t.Description), t.Price, quests, genderQuests); err != nil {
			return fmt.Errorf("upsert tariff %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	slog.Info("Seed imported", "questionnaires", len(seed.Questionnaires), "tariffs", len(seed.Tariffs))
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

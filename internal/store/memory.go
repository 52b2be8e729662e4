// Package store provides storage backends for the ConsultOS bot.
//
// This file implements a simple in-memory store for development and tests.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// InMemoryStore keeps everything in process memory. It serves local
// development runs without a database and the package tests.
type InMemoryStore struct {
	mu sync.RWMutex

	definitions []models.QuestionnaireDefinition
	tariffs     map[string]models.Tariff
	tariffOrder []string
	users       map[int64]*models.User
	nextUserID  int64
	payments    []models.Payment
	answers     map[string][]models.Answer
	slots       map[int64]*models.TimeSlot
	nextSlotID  int64
	bookings    []models.Booking
	nextBooking int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tariffs: make(map[string]models.Tariff),
		users:   make(map[int64]*models.User),
		answers: make(map[string][]models.Answer),
		slots:   make(map[int64]*models.TimeSlot),
	}
}

// NewInMemoryStoreFromSeed creates an in-memory store pre-populated from a
// parsed seed file.
func NewInMemoryStoreFromSeed(seed *SeedFile) (*InMemoryStore, error) {
	s := NewInMemoryStore()
	if err := s.ImportSeed(context.Background(), seed); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadDefinitions returns a copy of the stored questionnaire definitions.
func (s *InMemoryStore) LoadDefinitions(_ context.Context) ([]models.QuestionnaireDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	defs := make([]models.QuestionnaireDefinition, len(s.definitions))
	copy(defs, s.definitions)
	return defs, nil
}

// ListTariffs returns all tariffs in seed order.
func (s *InMemoryStore) ListTariffs(_ context.Context) ([]models.Tariff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tariffs := make([]models.Tariff, 0, len(s.tariffOrder))
	for _, name := range s.tariffOrder {
		tariffs = append(tariffs, s.tariffs[name])
	}
	return tariffs, nil
}

// GetTariff returns one tariff by name.
func (s *InMemoryStore) GetTariff(_ context.Context, name string) (*models.Tariff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tariffs[name]
	if !ok {
		return nil, fmt.Errorf("tariff %q not found", name)
	}
	return &t, nil
}

// GetOrCreateUser fetches the user for a Telegram id, creating it on first contact.
func (s *InMemoryStore) GetOrCreateUser(_ context.Context, telegramID int64, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[telegramID]; ok {
		if username != "" {
			u.Username = username
		}
		copied := *u
		return &copied, nil
	}
	s.nextUserID++
	u := &models.User{
		ID:         s.nextUserID,
		TelegramID: telegramID,
		Username:   username,
		CreatedAt:  time.Now(),
	}
	s.users[telegramID] = u
	copied := *u
	return &copied, nil
}

// SetUserTariff records the tariff a user selected.
func (s *InMemoryStore) SetUserTariff(_ context.Context, telegramID int64, tariff string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return fmt.Errorf("user %d not found", telegramID)
	}
	u.Tariff = tariff
	return nil
}

// MarkUserPaid flags a user as having completed payment.
func (s *InMemoryStore) MarkUserPaid(_ context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return fmt.Errorf("user %d not found", telegramID)
	}
	u.HasPaid = true
	return nil
}

// AddPayment records a payment attempt.
func (s *InMemoryStore) AddPayment(_ context.Context, p models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.payments = append(s.payments, p)
	return nil
}

// UpdatePaymentStatus updates the status of a payment by provider id.
func (s *InMemoryStore) UpdatePaymentStatus(_ context.Context, providerID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.payments {
		if s.payments[i].ProviderID == providerID {
			s.payments[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("payment %s not found", providerID)
}

// RecordAnswer persists one submitted answer.
func (s *InMemoryStore) RecordAnswer(_ context.Context, a models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.answers[a.SessionID] = append(s.answers[a.SessionID], a)
	return nil
}

// AnswersBySession returns all recorded answers for a session in submit order.
func (s *InMemoryStore) AnswersBySession(_ context.Context, sessionID string) ([]models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.answers[sessionID]
	answers := make([]models.Answer, len(stored))
	copy(answers, stored)
	return answers, nil
}

// AddTimeSlot registers a bookable consultation slot.
func (s *InMemoryStore) AddTimeSlot(_ context.Context, slot models.TimeSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSlotID++
	slot.ID = s.nextSlotID
	slot.Available = true
	s.slots[slot.ID] = &slot
	return nil
}

// AvailableSlots lists open slots starting at or after from.
func (s *InMemoryStore) AvailableSlots(_ context.Context, from time.Time) ([]models.TimeSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var slots []models.TimeSlot
	for _, slot := range s.slots {
		if slot.Available && !slot.StartsAt.Before(from) {
			slots = append(slots, *slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].StartsAt.Before(slots[j].StartsAt) })
	return slots, nil
}

// BookSlot reserves a slot for a session.
func (s *InMemoryStore) BookSlot(_ context.Context, slotID int64, sessionID string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok || !slot.Available {
		return nil, fmt.Errorf("slot %d: %w", slotID, models.ErrSlotUnavailable)
	}
	slot.Available = false
	s.nextBooking++
	booking := models.Booking{
		ID:        s.nextBooking,
		SessionID: sessionID,
		SlotID:    slotID,
		Status:    "confirmed",
		CreatedAt: time.Now(),
	}
	s.bookings = append(s.bookings, booking)
	return &booking, nil
}

// ImportSeed replaces questionnaires and tariffs with the seed file contents.
func (s *InMemoryStore) ImportSeed(_ context.Context, seed *SeedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions = make([]models.QuestionnaireDefinition, len(seed.Questionnaires))
	copy(s.definitions, seed.Questionnaires)
	s.tariffs = make(map[string]models.Tariff, len(seed.Tariffs))
	s.tariffOrder = s.tariffOrder[:0]
	for _, t := range seed.Tariffs {
		if _, exists := s.tariffs[t.Name]; !exists {
			s.tariffOrder = append(s.tariffOrder, t.Name)
		}
		s.tariffs[t.Name] = t
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

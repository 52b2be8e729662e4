// Package booking manages consultation slot listing and reservation.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// SlotStore is the storage surface the booking service needs.
type SlotStore interface {
	AddTimeSlot(ctx context.Context, slot models.TimeSlot) error
	AvailableSlots(ctx context.Context, from time.Time) ([]models.TimeSlot, error)
	BookSlot(ctx context.Context, slotID int64, sessionID string) (*models.Booking, error)
}

// Service exposes slot booking on top of a SlotStore.
type Service struct {
	store SlotStore
	now   func() time.Time
}

// NewService creates a booking service.
func NewService(store SlotStore) *Service {
	return &Service{store: store, now: time.Now}
}

// AddSlot registers a new bookable slot. Slots in the past are rejected.
func (s *Service) AddSlot(ctx context.Context, startsAt time.Time) error {
	if startsAt.Before(s.now()) {
		return fmt.Errorf("slot %s is in the past", startsAt.Format(time.RFC3339))
	}
	if err := s.store.AddTimeSlot(ctx, models.TimeSlot{StartsAt: startsAt}); err != nil {
		slog.Error("Booking AddSlot failed", "error", err, "startsAt", startsAt)
		return err
	}
	slog.Info("Booking slot added", "startsAt", startsAt)
	return nil
}

// UpcomingSlots lists slots still open for booking, soonest first.
func (s *Service) UpcomingSlots(ctx context.Context) ([]models.TimeSlot, error) {
	slots, err := s.store.AvailableSlots(ctx, s.now())
	if err != nil {
		slog.Error("Booking UpcomingSlots failed", "error", err)
		return nil, err
	}
	slog.Debug("Booking UpcomingSlots succeeded", "count", len(slots))
	return slots, nil
}

// Book reserves a slot for a session. A slot already taken by another
// session reports models.ErrSlotUnavailable.
func (s *Service) Book(ctx context.Context, slotID int64, sessionID string) (*models.Booking, error) {
	booking, err := s.store.BookSlot(ctx, slotID, sessionID)
	if err != nil {
		slog.Error("Booking Book failed", "error", err, "slotID", slotID, "sessionID", sessionID)
		return nil, err
	}
	slog.Info("Booking confirmed", "bookingID", booking.ID, "slotID", slotID, "sessionID", sessionID)
	return booking, nil
}

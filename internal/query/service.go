package query

import (
	"context"
	"strings"
	"time"

	"slotbook/internal/models"
)

// Store is the read side of the storage layer.
type Store interface {
	ListSlots(ctx context.Context) ([]models.Slot, error)
	ListAvailableSlots(ctx context.Context, from, to time.Time) ([]models.Slot, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByCode(ctx context.Context, code string) (*models.Booking, error)
	ListBookings(ctx context.Context) ([]models.Booking, error)
}

// Service answers read-only questions about slots and bookings.
type Service struct {
	store    Store
	location *time.Location
}

// NewService returns a service that reads calendar days in loc (UTC if nil).
func NewService(store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, location: loc}
}

func (s *Service) ListSlots(ctx context.Context) ([]models.Slot, error) {
	return s.store.ListSlots(ctx)
}

// AvailableSlots returns open slots starting on the given YYYY-MM-DD day in
// the service timezone.
func (s *Service) AvailableSlots(ctx context.Context, date string) ([]models.Slot, error) {
	from, to, err := s.DayBounds(date)
	if err != nil {
		return nil, err
	}
	return s.store.ListAvailableSlots(ctx, from, to)
}

// DayBounds returns [midnight, next midnight) of a YYYY-MM-DD day.
func (s *Service) DayBounds(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(date), s.location)
	if err != nil {
		return time.Time{}, time.Time{}, models.ErrInvalidDateFormat
	}
	return day, day.AddDate(0, 0, 1), nil
}

func (s *Service) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// GetBookingByCode looks a booking up by its BK- code.
func (s *Service) GetBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	return s.store.GetBookingByCode(ctx, strings.TrimSpace(code))
}

func (s *Service) ListBookings(ctx context.Context) ([]models.Booking, error) {
	return s.store.ListBookings(ctx)
}

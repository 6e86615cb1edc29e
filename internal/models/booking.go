package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusPending   BookingStatus = "pending"
	StatusCancelled BookingStatus = "cancelled"
	StatusDenied    BookingStatus = "denied"
)

// ParseStatus normalises a status string. An empty string yields confirmed.
func ParseStatus(s string) (BookingStatus, error) {
	status := BookingStatus(strings.ToLower(strings.TrimSpace(s)))
	if status == "" {
		return StatusConfirmed, nil
	}
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// Valid reports whether the status is one of the known values.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusPending, StatusCancelled, StatusDenied:
		return true
	}
	return false
}

// HoldsSlot reports whether a booking in this status occupies its slot.
// Only confirmed bookings do.
func (s BookingStatus) HoldsSlot() bool {
	return s == StatusConfirmed
}

// Booker identifies the person making a booking.
type Booker struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=200"`
	Phone     string `json:"phone" validate:"required,e164"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks booker fields. Phone failures map to ErrInvalidPhoneNumber.
func (b Booker) Validate() error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidBooker, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Field() == "Phone" {
			return fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, b.Phone)
		}
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidBooker, strings.Join(fields, ", "))
}

// Booking is a reservation request against a slot.
// SlotID becomes nil when the slot is deleted; the status is kept.
type Booking struct {
	ID        int64         `json:"id"`
	BookingID string        `json:"booking_id"`
	Booker    Booker        `json:"booker"`
	SlotID    *int64        `json:"slot_id"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// HoldsSlot reports whether the booking currently occupies a slot.
func (b *Booking) HoldsSlot() bool {
	return b.SlotID != nil && b.Status.HoldsSlot()
}

func (b *Booking) String() string {
	slot := "No slot assigned"
	if b.SlotID != nil {
		slot = fmt.Sprintf("for slot %d", *b.SlotID)
	}
	return fmt.Sprintf("Booking by %s %s %s", b.Booker.FirstName, b.Booker.LastName, slot)
}

// BookingCodePrefix starts every human-readable booking code.
const BookingCodePrefix = "BK"

// NewBookingCode returns a code like BK-2402211030-a1b2: a minute-resolution
// timestamp plus the last four characters of a random UUID.
func NewBookingCode(now time.Time) string {
	id := uuid.NewString()
	return fmt.Sprintf("%s-%s-%s", BookingCodePrefix, now.Format("0601021504"), id[len(id)-4:])
}

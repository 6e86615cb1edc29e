package models

import "errors"

var (
	ErrSlotNotFound    = errors.New("slot not found")
	ErrBookingNotFound = errors.New("booking not found")
)

var (
	// ErrSlotAlreadyBooked is returned when another confirmed booking holds the slot,
	// including when a concurrent writer won the race for it.
	ErrSlotAlreadyBooked    = errors.New("slot is already booked")
	ErrDuplicateBookingCode = errors.New("booking code already exists")
)

var (
	ErrInvalidPhoneNumber   = errors.New("invalid phone number")
	ErrInvalidBooker        = errors.New("invalid booker details")
	ErrInvalidStatus        = errors.New("invalid booking status")
	ErrInvalidDateFormat    = errors.New("invalid date format; expected YYYY-MM-DD")
	ErrInvalidConfiguration = errors.New("invalid slot configuration")
	ErrInvalidSlotWindow    = errors.New("slot end time must be after start time")
)

// Stable error kinds exposed to transports.
const (
	KindSlotNotFound         = "SlotNotFound"
	KindSlotAlreadyBooked    = "SlotAlreadyBooked"
	KindBookingNotFound      = "BookingNotFound"
	KindInvalidPhoneNumber   = "InvalidPhoneNumber"
	KindInvalidBooker        = "InvalidBooker"
	KindInvalidStatus        = "InvalidStatus"
	KindInvalidDateFormat    = "InvalidDateFormat"
	KindInvalidConfiguration = "InvalidConfiguration"
	KindInvalidSlotWindow    = "InvalidSlotWindow"
	KindInternal             = "Internal"
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrSlotNotFound, KindSlotNotFound},
	{ErrSlotAlreadyBooked, KindSlotAlreadyBooked},
	{ErrBookingNotFound, KindBookingNotFound},
	{ErrInvalidPhoneNumber, KindInvalidPhoneNumber},
	{ErrInvalidBooker, KindInvalidBooker},
	{ErrInvalidStatus, KindInvalidStatus},
	{ErrInvalidDateFormat, KindInvalidDateFormat},
	{ErrInvalidConfiguration, KindInvalidConfiguration},
	{ErrInvalidSlotWindow, KindInvalidSlotWindow},
}

// ErrorKind maps an error chain to its stable kind. Unknown errors are Internal.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsValidationError reports whether err was caused by bad caller input.
func IsValidationError(err error) bool {
	switch ErrorKind(err) {
	case KindInvalidPhoneNumber, KindInvalidBooker, KindInvalidStatus,
		KindInvalidDateFormat, KindInvalidConfiguration, KindInvalidSlotWindow:
		return true
	}
	return false
}

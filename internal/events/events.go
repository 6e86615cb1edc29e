package events

import (
	"context"
	"errors"
	"time"

	"slotbook/internal/models"
)

// Operation is the kind of change an event describes.
type Operation string

const (
	OpCreated Operation = "created"
	OpUpdated Operation = "updated"
	OpDeleted Operation = "deleted"
)

// Kind names the entity an event is about.
type Kind string

const (
	KindBooking Kind = "booking"
	KindSlot    Kind = "slot"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// Event is a committed change to a booking or slot. Exactly one of Booking and
// Slot is set, matching Kind.
type Event struct {
	Seq       uint64          `json:"seq"`
	Operation Operation       `json:"operation"`
	Kind      Kind            `json:"kind"`
	Booking   *models.Booking `json:"booking,omitempty"`
	Slot      *models.Slot    `json:"slot,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// BookingEvent builds an event carrying a copy of b.
func BookingEvent(op Operation, b *models.Booking) Event {
	snapshot := *b
	if b.SlotID != nil {
		id := *b.SlotID
		snapshot.SlotID = &id
	}
	return Event{Operation: op, Kind: KindBooking, Booking: &snapshot, Timestamp: time.Now().UTC()}
}

// SlotEvent builds an event carrying a copy of s.
func SlotEvent(op Operation, s *models.Slot) Event {
	snapshot := *s
	return Event{Operation: op, Kind: KindSlot, Slot: &snapshot, Timestamp: time.Now().UTC()}
}

// EntityID returns the id of the booking or slot the event refers to.
func (e Event) EntityID() int64 {
	switch {
	case e.Booking != nil:
		return e.Booking.ID
	case e.Slot != nil:
		return e.Slot.ID
	}
	return 0
}

// Publisher accepts committed changes. Implementations must not block on slow
// consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Filter selects the events a subscriber receives.
type Filter func(Event) bool

// All accepts every event.
func All() Filter {
	return func(Event) bool { return true }
}

// ForKind accepts events about one entity kind.
func ForKind(k Kind) Filter {
	return func(e Event) bool { return e.Kind == k }
}

// ForOperation accepts events of one operation.
func ForOperation(op Operation) Filter {
	return func(e Event) bool { return e.Operation == op }
}

// And accepts events matched by every filter. Nil filters are ignored.
func And(filters ...Filter) Filter {
	return func(e Event) bool {
		for _, f := range filters {
			if f != nil && !f(e) {
				return false
			}
		}
		return true
	}
}

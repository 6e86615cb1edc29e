package reservation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

// codeAttempts bounds retries when a generated booking code collides.
const codeAttempts = 3

// Store is the transactional storage the engine writes through. Each method
// is one atomic unit of work.
type Store interface {
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	CreateSlot(ctx context.Context, s *models.Slot) error
	UpdateSlot(ctx context.Context, id int64, patch models.SlotPatch) (*models.Slot, error)
	DeleteSlot(ctx context.Context, id int64) (*models.Slot, int64, error)

	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	InsertBooking(ctx context.Context, b *models.Booking) error
	SetBookingStatus(ctx context.Context, id int64, status models.BookingStatus) (*models.Booking, bool, error)
	DeleteBooking(ctx context.Context, id int64) (*models.Booking, error)
}

// BookingRequest is the input to CreateBooking. An empty Status means confirmed.
type BookingRequest struct {
	Booker models.Booker        `json:"booker"`
	SlotID *int64               `json:"slot_id"`
	Status models.BookingStatus `json:"status,omitempty"`
}

// Engine applies booking and slot mutations and announces each committed
// change. Work on one slot, and on the bookings attached to it, is serialised
// across commit and publish so subscribers see a booking's changes in order.
type Engine struct {
	store     Store
	publisher events.Publisher
	logger    *zerolog.Logger
	now       func() time.Time
	newCode   func(time.Time) string
	locks     slotLocks
}

type Option func(*Engine)

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source used for booking codes.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCodeGenerator overrides booking code generation.
func WithCodeGenerator(gen func(time.Time) string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newCode = gen
		}
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	nop := zerolog.New(io.Discard)
	e := &Engine{
		store:   store,
		logger:  &nop,
		now:     time.Now,
		newCode: models.NewBookingCode,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateBooking validates the request and books the slot. A confirmed booking
// takes the slot atomically; losing a concurrent race yields
// ErrSlotAlreadyBooked.
func (e *Engine) CreateBooking(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	if req.SlotID == nil {
		return nil, fmt.Errorf("%w: slot_id is required", models.ErrSlotNotFound)
	}
	if err := req.Booker.Validate(); err != nil {
		return nil, err
	}
	status, err := models.ParseStatus(string(req.Status))
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(req.SlotID)
	defer unlock()

	b := &models.Booking{Booker: req.Booker, SlotID: req.SlotID, Status: status}
	for attempt := 1; ; attempt++ {
		b.BookingID = e.newCode(e.now())
		err = e.store.InsertBooking(ctx, b)
		if !errors.Is(err, models.ErrDuplicateBookingCode) || attempt == codeAttempts {
			break
		}
		e.logger.Debug().Str("booking_id", b.BookingID).Int("attempt", attempt).Msg("Booking code collision, retrying")
	}
	if err != nil {
		if errors.Is(err, models.ErrSlotAlreadyBooked) {
			metrics.IncBookingConflict()
			e.logger.Info().Int64("slot_id", *req.SlotID).Msg("Booking rejected, slot already booked")
		}
		return nil, err
	}

	metrics.IncBookingCreated(string(b.Status))
	e.logger.Info().
		Int64("id", b.ID).
		Str("booking_id", b.BookingID).
		Str("status", string(b.Status)).
		Msg("Booking created")
	e.publish(ctx, events.BookingEvent(events.OpCreated, b))
	return b, nil
}

// CancelBooking cancels a booking and frees its slot. Cancelling an already
// cancelled booking returns it unchanged and announces nothing.
func (e *Engine) CancelBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, changed, err := e.setStatus(ctx, id, models.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.IncBookingCancelled()
	}
	return b, nil
}

// UpdateBookingStatus moves a booking to any status. Confirming takes the slot
// the same way CreateBooking does.
func (e *Engine) UpdateBookingStatus(ctx context.Context, id int64, status models.BookingStatus) (*models.Booking, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}
	b, changed, err := e.setStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if changed && status == models.StatusCancelled {
		metrics.IncBookingCancelled()
	}
	return b, nil
}

func (e *Engine) setStatus(ctx context.Context, id int64, status models.BookingStatus) (*models.Booking, bool, error) {
	unlock, err := e.lockBooking(ctx, id)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	b, changed, err := e.store.SetBookingStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, models.ErrSlotAlreadyBooked) {
			metrics.IncBookingConflict()
		}
		return nil, false, err
	}
	if !changed {
		return b, false, nil
	}

	e.logger.Info().Int64("id", b.ID).Str("status", string(status)).Msg("Booking status changed")
	e.publish(ctx, events.BookingEvent(events.OpUpdated, b))
	return b, true, nil
}

// DeleteBooking removes a booking and frees its slot.
func (e *Engine) DeleteBooking(ctx context.Context, id int64) error {
	unlock, err := e.lockBooking(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	b, err := e.store.DeleteBooking(ctx, id)
	if err != nil {
		return err
	}

	metrics.IncBookingDeleted()
	e.logger.Info().Int64("id", b.ID).Str("booking_id", b.BookingID).Msg("Booking deleted")
	e.publish(ctx, events.BookingEvent(events.OpDeleted, b))
	return nil
}

// lockBooking takes the lock of the slot a booking is attached to. The slot is
// re-read under the lock because a concurrent slot deletion may detach it.
func (e *Engine) lockBooking(ctx context.Context, id int64) (func(), error) {
	for {
		b, err := e.store.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		unlock := e.locks.lock(b.SlotID)
		current, err := e.store.GetBooking(ctx, id)
		if err != nil {
			unlock()
			return nil, err
		}
		if sameSlot(b.SlotID, current.SlotID) {
			return unlock, nil
		}
		unlock()
	}
}

// CreateSlot adds an open slot. Windows are not deduplicated here.
func (e *Engine) CreateSlot(ctx context.Context, start, end time.Time) (*models.Slot, error) {
	if err := models.ValidateWindow(start, end); err != nil {
		return nil, err
	}
	s := &models.Slot{StartTime: start, EndTime: end}
	if err := e.store.CreateSlot(ctx, s); err != nil {
		return nil, err
	}

	e.logger.Info().Int64("slot_id", s.ID).Time("start", s.StartTime).Msg("Slot created")
	e.publish(ctx, events.SlotEvent(events.OpCreated, s))
	return s, nil
}

// UpdateSlot changes only the fields set in patch. An empty patch returns the
// slot unchanged.
func (e *Engine) UpdateSlot(ctx context.Context, id int64, patch models.SlotPatch) (*models.Slot, error) {
	unlock := e.locks.lock(&id)
	defer unlock()

	if patch.IsEmpty() {
		return e.store.GetSlot(ctx, id)
	}

	s, err := e.store.UpdateSlot(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	e.logger.Info().Int64("slot_id", s.ID).Time("start", s.StartTime).Time("end", s.EndTime).Msg("Slot updated")
	e.publish(ctx, events.SlotEvent(events.OpUpdated, s))
	return s, nil
}

// DeleteSlot removes a slot. Attached bookings survive with no slot and keep
// their status.
func (e *Engine) DeleteSlot(ctx context.Context, id int64) error {
	unlock := e.locks.lock(&id)
	defer unlock()

	s, detached, err := e.store.DeleteSlot(ctx, id)
	if err != nil {
		return err
	}

	e.logger.Info().Int64("slot_id", s.ID).Int64("detached_bookings", detached).Msg("Slot deleted")
	e.publish(ctx, events.SlotEvent(events.OpDeleted, s))
	return nil
}

// publish announces a committed change. Failures are logged only; the change
// stands.
func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn().Err(err).
			Str("kind", string(ev.Kind)).
			Str("operation", string(ev.Operation)).
			Int64("id", ev.EntityID()).
			Msg("Failed to publish event")
	}
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/models"
)

const bookingColumns = `id, booking_id, booker_first_name, booker_last_name, booker_email,
	booker_phone, slot_id, status, created_at, updated_at`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b      models.Booking
		slotID sql.NullInt64
		status string
	)
	if err := row.Scan(
		&b.ID, &b.BookingID, &b.Booker.FirstName, &b.Booker.LastName, &b.Booker.Email,
		&b.Booker.Phone, &slotID, &status, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if slotID.Valid {
		id := slotID.Int64
		b.SlotID = &id
	}
	b.Status = models.BookingStatus(status)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func getBooking(ctx context.Context, tx *sql.Tx, id int64) (*models.Booking, error) {
	b, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return b, nil
}

// GetBooking returns a booking by internal id.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return b, nil
}

// GetBookingByCode returns a booking by its human-readable code.
func (db *DB) GetBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", code, err)
	}
	return b, nil
}

// ListBookings returns all bookings, oldest first.
func (db *DB) ListBookings(ctx context.Context) ([]models.Booking, error) {
	bookings, err := db.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// ListBookingsBySlot returns the bookings attached to a slot.
func (db *DB) ListBookingsBySlot(ctx context.Context, slotID int64) ([]models.Booking, error) {
	bookings, err := db.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE slot_id = ? ORDER BY id`, slotID)
	if err != nil {
		return nil, fmt.Errorf("list bookings of slot %d: %w", slotID, err)
	}
	return bookings, nil
}

// InsertBooking persists a new booking. Within one transaction it resolves the
// slot, rejects the insert if a confirmed booking already holds it, and for a
// confirmed booking flips the slot to booked with a compare-and-set.
func (db *DB) InsertBooking(ctx context.Context, b *models.Booking) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}
	now := dbTime(time.Now())

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var slotID any
		if b.SlotID != nil {
			slot, err := getSlot(ctx, tx, *b.SlotID)
			if err != nil {
				return err
			}
			if b.Status.HoldsSlot() {
				if err := occupySlot(ctx, tx, slot.ID); err != nil {
					return err
				}
			} else if slot.IsBooked {
				return models.ErrSlotAlreadyBooked
			}
			slotID = slot.ID
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO bookings (
				booking_id, booker_first_name, booker_last_name, booker_email,
				booker_phone, slot_id, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.BookingID, b.Booker.FirstName, b.Booker.LastName, b.Booker.Email,
			b.Booker.Phone, slotID, string(b.Status), now, now,
		)
		if err != nil {
			switch {
			case isUniqueViolation(err, "bookings.slot_id"):
				return models.ErrSlotAlreadyBooked
			case isUniqueViolation(err, "bookings.booking_id"):
				return models.ErrDuplicateBookingCode
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		if b.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

// SetBookingStatus moves a booking to status and keeps the slot flag in step
// within the same transaction. Confirming takes the slot with a
// compare-and-set. The returned flag is false when the status was unchanged.
func (db *DB) SetBookingStatus(ctx context.Context, id int64, status models.BookingStatus) (*models.Booking, bool, error) {
	var (
		result  *models.Booking
		changed bool
	)
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		result = b
		if b.Status == status {
			return nil
		}

		if status.HoldsSlot() && b.SlotID != nil {
			if err := occupySlot(ctx, tx, *b.SlotID); err != nil {
				return err
			}
		}

		now := dbTime(time.Now())
		if _, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), now, id,
		); err != nil {
			if isUniqueViolation(err, "bookings.slot_id") {
				return models.ErrSlotAlreadyBooked
			}
			return fmt.Errorf("update booking %d status: %w", id, err)
		}

		if b.SlotID != nil {
			if err := refreshOccupancy(ctx, tx, *b.SlotID); err != nil {
				return err
			}
		}

		b.Status = status
		b.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

// DeleteBooking removes a booking and frees its slot when no other confirmed
// booking holds it. It returns the deleted booking.
func (db *DB) DeleteBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var deleted *models.Booking
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete booking %d: %w", id, err)
		}
		if b.SlotID != nil {
			if err := refreshOccupancy(ctx, tx, *b.SlotID); err != nil {
				return err
			}
		}
		deleted = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// CheckOccupancy returns the ids of slots whose is_booked flag disagrees with
// the presence of a confirmed booking. An empty result means consistent.
func (db *DB) CheckOccupancy(ctx context.Context) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM slots
		WHERE is_booked != EXISTS (
			SELECT 1 FROM bookings WHERE slot_id = slots.id AND status = 'confirmed'
		)
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("check occupancy: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

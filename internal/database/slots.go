package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/models"
)

const slotColumns = `id, start_time, end_time, is_booked, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (*models.Slot, error) {
	var s models.Slot
	if err := row.Scan(&s.ID, &s.StartTime, &s.EndTime, &s.IsBooked, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func querySlots(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, query string, args ...any) ([]models.Slot, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := make([]models.Slot, 0)
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}

func getSlot(ctx context.Context, tx *sql.Tx, id int64) (*models.Slot, error) {
	s, err := scanSlot(tx.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %d: %w", id, err)
	}
	return s, nil
}

// GetSlot returns a slot by id.
func (db *DB) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	s, err := scanSlot(db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %d: %w", id, err)
	}
	return s, nil
}

// ListSlots returns all slots ordered by start time.
func (db *DB) ListSlots(ctx context.Context) ([]models.Slot, error) {
	slots, err := querySlots(ctx, db, `SELECT `+slotColumns+` FROM slots ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// ListAvailableSlots returns open slots starting within [from, to).
func (db *DB) ListAvailableSlots(ctx context.Context, from, to time.Time) ([]models.Slot, error) {
	slots, err := querySlots(ctx, db, `
		SELECT `+slotColumns+` FROM slots
		WHERE is_booked = 0 AND start_time >= ? AND start_time < ?
		ORDER BY start_time, id`,
		dbTime(from), dbTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// CreateSlot inserts a slot as given. Duplicate windows are allowed.
func (db *DB) CreateSlot(ctx context.Context, s *models.Slot) error {
	if s == nil {
		return fmt.Errorf("slot is nil")
	}
	now := dbTime(time.Now())
	s.StartTime = dbTime(s.StartTime)
	s.EndTime = dbTime(s.EndTime)
	s.IsBooked = false

	res, err := db.ExecContext(ctx, `
		INSERT INTO slots (start_time, end_time, is_booked, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)`,
		s.StartTime, s.EndTime, now, now,
	)
	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

// CreateSlotIfAbsent inserts a slot unless one with the same window exists.
// The existence check and insert are a single statement. It reports whether a
// row was created; on false the returned slot is nil.
func (db *DB) CreateSlotIfAbsent(ctx context.Context, start, end time.Time) (*models.Slot, bool, error) {
	now := dbTime(time.Now())
	start, end = dbTime(start), dbTime(end)

	res, err := db.ExecContext(ctx, `
		INSERT INTO slots (start_time, end_time, is_booked, created_at, updated_at)
		SELECT ?, ?, 0, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM slots WHERE start_time = ? AND end_time = ?)`,
		start, end, now, now, start, end,
	)
	if err != nil {
		return nil, false, fmt.Errorf("create slot if absent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create slot if absent: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("create slot if absent: %w", err)
	}
	return &models.Slot{ID: id, StartTime: start, EndTime: end, CreatedAt: now, UpdatedAt: now}, true, nil
}

// UpdateSlot applies a partial update to the slot window.
func (db *DB) UpdateSlot(ctx context.Context, id int64, patch models.SlotPatch) (*models.Slot, error) {
	var updated *models.Slot
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getSlot(ctx, tx, id)
		if err != nil {
			return err
		}
		next := patch.Apply(*current)
		next.StartTime, next.EndTime = dbTime(next.StartTime), dbTime(next.EndTime)
		if err := models.ValidateWindow(next.StartTime, next.EndTime); err != nil {
			return err
		}
		next.UpdatedAt = dbTime(time.Now())

		if _, err := tx.ExecContext(ctx,
			`UPDATE slots SET start_time = ?, end_time = ?, updated_at = ? WHERE id = ?`,
			next.StartTime, next.EndTime, next.UpdatedAt, id,
		); err != nil {
			return fmt.Errorf("update slot %d: %w", id, err)
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSlot removes a slot, detaching dependent bookings in the same
// transaction. Detached bookings keep their status. It returns the deleted
// slot and the number of detached bookings.
func (db *DB) DeleteSlot(ctx context.Context, id int64) (*models.Slot, int64, error) {
	var (
		deleted  *models.Slot
		detached int64
	)
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		s, err := getSlot(ctx, tx, id)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE bookings SET slot_id = NULL, updated_at = ? WHERE slot_id = ?`,
			dbTime(time.Now()), id,
		)
		if err != nil {
			return fmt.Errorf("detach bookings from slot %d: %w", id, err)
		}
		if detached, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("detach bookings from slot %d: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete slot %d: %w", id, err)
		}
		deleted = s
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return deleted, detached, nil
}

// refreshOccupancy sets is_booked from the presence of a confirmed booking.
func refreshOccupancy(ctx context.Context, tx *sql.Tx, slotID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE slots
		SET is_booked = EXISTS (
				SELECT 1 FROM bookings WHERE slot_id = slots.id AND status = 'confirmed'
			),
			updated_at = ?
		WHERE id = ?
		AND is_booked != EXISTS (
				SELECT 1 FROM bookings WHERE slot_id = slots.id AND status = 'confirmed'
			)`,
		dbTime(time.Now()), slotID,
	)
	if err != nil {
		return fmt.Errorf("refresh occupancy of slot %d: %w", slotID, err)
	}
	return nil
}

// occupySlot flips an open slot to booked. Losing the race means another
// confirmed booking already holds it.
func occupySlot(ctx context.Context, tx *sql.Tx, slotID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE slots SET is_booked = 1, updated_at = ? WHERE id = ? AND is_booked = 0`,
		dbTime(time.Now()), slotID,
	)
	if err != nil {
		return fmt.Errorf("occupy slot %d: %w", slotID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("occupy slot %d: %w", slotID, err)
	}
	if n == 0 {
		return models.ErrSlotAlreadyBooked
	}
	return nil
}

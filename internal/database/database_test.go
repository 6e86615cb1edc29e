package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "slotbook.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var testStart = time.Date(2024, 2, 21, 10, 0, 0, 0, time.UTC)

func mustSlot(t *testing.T, db *DB, start time.Time) *models.Slot {
	t.Helper()
	s := &models.Slot{StartTime: start, EndTime: start.Add(time.Hour)}
	require.NoError(t, db.CreateSlot(context.Background(), s))
	return s
}

func newBooking(code string, slotID *int64, status models.BookingStatus) *models.Booking {
	return &models.Booking{
		BookingID: code,
		Booker: models.Booker{
			FirstName: "John",
			LastName:  "Doe",
			Email:     "john@example.com",
			Phone:     "+123456789",
		},
		SlotID: slotID,
		Status: status,
	}
}

func assertConsistent(t *testing.T, db *DB) {
	t.Helper()
	bad, err := db.CheckOccupancy(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bad, "slots with inconsistent is_booked")
}

func TestSlots(t *testing.T) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)
		assert.NotZero(t, s.ID)

		got, err := db.GetSlot(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, got.StartTime.Equal(testStart))
		assert.True(t, got.EndTime.Equal(testStart.Add(time.Hour)))
		assert.False(t, got.IsBooked)
	})

	t.Run("get missing", func(t *testing.T) {
		db := newTestDB(t)
		_, err := db.GetSlot(ctx, 42)
		assert.ErrorIs(t, err, models.ErrSlotNotFound)
	})

	t.Run("create if absent is idempotent", func(t *testing.T) {
		db := newTestDB(t)
		s, created, err := db.CreateSlotIfAbsent(ctx, testStart, testStart.Add(time.Hour))
		require.NoError(t, err)
		require.True(t, created)
		require.NotNil(t, s)

		s, created, err = db.CreateSlotIfAbsent(ctx, testStart, testStart.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Nil(t, s)

		all, err := db.ListSlots(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("list available filters window and booked", func(t *testing.T) {
		db := newTestDB(t)
		a := mustSlot(t, db, testStart)
		b := mustSlot(t, db, testStart.Add(time.Hour))
		mustSlot(t, db, testStart.Add(24*time.Hour))

		require.NoError(t, db.InsertBooking(ctx, newBooking("BK-1", &a.ID, models.StatusConfirmed)))

		day := time.Date(2024, 2, 21, 0, 0, 0, 0, time.UTC)
		open, err := db.ListAvailableSlots(ctx, day, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, b.ID, open[0].ID)
	})

	t.Run("update applies patch", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)
		newEnd := testStart.Add(90 * time.Minute)

		updated, err := db.UpdateSlot(ctx, s.ID, models.SlotPatch{EndTime: &newEnd})
		require.NoError(t, err)
		assert.True(t, updated.StartTime.Equal(testStart))
		assert.True(t, updated.EndTime.Equal(newEnd))

		got, err := db.GetSlot(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, got.EndTime.Equal(newEnd))
	})

	t.Run("update rejects inverted window", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)
		badEnd := testStart.Add(-time.Hour)

		_, err := db.UpdateSlot(ctx, s.ID, models.SlotPatch{EndTime: &badEnd})
		assert.ErrorIs(t, err, models.ErrInvalidSlotWindow)
	})

	t.Run("delete detaches bookings", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)
		require.NoError(t, db.InsertBooking(ctx, newBooking("BK-1", &s.ID, models.StatusCancelled)))
		require.NoError(t, db.InsertBooking(ctx, newBooking("BK-2", &s.ID, models.StatusConfirmed)))

		deleted, detached, err := db.DeleteSlot(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, deleted.ID)
		assert.EqualValues(t, 2, detached)

		bookings, err := db.ListBookings(ctx)
		require.NoError(t, err)
		require.Len(t, bookings, 2)
		for _, b := range bookings {
			assert.Nil(t, b.SlotID)
		}
		assert.Equal(t, models.StatusCancelled, bookings[0].Status)
		assert.Equal(t, models.StatusConfirmed, bookings[1].Status)

		_, _, err = db.DeleteSlot(ctx, s.ID)
		assert.ErrorIs(t, err, models.ErrSlotNotFound)
	})
}

func TestInsertBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed marks slot booked", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)

		b := newBooking("BK-1", &s.ID, models.StatusConfirmed)
		require.NoError(t, db.InsertBooking(ctx, b))
		assert.NotZero(t, b.ID)
		assert.False(t, b.CreatedAt.IsZero())

		got, err := db.GetSlot(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, got.IsBooked)
		assertConsistent(t, db)
	})

	t.Run("second confirmed is rejected", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)
		require.NoError(t, db.InsertBooking(ctx, newBooking("BK-1", &s.ID, models.StatusConfirmed)))

		err := db.InsertBooking(ctx, newBooking("BK-2", &s.ID, models.StatusConfirmed))
		assert.ErrorIs(t, err, models.ErrSlotAlreadyBooked)

		bookings, err := db.ListBookingsBySlot(ctx, s.ID)
		require.NoError(t, err)
		assert.Len(t, bookings, 1)
	})

	t.Run("pending on booked slot is rejected", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)
		require.NoError(t, db.InsertBooking(ctx, newBooking("BK-1", &s.ID, models.StatusConfirmed)))

		err := db.InsertBooking(ctx, newBooking("BK-2", &s.ID, models.StatusPending))
		assert.ErrorIs(t, err, models.ErrSlotAlreadyBooked)
	})

	t.Run("pending does not hold slot", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)
		require.NoError(t, db.InsertBooking(ctx, newBooking("BK-1", &s.ID, models.StatusPending)))
		require.NoError(t, db.InsertBooking(ctx, newBooking("BK-2", &s.ID, models.StatusPending)))

		got, err := db.GetSlot(ctx, s.ID)
		require.NoError(t, err)
		assert.False(t, got.IsBooked)
		assertConsistent(t, db)
	})

	t.Run("unknown slot", func(t *testing.T) {
		db := newTestDB(t)
		missing := int64(99)
		err := db.InsertBooking(ctx, newBooking("BK-1", &missing, models.StatusConfirmed))
		assert.ErrorIs(t, err, models.ErrSlotNotFound)
	})

	t.Run("duplicate code", func(t *testing.T) {
		db := newTestDB(t)
		a := mustSlot(t, db, testStart)
		b := mustSlot(t, db, testStart.Add(time.Hour))
		require.NoError(t, db.InsertBooking(ctx, newBooking("BK-1", &a.ID, models.StatusConfirmed)))

		err := db.InsertBooking(ctx, newBooking("BK-1", &b.ID, models.StatusConfirmed))
		assert.ErrorIs(t, err, models.ErrDuplicateBookingCode)

		got, err := db.GetSlot(ctx, b.ID)
		require.NoError(t, err)
		assert.False(t, got.IsBooked, "failed insert must roll back the slot flag")
	})

	t.Run("lookup by code", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)
		require.NoError(t, db.InsertBooking(ctx, newBooking("BK-XYZ", &s.ID, models.StatusConfirmed)))

		got, err := db.GetBookingByCode(ctx, "BK-XYZ")
		require.NoError(t, err)
		assert.Equal(t, "John", got.Booker.FirstName)
		require.NotNil(t, got.SlotID)
		assert.Equal(t, s.ID, *got.SlotID)

		_, err = db.GetBookingByCode(ctx, "BK-NOPE")
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
	})

	t.Run("concurrent confirmed inserts", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)

		const writers = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			ok       int
			conflict int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := db.InsertBooking(ctx, newBooking(models.NewBookingCode(testStart)+string(rune('a'+i)), &s.ID, models.StatusConfirmed))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case assert.ErrorIs(t, err, models.ErrSlotAlreadyBooked):
					conflict++
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, ok)
		assert.Equal(t, writers-1, conflict)
		assertConsistent(t, db)
	})
}

func TestSetBookingStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel frees slot", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)
		b := newBooking("BK-1", &s.ID, models.StatusConfirmed)
		require.NoError(t, db.InsertBooking(ctx, b))

		updated, changed, err := db.SetBookingStatus(ctx, b.ID, models.StatusCancelled)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.StatusCancelled, updated.Status)

		got, err := db.GetSlot(ctx, s.ID)
		require.NoError(t, err)
		assert.False(t, got.IsBooked)
		assertConsistent(t, db)
	})

	t.Run("unchanged status", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)
		b := newBooking("BK-1", &s.ID, models.StatusCancelled)
		require.NoError(t, db.InsertBooking(ctx, b))

		_, changed, err := db.SetBookingStatus(ctx, b.ID, models.StatusCancelled)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("confirm pending takes slot", func(t *testing.T) {
		db := newTestDB(t)
		s := mustSlot(t, db, testStart)
		a := newBooking("BK-1", &s.ID, models.StatusPending)
		b := newBooking("BK-2", &s.ID, models.StatusPending)
		require.NoError(t, db.InsertBooking(ctx, a))
		require.NoError(t, db.InsertBooking(ctx, b))

		_, _, err := db.SetBookingStatus(ctx, a.ID, models.StatusConfirmed)
		require.NoError(t, err)

		_, _, err = db.SetBookingStatus(ctx, b.ID, models.StatusConfirmed)
		assert.ErrorIs(t, err, models.ErrSlotAlreadyBooked)

		got, err := db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assertConsistent(t, db)
	})

	t.Run("missing booking", func(t *testing.T) {
		db := newTestDB(t)
		_, _, err := db.SetBookingStatus(ctx, 7, models.StatusCancelled)
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
	})
}

func TestDeleteBooking(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := mustSlot(t, db, testStart)
	b := newBooking("BK-1", &s.ID, models.StatusConfirmed)
	require.NoError(t, db.InsertBooking(ctx, b))

	deleted, err := db.DeleteBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "BK-1", deleted.BookingID)

	got, err := db.GetSlot(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsBooked)

	_, err = db.DeleteBooking(ctx, b.ID)
	assert.ErrorIs(t, err, models.ErrBookingNotFound)

	// The slot can be booked again.
	require.NoError(t, db.InsertBooking(ctx, newBooking("BK-2", &s.ID, models.StatusConfirmed)))
	assertConsistent(t, db)
}

func TestBackupService(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mustSlot(t, db, testStart)

	logger := zerolog.New(io.Discard)
	dir := t.TempDir()
	svc := NewBackupService(db, config.BackupConfig{Enabled: true, Path: dir, RetentionDays: 7}, &logger)

	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)
	require.FileExists(t, path)

	restored, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer restored.Close()
	slots, err := restored.ListSlots(ctx)
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	old := filepath.Join(dir, "slotbook_20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))
	unrelated := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(unrelated, past, past))

	assert.Equal(t, 1, svc.CleanupOldBackups())
	assert.NoFileExists(t, old)
	assert.FileExists(t, unrelated)
	assert.FileExists(t, path)
}

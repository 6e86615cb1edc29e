package slots

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"slotbook/internal/database"
	"slotbook/internal/events"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "slots.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustConfig(t *testing.T, day string, start, end int) models.SlotConfiguration {
	t.Helper()
	cfg, err := models.ParseSlotConfiguration(day, start, end)
	require.NoError(t, err)
	return cfg
}

// failingStore fails on a chosen start hour.
type failingStore struct {
	Store
	failHour int
}

func (f *failingStore) CreateSlotIfAbsent(ctx context.Context, start, end time.Time) (*models.Slot, bool, error) {
	if start.Hour() == f.failHour {
		return nil, false, errors.New("disk full")
	}
	return f.Store.CreateSlotIfAbsent(ctx, start, end)
}

func TestGenerateSlots(t *testing.T) {
	ctx := context.Background()

	t.Run("two hours make two slots", func(t *testing.T) {
		db := newTestDB(t)
		g := NewGenerator(db)

		n, err := g.GenerateSlots(ctx, mustConfig(t, "2024-02-21", 10, 12))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		slots, err := db.ListSlots(ctx)
		require.NoError(t, err)
		require.Len(t, slots, 2)
		assert.True(t, slots[0].StartTime.Equal(time.Date(2024, 2, 21, 10, 0, 0, 0, time.UTC)))
		assert.True(t, slots[0].EndTime.Equal(time.Date(2024, 2, 21, 11, 0, 0, 0, time.UTC)))
		assert.True(t, slots[1].StartTime.Equal(time.Date(2024, 2, 21, 11, 0, 0, 0, time.UTC)))
		assert.True(t, slots[1].EndTime.Equal(time.Date(2024, 2, 21, 12, 0, 0, 0, time.UTC)))
		for _, s := range slots {
			assert.False(t, s.IsBooked)
		}
	})

	t.Run("second run is idempotent", func(t *testing.T) {
		db := newTestDB(t)
		g := NewGenerator(db)
		cfg := mustConfig(t, "2024-02-21", 10, 12)

		_, err := g.GenerateSlots(ctx, cfg)
		require.NoError(t, err)
		n, err := g.GenerateSlots(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		slots, err := db.ListSlots(ctx)
		require.NoError(t, err)
		assert.Len(t, slots, 2)
	})

	t.Run("overlapping configuration fills gaps", func(t *testing.T) {
		db := newTestDB(t)
		g := NewGenerator(db)

		_, err := g.GenerateSlots(ctx, mustConfig(t, "2024-02-21", 10, 12))
		require.NoError(t, err)
		n, err := g.GenerateSlots(ctx, mustConfig(t, "2024-02-21", 9, 13))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		db := newTestDB(t)
		g := NewGenerator(db)

		cfg := models.SlotConfiguration{Day: time.Date(2024, 2, 21, 0, 0, 0, 0, time.UTC), StartHour: 12, EndHour: 10}
		n, err := g.GenerateSlots(ctx, cfg)
		assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
		assert.Equal(t, 0, n)
	})

	t.Run("configured timezone", func(t *testing.T) {
		loc, err := time.LoadLocation("Europe/Berlin")
		require.NoError(t, err)

		db := newTestDB(t)
		g := NewGenerator(db, WithLocation(loc))

		_, err = g.GenerateSlots(ctx, mustConfig(t, "2024-02-21", 10, 11))
		require.NoError(t, err)

		slots, err := db.ListSlots(ctx)
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.True(t, slots[0].StartTime.Equal(time.Date(2024, 2, 21, 9, 0, 0, 0, time.UTC)))
	})

	t.Run("custom step drops partial tail", func(t *testing.T) {
		db := newTestDB(t)
		g := NewGenerator(db, WithStep(45*time.Minute))

		n, err := g.GenerateSlots(ctx, mustConfig(t, "2024-02-21", 10, 12))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("publishes slot created events", func(t *testing.T) {
		db := newTestDB(t)
		bus := events.NewBus()
		defer bus.Close()
		sub := bus.Subscribe(events.And(events.ForKind(events.KindSlot), events.ForOperation(events.OpCreated)))

		g := NewGenerator(db, WithPublisher(bus))
		cfg := mustConfig(t, "2024-02-21", 10, 12)
		_, err := g.GenerateSlots(ctx, cfg)
		require.NoError(t, err)
		_, err = g.GenerateSlots(ctx, cfg)
		require.NoError(t, err)

		assert.Len(t, sub.C(), 2)
	})
}

func TestGenerateBatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	g := NewGenerator(&failingStore{Store: db, failHour: 15})

	cfgs := []models.SlotConfiguration{
		mustConfig(t, "2024-02-21", 10, 12),
		mustConfig(t, "2024-02-22", 14, 17),
		{Day: time.Date(2024, 2, 23, 0, 0, 0, 0, time.UTC), StartHour: 9, EndHour: 24},
		mustConfig(t, "2024-02-24", 8, 9),
	}

	res := g.GenerateBatch(ctx, cfgs)
	require.Len(t, res.Results, 4)

	assert.Equal(t, 2, res.Results[0].Created)
	assert.NoError(t, res.Results[0].Err)

	// 14:00 succeeds before 15:00 fails.
	assert.Equal(t, 1, res.Results[1].Created)
	assert.Error(t, res.Results[1].Err)

	assert.ErrorIs(t, res.Results[2].Err, models.ErrInvalidConfiguration)

	assert.Equal(t, 1, res.Results[3].Created)
	assert.NoError(t, res.Results[3].Err)

	assert.Equal(t, 4, res.Total)
	assert.Len(t, res.Failed(), 2)
}

package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"slotbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotEvent(id int64, op Operation) Event {
	return SlotEvent(op, &models.Slot{ID: id})
}

func bookingEvent(id int64, op Operation) Event {
	return BookingEvent(op, &models.Booking{ID: id, Status: models.StatusConfirmed})
}

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case e := <-s.C():
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

func TestFilters(t *testing.T) {
	created := bookingEvent(1, OpCreated)
	deleted := slotEvent(2, OpDeleted)

	tests := []struct {
		name   string
		filter Filter
		want   []bool
	}{
		{"all", All(), []bool{true, true}},
		{"booking kind", ForKind(KindBooking), []bool{true, false}},
		{"deleted", ForOperation(OpDeleted), []bool{false, true}},
		{"slot deleted", And(ForKind(KindSlot), ForOperation(OpDeleted)), []bool{false, true}},
		{"booking deleted", And(ForKind(KindBooking), ForOperation(OpDeleted)), []bool{false, false}},
		{"and with nil", And(nil, ForKind(KindBooking)), []bool{true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want[0], tt.filter(created))
			assert.Equal(t, tt.want[1], tt.filter(deleted))
		})
	}
}

func TestBookingEventCopiesSnapshot(t *testing.T) {
	slotID := int64(3)
	b := &models.Booking{ID: 1, SlotID: &slotID, Status: models.StatusConfirmed}
	e := BookingEvent(OpUpdated, b)

	b.Status = models.StatusCancelled
	slotID = 9

	assert.Equal(t, models.StatusConfirmed, e.Booking.Status)
	assert.EqualValues(t, 3, *e.Booking.SlotID)
	assert.EqualValues(t, 1, e.EntityID())
	assert.Equal(t, KindBooking, e.Kind)
}

func TestBus_PublishSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("filtered delivery with sequence", func(t *testing.T) {
		bus := NewBus()
		defer bus.Close()

		bookings := bus.Subscribe(ForKind(KindBooking))
		everything := bus.Subscribe(nil)

		require.NoError(t, bus.Publish(ctx, bookingEvent(1, OpCreated)))
		require.NoError(t, bus.Publish(ctx, slotEvent(2, OpCreated)))
		require.NoError(t, bus.Publish(ctx, bookingEvent(1, OpUpdated)))

		e := receive(t, bookings)
		assert.Equal(t, OpCreated, e.Operation)
		assert.EqualValues(t, 1, e.Seq)
		e = receive(t, bookings)
		assert.Equal(t, OpUpdated, e.Operation)
		assert.EqualValues(t, 3, e.Seq)
		assertNoEvent(t, bookings)

		for want := uint64(1); want <= 3; want++ {
			assert.Equal(t, want, receive(t, everything).Seq)
		}
	})

	t.Run("no replay for late subscribers", func(t *testing.T) {
		bus := NewBus()
		defer bus.Close()

		require.NoError(t, bus.Publish(ctx, slotEvent(1, OpCreated)))
		late := bus.Subscribe(All())
		assertNoEvent(t, late)
	})

	t.Run("unsubscribe closes channel", func(t *testing.T) {
		bus := NewBus()
		defer bus.Close()

		s := bus.Subscribe(All())
		assert.Equal(t, 1, bus.Subscribers())
		s.Close()
		s.Close()
		assert.Equal(t, 0, bus.Subscribers())

		_, ok := <-s.C()
		assert.False(t, ok)
		require.NoError(t, bus.Publish(ctx, slotEvent(1, OpCreated)))
	})

	t.Run("closed bus", func(t *testing.T) {
		bus := NewBus()
		s := bus.Subscribe(All())
		bus.Close()
		bus.Close()

		_, ok := <-s.C()
		assert.False(t, ok)
		assert.ErrorIs(t, bus.Publish(ctx, slotEvent(1, OpCreated)), ErrBusClosed)

		after := bus.Subscribe(All())
		_, ok = <-after.C()
		assert.False(t, ok)
		after.Close()
	})
}

func TestBus_DropOldest(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()
	defer bus.Close()

	slow := bus.Subscribe(All(), WithBuffer(2))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 5; i++ {
			assert.NoError(t, bus.Publish(ctx, slotEvent(i, OpCreated)))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.EqualValues(t, 3, slow.Dropped())
	assert.EqualValues(t, 4, receive(t, slow).EntityID())
	assert.EqualValues(t, 5, receive(t, slow).EntityID())
	assertNoEvent(t, slow)
}

func TestBus_ConcurrentPublishersKeepOneOrder(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(WithDefaultBuffer(1000))
	defer bus.Close()

	a := bus.Subscribe(All())
	b := bus.Subscribe(All())

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = bus.Publish(ctx, slotEvent(int64(p*100+i), OpUpdated))
			}
		}(p)
	}
	wg.Wait()

	for i := 0; i < 200; i++ {
		ea, eb := receive(t, a), receive(t, b)
		assert.Equal(t, ea.Seq, eb.Seq)
		assert.Equal(t, ea.EntityID(), eb.EntityID())
		assert.EqualValues(t, i+1, ea.Seq)
	}
}

func TestBus_PanickingFilterIsIsolated(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	broken := bus.Subscribe(func(Event) bool { panic("boom") })
	healthy := bus.Subscribe(All())

	require.NotPanics(t, func() {
		require.NoError(t, bus.Publish(context.Background(), bookingEvent(1, OpCreated)))
	})

	got := receive(t, healthy)
	assert.EqualValues(t, 1, got.Booking.ID)
	assertNoEvent(t, broken)
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(bookingCreated.WithLabelValues("confirmed"))
	IncBookingCreated("confirmed")
	IncBookingCreated("confirmed")
	assert.Equal(t, before+2, testutil.ToFloat64(bookingCreated.WithLabelValues("confirmed")))

	before = testutil.ToFloat64(slotsGenerated)
	AddSlotsGenerated(3)
	AddSlotsGenerated(0)
	assert.Equal(t, before+3, testutil.ToFloat64(slotsGenerated))

	before = testutil.ToFloat64(eventsPublished.WithLabelValues("booking", "created"))
	IncEventPublished("booking", "created")
	assert.Equal(t, before+1, testutil.ToFloat64(eventsPublished.WithLabelValues("booking", "created")))

	SetSubscribers(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(subscribers))
	SetSubscribers(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(subscribers))
}

func TestRegisterIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})

	families, err := prometheus.DefaultGatherer.Gather()
	assert.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["slotbook_event_subscribers"])
}

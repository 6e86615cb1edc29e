package slots

import (
	"context"
	"fmt"
	"io"
	"time"

	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

// DefaultStep is the length of generated slots.
const DefaultStep = time.Hour

// Store creates slots without duplicating an existing window.
type Store interface {
	CreateSlotIfAbsent(ctx context.Context, start, end time.Time) (*models.Slot, bool, error)
}

// Generator materialises slot configurations into bookable slots.
type Generator struct {
	store     Store
	publisher events.Publisher
	location  *time.Location
	step      time.Duration
	logger    *zerolog.Logger
}

type Option func(*Generator)

// WithLocation sets the timezone the configured hours are read in.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.location = loc
		}
	}
}

// WithStep sets the slot length. It must divide the configured hours evenly to
// cover them completely; a trailing partial slot is not created.
func WithStep(step time.Duration) Option {
	return func(g *Generator) {
		if step > 0 {
			g.step = step
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(g *Generator) { g.publisher = p }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator creates a new slot generator.
func NewGenerator(store Store, opts ...Option) *Generator {
	nop := zerolog.New(io.Discard)
	g := &Generator{
		store:    store,
		location: time.UTC,
		step:     DefaultStep,
		logger:   &nop,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Window returns the absolute bounds of a configuration in the generator's
// timezone.
func (g *Generator) Window(cfg models.SlotConfiguration) (time.Time, time.Time) {
	y, m, d := cfg.Day.Date()
	start := time.Date(y, m, d, cfg.StartHour, 0, 0, 0, g.location)
	end := time.Date(y, m, d, cfg.EndHour, 0, 0, 0, g.location)
	return start, end
}

// GenerateSlots creates the missing slots of one configuration and returns how
// many were created. Running it twice creates nothing the second time.
func (g *Generator) GenerateSlots(ctx context.Context, cfg models.SlotConfiguration) (int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	start, end := g.Window(cfg)
	created := 0
	for cursor := start; !cursor.Add(g.step).After(end); cursor = cursor.Add(g.step) {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		slot, ok, err := g.store.CreateSlotIfAbsent(ctx, cursor, cursor.Add(g.step))
		if err != nil {
			return created, fmt.Errorf("create slot at %s: %w", cursor.Format(time.RFC3339), err)
		}
		if !ok {
			continue
		}
		created++
		g.publish(ctx, slot)
	}

	metrics.AddSlotsGenerated(created)
	g.logger.Info().
		Str("day", cfg.Day.Format(models.DateLayout)).
		Int("start_hour", cfg.StartHour).
		Int("end_hour", cfg.EndHour).
		Int("created", created).
		Msg("Slots generated")
	return created, nil
}

func (g *Generator) publish(ctx context.Context, slot *models.Slot) {
	if g.publisher == nil {
		return
	}
	if err := g.publisher.Publish(ctx, events.SlotEvent(events.OpCreated, slot)); err != nil {
		g.logger.Warn().Err(err).Int64("slot_id", slot.ID).Msg("Failed to publish slot event")
	}
}

// ConfigResult is the outcome of one configuration in a batch.
type ConfigResult struct {
	Config  models.SlotConfiguration
	Created int
	Err     error
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	Total   int
	Results []ConfigResult
}

// Failed returns the results that ended in an error.
func (r BatchResult) Failed() []ConfigResult {
	var failed []ConfigResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// GenerateBatch runs every configuration in order. A failing configuration is
// reported in its result and does not stop the rest.
func (g *Generator) GenerateBatch(ctx context.Context, cfgs []models.SlotConfiguration) BatchResult {
	result := BatchResult{Results: make([]ConfigResult, 0, len(cfgs))}
	for _, cfg := range cfgs {
		n, err := g.GenerateSlots(ctx, cfg)
		if err != nil {
			g.logger.Warn().Err(err).Str("config", cfg.String()).Msg("Slot generation failed")
		}
		result.Total += n
		result.Results = append(result.Results, ConfigResult{Config: cfg, Created: n, Err: err})
	}
	return result
}

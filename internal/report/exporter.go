package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

const timeLayout = "2006-01-02 15:04"

var (
	slotColumns    = []string{"ID", "Start", "End", "Booked", "Created"}
	bookingColumns = []string{"ID", "Code", "First name", "Last name", "Email", "Phone", "Slot", "Status", "Created"}
)

// Source lists what gets exported.
type Source interface {
	ListSlots(ctx context.Context) ([]models.Slot, error)
	ListBookings(ctx context.Context) ([]models.Booking, error)
}

// Exporter writes slots and bookings to an xlsx workbook.
type Exporter struct {
	source   Source
	location *time.Location
	logger   *zerolog.Logger
}

// NewExporter renders times in loc (UTC if nil).
func NewExporter(source Source, loc *time.Location, logger *zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{source: source, location: loc, logger: logger}
}

// Filename returns the default export name for t.
func Filename(t time.Time) string {
	return fmt.Sprintf("slotbook_%s.xlsx", t.Format("20060102_1504"))
}

// Export writes a workbook with a Slots and a Bookings sheet.
func (e *Exporter) Export(ctx context.Context, out io.Writer) error {
	slots, err := e.source.ListSlots(ctx)
	if err != nil {
		return fmt.Errorf("list slots: %w", err)
	}
	bookings, err := e.source.ListBookings(ctx)
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}

	w := newSheetWriter()
	defer w.close()

	if err := w.addSheet("Slots"); err != nil {
		return err
	}
	if err := w.writeHeader(slotColumns); err != nil {
		return err
	}
	for _, s := range slots {
		if err := w.writeRow([]any{
			s.ID, e.format(s.StartTime), e.format(s.EndTime), s.IsBooked, e.format(s.CreatedAt),
		}); err != nil {
			return err
		}
	}

	if err := w.addSheet("Bookings"); err != nil {
		return err
	}
	if err := w.writeHeader(bookingColumns); err != nil {
		return err
	}
	for _, b := range bookings {
		var slot any = ""
		if b.SlotID != nil {
			slot = *b.SlotID
		}
		if err := w.writeRow([]any{
			b.ID, b.BookingID, b.Booker.FirstName, b.Booker.LastName, b.Booker.Email,
			b.Booker.Phone, slot, string(b.Status), e.format(b.CreatedAt),
		}); err != nil {
			return err
		}
	}

	if err := w.save(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	e.logger.Info().Int("slots", len(slots)).Int("bookings", len(bookings)).Msg("Export completed")
	return nil
}

// ExportFile writes the workbook to path.
func (e *Exporter) ExportFile(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := e.Export(ctx, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (e *Exporter) format(t time.Time) string {
	return t.In(e.location).Format(timeLayout)
}

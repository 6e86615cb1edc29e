package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format accepted by configurations and queries.
const DateLayout = "2006-01-02"

// Slot is a fixed interval that can hold at most one confirmed booking.
type Slot struct {
	ID        int64     `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	IsBooked  bool      `json:"is_booked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Duration returns the length of the slot.
func (s *Slot) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

func (s *Slot) String() string {
	state := "Open"
	if s.IsBooked {
		state = "Booked"
	}
	return fmt.Sprintf("%s to %s - %s", s.StartTime.Format(time.RFC3339), s.EndTime.Format(time.RFC3339), state)
}

// SlotPatch carries a partial slot update; nil fields are left unchanged.
type SlotPatch struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SlotPatch) IsEmpty() bool {
	return p.StartTime == nil && p.EndTime == nil
}

// Apply returns a copy of s with the patch applied.
func (p SlotPatch) Apply(s Slot) Slot {
	if p.StartTime != nil {
		s.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		s.EndTime = *p.EndTime
	}
	return s
}

// ValidateWindow checks that end is strictly after start.
func ValidateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return ErrInvalidSlotWindow
	}
	return nil
}

// SlotConfiguration describes one day of hourly slots in [StartHour, EndHour).
type SlotConfiguration struct {
	Day       time.Time `json:"day" yaml:"-"`
	StartHour int       `json:"start_hour" yaml:"start_hour"`
	EndHour   int       `json:"end_hour" yaml:"end_hour"`
}

// ParseSlotConfiguration builds a configuration from a YYYY-MM-DD day.
func ParseSlotConfiguration(day string, startHour, endHour int) (SlotConfiguration, error) {
	d, err := time.Parse(DateLayout, day)
	if err != nil {
		return SlotConfiguration{}, fmt.Errorf("%w: day %q", ErrInvalidConfiguration, day)
	}
	cfg := SlotConfiguration{Day: d, StartHour: startHour, EndHour: endHour}
	return cfg, cfg.Validate()
}

// Validate checks the hour bounds.
func (c SlotConfiguration) Validate() error {
	if c.Day.IsZero() {
		return fmt.Errorf("%w: day is required", ErrInvalidConfiguration)
	}
	if c.StartHour < 0 || c.StartHour > 23 || c.EndHour < 0 || c.EndHour > 23 {
		return fmt.Errorf("%w: hours must be within 0-23", ErrInvalidConfiguration)
	}
	if c.EndHour <= c.StartHour {
		return fmt.Errorf("%w: end hour must be greater than start hour", ErrInvalidConfiguration)
	}
	return nil
}

func (c SlotConfiguration) String() string {
	return fmt.Sprintf("Configuration for %s: %d to %d", c.Day.Format(DateLayout), c.StartHour, c.EndHour)
}

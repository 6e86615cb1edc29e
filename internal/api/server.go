package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/models"
	"slotbook/internal/reservation"
	"slotbook/internal/slots"

	"github.com/rs/zerolog"
)

// Reservations is the write side the API drives.
type Reservations interface {
	CreateBooking(ctx context.Context, req reservation.BookingRequest) (*models.Booking, error)
	CancelBooking(ctx context.Context, id int64) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status models.BookingStatus) (*models.Booking, error)
	DeleteBooking(ctx context.Context, id int64) error
	CreateSlot(ctx context.Context, start, end time.Time) (*models.Slot, error)
	UpdateSlot(ctx context.Context, id int64, patch models.SlotPatch) (*models.Slot, error)
	DeleteSlot(ctx context.Context, id int64) error
}

// Queries is the read side the API serves.
type Queries interface {
	ListSlots(ctx context.Context) ([]models.Slot, error)
	AvailableSlots(ctx context.Context, date string) ([]models.Slot, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByCode(ctx context.Context, code string) (*models.Booking, error)
	ListBookings(ctx context.Context) ([]models.Booking, error)
}

// SlotGenerator materialises slot configurations.
type SlotGenerator interface {
	GenerateBatch(ctx context.Context, cfgs []models.SlotConfiguration) slots.BatchResult
}

// Config holds HTTP server settings.
type Config struct {
	Port int
	// BookingRate is the sustained booking creations per second per client.
	BookingRate  float64
	BookingBurst int
	// Heartbeat is the interval of keep-alive comments on event streams.
	Heartbeat time.Duration
}

// HTTPServer exposes slots, bookings and the change stream over HTTP.
type HTTPServer struct {
	reservations Reservations
	queries      Queries
	generator    SlotGenerator
	bus          *events.Bus
	limiter      *ipLimiter
	heartbeat    time.Duration
	logger       *zerolog.Logger
	server       *http.Server
}

func NewHTTPServer(cfg Config, reservations Reservations, queries Queries, generator SlotGenerator, bus *events.Bus, logger *zerolog.Logger) *HTTPServer {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	if cfg.BookingRate <= 0 {
		cfg.BookingRate = 0.5
	}
	s := &HTTPServer{
		reservations: reservations,
		queries:      queries,
		generator:    generator,
		bus:          bus,
		limiter:      newIPLimiter(cfg.BookingRate, cfg.BookingBurst),
		heartbeat:    cfg.Heartbeat,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/slots", s.handleListSlots)
	mux.HandleFunc("GET /api/slots/available", s.handleAvailableSlots)
	mux.HandleFunc("POST /api/slots", s.handleCreateSlot)
	mux.HandleFunc("POST /api/slots/generate", s.handleGenerateSlots)
	mux.HandleFunc("PATCH /api/slots/{id}", s.handleUpdateSlot)
	mux.HandleFunc("DELETE /api/slots/{id}", s.handleDeleteSlot)

	mux.HandleFunc("GET /api/bookings", s.handleListBookings)
	mux.HandleFunc("POST /api/bookings", s.rateLimited(s.handleCreateBooking))
	mux.HandleFunc("GET /api/bookings/{id}", s.handleGetBooking)
	mux.HandleFunc("DELETE /api/bookings/{id}", s.handleDeleteBooking)
	mux.HandleFunc("POST /api/bookings/{id}/cancel", s.handleCancelBooking)
	mux.HandleFunc("PATCH /api/bookings/{id}/status", s.handleUpdateBookingStatus)

	mux.HandleFunc("GET /api/events", s.handleEvents)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called. The limiter janitor stops with ctx.
func (s *HTTPServer) Start(ctx context.Context) error {
	go s.limiter.janitor(ctx, 2*time.Minute)
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func (s *HTTPServer) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.allow(ip) {
			metrics.IncRateLimited()
			s.logger.Warn().Str("ip", ip).Msg("Rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded; try again later")
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets event streams flush through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeDomainError maps an error kind to its HTTP status.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	kind := models.ErrorKind(err)
	status := http.StatusInternalServerError
	switch {
	case kind == models.KindSlotNotFound || kind == models.KindBookingNotFound:
		status = http.StatusNotFound
	case kind == models.KindSlotAlreadyBooked:
		status = http.StatusConflict
	case models.IsValidationError(err):
		status = http.StatusBadRequest
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("Request failed")
		message = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

package api

import (
	"net/http"
	"strings"

	"slotbook/internal/metrics"
	"slotbook/internal/models"
	"slotbook/internal/reservation"
)

// UpdateStatusRequest is the body of PATCH /api/bookings/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// handleListBookings returns all bookings, or the one matching ?code=.
// GET /api/bookings
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_bookings")
	if code := strings.TrimSpace(r.URL.Query().Get("code")); code != "" {
		b, err := s.queries.GetBookingByCode(r.Context(), code)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": []*models.Booking{b}})
		return
	}

	list, err := s.queries.ListBookings(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

// handleCreateBooking books a slot.
// POST /api/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")
	var req reservation.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SlotID == nil {
		writeError(w, http.StatusBadRequest, "slot_id is required")
		return
	}

	b, err := s.reservations.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleGetBooking returns one booking.
// GET /api/bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_booking")
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.queries.GetBooking(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleCancelBooking cancels a booking. Repeating it is harmless.
// POST /api/bookings/{id}/cancel
func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_booking")
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.reservations.CancelBooking(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleUpdateBookingStatus sets a booking status.
// PATCH /api/bookings/{id}/status
func (s *HTTPServer) handleUpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_booking_status")
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	b, err := s.reservations.UpdateBookingStatus(r.Context(), id, status)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleDeleteBooking removes a booking.
// DELETE /api/bookings/{id}
func (s *HTTPServer) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_booking")
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.reservations.DeleteBooking(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

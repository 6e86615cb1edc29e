package api

import (
	"net/http"
	"time"

	"slotbook/internal/metrics"
	"slotbook/internal/models"
)

// CreateSlotRequest is the body of POST /api/slots. Times are RFC 3339.
type CreateSlotRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// GenerateRequest is the body of POST /api/slots/generate.
type GenerateRequest struct {
	Configurations []ConfigurationRequest `json:"configurations"`
}

// ConfigurationRequest is one day of slots to generate.
type ConfigurationRequest struct {
	Day       string `json:"day"` // Format: YYYY-MM-DD
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
}

// ConfigurationResult reports one configuration of a generate request.
type ConfigurationResult struct {
	Day       string `json:"day"`
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	Created   int    `json:"created"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// GenerateResponse is the response of POST /api/slots/generate.
type GenerateResponse struct {
	Total   int                   `json:"total"`
	Results []ConfigurationResult `json:"results"`
}

// handleListSlots returns every slot.
// GET /api/slots
func (s *HTTPServer) handleListSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_slots")
	list, err := s.queries.ListSlots(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": list})
}

// handleAvailableSlots returns open slots of one day.
// GET /api/slots/available?date=YYYY-MM-DD
func (s *HTTPServer) handleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("available_slots")
	date := r.URL.Query().Get("date")
	list, err := s.queries.AvailableSlots(r.Context(), date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": list})
}

// handleCreateSlot adds a single slot.
// POST /api/slots
func (s *HTTPServer) handleCreateSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_slot")
	var req CreateSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	slot, err := s.reservations.CreateSlot(r.Context(), req.StartTime, req.EndTime)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

// handleUpdateSlot applies a partial update.
// PATCH /api/slots/{id}
func (s *HTTPServer) handleUpdateSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_slot")
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var patch models.SlotPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	slot, err := s.reservations.UpdateSlot(r.Context(), id, patch)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// handleDeleteSlot removes a slot and detaches its bookings.
// DELETE /api/slots/{id}
func (s *HTTPServer) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_slot")
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.reservations.DeleteSlot(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGenerateSlots runs a batch of slot configurations. Invalid entries
// are reported alongside the successful ones.
// POST /api/slots/generate
func (s *HTTPServer) handleGenerateSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("generate_slots")
	var req GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Configurations) == 0 {
		writeError(w, http.StatusBadRequest, "configurations are required")
		return
	}

	results := make([]ConfigurationResult, len(req.Configurations))
	valid := make([]models.SlotConfiguration, 0, len(req.Configurations))
	index := make([]int, 0, len(req.Configurations))
	for i, c := range req.Configurations {
		results[i] = ConfigurationResult{Day: c.Day, StartHour: c.StartHour, EndHour: c.EndHour}
		cfg, err := models.ParseSlotConfiguration(c.Day, c.StartHour, c.EndHour)
		if err != nil {
			results[i].Error = err.Error()
			results[i].Kind = models.ErrorKind(err)
			continue
		}
		valid = append(valid, cfg)
		index = append(index, i)
	}

	batch := s.generator.GenerateBatch(r.Context(), valid)
	for j, res := range batch.Results {
		i := index[j]
		results[i].Created = res.Created
		if res.Err != nil {
			results[i].Error = res.Err.Error()
			results[i].Kind = models.ErrorKind(res.Err)
		}
	}

	writeJSON(w, http.StatusOK, GenerateResponse{Total: batch.Total, Results: results})
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"slotbook/internal/events"
	"slotbook/internal/metrics"
)

// eventFilter builds a subscription filter from ?kind= and ?operation=.
func eventFilter(r *http.Request) (events.Filter, error) {
	filters := make([]events.Filter, 0, 2)

	switch kind := events.Kind(r.URL.Query().Get("kind")); kind {
	case "":
	case events.KindBooking, events.KindSlot:
		filters = append(filters, events.ForKind(kind))
	default:
		return nil, fmt.Errorf("unknown kind %q; expected booking or slot", kind)
	}

	switch op := events.Operation(r.URL.Query().Get("operation")); op {
	case "":
	case events.OpCreated, events.OpUpdated, events.OpDeleted:
		filters = append(filters, events.ForOperation(op))
	default:
		return nil, fmt.Errorf("unknown operation %q; expected created, updated or deleted", op)
	}

	return events.And(filters...), nil
}

// handleEvents streams committed changes as server-sent events for as long as
// the client stays connected. Events before the request are not replayed.
// GET /api/events?kind=booking&operation=created
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("events")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	filter, err := eventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub := s.bus.Subscribe(filter)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.logger.Error().Err(err).Msg("Failed to encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s.%s\ndata: %s\n\n", e.Seq, e.Kind, e.Operation, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// EventHandler serves the most recent entries of the event stream.
type EventHandler struct {
	bus    domain.SignalBus
	stream string
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler reading stream from bus.
func NewEventHandler(bus domain.SignalBus, stream string, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		bus:    bus,
		stream: stream,
		logger: logger.With(slog.String("handler", "events")),
	}
}

type streamEntry struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ListEvents responds with up to ?limit= newest events, oldest first.
// GET /api/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	msgs, err := h.bus.Tail(r.Context(), h.stream, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "tail stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "event stream unavailable")
		return
	}

	out := make([]streamEntry, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		out = append(out, streamEntry{ID: m.ID, Event: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

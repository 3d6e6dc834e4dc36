package handler

import (
	"log/slog"
	"net/http"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// CycleHandler serves completed cycles. With a journal store it reads the
// persisted history; otherwise it serves the current session from memory.
type CycleHandler struct {
	bot    BotView
	store  domain.CycleStore
	pair   string
	logger *slog.Logger
}

// NewCycleHandler creates a CycleHandler. store may be nil.
func NewCycleHandler(b BotView, store domain.CycleStore, pair string, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{
		bot:    b,
		store:  store,
		pair:   pair,
		logger: logger.With(slog.String("handler", "cycles")),
	}
}

// ListCycles responds with completed cycles, newest first.
// GET /api/cycles
func (h *CycleHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	if h.store != nil {
		cycles, err := h.store.ListRecent(r.Context(), h.pair, opts)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "list cycles failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list cycles")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cycles": nonNil(cycles), "source": "journal"})
		return
	}

	all := h.bot.Cycles()
	out := make([]domain.CompletedCycle, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		c := all[i]
		if opts.Since != nil && c.Timestamp.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && c.Timestamp.After(*opts.Until) {
			continue
		}
		out = append(out, c)
	}
	out = page(out, opts)
	writeJSON(w, http.StatusOK, map[string]any{"cycles": out, "source": "session"})
}

func page(cycles []domain.CompletedCycle, opts domain.ListOpts) []domain.CompletedCycle {
	if opts.Offset >= len(cycles) {
		return []domain.CompletedCycle{}
	}
	cycles = cycles[opts.Offset:]
	if opts.Limit > 0 && len(cycles) > opts.Limit {
		cycles = cycles[:opts.Limit]
	}
	return cycles
}

func nonNil(c []domain.CompletedCycle) []domain.CompletedCycle {
	if c == nil {
		return []domain.CompletedCycle{}
	}
	return c
}

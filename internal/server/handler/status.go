package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/abelprasad/CryptoBear/internal/bot"
	"github.com/abelprasad/CryptoBear/internal/domain"
)

// BotView is the read-only controller surface the API exposes.
type BotView interface {
	Snapshot() bot.Snapshot
	Orders() []domain.Order
	Cycles() []domain.CompletedCycle
}

// StatusHandler serves the live controller state.
type StatusHandler struct {
	bot    BotView
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(b BotView, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{bot: b, logger: logger.With(slog.String("handler", "status"))}
}

// GetStatus responds with the controller snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bot.Snapshot())
}

type orderJSON struct {
	ID            string           `json:"id"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
	Side          domain.OrderSide `json:"side"`
	Price         string           `json:"price"`
	Quantity      string           `json:"quantity"`
	Level         *int             `json:"level,omitempty"`
	PlacedAt      time.Time        `json:"placed_at"`
}

// ListOrders responds with the tracked orders, optionally filtered by
// ?side=buy|sell.
// GET /api/orders
func (h *StatusHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	side := domain.OrderSide(r.URL.Query().Get("side"))
	if side != "" && !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	out := make([]orderJSON, 0)
	for _, o := range h.bot.Orders() {
		if side != "" && o.Side != side {
			continue
		}
		out = append(out, orderJSON{
			ID:            o.ID,
			ClientOrderID: o.ClientOrderID,
			Side:          o.Side,
			Price:         o.Price.String(),
			Quantity:      o.Quantity.String(),
			Level:         o.Level,
			PlacedAt:      o.PlacedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": out,
		"count":  len(out),
	})
}

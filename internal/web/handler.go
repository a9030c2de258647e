// Package web exposes the board to presentation surfaces: kitchen Kanban,
// dashboard and the customer order page consume these JSON endpoints plus
// the SSE stream. Rendering happens in the browser; the contracts live here.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/appetiteclub/liveboard/internal/board"
	"github.com/appetiteclub/liveboard/internal/bus"
	"github.com/appetiteclub/liveboard/internal/notify"
	"github.com/appetiteclub/liveboard/internal/stream"
)

// Handler owns the HTTP surface of the sync core.
type Handler struct {
	board  *board.Board
	conn   *bus.Manager
	center *notify.Center
	sse    *stream.SSEHandler
	logger *zap.SugaredLogger
}

func NewHandler(b *board.Board, conn *bus.Manager, center *notify.Center, sse *stream.SSEHandler, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{board: b, conn: conn, center: center, sse: sse, logger: logger}
}

// Router builds the chi router for all surface endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/live", h.Live)
	r.Get("/events", h.sse.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/board", h.Board)
		r.Get("/activity", h.Activity)
		r.Get("/events", h.EventLog)
		r.Get("/orders/{orderID}", h.Order)
		r.Post("/orders/{orderID}/transition", h.Transition)
		r.Post("/board/drop", h.Drop)
	})

	return r
}

// Healthz reports process liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Live reports the passive connectivity indicator: bus status, last
// heartbeat and whether live updates are currently available.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.conn.Health())
}

// Board returns the four status columns plus transition notices, the payload
// behind the kitchen Kanban and the dashboard counters.
func (h *Handler) Board(w http.ResponseWriter, r *http.Request) {
	buckets := h.board.OrdersByStatus()

	columns := make([]columnView, 0, len(board.StatusOrder))
	counts := make(map[string]int, len(board.StatusOrder))
	for _, status := range board.StatusOrder {
		orders := buckets[status]
		columns = append(columns, columnView{
			Status: status,
			Label:  board.StatusLabel(status),
			Orders: orders,
		})
		counts[status] = len(orders)
	}

	writeJSON(w, http.StatusOK, boardView{
		Columns: columns,
		Counts:  counts,
		Notices: h.board.Notices(),
		Health:  h.conn.Health(),
	})
}

// Activity returns the most recently updated orders for the dashboard feed.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": h.board.RecentActivity(limit),
	})
}

// EventLog returns the bounded event log, most recent first, for UI badges
// and toasts.
func (h *Handler) EventLog(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	writeJSON(w, http.StatusOK, map[string]any{
		"events": h.center.Log().Recent(limit),
	})
}

// Order returns a single order projection for the customer tracking page.
func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	o, ok := h.board.Get(orderID)
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	view := orderView{Order: o}
	if pt, pending := h.board.Pending(orderID); pending {
		view.Pending = &pt
	}
	writeJSON(w, http.StatusOK, view)
}

// Transition applies a status change requested by a surface button.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		writeError(w, http.StatusBadRequest, "missing target status")
		return
	}

	h.applyTransition(w, r, orderID, req.To)
}

// Drop translates a drag-and-drop gesture into a transition request. A drop
// onto the order's current column, or onto no recognizable column, is a
// no-op with no service call.
func (h *Handler) Drop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"order_id"`
		Column  string `json:"column"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "missing order or column")
		return
	}

	if !board.ValidStatus(req.Column) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if o, ok := h.board.Get(req.OrderID); ok && o.Status == req.Column {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.applyTransition(w, r, req.OrderID, req.Column)
}

func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request, orderID, to string) {
	err := h.board.RequestTransition(r.Context(), orderID, to)
	if err == nil {
		o, _ := h.board.Get(orderID)
		writeJSON(w, http.StatusOK, orderView{Order: o})
		return
	}

	switch {
	case errors.Is(err, board.ErrUnknownOrder):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, board.ErrTransitionPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, board.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		// Service failure: the board already rolled back and recorded the
		// notice; the surface shows it against the order.
		h.logger.Infow("transition failed", "order_id", orderID, "to", to, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

type boardView struct {
	Columns []columnView             `json:"columns"`
	Counts  map[string]int           `json:"counts"`
	Notices []board.TransitionNotice `json:"notices"`
	Health  bus.Health               `json:"health"`
}

type columnView struct {
	Status string        `json:"status"`
	Label  string        `json:"label"`
	Orders []board.Order `json:"orders"`
}

type orderView struct {
	Order   board.Order              `json:"order"`
	Pending *board.PendingTransition `json:"pending,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

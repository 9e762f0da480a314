package http

import (
	"encoding/json"
	"net/http"

	"livequiz-service/internal/app"
)

// RESTHandler serves the request/response side: room validation, room
// stats, health, and the admin sweep trigger.
type RESTHandler struct {
	registry   *app.Registry
	supervisor *app.Supervisor
}

func NewRESTHandler(registry *app.Registry, supervisor *app.Supervisor) *RESTHandler {
	return &RESTHandler{registry: registry, supervisor: supervisor}
}

// Register mounts all routes, websocket endpoints included.
func (h *RESTHandler) Register(mux *http.ServeMux, ws *WSHandler) {
	mux.HandleFunc("GET /ws/host", ws.ServeHost)
	mux.HandleFunc("GET /ws/player", ws.ServePlayer)
	mux.HandleFunc("GET /rooms/{code}/validate", h.ValidateRoom)
	mux.HandleFunc("GET /rooms/{code}/stats", h.RoomStats)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("POST /admin/sweep", h.Sweep)
}

// ValidateRoom reports whether a room code exists and is joinable.
func (h *RESTHandler) ValidateRoom(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.RoomInfo(r.PathValue("code")))
}

// RoomStats reports participant count, question cursor, and room age.
func (h *RESTHandler) RoomStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.registry.RoomStats(r.PathValue("code"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type healthResponse struct {
	Status          string              `json:"status"`
	ActiveRooms     int                 `json:"activeRooms"`
	LiveConnections int                 `json:"liveConnections"`
	Counters        app.MetricsSnapshot `json:"counters"`
}

// Health exposes room/connection gauges and the process-lifetime counters.
func (h *RESTHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:          "ok",
		ActiveRooms:     h.registry.ActiveRooms(),
		LiveConnections: h.registry.LiveConnections(),
		Counters:        h.registry.Metrics().Snapshot(),
	})
}

// Sweep forces an out-of-cycle supervisor pass. Idempotent.
func (h *RESTHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	h.supervisor.SweepNow()
	writeJSON(w, http.StatusOK, map[string]any{
		"swept":       true,
		"activeRooms": h.registry.ActiveRooms(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

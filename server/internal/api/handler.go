package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sensorrelay/sensorrelay/server/internal/alerts"
	"github.com/sensorrelay/sensorrelay/server/internal/store"
)

// ClientCounter reports how many websocket clients are connected.
// *relay.Engine satisfies it.
type ClientCounter interface {
	Clients() int
}

// AlertLister returns firing and recently resolved alerts.
// *alerts.Engine satisfies it.
type AlertLister interface {
	Active() []alerts.Alert
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads sensor state from the store and returns JSON responses.
type Handler struct {
	store   *store.Store
	clients ClientCounter
	alerts  AlertLister
	mux     *http.ServeMux
}

// New creates a Handler wired to the given store, client counter and alert
// engine and registers all routes. clients and al may be nil.
func New(st *store.Store, clients ClientCounter, al AlertLister) http.Handler {
	h := &Handler{store: st, clients: clients, alerts: al, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/sensors", h.listSensors)
	h.mux.HandleFunc("/api/v1/sensors/", h.getSensor) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{Status: "ok", Sensors: h.store.Count()}
	if h.clients != nil {
		resp.Clients = h.clients.Clients()
	}
	if h.alerts != nil {
		for _, a := range h.alerts.Active() {
			if a.State == alerts.StateFiring {
				resp.FiringAlerts++
			}
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// listSensors returns GET /api/v1/sensors.
func (h *Handler) listSensors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	recs := h.store.List()
	out := make([]SensorResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toSensorResponse(rec))
	}
	jsonResp(w, http.StatusOK, out)
}

// getSensor returns GET /api/v1/sensors/{id}.
func (h *Handler) getSensor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/sensors/")
	if id == "" {
		h.listSensors(w, r)
		return
	}

	rec, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "sensor not found")
		return
	}
	jsonResp(w, http.StatusOK, toSensorResponse(rec))
}

// listAlerts returns GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := []alerts.Alert{}
	if h.alerts != nil {
		out = append(out, h.alerts.Active()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func toSensorResponse(rec store.Record) SensorResponse {
	return SensorResponse{
		SensorID:  rec.SensorID,
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
		Reading:   rec.Message(),
	}
}

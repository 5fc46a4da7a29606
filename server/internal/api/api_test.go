package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sensorrelay/sensorrelay/server/internal/alerts"
	"github.com/sensorrelay/sensorrelay/server/internal/api"
	"github.com/sensorrelay/sensorrelay/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

type fixedClients int

func (n fixedClients) Clients() int { return int(n) }

type fixedAlerts []alerts.Alert

func (a fixedAlerts) Active() []alerts.Alert { return a }

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(ids ...string) *store.Store {
	st := store.New()
	for i, id := range ids {
		st.Merge(id, store.Fields{"temperature": store.Float(20 + float64(i))}, t0)
	}
	return st
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	h := api.New(newStore(), fixedClients(0), nil)
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)

	if resp.Status != "ok" || resp.Clients != 0 || resp.Sensors != 0 {
		t.Errorf("got %+v", resp)
	}
}

func TestHealth_Counts(t *testing.T) {
	h := api.New(newStore("a", "b"), fixedClients(3), nil)
	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)

	if resp.Clients != 3 {
		t.Errorf("clients: got %d, want 3", resp.Clients)
	}
	if resp.Sensors != 2 {
		t.Errorf("sensors: got %d, want 2", resp.Sensors)
	}
}

func TestHealth_NilClientCounter(t *testing.T) {
	h := api.New(newStore("a"), nil, nil)
	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)
	if resp.Clients != 0 || resp.Sensors != 1 {
		t.Errorf("got %+v", resp)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := api.New(newStore(), nil, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/sensors --------------------------------------------------------

func TestListSensors_Empty(t *testing.T) {
	h := api.New(newStore(), nil, nil)
	rr := get(t, h, "/api/v1/sensors")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []interface{}
	decode(t, rr, &resp)
	if len(resp) != 0 {
		t.Errorf("sensors: got %d items, want 0", len(resp))
	}
}

func TestListSensors_SortedByID(t *testing.T) {
	h := api.New(newStore("kitchen", "attic", "garage"), nil, nil)
	var resp []api.SensorResponse
	decode(t, get(t, h, "/api/v1/sensors"), &resp)

	if len(resp) != 3 {
		t.Fatalf("got %d items, want 3", len(resp))
	}
	want := []string{"attic", "garage", "kitchen"}
	for i, id := range want {
		if resp[i].SensorID != id {
			t.Errorf("[%d]: got %q, want %q", i, resp[i].SensorID, id)
		}
	}
}

func TestListSensors_ReadingShape(t *testing.T) {
	h := api.New(newStore("attic"), nil, nil)
	var resp []map[string]interface{}
	decode(t, get(t, h, "/api/v1/sensors"), &resp)

	if len(resp) != 1 {
		t.Fatalf("got %d items, want 1", len(resp))
	}
	p := resp[0]
	if p["updated_at"] != "2024-03-01T12:00:00Z" {
		t.Errorf("updated_at: got %v", p["updated_at"])
	}
	reading, ok := p["reading"].(map[string]interface{})
	if !ok {
		t.Fatalf("reading: got %T", p["reading"])
	}
	if reading["sensorId"] != "attic" {
		t.Errorf("reading.sensorId: got %v", reading["sensorId"])
	}
	if reading["temperature"].(float64) != 20 {
		t.Errorf("reading.temperature: got %v", reading["temperature"])
	}
	if reading["lastUpdated"] != "2024-03-01T12:00:00.000Z" {
		t.Errorf("reading.lastUpdated: got %v", reading["lastUpdated"])
	}
}

func TestListSensors_MethodNotAllowed(t *testing.T) {
	h := api.New(newStore(), nil, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/sensors", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/sensors/{id} ---------------------------------------------------

func TestGetSensor_Found(t *testing.T) {
	h := api.New(newStore("attic", "garage"), nil, nil)
	rr := get(t, h, "/api/v1/sensors/garage")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.SensorResponse
	decode(t, rr, &resp)
	if resp.SensorID != "garage" {
		t.Errorf("sensor_id: got %q", resp.SensorID)
	}
	if v, _ := resp.Reading["temperature"].Float64(); v != 21 {
		t.Errorf("temperature: got %v, want 21", v)
	}
}

func TestGetSensor_NotFound(t *testing.T) {
	h := api.New(newStore("attic"), nil, nil)
	rr := get(t, h, "/api/v1/sensors/cellar")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["error"] == "" {
		t.Error("error: missing")
	}
}

func TestGetSensor_TrailingSlashLists(t *testing.T) {
	h := api.New(newStore("attic"), nil, nil)
	rr := get(t, h, "/api/v1/sensors/")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []interface{}
	decode(t, rr, &resp)
	if len(resp) != 1 {
		t.Errorf("got %d items, want 1", len(resp))
	}
}

func TestGetSensor_MethodNotAllowed(t *testing.T) {
	h := api.New(newStore("attic"), nil, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/sensors/attic", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestListAlerts_NilEngine(t *testing.T) {
	h := api.New(newStore(), nil, nil)
	rr := get(t, h, "/api/v1/alerts")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []interface{}
	decode(t, rr, &resp)
	if resp == nil || len(resp) != 0 {
		t.Errorf("alerts: got %v, want empty array", resp)
	}
}

func TestListAlerts_AndHealthCount(t *testing.T) {
	al := fixedAlerts{
		{RuleName: "hot", SensorID: "attic", State: alerts.StateFiring, FiredAt: t0},
		{RuleName: "wet", SensorID: "cellar", State: alerts.StateResolved, FiredAt: t0},
	}
	h := api.New(newStore("attic"), nil, al)

	var list []alerts.Alert
	decode(t, get(t, h, "/api/v1/alerts"), &list)
	if len(list) != 2 || list[0].RuleName != "hot" {
		t.Errorf("alerts: got %+v", list)
	}

	var health api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &health)
	if health.FiringAlerts != 1 {
		t.Errorf("firing_alerts: got %d, want 1", health.FiringAlerts)
	}
}

func TestListAlerts_MethodNotAllowed(t *testing.T) {
	h := api.New(newStore(), nil, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/alerts", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

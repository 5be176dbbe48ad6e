package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/lpsentinel/internal/modules/monitoring"
	"github.com/aristath/lpsentinel/internal/modules/rebalancing"
	"github.com/aristath/lpsentinel/internal/scheduler"
	testutil "github.com/aristath/lpsentinel/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*chi.Mux, *monitoring.Monitor) {
	t.Helper()
	source := testutil.NewMockPositionSource(testutil.NewSnapshotFixture())
	provider := testutil.NewMockMarketDataProvider(testutil.NewMarketDataFixture())
	rebalancer := rebalancing.NewService(rebalancing.NewRegistry(), source, provider,
		rebalancing.NewSimulatedExecutor(1), 0, nil, nil, nil, zerolog.Nop())
	sched := scheduler.New(zerolog.Nop())
	t.Cleanup(sched.Stop)

	monitor := monitoring.NewMonitor(monitoring.DefaultSettings(), rebalancer, source, provider, sched, nil, nil, zerolog.Nop())
	router := chi.NewRouter()
	NewHandler(monitor, zerolog.Nop()).RegisterRoutes(router)
	return router, monitor
}

func do(router http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, bytes.NewReader(body)))
	var response map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&response)
	return w, response
}

func TestStartRunStop(t *testing.T) {
	router, _ := setupRouter(t)

	w, _ := do(router, "POST", "/monitoring/run", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, response := do(router, "POST", "/monitoring/start", []byte(`{"owner_key":"owner-1","interval_minutes":15}`))
	require.Equal(t, http.StatusOK, w.Code)
	status := response["data"].(map[string]interface{})
	assert.Equal(t, true, status["running"])
	assert.Equal(t, float64(15), status["interval_minutes"])

	w, response = do(router, "POST", "/monitoring/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := response["data"].(map[string]interface{})
	assert.Equal(t, float64(3), report["positions"])

	w, response = do(router, "GET", "/monitoring/health/sol-usdc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), response["data"].(map[string]interface{})["samples"])

	w, response = do(router, "POST", "/monitoring/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, response["data"].(map[string]interface{})["running"])
}

func TestStart_Errors(t *testing.T) {
	router, _ := setupRouter(t)

	w, _ := do(router, "POST", "/monitoring/start", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(router, "POST", "/monitoring/start", []byte(`{"owner_key":""}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(router, "POST", "/monitoring/start", []byte(`{"owner_key":"owner-1","config_ids":["missing"]}`))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(router, "GET", "/monitoring/health/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlerts(t *testing.T) {
	router, monitor := setupRouter(t)
	monitor.Alerts().RaiseExecutionFailure("owner-1", "sol-usdc", "exec-1", "rejected")

	w, response := do(router, "GET", "/monitoring/alerts?owner=owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := response["data"].(map[string]interface{})
	require.Equal(t, float64(1), data["count"])
	alert := data["alerts"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "execution_failure", alert["type"])

	w, response = do(router, "POST", "/monitoring/alerts/"+alert["id"].(string)+"/ack", nil)
	require.Equal(t, http.StatusOK, w.Code)
	acked := response["data"].(map[string]interface{})
	assert.Equal(t, true, acked["acknowledged"])
	assert.Equal(t, true, acked["active"])

	w, _ = do(router, "POST", "/monitoring/alerts/missing/ack", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	monitor.Alerts().ResolveExecutionFailure("owner-1", "sol-usdc")
	_, response = do(router, "GET", "/monitoring/alerts", nil)
	assert.Equal(t, float64(0), response["data"].(map[string]interface{})["count"])
	_, response = do(router, "GET", "/monitoring/alerts?active=false", nil)
	assert.Equal(t, float64(1), response["data"].(map[string]interface{})["count"])
}

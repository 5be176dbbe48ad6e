package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/aristath/lpsentinel/internal/modules/correlation"
	testutil "github.com/aristath/lpsentinel/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*chi.Mux, *testutil.MockPositionSource) {
	t.Helper()
	c := cache.New[*correlation.Analytics]("correlation", cache.TTLCorrelation, nil, zerolog.Nop())
	engine := correlation.NewEngine(correlation.DefaultConfig(), c, nil, zerolog.Nop())
	source := testutil.NewMockPositionSource(testutil.NewSnapshotFixture())

	router := chi.NewRouter()
	NewHandler(engine, source, testutil.NewMockMarketDataProvider(testutil.NewMarketDataFixture()), zerolog.Nop()).
		RegisterRoutes(router)
	return router, source
}

func get(router http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	var response map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&response)
	return w, response
}

func TestHandleAnalyze(t *testing.T) {
	router, _ := setup(t)

	w, response := get(router, "/analytics/owner-1")
	require.Equal(t, http.StatusOK, w.Code)
	data := response["data"].(map[string]interface{})
	assert.Len(t, data["position_ids"], 3)
	assert.Len(t, data["pairs"], 3)
	assert.Equal(t, false, response["metadata"].(map[string]interface{})["cached"])

	_, response = get(router, "/analytics/owner-1")
	assert.Equal(t, true, response["metadata"].(map[string]interface{})["cached"])

	_, response = get(router, "/analytics/owner-1?force=true")
	assert.Equal(t, false, response["metadata"].(map[string]interface{})["cached"])
}

func TestHandleGetPair(t *testing.T) {
	router, _ := setup(t)

	w, response := get(router, "/analytics/owner-1/pairs/sol-usdt/sol-usdc")
	require.Equal(t, http.StatusOK, w.Code)
	pair := response["data"].(map[string]interface{})
	assert.Equal(t, true, pair["market_supplied"])
	assert.Contains(t, pair["shared_tokens"], "SOL")

	w, _ = get(router, "/analytics/owner-1/pairs/sol-usdc/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAnalyze_SourceError(t *testing.T) {
	router, source := setup(t)
	source.SetError(errors.New("indexer down"))

	w, response := get(router, "/analytics/owner-1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, response, "error")
}

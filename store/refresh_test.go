package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/halver/herald/shared"
	"github.com/peterldowns/testy/assert"
)

func TestFormURL(t *testing.T) {
	client := NewRefreshClient(&RefreshConfig{BaseURL: "http://localhost:8000"})

	// Ensure urls are formed correctly and the buffer resets between calls.
	assert.Equal(t, client.formURL("update", "BTCUSDT", "1h"), "http://localhost:8000/update/BTCUSDT/1h")
	assert.Equal(t, client.formURL("timeframe", "4h", "update"), "http://localhost:8000/timeframe/4h/update")
}

func TestRefreshMarket(t *testing.T) {
	var gotPath string
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewRefreshClient(&RefreshConfig{BaseURL: server.URL})

	// Ensure a market refresh posts to the per symbol update endpoint.
	err := client.RefreshMarket(context.Background(), "BTCUSDT", shared.OneHour)
	assert.NoError(t, err)
	assert.Equal(t, gotMethod, http.MethodPost)
	assert.Equal(t, gotPath, "/update/BTCUSDT/1h")

	// Ensure a timeframe refresh posts to the timeframe update endpoint.
	err = client.RefreshTimeframe(context.Background(), shared.FourHour)
	assert.NoError(t, err)
	assert.Equal(t, gotPath, "/timeframe/4h/update")
}

func TestRefreshMarketError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"detail":"recompute in progress"}`))
	}))
	defer server.Close()

	client := NewRefreshClient(&RefreshConfig{BaseURL: server.URL})

	// Ensure non 200 responses surface the service's detail message.
	err := client.RefreshMarket(context.Background(), "BTCUSDT", shared.OneHour)
	assert.Error(t, err)
}

package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliveryboy-agent/internal/geo"
)

func TestSyncClientSendsLocationUpdate(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody locationUpdateBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewSyncClient(srv.URL, "test-token")
	captured := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	err := client.SyncPosition(context.Background(), geo.PositionSample{
		Latitude:   12.9716,
		Longitude:  77.5946,
		Accuracy:   12.5,
		CapturedAt: captured,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/location", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, 12.9716, gotBody.Lat)
	assert.Equal(t, 77.5946, gotBody.Lng)
	assert.Equal(t, 12.5, gotBody.Accuracy)
	assert.Equal(t, captured.UnixMilli(), gotBody.Timestamp)
}

func TestSyncClientRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewSyncClient(srv.URL, "test-token")
	err := client.SyncPosition(context.Background(), geo.PositionSample{CapturedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSyncClientServerDown(t *testing.T) {
	client := NewSyncClient("http://127.0.0.1:1", "test-token")
	err := client.SyncPosition(context.Background(), geo.PositionSample{CapturedAt: time.Now()})
	require.Error(t, err)
}

package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"showtime-booking/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreClientGetAvailability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/show-1/availability", r.URL.Path)
		json.NewEncoder(w).Encode(shared.Availability{
			Config:      shared.SessionConfig{SessionID: "show-1", Rows: 2, SeatsPerRow: 2},
			BookedSeats: []string{"A1"},
			LockedSeats: []string{"B2"},
		})
	}))
	defer server.Close()

	client := NewStoreClient(server.URL)
	avail, err := client.GetAvailability(context.Background(), "show-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, avail.BookedSeats)
	assert.Equal(t, []string{"B2"}, avail.LockedSeats)
	assert.Equal(t, 2, avail.Config.Rows)
}

func TestStoreClientLockSeatsSuccess(t *testing.T) {
	expires := time.Now().Add(10 * time.Minute).Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req shared.LockRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "viewer-1", req.HolderID)
		assert.Equal(t, []string{"A1"}, req.SeatIDs)
		assert.Equal(t, int64(600), req.TTLSeconds)

		json.NewEncoder(w).Encode(shared.LockResponse{Success: true, ExpiresAt: expires})
	}))
	defer server.Close()

	client := NewStoreClient(server.URL)
	expiry, err := client.LockSeats(context.Background(), "show-1", "viewer-1", []string{"A1"}, 600*time.Second)
	require.NoError(t, err)
	assert.Equal(t, expires, expiry.Unix())
}

func TestStoreClientLockSeatsConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(shared.LockResponse{Success: false})
	}))
	defer server.Close()

	client := NewStoreClient(server.URL)
	_, err := client.LockSeats(context.Background(), "show-1", "viewer-1", []string{"A1"}, 600*time.Second)
	assert.ErrorIs(t, err, ErrLockConflict)
}

func TestStoreClientNetworkFailure(t *testing.T) {
	client := NewStoreClient("http://127.0.0.1:1")

	_, err := client.GetAvailability(context.Background(), "show-1")
	assert.ErrorIs(t, err, ErrNetworkFailure)

	_, err = client.LockSeats(context.Background(), "show-1", "viewer-1", []string{"A1"}, time.Minute)
	assert.ErrorIs(t, err, ErrNetworkFailure)

	err = client.UnlockSeats(context.Background(), "show-1", "viewer-1", []string{"A1"})
	assert.ErrorIs(t, err, ErrNetworkFailure)
}

func TestStoreClientUnlockSeats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		json.NewEncoder(w).Encode(shared.UnlockResponse{Success: true})
	}))
	defer server.Close()

	client := NewStoreClient(server.URL)
	err := client.UnlockSeats(context.Background(), "show-1", "viewer-1", []string{"A1", "B1"})
	assert.NoError(t, err)
}

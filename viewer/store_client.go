package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"showtime-booking/shared"
)

// SeatStore is the request/response contract the selection state machine
// requires of the external availability store.
type SeatStore interface {
	GetAvailability(ctx context.Context, sessionID string) (*shared.Availability, error)
	LockSeats(ctx context.Context, sessionID, holderID string, seatIDs []string, ttl time.Duration) (time.Time, error)
	UnlockSeats(ctx context.Context, sessionID, holderID string, seatIDs []string) error
}

// StoreClient talks to the availability service over HTTP.
type StoreClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewStoreClient creates an availability store client.
func NewStoreClient(baseURL string) *StoreClient {
	return &StoreClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetAvailability fetches the authoritative snapshot for a session.
func (sc *StoreClient) GetAvailability(ctx context.Context, sessionID string) (*shared.Availability, error) {
	url := fmt.Sprintf("%s/api/sessions/%s/availability", sc.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrNetworkFailure, resp.StatusCode, string(body))
	}

	var avail shared.Availability
	if err := json.NewDecoder(resp.Body).Decode(&avail); err != nil {
		return nil, fmt.Errorf("%w: decode availability: %v", ErrNetworkFailure, err)
	}

	return &avail, nil
}

// LockSeats requests time-bounded locks. The requested TTL is advisory; the
// returned expiry is the server's authoritative one. A conflict surfaces as
// ErrLockConflict.
func (sc *StoreClient) LockSeats(ctx context.Context, sessionID, holderID string, seatIDs []string, ttl time.Duration) (time.Time, error) {
	reqBody := shared.LockRequest{
		HolderID:   holderID,
		SeatIDs:    seatIDs,
		TTLSeconds: int64(ttl / time.Second),
	}

	var lockResp shared.LockResponse
	status, err := sc.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%s/locks", sessionID), reqBody, &lockResp)
	if err != nil {
		return time.Time{}, err
	}

	switch {
	case status == http.StatusConflict:
		return time.Time{}, ErrLockConflict
	case status != http.StatusOK:
		return time.Time{}, fmt.Errorf("%w: lock request returned status %d", ErrNetworkFailure, status)
	case !lockResp.Success:
		return time.Time{}, ErrLockConflict
	}

	return time.Unix(lockResp.ExpiresAt, 0), nil
}

// UnlockSeats releases locks held by the holder.
func (sc *StoreClient) UnlockSeats(ctx context.Context, sessionID, holderID string, seatIDs []string) error {
	reqBody := shared.UnlockRequest{
		HolderID: holderID,
		SeatIDs:  seatIDs,
	}

	var unlockResp shared.UnlockResponse
	status, err := sc.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/sessions/%s/locks", sessionID), reqBody, &unlockResp)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: unlock request returned status %d", ErrNetworkFailure, status)
	}
	return nil
}

// doJSON performs a JSON request against the availability service and
// decodes the response body into out when provided.
func (sc *StoreClient) doJSON(ctx context.Context, method, endpoint string, body, out interface{}) (int, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("%w: marshal request: %v", ErrNetworkFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, sc.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if out != nil && (resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusConflict) {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %v", ErrNetworkFailure, err)
		}
	}

	return resp.StatusCode, nil
}

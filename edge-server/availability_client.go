package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"showtime-booking/shared"
)

// AvailabilityClient handles request/response calls to the availability
// service.
type AvailabilityClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAvailabilityClient creates an availability service client.
func NewAvailabilityClient(baseURL string) *AvailabilityClient {
	return &AvailabilityClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetAvailability fetches the snapshot for one session.
func (ac *AvailabilityClient) GetAvailability(sessionID string) (*shared.Availability, error) {
	resp, err := ac.httpClient.Get(fmt.Sprintf("%s/api/sessions/%s/availability", ac.baseURL, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch availability: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var avail shared.Availability
	if err := json.NewDecoder(resp.Body).Decode(&avail); err != nil {
		return nil, fmt.Errorf("failed to decode availability: %w", err)
	}

	return &avail, nil
}

// HealthCheck verifies the availability service is reachable.
func (ac *AvailabilityClient) HealthCheck() error {
	resp, err := ac.httpClient.Get(ac.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
	}

	return nil
}

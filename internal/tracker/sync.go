package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"deliveryboy-agent/internal/geo"
)

// Syncer pushes a position update to the server. Implementations are
// fire-and-forget from the tracker's point of view: a returned error is
// logged and the tracker waits for the next qualifying sample.
type Syncer interface {
	SyncPosition(ctx context.Context, sample geo.PositionSample) error
}

// SyncClient implements Syncer against the delivery API's PUT /location
// endpoint with bearer-token authentication
type SyncClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewSyncClient creates a sync client for the given API base URL
func NewSyncClient(baseURL, token string) *SyncClient {
	return &SyncClient{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type locationUpdateBody struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

// SyncPosition sends the sample to the server
func (c *SyncClient) SyncPosition(ctx context.Context, sample geo.PositionSample) error {
	body := locationUpdateBody{
		Lat:       sample.Latitude,
		Lng:       sample.Longitude,
		Accuracy:  sample.Accuracy,
		Timestamp: sample.CapturedAt.UnixMilli(),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling location update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/location", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating location request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending location update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("location update rejected: status %d", resp.StatusCode)
	}

	return nil
}

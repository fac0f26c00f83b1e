// Package anprpoller is the C14 client for the external camera/ANPR
// poller named by ANPR_POLLER_URL (spec §6). It wraps outbound calls in
// the teacher's circuit breaker, generalized from agent-to-agent
// communication to camera-poll resilience, and enforces the 60s per-call
// timeout spec §5 mandates.
package anprpoller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anpr/compliance-core/internal/circuitbreaker"
)

// RawMovement is the heterogeneous camera payload shape the poller
// returns, before C1/C2 normalize and classify it.
type RawMovement struct {
	SiteID      string                 `json:"siteId"`
	Timestamp   time.Time              `json:"timestamp"`
	VRM         string                 `json:"vrm,omitempty"`
	PlateNumber string                 `json:"plateNumber,omitempty"`
	CameraID    string                 `json:"cameraId,omitempty"`
	Direction   string                 `json:"direction,omitempty"`
	Confidence  *float64               `json:"confidence,omitempty"`
	Images      []RawImage             `json:"images,omitempty"`
	RawData     map[string]interface{} `json:"rawData,omitempty"`
}

// RawImage mirrors spec §6's image shape.
type RawImage struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Client polls the external ANPR service for new movement events.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient builds a Client against baseURL with the spec §5-mandated 60s
// per-call timeout and a circuit breaker tuned for a flaky camera network.
func NewClient(baseURL string) *Client {
	cfg := circuitbreaker.DefaultConfig("anpr-poller")
	cfg.Timeout = 30 * time.Second
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		breaker:    circuitbreaker.New(cfg),
	}
}

// Poll fetches movements recorded since `since`. A tripped breaker returns
// circuitbreaker.ErrCircuitOpen immediately without making a network call,
// so a dead poller cannot stall the ingestion pipeline it feeds.
func (c *Client) Poll(ctx context.Context, since time.Time) ([]RawMovement, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doPoll(ctx, since)
	})
	if err != nil {
		return nil, err
	}
	return result.([]RawMovement), nil
}

func (c *Client) doPoll(ctx context.Context, since time.Time) ([]RawMovement, error) {
	url := fmt.Sprintf("%s/movements?since=%s", c.baseURL, since.UTC().Format(time.RFC3339))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("anprpoller: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anprpoller: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anprpoller: unexpected status %d", resp.StatusCode)
	}

	var movements []RawMovement
	if err := json.NewDecoder(resp.Body).Decode(&movements); err != nil {
		return nil, fmt.Errorf("anprpoller: decode response: %w", err)
	}
	return movements, nil
}

// Package sensor reads the ground-truth temperature from an entity-state
// REST endpoint (Home Assistant style: bearer token, per-entity state object
// with a unit_of_measurement attribute).
package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ErrSensorUnavailable reports a missing entity or a non-numeric state.
var ErrSensorUnavailable = errors.New("sensor unavailable")

type Client struct {
	client   *http.Client
	baseURL  string
	token    string
	entityID string
}

func NewClient(client *http.Client, baseURL, token, entityID string) *Client {
	return &Client{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		entityID: entityID,
	}
}

type stateResponse struct {
	State      string `json:"state"`
	Attributes struct {
		UnitOfMeasurement string `json:"unit_of_measurement"`
	} `json:"attributes"`
}

// Read returns the sensor's numeric state and its reported unit.
func (c *Client) Read(ctx context.Context) (float64, string, error) {
	url := fmt.Sprintf("%s/api/states/%s", c.baseURL, c.entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("read state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, "", fmt.Errorf("entity %s: %w", c.entityID, ErrSensorUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, "", fmt.Errorf("read state: status %d: %s", resp.StatusCode, string(body))
	}

	var st stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return 0, "", fmt.Errorf("unmarshal: %w", err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(st.State), 64)
	if err != nil {
		return 0, "", fmt.Errorf("entity %s state %q is not numeric: %w", c.entityID, st.State, ErrSensorUnavailable)
	}
	return value, st.Attributes.UnitOfMeasurement, nil
}

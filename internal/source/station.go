package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"forecastskill/internal/units"
)

const defaultStationBaseURL = "https://swd.weatherflow.com/swd/rest/better_forecast"

// StationClient fetches the hourly forecast for a WeatherFlow station
// credential. The API reports temperatures in the requested unit and wraps
// responses in a status envelope whose non-zero codes carry an error message.
type StationClient struct {
	client       *http.Client
	baseURL      string
	stationID    string
	apiKey       string
	requestUnits string
	displayUnit  string
	now          func() time.Time
}

func NewStationClient(client *http.Client, cfg StationConfig, displayUnit string) *StationClient {
	requestUnits := cfg.Units
	if requestUnits == "" {
		requestUnits = units.Celsius
	}
	return &StationClient{
		client:       client,
		baseURL:      defaultStationBaseURL,
		stationID:    cfg.StationID,
		apiKey:       cfg.APIKey,
		requestUnits: requestUnits,
		displayUnit:  displayUnit,
		now:          time.Now,
	}
}

func (c *StationClient) Name() string {
	return "station"
}

type stationResponse struct {
	Status struct {
		StatusCode    int    `json:"status_code"`
		StatusMessage string `json:"status_message"`
	} `json:"status"`
	Forecast struct {
		Hourly []stationHour `json:"hourly"`
	} `json:"forecast"`
}

type stationHour struct {
	Time           int64    `json:"time"`
	AirTemperature *float64 `json:"air_temperature"`
}

func (c *StationClient) fetchHourly(ctx context.Context) ([]stationHour, error) {
	values := url.Values{}
	values.Set("station_id", c.stationID)
	values.Set("units_temp", strings.ToLower(units.Canonical(c.requestUnits)))
	values.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hourly: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("station %s: %w", c.stationID, ErrAuth)
	case http.StatusNotFound:
		return nil, fmt.Errorf("station %s: %w", c.stationID, ErrNotFound)
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch hourly: status %d: %s", resp.StatusCode, string(body))
	}

	var data stationResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	if data.Status.StatusCode != 0 {
		return nil, fmt.Errorf("station api error %d: %s", data.Status.StatusCode, data.Status.StatusMessage)
	}
	if len(data.Forecast.Hourly) == 0 {
		return nil, fmt.Errorf("station %s returned an empty hourly series: %w", c.stationID, ErrNoData)
	}
	return data.Forecast.Hourly, nil
}

// closestTo picks the hourly entry nearest target and normalizes its
// temperature to the display unit.
func (c *StationClient) closestTo(entries []stationHour, target time.Time) (float64, error) {
	times := make([]int64, len(entries))
	for i, e := range entries {
		times[i] = e.Time
	}

	idx := closestIndex(times, target)
	entry := entries[idx]
	if entry.AirTemperature == nil {
		return 0, fmt.Errorf("hourly entry at %d has no temperature: %w", entry.Time, ErrNoData)
	}
	return units.Normalize(*entry.AirTemperature, c.requestUnits, c.displayUnit), nil
}

func (c *StationClient) FetchCurrent(ctx context.Context) (float64, error) {
	entries, err := c.fetchHourly(ctx)
	if err != nil {
		return 0, err
	}
	return c.closestTo(entries, c.now())
}

func (c *StationClient) FetchLookahead(ctx context.Context, horizon time.Duration) (float64, error) {
	entries, err := c.fetchHourly(ctx)
	if err != nil {
		return 0, err
	}
	return c.closestTo(entries, c.now().Add(horizon))
}

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"forecastskill/internal/units"
)

const defaultCoordinateBaseURL = "https://api.open-meteo.com/v1/forecast"

// CoordinateClient fetches forecasts for a latitude/longitude. The upstream
// reports temperatures in Celsius.
type CoordinateClient struct {
	client      *http.Client
	baseURL     string
	lat, lon    float64
	displayUnit string
	now         func() time.Time
}

func NewCoordinateClient(client *http.Client, cfg CoordinateConfig, displayUnit string) *CoordinateClient {
	return &CoordinateClient{
		client:      client,
		baseURL:     defaultCoordinateBaseURL,
		lat:         cfg.Latitude,
		lon:         cfg.Longitude,
		displayUnit: displayUnit,
		now:         time.Now,
	}
}

func (c *CoordinateClient) Name() string {
	return "coordinates"
}

type coordinateResponse struct {
	CurrentWeather *struct {
		Temperature *float64 `json:"temperature"`
	} `json:"current_weather"`
	Hourly *struct {
		Time          []int64   `json:"time"`
		Temperature2M []float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

func (c *CoordinateClient) fetch(ctx context.Context, withHourly bool) (*coordinateResponse, error) {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(c.lat, 'f', 4, 64))
	values.Set("longitude", strconv.FormatFloat(c.lon, 'f', 4, 64))
	values.Set("current_weather", "true")
	values.Set("timeformat", "unixtime")
	if withHourly {
		values.Set("hourly", "temperature_2m")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch forecast: status %d: %s", resp.StatusCode, string(body))
	}

	var data coordinateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &data, nil
}

func (c *CoordinateClient) FetchCurrent(ctx context.Context) (float64, error) {
	data, err := c.fetch(ctx, false)
	if err != nil {
		return 0, err
	}
	if data.CurrentWeather == nil || data.CurrentWeather.Temperature == nil {
		return 0, fmt.Errorf("response has no current temperature: %w", ErrSourceUnavailable)
	}
	return units.Normalize(*data.CurrentWeather.Temperature, units.Celsius, c.displayUnit), nil
}

func (c *CoordinateClient) FetchLookahead(ctx context.Context, horizon time.Duration) (float64, error) {
	data, err := c.fetch(ctx, true)
	if err != nil {
		return 0, err
	}
	if data.Hourly == nil || len(data.Hourly.Time) == 0 {
		return 0, fmt.Errorf("response has no hourly series: %w", ErrNoData)
	}

	idx := closestIndex(data.Hourly.Time, c.now().Add(horizon))
	if idx < 0 || idx >= len(data.Hourly.Temperature2M) {
		return 0, fmt.Errorf("hourly series has no temperature at index %d: %w", idx, ErrNoData)
	}
	return units.Normalize(data.Hourly.Temperature2M[idx], units.Celsius, c.displayUnit), nil
}

// Package source fetches predicted temperatures from the configured forecast
// providers and normalizes them to the display unit. Which providers run is
// fixed once at startup by the resolved Config; adapters never retry, a
// failed fetch surfaces for that cycle only.
package source

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrSourceUnavailable reports a response missing its current-temperature
	// field.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrAuth reports a rejected credential.
	ErrAuth = errors.New("unauthorized")
	// ErrNotFound reports an unknown station.
	ErrNotFound = errors.New("station not found")
	// ErrNoData reports an empty hourly series or a selected entry with no
	// temperature.
	ErrNoData = errors.New("no forecast data")
)

// Adapter is the capability every forecast source exposes. Returned values
// are already in the configured display unit.
type Adapter interface {
	Name() string
	// FetchCurrent returns the source's current predicted temperature.
	FetchCurrent(ctx context.Context) (float64, error)
	// FetchLookahead returns the predicted temperature at now+horizon.
	FetchLookahead(ctx context.Context, horizon time.Duration) (float64, error)
}

// Mode identifies the resolved source configuration shape.
type Mode int

const (
	ModeCoordinates Mode = iota
	ModeStation
	ModeDual
)

func (m Mode) String() string {
	switch m {
	case ModeCoordinates:
		return "coordinates"
	case ModeStation:
		return "station"
	case ModeDual:
		return "dual"
	}
	return "unknown"
}

// CoordinateConfig describes a latitude/longitude provider.
type CoordinateConfig struct {
	Latitude  float64
	Longitude float64
}

// StationConfig describes a station-credential provider. Units is the
// temperature unit the API is asked to respond in.
type StationConfig struct {
	StationID string
	APIKey    string
	Units     string
}

// Config is the source configuration resolved once at startup. The
// orchestrator never re-inspects descriptor shapes per cycle.
type Config struct {
	Mode        Mode
	Coordinates *CoordinateConfig
	Station     *StationConfig
}

// ResolveConfig classifies the configured descriptors into a Mode. Both
// descriptors present means dual-source comparison.
func ResolveConfig(coords *CoordinateConfig, station *StationConfig) (Config, error) {
	switch {
	case coords != nil && station != nil:
		return Config{Mode: ModeDual, Coordinates: coords, Station: station}, nil
	case coords != nil:
		return Config{Mode: ModeCoordinates, Coordinates: coords}, nil
	case station != nil:
		return Config{Mode: ModeStation, Station: station}, nil
	}
	return Config{}, errors.New("no forecast source configured")
}

// Adapters builds the primary and, in dual mode, secondary adapters. In dual
// mode the coordinate source is primary and the station source is the
// reference.
func (c Config) Adapters(client *http.Client, displayUnit string) (primary, secondary Adapter) {
	switch c.Mode {
	case ModeCoordinates:
		return NewCoordinateClient(client, *c.Coordinates, displayUnit), nil
	case ModeStation:
		return NewStationClient(client, *c.Station, displayUnit), nil
	case ModeDual:
		return NewCoordinateClient(client, *c.Coordinates, displayUnit),
			NewStationClient(client, *c.Station, displayUnit)
	}
	return nil, nil
}

// closestIndex returns the index of the unix-second timestamp nearest target,
// or -1 for an empty slice. The whole series is scanned; the nearest entry is
// not necessarily the first.
func closestIndex(times []int64, target time.Time) int {
	best := -1
	var bestDiff time.Duration
	for i, t := range times {
		diff := target.Sub(time.Unix(t, 0))
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

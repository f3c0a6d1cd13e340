package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"forecastskill/internal/api"
	"forecastskill/internal/compare"
	"forecastskill/internal/history"
	"forecastskill/internal/httputil"
	"forecastskill/internal/sensor"
	"forecastskill/internal/source"
	"forecastskill/internal/store"
)

type CLI struct {
	DB   string `env:"DB_PATH" default:"data/forecastskill.db" help:"Path to the SQLite database."`
	Port string `env:"PORT" default:"8080" help:"HTTP server port."`

	SensorURL    string `env:"SENSOR_URL" required:"" help:"Base URL of the entity-state API supplying the actual temperature."`
	SensorToken  string `env:"SENSOR_TOKEN" help:"Bearer token for the entity-state API."`
	SensorEntity string `env:"SENSOR_ENTITY" required:"" help:"Entity id of the reference temperature sensor."`

	DisplayUnit string `env:"DISPLAY_UNIT" default:"C" help:"Display unit, C or F."`

	Latitude  *float64 `env:"LATITUDE" help:"Coordinate source latitude."`
	Longitude *float64 `env:"LONGITUDE" help:"Coordinate source longitude."`

	StationID    string `env:"STATION_ID" help:"Station source id."`
	StationKey   string `env:"STATION_API_KEY" help:"Station source API key."`
	StationUnits string `env:"STATION_UNITS" default:"C" help:"Unit the station API is asked to respond in."`

	Interval       time.Duration `env:"REFRESH_INTERVAL" default:"30m" help:"Refresh interval."`
	RetentionDays  int           `env:"RETENTION_DAYS" default:"7" help:"History retention window in days."`
	LookaheadHours int           `env:"LOOKAHEAD_HOURS" default:"0" help:"Forecast lookahead horizon in hours (0 disables)."`

	NoPoll bool `help:"Disable polling (server only, for local dev)."`
	Once   bool `help:"Run a single comparison cycle and exit."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("forecastskill"),
		kong.Description("Tracks forecast-source accuracy against a reference temperature sensor."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)
	kctx.FatalIfErrorf(run(&cli))
}

func run(cli *CLI) error {
	var coords *source.CoordinateConfig
	if cli.Latitude != nil && cli.Longitude != nil {
		coords = &source.CoordinateConfig{Latitude: *cli.Latitude, Longitude: *cli.Longitude}
	}
	var station *source.StationConfig
	if cli.StationID != "" {
		station = &source.StationConfig{
			StationID: cli.StationID,
			APIKey:    cli.StationKey,
			Units:     cli.StationUnits,
		}
	}

	srcCfg, err := source.ResolveConfig(coords, station)
	if err != nil {
		return err
	}
	log.Printf("source mode: %s", srcCfg.Mode)

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Println("database migrated")

	httpClient := httputil.NewClient()
	primary, secondary := srcCfg.Adapters(httpClient, cli.DisplayUnit)
	sens := sensor.NewClient(httpClient, cli.SensorURL, cli.SensorToken, cli.SensorEntity)

	orch := compare.New(compare.Config{
		Sensor:        sens,
		Primary:       primary,
		Secondary:     secondary,
		History:       history.New(st, nil),
		Runs:          st,
		SensorID:      cli.SensorEntity,
		DisplayUnit:   cli.DisplayUnit,
		Interval:      cli.Interval,
		RetentionDays: cli.RetentionDays,
		Lookahead:     time.Duration(cli.LookaheadHours) * time.Hour,
	})

	if cli.Once {
		log.Println("running single comparison cycle")
		if _, err := orch.Tick(context.Background()); err != nil {
			return err
		}
		log.Println("done")
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !cli.NoPoll {
		go orch.Run(ctx)
	} else {
		log.Println("polling disabled (--no-poll)")
	}

	server := api.NewServer(orch, cli.Port)
	log.Printf("starting server on :%s", cli.Port)
	return server.Run(ctx)
}

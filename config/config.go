package config

import (
	"os"
	"time"

	"github.com/drone/envsubst"
	"github.com/subosito/gotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	BackendCfg   `yaml:"backend" json:"backend"`
	WebSocketCfg `yaml:"websocket" json:"websocket"`
	MapboxCfg    `yaml:"mapbox" json:"mapbox"`
	IntervalsCfg `yaml:"intervals" json:"intervals"`
}

type BackendCfg struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
}

type WebSocketCfg struct {
	URL string `yaml:"url" json:"url"`
}

type MapboxCfg struct {
	DirectionsURL string `yaml:"directions_url" json:"directions_url"`
	GeocodingURL  string `yaml:"geocoding_url" json:"geocoding_url"`
	AccessToken   string
}

type IntervalsCfg struct {
	TelemetryRESTSeconds   int `yaml:"telemetry_rest_seconds" json:"telemetry_rest_seconds"`
	TelemetryStreamSeconds int `yaml:"telemetry_stream_seconds" json:"telemetry_stream_seconds"`
	RouteRefreshSeconds    int `yaml:"route_refresh_seconds" json:"route_refresh_seconds"`
	TripPollSeconds        int `yaml:"trip_poll_seconds" json:"trip_poll_seconds"`
}

func ParseConfig(path string) (*Config, error) {
	// .env is optional on dev machines
	gotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// substitute env vars, with :- defaults
	replaced, err := envsubst.EvalEnv(string(data))
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	err = yaml.Unmarshal([]byte(replaced), cfg)
	if err != nil {
		return nil, err
	}
	cfg.MapboxCfg.AccessToken = os.Getenv("MAPBOX_ACCESS_TOKEN")
	cfg.IntervalsCfg.fillDefaults()
	return cfg, nil
}

func (c *IntervalsCfg) fillDefaults() {
	if c.TelemetryRESTSeconds <= 0 {
		c.TelemetryRESTSeconds = 15
	}
	if c.TelemetryStreamSeconds <= 0 {
		c.TelemetryStreamSeconds = 10
	}
	if c.RouteRefreshSeconds <= 0 {
		c.RouteRefreshSeconds = 30
	}
	if c.TripPollSeconds <= 0 {
		c.TripPollSeconds = 5
	}
}

func (c *IntervalsCfg) TelemetryREST() time.Duration {
	return time.Duration(c.TelemetryRESTSeconds) * time.Second
}

func (c *IntervalsCfg) TelemetryStream() time.Duration {
	return time.Duration(c.TelemetryStreamSeconds) * time.Second
}

func (c *IntervalsCfg) RouteRefresh() time.Duration {
	return time.Duration(c.RouteRefreshSeconds) * time.Second
}

func (c *IntervalsCfg) TripPoll() time.Duration {
	return time.Duration(c.TripPollSeconds) * time.Second
}

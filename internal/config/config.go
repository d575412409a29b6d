// Package config loads the replay server's startup configuration: where
// historical CSVs live, which timeframe to start on, how wide a visible
// window to serve, the listen port, price bounds and logging. Transition
// deadlines are not configurable; they are fixed constants in
// internal/transition (8s, or 15s for a go-to-date).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/thrasher-corp/candlereplay/internal/candle"
	"github.com/thrasher-corp/candlereplay/internal/replaylog"
)

// Config is the replay server's full startup configuration.
type Config struct {
	// DataPath is a directory containing one CSV per timeframe, named
	// "<timeframe>.csv" (e.g. "1m.csv", "4h.csv").
	DataPath string `json:"data_path"`
	// DefaultTimeframe is the timeframe a new session starts on.
	DefaultTimeframe string `json:"default_timeframe"`
	// VisibleWindowSize is how many candles a chart window holds.
	VisibleWindowSize int `json:"visible_window_size"`
	// Port is the HTTP listen port.
	Port int `json:"port"`
	// PriceBounds constrains what the validator accepts as a plausible
	// price; zero values disable the check.
	PriceBounds Bounds `json:"price_bounds"`
	// Log configures the server's logging.
	Log replaylog.Config `json:"log"`
}

// Bounds mirrors candle.Bounds in JSON-friendly form.
type Bounds struct {
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
}

func (b Bounds) toCandleBounds() candle.Bounds {
	return candle.Bounds{MinPrice: b.MinPrice, MaxPrice: b.MaxPrice}
}

// CandleBounds returns the validator bounds this config describes.
func (c Config) CandleBounds() candle.Bounds { return c.PriceBounds.toCandleBounds() }

// Default returns the configuration used when no config file is given.
func Default() Config {
	return Config{
		DataPath:          "./testdata",
		DefaultTimeframe:  "1m",
		VisibleWindowSize: 500,
		Port:              8080,
		Log:               replaylog.Config{Level: "info"},
	}
}

// Load reads a JSON config file at path, applying Default for any field
// the file leaves at its zero value.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that cfg names a real, supported default timeframe and
// has a usable window size.
func (c Config) Validate() error {
	if _, err := candle.ParseTimeframe(c.DefaultTimeframe); err != nil {
		return fmt.Errorf("config: default_timeframe: %w", err)
	}
	if c.VisibleWindowSize <= 0 {
		return fmt.Errorf("config: visible_window_size must be positive, got %d", c.VisibleWindowSize)
	}
	if c.DataPath == "" {
		return fmt.Errorf("config: data_path must be set")
	}
	return nil
}

// CSVPath returns the CSV file Config expects to hold tf's historical
// data.
func (c Config) CSVPath(tf candle.Timeframe) string {
	return c.DataPath + "/" + tf.String() + ".csv"
}

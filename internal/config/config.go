// Package config holds the daemon's tunable surface. Every heuristic
// constant of the pipeline lives here as an overridable value rather
// than a hard-coded number, because none of them came out of a
// documented model and all of them will be retuned per venue.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration. Zero values are replaced by
// defaults in Default(); a YAML file or command-line flags overlay it.
type Config struct {
	// Telemetry listener.
	ListenAddr    string `yaml:"listen_addr"`
	ListenPort    int    `yaml:"listen_port"`
	MixerChannels int    `yaml:"mixer_channels"`
	QueueSize     int    `yaml:"queue_size"`

	// Beat detection.
	BeatWeights     map[int]float64 `yaml:"beat_weights"`
	BeatThreshold   float64         `yaml:"beat_threshold"`
	MinBeatInterval time.Duration   `yaml:"min_beat_interval"`
	BeatsPerBar     int             `yaml:"beats_per_bar"`

	// Feature extraction.
	WindowSamples int `yaml:"window_samples"`
	MinSamples    int `yaml:"min_samples"`
	FFTChannels   int `yaml:"fft_channels"`
	FFTBins       int `yaml:"fft_bins"`

	// Matching.
	MatcherStrategy     string        `yaml:"matcher_strategy"` // "direct" or "approx"
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	TopK                int           `yaml:"top_k"`
	DatePenaltyPerYear  float64       `yaml:"date_penalty_per_year"`
	BarWindow           int           `yaml:"bar_window"`
	BarBonus            float64       `yaml:"bar_bonus"`
	MatchInterval       time.Duration `yaml:"match_interval"`

	// Lighting output.
	Universes       int           `yaml:"universes"`
	BroadcastSubnet string        `yaml:"broadcast_subnet"`
	OutputCadence   time.Duration `yaml:"output_cadence"`
	DefaultFade     time.Duration `yaml:"default_fade"`
	BlackoutFade    time.Duration `yaml:"blackout_fade"`

	// Storage.
	DBPath        string `yaml:"db_path"`
	IndexPath     string `yaml:"index_path"`
	MigrationsDir string `yaml:"migrations_dir"`

	// Admin HTTP server.
	HTTPListen string `yaml:"http_listen"`
}

// Default returns the configuration a bare deployment runs with. The
// mixer defaults target a Behringer XR18 meter feed.
func Default() Config {
	return Config{
		ListenAddr:    "0.0.0.0",
		ListenPort:    10024,
		MixerChannels: 18,
		QueueSize:     256,

		BeatWeights:     map[int]float64{0: 0.5, 1: 0.3, 2: 0.2},
		BeatThreshold:   0.3,
		MinBeatInterval: 200 * time.Millisecond,
		BeatsPerBar:     4,

		WindowSamples: 400,
		MinSamples:    10,
		FFTChannels:   8,
		FFTBins:       10,

		MatcherStrategy:     "approx",
		SimilarityThreshold: 0.85,
		TopK:                10,
		DatePenaltyPerYear:  0.1,
		BarWindow:           2,
		BarBonus:            0.95,
		MatchInterval:       500 * time.Millisecond,

		Universes:     20,
		OutputCadence: 25 * time.Millisecond,
		DefaultFade:   0,
		BlackoutFade:  500 * time.Millisecond,

		DBPath:        "lighting.db",
		IndexPath:     "lighting.idx",
		MigrationsDir: "migrations",

		HTTPListen: ":8080",
	}
}

// LoadFile overlays the YAML file at path onto the defaults. A missing
// file is fine when path is empty.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FeatureDim is the extractor output dimension this configuration
// produces. The loaded index must agree with it.
func (c Config) FeatureDim() int {
	fft := c.FFTChannels
	if c.MixerChannels < fft {
		fft = c.MixerChannels
	}
	return 3*c.MixerChannels + fft*c.FFTBins
}

// Validate fails fast on values that would corrupt a show at runtime.
func (c Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port %d out of range", c.ListenPort)
	}
	if c.MixerChannels <= 0 {
		return fmt.Errorf("mixer_channels %d must be positive", c.MixerChannels)
	}
	if c.Universes <= 0 || c.Universes > 32768 {
		return fmt.Errorf("universes %d out of range", c.Universes)
	}
	if c.BeatThreshold <= 0 || c.BeatThreshold > 1 {
		return fmt.Errorf("beat_threshold %v must be in (0,1]", c.BeatThreshold)
	}
	if c.MinBeatInterval <= 0 {
		return fmt.Errorf("min_beat_interval %v must be positive", c.MinBeatInterval)
	}
	if c.BeatsPerBar <= 0 {
		return fmt.Errorf("beats_per_bar %d must be positive", c.BeatsPerBar)
	}
	if c.WindowSamples < c.MinSamples {
		return fmt.Errorf("window_samples %d smaller than min_samples %d", c.WindowSamples, c.MinSamples)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold %v must be in (0,1]", c.SimilarityThreshold)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k %d must be positive", c.TopK)
	}
	if c.DatePenaltyPerYear < 0 {
		return fmt.Errorf("date_penalty_per_year %v must not be negative", c.DatePenaltyPerYear)
	}
	if c.BarWindow < 0 {
		return fmt.Errorf("bar_window %d must not be negative", c.BarWindow)
	}
	if c.BarBonus <= 0 || c.BarBonus > 1 {
		return fmt.Errorf("bar_bonus %v must be in (0,1]", c.BarBonus)
	}
	if c.MatcherStrategy != "direct" && c.MatcherStrategy != "approx" {
		return fmt.Errorf("matcher_strategy %q must be direct or approx", c.MatcherStrategy)
	}
	if c.OutputCadence <= 0 {
		return fmt.Errorf("output_cadence %v must be positive", c.OutputCadence)
	}
	for ch, w := range c.BeatWeights {
		if ch < 0 || ch >= c.MixerChannels {
			return fmt.Errorf("beat weight for channel %d outside mixer range [0,%d)", ch, c.MixerChannels)
		}
		if w < 0 {
			return fmt.Errorf("beat weight for channel %d is negative", ch)
		}
	}
	return nil
}

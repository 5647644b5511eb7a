package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
}

func TestFeatureDim(t *testing.T) {
	cases := []struct {
		channels int
		want     int
	}{
		{18, 3*18 + 8*10},
		{8, 3*8 + 8*10},
		{4, 3*4 + 4*10},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.MixerChannels = tc.channels
		if got := cfg.FeatureDim(); got != tc.want {
			t.Errorf("FeatureDim(%d channels) = %d, want %d", tc.channels, got, tc.want)
		}
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "show.yaml")
	body := `
listen_port: 9000
universes: 4
beat_threshold: 0.4
matcher_strategy: direct
min_beat_interval: 150ms
beat_weights:
  0: 0.7
  3: 0.3
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.ListenPort != 9000 || cfg.Universes != 4 {
		t.Errorf("overrides not applied: port=%d universes=%d", cfg.ListenPort, cfg.Universes)
	}
	if cfg.BeatThreshold != 0.4 || cfg.MatcherStrategy != "direct" {
		t.Errorf("overrides not applied: threshold=%v strategy=%q", cfg.BeatThreshold, cfg.MatcherStrategy)
	}
	if cfg.MinBeatInterval != 150*time.Millisecond {
		t.Errorf("min_beat_interval = %v, want 150ms", cfg.MinBeatInterval)
	}
	if cfg.BeatWeights[0] != 0.7 || cfg.BeatWeights[3] != 0.3 {
		t.Errorf("beat_weights not applied: %v", cfg.BeatWeights)
	}
	// Untouched keys keep their defaults.
	if cfg.MixerChannels != 18 || cfg.TopK != 10 {
		t.Errorf("defaults lost: channels=%d topK=%d", cfg.MixerChannels, cfg.TopK)
	}
	if cfg.DatePenaltyPerYear != 0.1 || cfg.BarWindow != 2 || cfg.BarBonus != 0.95 {
		t.Errorf("rescore defaults lost: penalty=%v window=%d bonus=%v",
			cfg.DatePenaltyPerYear, cfg.BarWindow, cfg.BarBonus)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadFileEmptyPath(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\"): %v", err)
	}
	if cfg.ListenPort != Default().ListenPort {
		t.Error("empty path should return defaults")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.ListenPort = 0 }},
		{"zero universes", func(c *Config) { c.Universes = 0 }},
		{"threshold above one", func(c *Config) { c.BeatThreshold = 1.5 }},
		{"window below min samples", func(c *Config) { c.WindowSamples = 5 }},
		{"unknown strategy", func(c *Config) { c.MatcherStrategy = "psychic" }},
		{"weight channel out of range", func(c *Config) { c.BeatWeights = map[int]float64{99: 1} }},
		{"negative weight", func(c *Config) { c.BeatWeights = map[int]float64{0: -1} }},
		{"zero cadence", func(c *Config) { c.OutputCadence = 0 }},
		{"zero beats per bar", func(c *Config) { c.BeatsPerBar = 0 }},
		{"negative date penalty", func(c *Config) { c.DatePenaltyPerYear = -0.1 }},
		{"negative bar window", func(c *Config) { c.BarWindow = -1 }},
		{"bar bonus above one", func(c *Config) { c.BarBonus = 1.2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate accepted %s", tc.name)
			}
		})
	}
}

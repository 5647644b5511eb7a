package feature

import (
	"math"
	"testing"

	"github.com/christianprison/lighting.ai/internal/osc"
)

func snap(t float64, levels ...float64) osc.MeterSnapshot {
	return osc.MeterSnapshot{Time: t, Levels: levels}
}

func TestInsufficientSamplesYieldsZeroVector(t *testing.T) {
	cfg := DefaultConfig(4)
	e := NewExtractor(cfg)

	for i := range cfg.MinSamples - 1 {
		e.Add(snap(float64(i), 0.5, 0.5, 0.5, 0.5))
	}

	v := e.Extract()
	if v.Dim() != cfg.Dim() {
		t.Errorf("dim = %d, want %d", v.Dim(), cfg.Dim())
	}
	if !v.IsZero() {
		t.Error("vector should be all-zero below MinSamples")
	}
}

func TestDimIsFixed(t *testing.T) {
	tests := []struct {
		channels int
		want     int
	}{
		// fewer channels than FFTChannels
		{4, 3*4 + 4*10},
		// exactly FFTChannels
		{8, 3*8 + 8*10},
		// XR18: spectral bins capped at 8 channels
		{18, 3*18 + 80},
	}
	for _, tt := range tests {
		cfg := DefaultConfig(tt.channels)
		if got := cfg.Dim(); got != tt.want {
			t.Errorf("Dim(%d channels) = %d, want %d", tt.channels, got, tt.want)
		}

		e := NewExtractor(cfg)
		levels := make([]float64, tt.channels)
		for i := range 50 {
			e.Add(osc.MeterSnapshot{Time: float64(i), Levels: levels})
		}
		if got := e.Extract().Dim(); got != tt.want {
			t.Errorf("Extract dim (%d channels) = %d, want %d", tt.channels, got, tt.want)
		}
	}
}

func TestStatisticalFeatures(t *testing.T) {
	cfg := Config{Channels: 2, WindowSamples: 100, MinSamples: 4, FFTChannels: 2, FFTBins: 2}
	e := NewExtractor(cfg)

	// Channel 0 constant 0.5; channel 1 alternates 0.2/0.6.
	for i := range 20 {
		ch1 := 0.2
		if i%2 == 1 {
			ch1 = 0.6
		}
		e.Add(snap(float64(i), 0.5, ch1))
	}

	v := e.Extract()
	// Layout: mean[0], mean[1], std[0], std[1], max[0], max[1], fft...
	if math.Abs(v.Values[0]-0.5) > 1e-9 {
		t.Errorf("mean ch0 = %v, want 0.5", v.Values[0])
	}
	if math.Abs(v.Values[1]-0.4) > 1e-9 {
		t.Errorf("mean ch1 = %v, want 0.4", v.Values[1])
	}
	if math.Abs(v.Values[2]) > 1e-9 {
		t.Errorf("std ch0 = %v, want 0", v.Values[2])
	}
	if math.Abs(v.Values[3]-0.2) > 1e-9 {
		t.Errorf("std ch1 = %v, want 0.2", v.Values[3])
	}
	if v.Values[4] != 0.5 || v.Values[5] != 0.6 {
		t.Errorf("max = %v,%v want 0.5,0.6", v.Values[4], v.Values[5])
	}
	// DC bin of channel 0: |sum of series| = 20 * 0.5.
	if math.Abs(v.Values[6]-10) > 1e-9 {
		t.Errorf("fft dc ch0 = %v, want 10", v.Values[6])
	}
}

func TestWindowEviction(t *testing.T) {
	cfg := Config{Channels: 1, WindowSamples: 10, MinSamples: 2, FFTChannels: 1, FFTBins: 1}
	e := NewExtractor(cfg)

	// Fill with high levels, then overwrite the whole window with zeros.
	for i := range 10 {
		e.Add(snap(float64(i), 1.0))
	}
	for i := range 10 {
		e.Add(snap(float64(10 + i), 0.0))
	}

	v := e.Extract()
	if v.Values[0] != 0 {
		t.Errorf("mean after eviction = %v, want 0 (old samples gone)", v.Values[0])
	}
	if e.Len() != 10 {
		t.Errorf("Len = %d, want 10", e.Len())
	}
}

func TestUnmappedChannelsCountAsZero(t *testing.T) {
	cfg := Config{Channels: 2, WindowSamples: 50, MinSamples: 2, FFTChannels: 1, FFTBins: 1}
	e := NewExtractor(cfg)

	for i := range 10 {
		e.Add(snap(float64(i), 0.8, osc.LevelUnmapped))
	}
	v := e.Extract()
	if v.Values[1] != 0 {
		t.Errorf("mean of unmapped channel = %v, want 0", v.Values[1])
	}
	if v.Values[0] == 0 {
		t.Error("mapped channel mean should be non-zero")
	}
}

func TestReset(t *testing.T) {
	e := NewExtractor(DefaultConfig(2))
	for i := range 30 {
		e.Add(snap(float64(i), 0.5, 0.5))
	}
	e.Reset()
	if e.Len() != 0 {
		t.Errorf("Len after reset = %d, want 0", e.Len())
	}
	if !e.Extract().IsZero() {
		t.Error("Extract after reset should be zero vector")
	}
}

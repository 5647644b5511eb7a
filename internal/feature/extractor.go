// Package feature reduces a rolling window of meter snapshots to a
// fixed-dimension vector for matching against the reference catalog.
//
// The vector layout is per-channel mean, per-channel standard deviation,
// per-channel max, then the magnitudes of the first FFT bins for the
// first FFTChannels channels. The dimension is a deployment constant:
// extractor and catalog must agree on it, and a mismatch is a
// configuration error caught at startup, not adapted to at runtime.
package feature

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/christianprison/lighting.ai/internal/osc"
)

// Vector is a fixed-dimension feature vector. An all-zero vector means
// "insufficient data", not silence; callers must check IsZero before
// matching.
type Vector struct {
	Values []float64
}

// Dim returns the vector dimension.
func (v Vector) Dim() int { return len(v.Values) }

// IsZero reports whether every component is zero.
func (v Vector) IsZero() bool {
	for _, x := range v.Values {
		if x != 0 {
			return false
		}
	}
	return true
}

// Config tunes the extractor.
type Config struct {
	// Channels is the number of mixer channels in each snapshot.
	Channels int

	// WindowSamples is the ring capacity (about seconds-of-audio times
	// the mixer's ~100 updates/s rate).
	WindowSamples int

	// MinSamples is the minimum buffered count before a non-zero vector
	// is produced. Defaults to 10.
	MinSamples int

	// FFTChannels bounds how many channels contribute spectral bins
	// (first channels only). Defaults to 8.
	FFTChannels int

	// FFTBins is the number of leading FFT magnitude bins per spectral
	// channel. Defaults to 10.
	FFTBins int
}

// DefaultConfig matches the reference deployment: 4 seconds of telemetry
// at roughly 100 updates per second.
func DefaultConfig(channels int) Config {
	return Config{
		Channels:      channels,
		WindowSamples: 400,
		MinSamples:    10,
		FFTChannels:   8,
		FFTBins:       10,
	}
}

// Dim returns the feature dimension this configuration produces.
func (c Config) Dim() int {
	fftCh := c.FFTChannels
	if fftCh > c.Channels {
		fftCh = c.Channels
	}
	return 3*c.Channels + fftCh*c.FFTBins
}

// Extractor buffers snapshots and produces vectors on demand. Not safe
// for concurrent use; it lives on the processing loop.
type Extractor struct {
	cfg  Config
	ring []osc.MeterSnapshot
	pos  int
	n    int
}

// NewExtractor creates an extractor, filling zero config fields with
// defaults.
func NewExtractor(cfg Config) *Extractor {
	if cfg.WindowSamples <= 0 {
		cfg.WindowSamples = 400
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 10
	}
	if cfg.FFTChannels <= 0 {
		cfg.FFTChannels = 8
	}
	if cfg.FFTBins <= 0 {
		cfg.FFTBins = 10
	}
	return &Extractor{
		cfg:  cfg,
		ring: make([]osc.MeterSnapshot, cfg.WindowSamples),
	}
}

// Add appends a snapshot to the window, evicting the oldest when full.
func (e *Extractor) Add(snap osc.MeterSnapshot) {
	e.ring[e.pos] = snap
	e.pos = (e.pos + 1) % len(e.ring)
	if e.n < len(e.ring) {
		e.n++
	}
}

// Len returns the number of buffered snapshots.
func (e *Extractor) Len() int { return e.n }

// Reset clears the window.
func (e *Extractor) Reset() {
	e.pos, e.n = 0, 0
}

// Extract reduces the current window to a feature vector. With fewer than
// MinSamples buffered it returns a zero vector of the configured
// dimension.
func (e *Extractor) Extract() Vector {
	dim := e.cfg.Dim()
	out := make([]float64, 0, dim)

	if e.n < e.cfg.MinSamples {
		return Vector{Values: make([]float64, dim)}
	}

	// series[ch] is the level history of one channel, oldest first.
	// Unmapped channels contribute zeros.
	series := make([][]float64, e.cfg.Channels)
	for ch := range series {
		series[ch] = make([]float64, 0, e.n)
	}
	start := e.pos - e.n
	for i := range e.n {
		idx := start + i
		if idx < 0 {
			idx += len(e.ring)
		}
		snap := e.ring[idx%len(e.ring)]
		for ch := range series {
			v, _ := snap.Level(ch)
			series[ch] = append(series[ch], v)
		}
	}

	for ch := range series {
		out = append(out, stat.Mean(series[ch], nil))
	}
	for ch := range series {
		out = append(out, popStdDev(series[ch]))
	}
	for ch := range series {
		out = append(out, maxOf(series[ch]))
	}

	fftCh := e.cfg.FFTChannels
	if fftCh > e.cfg.Channels {
		fftCh = e.cfg.Channels
	}
	for ch := range fftCh {
		out = append(out, e.spectralBins(series[ch])...)
	}

	return Vector{Values: out}
}

// spectralBins returns the magnitudes of the first FFTBins coefficients
// of the real FFT over one channel's history, zero-padded so the vector
// dimension stays fixed for short windows.
func (e *Extractor) spectralBins(series []float64) []float64 {
	bins := make([]float64, e.cfg.FFTBins)
	if len(series) < 2 {
		return bins
	}
	fft := fourier.NewFFT(len(series))
	coeffs := fft.Coefficients(nil, series)
	for i := range bins {
		if i < len(coeffs) {
			bins[i] = cmplx.Abs(coeffs[i])
		}
	}
	return bins
}

func popStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.PopStdDev(xs, nil)
}

func maxOf(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

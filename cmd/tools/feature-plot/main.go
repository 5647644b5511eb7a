// Command feature-plot renders a song's stored reference vectors as
// PNG plots: per-channel means across segments plus the spectral bins
// of the rhythm channels. Useful when a song stops matching and the
// question is whether the capture or the live mix drifted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/christianprison/lighting.ai/internal/catalog"
)

func main() {
	dbPath := flag.String("db-path", "lighting.db", "catalog database path")
	songID := flag.Int64("song", 0, "song id to plot (required)")
	channels := flag.Int("channels", 18, "mixer channel count of the capture")
	outDir := flag.String("o", "plots", "output directory")
	flag.Parse()

	if *songID == 0 {
		log.Fatal("missing -song")
	}

	db, err := catalog.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	vecs, err := db.GetReferenceVectors(context.Background(), *songID)
	if err != nil {
		log.Fatalf("load vectors: %v", err)
	}
	if len(vecs) == 0 {
		log.Fatalf("song %d has no reference vectors", *songID)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	// Layout per segment vector: [mean, std, max] per channel, then
	// spectral bins for the first channels.
	dim := len(vecs[0].Features)
	if dim < 3**channels {
		log.Fatalf("vector dim %d too small for %d channels", dim, *channels)
	}

	if err := plotMeans(vecs, *channels, *outDir); err != nil {
		log.Fatalf("plot means: %v", err)
	}
	if err := plotSpectral(vecs, *channels, *outDir); err != nil {
		log.Fatalf("plot spectra: %v", err)
	}
	log.Printf("✓ plots written to %s", *outDir)
}

// plotMeans draws each channel's mean level across segments.
func plotMeans(vecs []catalog.ReferenceVector, channels int, outDir string) error {
	p := plot.New()
	p.Title.Text = "Channel mean level by segment"
	p.X.Label.Text = "segment"
	p.Y.Label.Text = "level"

	for ch := 0; ch < channels; ch++ {
		pts := make(plotter.XYs, 0, len(vecs))
		for _, rv := range vecs {
			pts = append(pts, plotter.XY{X: float64(rv.SegmentIndex), Y: rv.Features[ch*3]})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("ch%d", ch), line)
	}
	return p.Save(14*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "channel_means.png"))
}

// plotSpectral draws the spectral magnitude bins of channel 0 (the
// kick) per segment.
func plotSpectral(vecs []catalog.ReferenceVector, channels int, outDir string) error {
	p := plot.New()
	p.Title.Text = "Kick channel spectral bins by segment"
	p.X.Label.Text = "bin"
	p.Y.Label.Text = "magnitude"

	specStart := 3 * channels
	for _, rv := range vecs {
		if len(rv.Features) <= specStart {
			continue
		}
		bins := rv.Features[specStart:]
		if len(bins) > 10 {
			bins = bins[:10]
		}
		pts := make(plotter.XYs, 0, len(bins))
		for i, v := range bins {
			pts = append(pts, plotter.XY{X: float64(i), Y: v})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("seg%d", rv.SegmentIndex), line)
	}
	return p.Save(14*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "kick_spectrum.png"))
}

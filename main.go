package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/christianprison/lighting.ai/internal/api"
	"github.com/christianprison/lighting.ai/internal/artnet"
	"github.com/christianprison/lighting.ai/internal/beat"
	"github.com/christianprison/lighting.ai/internal/catalog"
	"github.com/christianprison/lighting.ai/internal/config"
	"github.com/christianprison/lighting.ai/internal/cue"
	"github.com/christianprison/lighting.ai/internal/feature"
	"github.com/christianprison/lighting.ai/internal/match"
	"github.com/christianprison/lighting.ai/internal/mode"
	"github.com/christianprison/lighting.ai/internal/osc"
	"github.com/christianprison/lighting.ai/internal/pipeline"
	"github.com/christianprison/lighting.ai/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to YAML config file")
	listen      = flag.String("listen", "", "Admin HTTP listen address (overrides config)")
	dbPath      = flag.String("db-path", "", "SQLite database path (overrides config)")
	startMode   = flag.String("mode", "maintenance", "Initial mode: maintenance, probe, show")
	captureSong = flag.Int64("capture-song", 0, "Song id probe-mode captures are stored under")
	verbose     = flag.Bool("verbose", false, "Enable diagnostic logging")
	trace       = flag.Bool("trace", false, "Enable per-beat trace logging")
)

// daemon owns the pipeline lifecycle across mode transitions. One
// runtime exists at a time; start builds a fresh one so every Probe or
// Show run begins with clean detector and capture state.
type daemon struct {
	cfg config.Config
	db  *catalog.DB
	cat *catalog.Catalog

	mu      sync.Mutex
	runtime *pipeline.Runtime
	cancel  context.CancelFunc
	done    chan struct{}
	sender  *artnet.UDPSender
}

func (d *daemon) currentRuntime() *pipeline.Runtime {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runtime
}

// start builds and launches the pipeline for m. It fails, leaving the
// daemon in Maintenance, when the lighting socket cannot be opened or
// the telemetry port cannot be bound.
func (d *daemon) start(m mode.Mode) error {
	sender, err := artnet.NewUDPSender(d.cfg.BroadcastSubnet)
	if err != nil {
		return err
	}
	log.Printf("lighting: broadcasting to %s (%d universes)", sender.BroadcastAddr(), d.cfg.Universes)

	output, err := artnet.NewOutput(sender, artnet.OutputConfig{
		Universes:    d.cfg.Universes,
		Cadence:      d.cfg.OutputCadence,
		BlackoutFade: d.cfg.BlackoutFade,
		Warn:         log.New(os.Stderr, "[lighting] ", log.LstdFlags),
	})
	if err != nil {
		sender.Close()
		return err
	}

	receiver := osc.NewReceiver(osc.ReceiverConfig{
		Address:   d.cfg.ListenAddr,
		Port:      d.cfg.ListenPort,
		Channels:  d.cfg.MixerChannels,
		QueueSize: d.cfg.QueueSize,
	})

	detector := beat.NewDetector(beat.Config{
		Weights:         d.cfg.BeatWeights,
		Threshold:       d.cfg.BeatThreshold,
		MinBeatInterval: d.cfg.MinBeatInterval.Seconds(),
	})

	extractor := feature.NewExtractor(feature.Config{
		Channels:      d.cfg.MixerChannels,
		WindowSamples: d.cfg.WindowSamples,
		MinSamples:    d.cfg.MinSamples,
		FFTChannels:   d.cfg.FFTChannels,
		FFTBins:       d.cfg.FFTBins,
	})

	matcher, err := d.buildMatcher()
	if err != nil {
		sender.Close()
		return err
	}

	rt := pipeline.NewRuntime(pipeline.Config{
		BeatsPerBar:   d.cfg.BeatsPerBar,
		MatchInterval: d.cfg.MatchInterval,
		DefaultFade:   d.cfg.DefaultFade,
		Probe:         m == mode.Probe,
		CaptureSongID: *captureSong,
	}, receiver, detector, extractor, matcher, cue.NewResolver(d.cat.Repo), output, d.cat.Repo)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Run(ctx)
		close(done)
	}()

	// Wait for the telemetry socket to come up so a taken port aborts
	// the transition instead of surfacing later as a dead pipeline.
	deadline := time.Now().Add(2 * time.Second)
	for !receiver.Alive() {
		select {
		case err := <-errCh:
			cancel()
			<-done
			sender.Close()
			if err == nil {
				err = fmt.Errorf("pipeline exited during startup")
			}
			return err
		default:
		}
		if time.Now().After(deadline) {
			cancel()
			<-done
			sender.Close()
			return fmt.Errorf("telemetry receiver did not start within 2s")
		}
		time.Sleep(10 * time.Millisecond)
	}

	d.mu.Lock()
	d.runtime = rt
	d.cancel = cancel
	d.done = done
	d.sender = sender
	d.mu.Unlock()
	return nil
}

// stop cancels the pipeline and waits for the shutdown blackout.
func (d *daemon) stop() {
	d.mu.Lock()
	cancel, done, sender := d.cancel, d.done, d.sender
	d.runtime, d.cancel, d.done, d.sender = nil, nil, nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	sender.Close()
}

// buildMatcher picks the configured strategy. The direct matcher loads
// reference vectors once per pipeline start; the approximate matcher
// reads the index through the catalog on every query.
func (d *daemon) buildMatcher() (match.Matcher, error) {
	switch d.cfg.MatcherStrategy {
	case "direct":
		refs, err := match.LoadReferences(context.Background(), d.cat.Repo)
		if err != nil {
			return nil, fmt.Errorf("load reference vectors: %w", err)
		}
		log.Printf("matcher: direct cosine over %d reference vectors", len(refs))
		return match.NewDirectCosineMatcher(refs, d.cfg.SimilarityThreshold, pipeline.DiagLogger()), nil
	default:
		return match.NewApproximateVectorMatcher(d.cat, match.ApproxConfig{
			TopK:               d.cfg.TopK,
			DatePenaltyPerYear: d.cfg.DatePenaltyPerYear,
			BarWindow:          d.cfg.BarWindow,
			BarBonus:           d.cfg.BarBonus,
		}), nil
	}
}

func main() {
	flag.Parse()
	log.Printf("lighting.ai %s", version.String())

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.HTTPListen = *listen
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var diagWriter, traceWriter io.Writer
	if *verbose {
		diagWriter = os.Stderr
	}
	if *trace {
		diagWriter = os.Stderr
		traceWriter = os.Stderr
	}
	pipeline.SetLogWriters(pipeline.LogWriters{
		Ops:   os.Stderr,
		Diag:  diagWriter,
		Trace: traceWriter,
	})

	db, err := catalog.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(cfg.MigrationsDir); err == nil {
		if err := db.MigrateUp(cfg.MigrationsDir); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	cat := catalog.NewCatalog(db)
	if err := cat.LoadIndex(cfg.IndexPath); err != nil {
		log.Fatalf("failed to load catalog index: %v", err)
	}
	if err := cat.ValidateDim(cfg.FeatureDim()); err != nil {
		log.Fatalf("catalog/extractor mismatch: %v", err)
	}
	if ix := cat.Index(); ix != nil {
		log.Printf("catalog: %d indexed vectors (dim %d, metric %s)", ix.Len(), ix.FeatureDim(), ix.Metric())
	} else {
		log.Printf("catalog: no index at %s, matchers will return null", cfg.IndexPath)
	}

	d := &daemon{cfg: cfg, db: db, cat: cat}
	ctrl := mode.NewController(d.start, d.stop)

	initial, err := mode.Parse(*startMode)
	if err != nil {
		log.Fatalf("invalid -mode: %v", err)
	}
	if err := ctrl.Transition(initial); err != nil {
		log.Fatalf("failed to enter %s: %v", initial, err)
	}
	log.Printf("running in %s mode", ctrl.Current())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(ctrl, cat, d.currentRuntime)
		server := &http.Server{
			Addr:    cfg.HTTPListen,
			Handler: api.LoggingMiddleware(apiServer.ServeMux()),
		}

		go func() {
			log.Printf("admin API listening on %s", cfg.HTTPListen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	<-ctx.Done()
	ctrl.Shutdown()
	wg.Wait()
	log.Printf("graceful shutdown complete")
}

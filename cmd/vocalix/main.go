// vocalix: live turn-based speech-to-speech relay.
// Browsers stream microphone audio over /ws and get back transcripts,
// spoken replies and open-website actions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-vocalix/internal/config"
	"github.com/teslashibe/go-vocalix/internal/log"
	"github.com/teslashibe/go-vocalix/pkg/admission"
	"github.com/teslashibe/go-vocalix/pkg/assembler"
	"github.com/teslashibe/go-vocalix/pkg/hub"
	"github.com/teslashibe/go-vocalix/pkg/metrics"
	"github.com/teslashibe/go-vocalix/pkg/relay"
	"github.com/teslashibe/go-vocalix/pkg/server"
	"github.com/teslashibe/go-vocalix/pkg/tts"
)

var (
	version    = "1.0.0"
	configPath = flag.String("config", "", "Path to YAML config file (overrides $VOCALIX_CONFIG)")
	port       = flag.Int("port", 0, "HTTP server port (overrides config and $PORT)")
	debug      = flag.Bool("debug", false, "Enable debug logging and request logs")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vocalix: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	path := *configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Server.Debug = true
		cfg.Log.Level = "debug"
	}

	if err := log.Setup(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		return err
	}
	defer log.Close()
	logger := log.L()

	logger.Info("starting vocalix",
		"version", version,
		"port", cfg.Server.Port,
		"model", cfg.Reply.Model,
		"max_requests", cfg.Admission.MaxRequests,
		"window", cfg.Admission.Window,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	monitors := hub.New(logger)

	asm, err := assembler.New(
		assembler.WithIdleTimeout(cfg.Synthesis.IdleTimeout),
		assembler.WithCompleteTimeout(cfg.Synthesis.CompleteTimeout),
		assembler.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	r, err := relay.New(
		relay.WithProviders(relay.NewProviders(cfg, logger)),
		relay.WithGate(admission.New(cfg.Admission.MaxRequests, cfg.Admission.Window)),
		relay.WithAssembler(asm),
		relay.WithAmendWindow(cfg.Turn.AmendWindow),
		relay.WithAwaitTimeout(cfg.Reply.AwaitTimeout),
		relay.WithObserver(relay.Observers{m, hub.NewMonitor(monitors)}),
		relay.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	srv := server.New(r,
		server.WithHub(monitors),
		server.WithVoices(tts.NewCatalog(cfg.Catalog.MurfAPIKey, cfg.Catalog.URL, logger)),
		server.WithGatherer(reg),
		server.WithStaticDir(cfg.Server.StaticDir),
		server.WithVersion(version),
		server.WithDebug(cfg.Server.Debug),
		server.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		monitors.Run(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("endpoints",
			"ws", fmt.Sprintf("ws://localhost:%d/ws", cfg.Server.Port),
			"monitor", fmt.Sprintf("ws://localhost:%d/ws/monitor", cfg.Server.Port),
			"health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
		)
		return srv.Listen(fmt.Sprintf(":%d", cfg.Server.Port))
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", "sessions", r.Count())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("goodbye")
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/sydlexius/partsub/internal/config"
	"github.com/sydlexius/partsub/internal/engine"
	"github.com/sydlexius/partsub/internal/event"
	"github.com/sydlexius/partsub/internal/export"
	"github.com/sydlexius/partsub/internal/logging"
	"github.com/sydlexius/partsub/internal/metrics"
	"github.com/sydlexius/partsub/internal/part"
	"github.com/sydlexius/partsub/internal/render"
	"github.com/sydlexius/partsub/internal/resolver"
	"github.com/sydlexius/partsub/internal/version"
)

// commonFlags are accepted by every command that talks to the engine.
type commonFlags struct {
	configPath string
	brand      string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", os.Getenv("PARTSUB_CONFIG"), "YAML configuration file")
	fs.StringVar(&c.brand, "brand", "", "brand to resolve against")
}

// app holds the wired components for one command invocation.
type app struct {
	cfg        *config.Config
	logManager *logging.Manager
	logger     *slog.Logger
	engine     *engine.Client
	bus        *event.Bus
	controller *resolver.Controller
	renderer   *render.Renderer
	brand      part.Brand
	metricsSrv *http.Server
}

func newApp(ctx context.Context, flags commonFlags, stdout io.Writer) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logManager, logger := logging.NewManager(cfg.LogConfig(), os.Stderr)
	slog.SetDefault(logger)

	brand := part.ParseBrand(cfg.Brand.Default)
	if flags.brand != "" {
		brand = part.ParseBrand(flags.brand)
	}
	if !brand.Supported() {
		logger.Warn("brand is not in the supported list; sending it anyway",
			slog.String("brand", string(brand)))
	}

	eng := engine.New(engine.Config{
		BaseURL:       cfg.Engine.BaseURL,
		Timeout:       cfg.Engine.Timeout,
		RatePerSecond: cfg.Engine.RatePerSecond,
	}, logger)

	sink, err := newSink(cfg, logger)
	if err != nil {
		logManager.Close() //nolint:errcheck
		return nil, err
	}

	bus := event.NewBus(logger, 256)
	bus.SubscribeAll(func(e event.Event) {
		logger.Debug("event", slog.String("type", string(e.Type)), slog.Uint64("seq", e.Seq), slog.Any("data", e.Data))
	})
	go bus.Start()

	a := &app{
		cfg:        cfg,
		logManager: logManager,
		logger:     logger,
		engine:     eng,
		bus:        bus,
		controller: resolver.New(eng, sink, logger,
			resolver.WithTimeout(cfg.Engine.Timeout),
			resolver.WithEventBus(bus)),
		renderer: newRenderer(stdout),
		brand:    brand,
	}
	a.startMetrics(ctx)

	logger.Debug("partsub starting",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("engine", eng.BaseURL()),
		slog.String("brand", string(brand)),
		slog.String("export_sink", cfg.Export.Sink))
	return a, nil
}

func newSink(cfg *config.Config, logger *slog.Logger) (export.Sink, error) {
	switch cfg.Export.Sink {
	case config.SinkS3:
		s3cfg := cfg.Export.S3
		sink, err := export.NewS3Sink(export.S3Config{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			Prefix:          s3cfg.Prefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating s3 export sink: %w", err)
		}
		return sink, nil
	default:
		return export.NewLocalSink(cfg.Export.Dir, logger), nil
	}
}

// newRenderer colours output only when stdout is the process terminal.
func newRenderer(stdout io.Writer) *render.Renderer {
	if f, ok := stdout.(*os.File); ok {
		return render.ForFile(f)
	}
	return render.New(stdout, false)
}

func (a *app) startMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		a.logger.Info("metrics listening", slog.String("addr", a.cfg.Metrics.Addr))
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", slog.Any("error", err))
		}
	}()
}

func (a *app) close() {
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics shutdown", slog.Any("error", err))
		}
	}
	a.bus.Stop()
	a.logManager.Close() //nolint:errcheck
}

// show renders the controller's current state.
func (a *app) show(snap resolver.Snapshot) error {
	return a.renderer.Snapshot(snap, a.controller)
}

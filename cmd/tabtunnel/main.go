package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/tabtunnel/internal/api"
	"github.com/dgnsrekt/tabtunnel/internal/browser"
	"github.com/dgnsrekt/tabtunnel/internal/config"
	"github.com/dgnsrekt/tabtunnel/internal/coordinator"
	"github.com/dgnsrekt/tabtunnel/internal/engine"
	"github.com/dgnsrekt/tabtunnel/internal/metrics"
	"github.com/dgnsrekt/tabtunnel/internal/navigation"
	"github.com/dgnsrekt/tabtunnel/internal/netutil"
	"github.com/dgnsrekt/tabtunnel/internal/notify"
	"github.com/dgnsrekt/tabtunnel/internal/relay"
	"github.com/dgnsrekt/tabtunnel/internal/settings"
	"github.com/dgnsrekt/tabtunnel/internal/tunnel"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("tabtunnel config loaded",
		"bind_addr", cfg.BindAddr,
		"port_candidates", cfg.PortCandidates,
		"cdp_url", cfg.CDPURL(),
		"proxy_base", cfg.ProxyBase,
		"proxy_prefix", cfg.ProxyPrefix,
		"interceptor_url", cfg.InterceptorURL,
		"transport_url", cfg.TransportURL,
		"transport", cfg.Transport,
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.AutoFallback)
	if err != nil {
		slog.Error("failed to bind", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.ProfileDir,
			Headless:   cfg.Headless,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Warn("browser launch failed", "error", err)
		}
		defer launcher.Stop()
	}

	var eng engine.Engine = engine.Unavailable{}
	cdpEngine := engine.NewCDPEngine(cfg.CDPURL(), engine.NewCodec(cfg.ProxyBase, cfg.ProxyPrefix), cfg.EvalTimeout())
	if err := cdpEngine.Connect(ctx); err != nil {
		slog.Warn("rendering engine unavailable, tabs will be inert", "cdp_url", cfg.CDPURL(), "error", err)
	} else {
		eng = cdpEngine
		defer func() {
			if err := cdpEngine.Close(); err != nil {
				slog.Debug("engine close failed", "error", err)
			}
		}()
	}

	presets, err := settings.LoadPresets(cfg.PresetsFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("endpoint presets unreadable, using defaults", "path", cfg.PresetsFile, "error", err)
		}
		presets = settings.DefaultPresets()
	}

	broker := relay.NewBroker()
	publisher := relay.NewPublisher(broker)
	m := metrics.New()

	opts := coordinator.Options{
		Engine:         eng,
		TransportName:  cfg.Transport,
		Renderer:       coordinator.Renderers{publisher, m},
		Resolver:       navigation.NewResolver(cfg.SearchTemplate),
		StartURL:       cfg.StartPage,
		LaunchURL:      cfg.LaunchURL,
		DevtoolsScript: cfg.DevtoolsScript,
	}
	storeOpts := []settings.Option{settings.WithPresets(presets)}

	if cfg.InterceptorURL != "" {
		interceptor := tunnel.NewInterceptor(cfg.InterceptorURL)
		defer interceptor.Close()
		opts.Interceptor = interceptor
		storeOpts = append(storeOpts, settings.WithBroadcaster(interceptor))
	}
	if cfg.TransportURL != "" {
		opts.Transport = tunnel.NewConnection(cfg.TransportURL, cfg.EvalTimeout())
	}

	store, err := settings.NewStore(cfg.DataDir, storeOpts...)
	if err != nil {
		slog.Error("failed to open settings store", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	store.Subscribe(publisher.EndpointSaved)
	store.Subscribe(m.EndpointSaved)
	if cfg.NtfyURL != "" {
		store.Subscribe(notify.NewEndpointNotifier(nil, cfg.NtfyURL).EndpointChanged)
	}
	opts.Store = store

	coord := coordinator.New(opts)
	runDone := make(chan error, 1)
	go func() { runDone <- coord.Run(ctx) }()

	srv := &http.Server{
		Handler:           api.NewServer(coord, broker, api.WithMetrics(m)),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end with the signal context rather than holding
		// Shutdown open.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.Info("tabtunnel listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs", "events", "http://"+bindAddr+"/events")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("tabtunnel server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("tabtunnel shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("tabtunnel shutdown failed", "error", err)
	}
	select {
	case <-runDone:
	case <-shutdownCtx.Done():
		slog.Warn("session layer did not stop in time")
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}

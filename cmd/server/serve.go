package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/beststop/parking-server/internal/config"
	"github.com/beststop/parking-server/internal/cycler"
	"github.com/beststop/parking-server/internal/history"
	"github.com/beststop/parking-server/internal/logger"
	"github.com/beststop/parking-server/internal/metrics"
	"github.com/beststop/parking-server/internal/occupancy"
	"github.com/beststop/parking-server/internal/pushclient"
	"github.com/beststop/parking-server/internal/recorder"
	"github.com/beststop/parking-server/internal/webmonitor"
)

// runServe runs the cycler and the HTTP API until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config) error {
	logger.Info("Main", "BestStop server starting (version %s)", Version)

	m := metrics.New()
	monitor := webmonitor.NewMonitor()
	pub := occupancy.NewMultiPublisher(monitor)

	serverOpts := []webmonitor.Option{webmonitor.WithMetrics(m)}
	cyclerOpts := []cycler.Option{cycler.WithMetrics(m)}

	if cfg.History.DSN != "" {
		store, err := history.Open(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		pub.Add("history", store)
		serverOpts = append(serverOpts, webmonitor.WithHistory(store))
		logger.Info("Main", "History: %s", cfg.History.DSN)
	}

	if cfg.Push.URL != "" {
		pub.Add("push", pushclient.New(cfg.Push.URL, cfg.Push.Timeout))
		logger.Info("Main", "Pushing results to %s", cfg.Push.URL)
	}

	if cfg.Recorder.Dir != "" {
		rec, err := recorder.New(cfg.Recorder.Dir, cfg.Recorder.Keep)
		if err != nil {
			return fmt.Errorf("create recorder: %w", err)
		}
		defer rec.Close()
		cyclerOpts = append(cyclerOpts, cycler.WithFrameObserver(rec))
		serverOpts = append(serverOpts, webmonitor.WithRecorderStatus(func() any { return rec.Status() }))
		logger.Info("Main", "Snapshots: %s (keep %d)", cfg.Recorder.Dir, cfg.Recorder.Keep)
	}

	cy, err := newCycler(ctx, cfg, pub, cyclerOpts...)
	if err != nil {
		return err
	}
	serverOpts = append(serverOpts, webmonitor.WithPhase(webmonitor.PhaseFunc(func() string {
		return string(cy.State())
	})))

	webCfg := webmonitor.DefaultConfig()
	webCfg.Addr = cfg.Addr()
	webCfg.AssetsDir = cfg.HTTP.AssetsDir
	webCfg.CORSOrigins = cfg.HTTP.CORSOrigins
	webCfg.Version = Version
	srv := webmonitor.NewServer(webCfg, monitor, serverOpts...)

	httpServer := &http.Server{
		Addr:              webCfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	cycleCtx, cancelCycle := context.WithCancel(ctx)
	defer cancelCycle()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		logger.Info("Main", "HTTP server listening on %s", webCfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		if err := cy.Run(cycleCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("cycler: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Main", "Shutting down...")
	case runErr = <-errCh:
		logger.Error("Main", "%v", runErr)
	}

	cancelCycle()
	srv.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Main", "HTTP server shutdown error: %v", err)
	}

	wg.Wait()
	logger.Info("Main", "Server stopped")
	return runErr
}

// Command vagas_api serves only the push model: a detection box POSTs counts to
// /atualizar_vagas and clients read them back from /vagas.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/beststop/parking-server/internal/logger"
	"github.com/beststop/parking-server/internal/metrics"
	"github.com/beststop/parking-server/internal/webmonitor"
)

func main() {
	cfg := webmonitor.DefaultConfig()
	cfg.Addr = "0.0.0.0:8000"

	var logLevel string
	var logFormat string
	var corsOrigins string

	flag.StringVar(&cfg.Addr, "http", cfg.Addr, "HTTP server address")
	flag.StringVar(&corsOrigins, "cors", strings.Join(cfg.CORSOrigins, ","), "Allowed CORS origins (comma-separated)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	flag.StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(logger.Options{Level: level, Output: os.Stderr, UseColor: logFormat != "json", Format: logFormat})
	defer logger.Sync()

	cfg.CORSOrigins = splitOrigins(corsOrigins)

	m := metrics.New()
	server := webmonitor.NewServer(cfg, webmonitor.NewMonitor(), webmonitor.WithMetrics(m))

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", server.PushHandler())

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("Main", "Vagas API listening on %s", cfg.Addr)
	logger.Info("Main", "Log level: %s", level)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("Main", "Server stopped")
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

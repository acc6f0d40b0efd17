package webmonitor

import (
	"time"
)

// Config defines the runtime configuration for the reporting server.
type Config struct {
	Addr string
	// AssetsDir serves /assets/ and the static site. Empty disables it.
	AssetsDir   string
	CORSOrigins []string
	// KeepaliveInterval is the SSE comment interval on idle streams.
	KeepaliveInterval time.Duration
	// HistoryLimit is the default row count of /historico.
	HistoryLimit int
	Version      string
}

// DefaultConfig returns a config matching the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		Addr:              "0.0.0.0:5000",
		CORSOrigins:       []string{"*"},
		KeepaliveInterval: 30 * time.Second,
		HistoryLimit:      100,
		Version:           "dev",
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/beststop/parking-server/internal/config"
	"github.com/beststop/parking-server/internal/logger"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	var cfg *config.Config

	app := &cli.App{
		Name:  "beststop",
		Usage: "parking occupancy server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "Load environment variables from `FILE` if it exists",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error, silent)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (console, json)",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Args().First() == "version" {
				return nil
			}
			loaded, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			cfg = loaded
			return initLogger(cfg)
		},
		After: func(*cli.Context) error {
			logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the detection loop and the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Usage: "HTTP listen host"},
					&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP listen port"},
					&cli.DurationFlag{Name: "interval", Usage: "time between cycles (0 runs once)"},
					&cli.Float64Flag{Name: "threshold", Usage: "detector confidence threshold"},
					&cli.StringSliceFlag{Name: "source", Aliases: []string{"s"}, Usage: "image/video path or stream URL (repeatable)"},
				},
				Action: func(c *cli.Context) error {
					applyServeFlags(c, cfg)
					if err := cfg.Validate(); err != nil {
						return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 1)
					}
					return runServe(c.Context, cfg)
				},
			},
			{
				Name:  "once",
				Usage: "run a single cycle over the first source and print the result",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "image/video path or stream URL"},
					&cli.Float64Flag{Name: "threshold", Usage: "detector confidence threshold"},
					&cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
				},
				Action: func(c *cli.Context) error {
					if src := c.String("source"); src != "" {
						cfg.Cycle.Sources = []string{src}
					}
					if c.IsSet("threshold") {
						cfg.Cycle.Threshold = c.Float64("threshold")
					}
					if err := cfg.Validate(); err != nil {
						return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 1)
					}
					return runOnce(c.Context, cfg, c.App.Writer, c.Bool("json"))
				},
			},
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "BestStop parking server\n")
					fmt.Fprintf(c.App.Writer, "Version:    %s\n", Version)
					fmt.Fprintf(c.App.Writer, "Commit:     %s\n", Commit)
					fmt.Fprintf(c.App.Writer, "Build Date: %s\n", BuildDate)
					return nil
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the YAML file, .env, BESTSTOP_* and global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) error {
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid log level: %v", err), 1)
	}
	logger.Init(logger.Options{
		Level:    level,
		Output:   os.Stderr,
		UseColor: cfg.Logging.Format != "json",
		Format:   cfg.Logging.Format,
	})
	return nil
}

func applyServeFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("host") {
		cfg.HTTP.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.HTTP.Port = c.Int("port")
	}
	if c.IsSet("interval") {
		cfg.Cycle.Interval = c.Duration("interval")
	}
	if c.IsSet("threshold") {
		cfg.Cycle.Threshold = c.Float64("threshold")
	}
	if c.IsSet("source") {
		cfg.Cycle.Sources = c.StringSlice("source")
	}
}

// shutdownTimeout bounds the HTTP server drain on exit.
const shutdownTimeout = 5 * time.Second

package main

import (
	"context"
	"fmt"

	"github.com/beststop/parking-server/internal/config"
	"github.com/beststop/parking-server/internal/cycler"
	"github.com/beststop/parking-server/internal/detector"
	"github.com/beststop/parking-server/internal/framesource"
	"github.com/beststop/parking-server/internal/logger"
	"github.com/beststop/parking-server/internal/occupancy"
	"github.com/beststop/parking-server/pkg/types"
)

// newDetector builds the configured detector backend.
func newDetector(ctx context.Context, cfg *config.Config) (detector.Detector, error) {
	switch cfg.Detector.Kind {
	case "static":
		dets := make([]types.Detection, 0, len(cfg.Detector.Static))
		for _, d := range cfg.Detector.Static {
			dets = append(dets, types.Detection{ClassID: d.ClassID, Label: d.ClassName, Confidence: d.Confidence})
		}
		logger.Info("Main", "Using static detector (%d detections per frame)", len(dets))
		return &detector.Static{Detections: dets}, nil
	case "http":
		det := detector.NewHTTPDetector(detector.HTTPConfig{
			URL:       cfg.Detector.URL,
			Weights:   cfg.Detector.Weights,
			ImageSize: cfg.Detector.ImageSize,
			Timeout:   cfg.Detector.Timeout,
		})
		if err := det.HealthCheck(ctx); err != nil {
			// The sidecar may come up after us; cycles fail until it does.
			logger.Warn("Main", "Detector health check failed: %v", err)
		} else {
			logger.Info("Main", "Detector ready at %s (weights=%s)", cfg.Detector.URL, cfg.Detector.Weights)
		}
		return det, nil
	default:
		return nil, fmt.Errorf("unknown detector kind %q", cfg.Detector.Kind)
	}
}

func labelMap(cfg *config.Config) *occupancy.LabelMap {
	l := cfg.Labels
	return occupancy.NewLabelMap(l.FreeIDs, l.OccupiedIDs, l.FreeNames, l.OccupiedNames)
}

// newCycler resolves sources and builds a cycler publishing to pub.
func newCycler(ctx context.Context, cfg *config.Config, pub occupancy.Publisher, opts ...cycler.Option) (*cycler.Cycler, error) {
	sources, err := cfg.ResolveSources()
	if err != nil {
		return nil, err
	}
	det, err := newDetector(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cycleCfg := cycler.Config{
		Sources:   sources,
		Interval:  cfg.Cycle.Interval,
		Threshold: cfg.Cycle.Threshold,
		Labels:    labelMap(cfg),
	}
	return cycler.New(cycleCfg, framesource.NewFileSource(cfg.Cycle.SourceDir), det, pub, opts...), nil
}

// Package cycler drives the periodic frame -> detect -> aggregate -> publish loop.
package cycler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/beststop/parking-server/internal/detector"
	"github.com/beststop/parking-server/internal/framesource"
	"github.com/beststop/parking-server/internal/logger"
	"github.com/beststop/parking-server/internal/metrics"
	"github.com/beststop/parking-server/internal/occupancy"
	"github.com/beststop/parking-server/pkg/types"
)

// ErrNoSources is returned by Run when no frame source is configured.
var ErrNoSources = errors.New("no frame sources configured")

// Phase is the cycler's position within a cycle.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAcquiringFrame Phase = "acquiring_frame"
	PhaseDetecting      Phase = "detecting"
	PhaseAggregating    Phase = "aggregating"
	PhasePublished      Phase = "published"
	PhaseDone           Phase = "done"
)

// Config holds cycle parameters.
type Config struct {
	Sources []string
	// Interval between cycles. Zero or negative runs a single cycle.
	Interval  time.Duration
	Threshold float64
	Labels    *occupancy.LabelMap
}

// FrameObserver sees the analysed frame of every successful cycle.
type FrameObserver interface {
	Observe(ctx context.Context, source string, img image.Image, detections []types.Detection, result types.AggregateResult) error
}

// Option configures a Cycler.
type Option func(*Cycler)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(cy *Cycler) { cy.clock = c }
}

// WithMetrics records cycle metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cy *Cycler) { cy.metrics = m }
}

// WithFrameObserver registers an observer for analysed frames.
func WithFrameObserver(o FrameObserver) Option {
	return func(cy *Cycler) {
		if o != nil {
			cy.observers = append(cy.observers, o)
		}
	}
}

// Cycler owns the source cursor and is the only writer of published results.
type Cycler struct {
	cfg       Config
	sources   *types.SourceList
	src       framesource.Source
	det       detector.Detector
	pub       occupancy.Publisher
	labels    *occupancy.LabelMap
	clock     clock.Clock
	metrics   *metrics.Metrics
	observers []FrameObserver

	phase atomic.Value // Phase
}

// New creates a Cycler.
func New(cfg Config, src framesource.Source, det detector.Detector, pub occupancy.Publisher, opts ...Option) *Cycler {
	c := &Cycler{
		cfg:     cfg,
		sources: types.NewSourceList(cfg.Sources),
		src:     src,
		det:     det,
		pub:     pub,
		labels:  cfg.Labels,
		clock:   clock.New(),
	}
	if c.labels == nil {
		c.labels = occupancy.DefaultLabelMap()
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	c.phase.Store(PhaseIdle)
	return c
}

// State returns the current phase.
func (c *Cycler) State() Phase {
	return c.phase.Load().(Phase)
}

// Sources returns the configured sources in rotation order.
func (c *Cycler) Sources() []string {
	return c.sources.Paths()
}

func (c *Cycler) setPhase(p Phase) {
	c.phase.Store(p)
}

// Run executes one cycle immediately and then one per interval until ctx is cancelled.
func (c *Cycler) Run(ctx context.Context) error {
	defer c.setPhase(PhaseDone)

	if c.sources.Len() == 0 {
		return ErrNoSources
	}

	logger.Info("Cycler", "Starting: %d source(s), interval=%v, threshold=%.2f",
		c.sources.Len(), c.cfg.Interval, c.cfg.Threshold)

	c.RunOnce(ctx)
	if c.cfg.Interval <= 0 {
		return nil
	}

	ticker := c.clock.Ticker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cycler", "Stopped")
			return ctx.Err()
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single cycle over the next source and returns what was published.
func (c *Cycler) RunOnce(ctx context.Context) types.AggregateResult {
	start := c.clock.Now()
	defer func() { c.metrics.ObserveCycle(c.clock.Since(start)) }()

	source, ok := c.sources.Next()
	if !ok {
		return c.fail(ctx, metrics.StageFrame, "", ErrNoSources)
	}
	name := framesource.DisplayName(source)

	c.setPhase(PhaseAcquiringFrame)
	img, err := c.src.Frame(ctx, source)
	if err != nil {
		return c.fail(ctx, metrics.StageFrame, name, err)
	}

	c.setPhase(PhaseDetecting)
	detectStart := c.clock.Now()
	detections, err := c.det.Detect(ctx, img, c.cfg.Threshold)
	c.metrics.ObserveDetect(c.clock.Since(detectStart), len(detections))
	if err != nil {
		return c.fail(ctx, metrics.StageDetect, name, err)
	}

	c.setPhase(PhaseAggregating)
	detections = c.labels.Classify(detections)
	result := occupancy.Stamp(occupancy.Aggregate(detections, c.cfg.Threshold), name, c.clock.Now())

	c.publish(ctx, result)
	for _, o := range c.observers {
		if err := o.Observe(ctx, name, img, detections, result); err != nil {
			logger.Warn("Cycler", "Frame observer failed for %s: %v", name, err)
		}
	}

	logger.Info("Cycler", "%s: total=%d free=%d (%.2f%%) occupied=%d (%.2f%%) unknown=%d",
		name, result.Total, result.FreeCount, result.FreePct,
		result.OccupiedCount, result.OccupiedPct, result.UnknownCount)
	return result
}

// fail publishes a zeroed result for a cycle that could not complete.
// Cancellation is not published so shutdown does not wipe the last good value.
func (c *Cycler) fail(ctx context.Context, stage, source string, err error) types.AggregateResult {
	result := types.ZeroResult(source, c.clock.Now())
	result.Threshold = c.cfg.Threshold
	result.Error = err.Error()

	if ctx.Err() != nil {
		c.setPhase(PhaseIdle)
		return result
	}

	c.metrics.RecordFailure(stage)
	logger.Warn("Cycler", "%s stage failed for %q: %v", stage, source, err)
	c.publish(ctx, result)
	return result
}

func (c *Cycler) publish(ctx context.Context, result types.AggregateResult) {
	if err := c.pub.Publish(ctx, result); err != nil {
		c.metrics.RecordFailure(metrics.StagePublish)
		logger.Error("Cycler", "Publish failed: %v", fmt.Errorf("publish %q: %w", result.Source, err))
	} else {
		c.metrics.UpdateResult(result)
	}
	c.setPhase(PhasePublished)
}

package occupancy

import (
	"context"
	"errors"

	"github.com/beststop/parking-server/internal/logger"
	"github.com/beststop/parking-server/pkg/types"
)

// Publisher receives every result the cycler produces.
type Publisher interface {
	Publish(ctx context.Context, result types.AggregateResult) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, result types.AggregateResult) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, result types.AggregateResult) error {
	return f(ctx, result)
}

// MultiPublisher publishes to a primary slot and any number of secondary sinks.
// Only a primary failure is returned; secondary failures are logged.
type MultiPublisher struct {
	primary     Publisher
	secondaries []namedPublisher
}

type namedPublisher struct {
	name string
	pub  Publisher
}

// NewMultiPublisher creates a fan-out with the given primary publisher.
func NewMultiPublisher(primary Publisher) *MultiPublisher {
	return &MultiPublisher{primary: primary}
}

// Add registers a secondary sink. Nil publishers are ignored.
func (m *MultiPublisher) Add(name string, pub Publisher) *MultiPublisher {
	if pub != nil {
		m.secondaries = append(m.secondaries, namedPublisher{name: name, pub: pub})
	}
	return m
}

// Publish implements Publisher.
func (m *MultiPublisher) Publish(ctx context.Context, result types.AggregateResult) error {
	if m.primary == nil {
		return errors.New("no primary publisher")
	}
	if err := m.primary.Publish(ctx, result); err != nil {
		return err
	}
	for _, s := range m.secondaries {
		if err := s.pub.Publish(ctx, result); err != nil {
			logger.Warn("Publisher", "%s: %v", s.name, err)
		}
	}
	return nil
}

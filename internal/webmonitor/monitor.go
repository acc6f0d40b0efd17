package webmonitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beststop/parking-server/internal/occupancy"
	"github.com/beststop/parking-server/pkg/types"
)

const historySize = 8

// Monitor holds the latest published result and the push slot.
// There is one writer per slot; readers never observe a partial value.
type Monitor struct {
	startTime time.Time

	latest  atomic.Pointer[types.AggregateResult]
	version atomic.Int64

	mu      sync.Mutex
	history []types.AggregateResult
	push    types.PushStatus

	// onPublish is called after every result, outside the lock.
	onPublish func(types.AggregateResult)
}

// NewMonitor creates a Monitor holding zeroed values.
func NewMonitor() *Monitor {
	m := &Monitor{startTime: time.Now()}
	zero := types.AggregateResult{}
	m.latest.Store(&zero)
	return m
}

// Publish stores r as the latest result. It implements occupancy.Publisher.
func (m *Monitor) Publish(_ context.Context, r types.AggregateResult) error {
	m.latest.Store(&r)
	m.version.Add(1)

	m.mu.Lock()
	m.history = append([]types.AggregateResult{r}, m.history...)
	if len(m.history) > historySize {
		m.history = m.history[:historySize]
	}
	notify := m.onPublish
	m.mu.Unlock()

	if notify != nil {
		notify(r)
	}
	return nil
}

// Latest returns the most recent result, zeroed before the first cycle.
func (m *Monitor) Latest() types.AggregateResult {
	return *m.latest.Load()
}

// Version counts published results.
func (m *Monitor) Version() int {
	return int(m.version.Load())
}

// UpdatePush replaces the push slot.
func (m *Monitor) UpdatePush(livres, ocupadas int) types.PushStatus {
	freePct, _ := occupancy.Percentages(livres, ocupadas)
	status := types.PushStatus{
		Livres:            livres,
		Ocupadas:          ocupadas,
		PorcentagemLivres: freePct,
	}

	m.mu.Lock()
	m.push = status
	m.mu.Unlock()
	return status
}

// Push returns the push slot.
func (m *Monitor) Push() types.PushStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.push
}

// Snapshot returns the latest result, push slot and recent history.
func (m *Monitor) Snapshot() (types.AggregateResult, types.PushStatus, []types.AggregateResult) {
	latest := m.Latest()

	m.mu.Lock()
	defer m.mu.Unlock()

	historyCopy := make([]types.AggregateResult, len(m.history))
	copy(historyCopy, m.history)
	return latest, m.push, historyCopy
}

// Uptime returns time since the monitor was created.
func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.startTime)
}

func (m *Monitor) setOnPublish(fn func(types.AggregateResult)) {
	m.mu.Lock()
	m.onPublish = fn
	m.mu.Unlock()
}

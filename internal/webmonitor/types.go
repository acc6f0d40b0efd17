package webmonitor

import (
	"context"

	"github.com/beststop/parking-server/pkg/types"
)

// HistoryReader serves /historico.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]types.AggregateResult, error)
}

// PhaseReporter reports what the producer is doing, shown on /api/status.
type PhaseReporter interface {
	PhaseName() string
}

// PhaseFunc adapts a function to PhaseReporter.
type PhaseFunc func() string

// PhaseName calls f.
func (f PhaseFunc) PhaseName() string { return f() }

// StatusPayload is the /api/status response.
type StatusPayload struct {
	Latest   types.AggregateResult   `json:"dados"`
	Push     types.PushStatus        `json:"vagas"`
	History  []types.AggregateResult `json:"historico"`
	Phase    string                  `json:"fase,omitempty"`
	Version  int                     `json:"versao"`
	Uptime   float64                 `json:"uptime_s"`
	Recorder any                     `json:"recorder,omitempty"`
	Time     float64                 `json:"timestamp"`
}

// pushRequest is the POST /atualizar_vagas body. Pointers tell missing from zero.
type pushRequest struct {
	Livres   *int `json:"livres"`
	Ocupadas *int `json:"ocupadas"`
}

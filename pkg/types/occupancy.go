package types

import (
	"strings"
	"time"
)

// SpotClass is the occupancy class a detection maps to.
type SpotClass int

const (
	SpotUnknown SpotClass = iota
	SpotFree
	SpotOccupied
)

var spotClassNames = map[SpotClass]string{
	SpotUnknown:  "unknown",
	SpotFree:     "free",
	SpotOccupied: "occupied",
}

// String returns the string representation of a spot class
func (c SpotClass) String() string {
	if name, ok := spotClassNames[c]; ok {
		return name
	}
	return "unknown"
}

// BoundingBox is a detection box in pixel coordinates (top-left, bottom-right).
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns the box width, never negative.
func (b BoundingBox) Width() int {
	if b.X2 < b.X1 {
		return 0
	}
	return b.X2 - b.X1
}

// Height returns the box height, never negative.
func (b BoundingBox) Height() int {
	if b.Y2 < b.Y1 {
		return 0
	}
	return b.Y2 - b.Y1
}

// Detection is one classified box returned by the detector for a single frame.
type Detection struct {
	ClassID    int          `json:"class_id"`
	Label      string       `json:"class_name"`
	Class      SpotClass    `json:"-"`
	Confidence float64      `json:"confidence"`
	BBox       *BoundingBox `json:"bbox,omitempty"`
}

// AggregateResult is the tally of one aggregation cycle.
//
// JSON names follow the dashboard contract served at /dados.
type AggregateResult struct {
	FreePct       float64   `json:"perc_livres"`
	OccupiedPct   float64   `json:"perc_ocupadas"`
	Total         int       `json:"total_vagas"`
	FreeCount     int       `json:"vagas_livres"`
	OccupiedCount int       `json:"vagas_ocupadas"`
	UnknownCount  int       `json:"vagas_desconhecidas"`
	Source        string    `json:"imagem,omitempty"`
	Timestamp     time.Time `json:"atualizado_em,omitzero"`
	Threshold     float64   `json:"limiar_confianca,omitempty"`
	Error         string    `json:"erro,omitempty"`
}

// ZeroResult returns the zeroed result published before the first cycle or after a failure.
func ZeroResult(source string, ts time.Time) AggregateResult {
	return AggregateResult{Source: source, Timestamp: ts}
}

// Failed reports whether the result was produced by a failed cycle.
func (r AggregateResult) Failed() bool {
	return r.Error != ""
}

// PushStatus is the slot fed by POST /atualizar_vagas and read by GET /vagas.
type PushStatus struct {
	Livres            int     `json:"livres"`
	Ocupadas          int     `json:"ocupadas"`
	PorcentagemLivres float64 `json:"porcentagem_livres"`
}

// SourceList is an ordered list of frame sources with a rotating cursor.
// It is owned by a single goroutine and is not safe for concurrent use.
type SourceList struct {
	paths  []string
	cursor int
}

// NewSourceList copies paths, dropping blank entries.
func NewSourceList(paths []string) *SourceList {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		cleaned = append(cleaned, p)
	}
	return &SourceList{paths: cleaned}
}

// Len returns the number of sources.
func (l *SourceList) Len() int {
	return len(l.paths)
}

// Peek returns the source under the cursor without moving it.
func (l *SourceList) Peek() (string, bool) {
	if len(l.paths) == 0 {
		return "", false
	}
	return l.paths[l.cursor], true
}

// Advance moves the cursor one step, wrapping at the end.
func (l *SourceList) Advance() {
	if len(l.paths) == 0 {
		return
	}
	l.cursor = (l.cursor + 1) % len(l.paths)
}

// Next returns the source under the cursor and advances it.
func (l *SourceList) Next() (string, bool) {
	p, ok := l.Peek()
	if ok {
		l.Advance()
	}
	return p, ok
}

// Paths returns a copy of the configured sources.
func (l *SourceList) Paths() []string {
	out := make([]string, len(l.paths))
	copy(out, l.paths)
	return out
}

package occupancy

import (
	"strings"

	"github.com/beststop/parking-server/pkg/types"
)

// Class ids of the trained parking model.
const (
	DefaultOccupiedID = 0
	DefaultFreeID     = 1
)

// LabelMap resolves detector class ids and names to spot classes.
type LabelMap struct {
	ids   map[int]types.SpotClass
	names map[string]types.SpotClass
}

// DefaultLabelMap matches the weights shipped with the project:
// id 0 / "ocupado" is occupied, id 1 / "vazio" is free.
func DefaultLabelMap() *LabelMap {
	return NewLabelMap(
		[]int{DefaultFreeID}, []int{DefaultOccupiedID},
		[]string{"vazio", "livre", "free", "empty"},
		[]string{"ocupado", "ocupada", "occupied"},
	)
}

// NewLabelMap builds a lookup from explicit id and name lists.
func NewLabelMap(freeIDs, occupiedIDs []int, freeNames, occupiedNames []string) *LabelMap {
	m := &LabelMap{
		ids:   make(map[int]types.SpotClass),
		names: make(map[string]types.SpotClass),
	}
	for _, id := range freeIDs {
		m.ids[id] = types.SpotFree
	}
	for _, id := range occupiedIDs {
		m.ids[id] = types.SpotOccupied
	}
	for _, n := range freeNames {
		m.names[normalizeLabel(n)] = types.SpotFree
	}
	for _, n := range occupiedNames {
		m.names[normalizeLabel(n)] = types.SpotOccupied
	}
	return m
}

// Resolve maps a detection to its spot class. A recognised name wins over the id,
// because sidecars trained on other datasets may renumber classes.
func (m *LabelMap) Resolve(classID int, label string) types.SpotClass {
	if label != "" {
		if c, ok := m.names[normalizeLabel(label)]; ok {
			return c
		}
	}
	if c, ok := m.ids[classID]; ok {
		return c
	}
	return types.SpotUnknown
}

// Classify fills in Class for every detection and returns the same slice.
func (m *LabelMap) Classify(detections []types.Detection) []types.Detection {
	for i := range detections {
		detections[i].Class = m.Resolve(detections[i].ClassID, detections[i].Label)
	}
	return detections
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

package bridge

import (
	"sort"
	"sync"

	"github.com/imago-ai/imago/pkg/types"
)

// CompatibilityEntry is one cell of the framework compatibility matrix: the
// running average translation fidelity observed for a (source, target) pair.
type CompatibilityEntry struct {
	Source      types.Framework `json:"source"`
	Target      types.Framework `json:"target"`
	AvgFidelity float64         `json:"avg_fidelity"`
	SampleSize  int64           `json:"sample_size"`
}

type matrixCell struct {
	sum float64
	n   int64
}

// compatibilityMatrix accumulates observed fidelities per framework pair.
// Constructor-supplied state owned by one orchestrator, never process-wide.
type compatibilityMatrix struct {
	mu    sync.RWMutex
	cells map[[2]types.Framework]*matrixCell
}

func newCompatibilityMatrix() *compatibilityMatrix {
	return &compatibilityMatrix{cells: make(map[[2]types.Framework]*matrixCell)}
}

func (m *compatibilityMatrix) record(source, target types.Framework, fidelity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]types.Framework{source, target}
	cell, ok := m.cells[key]
	if !ok {
		cell = &matrixCell{}
		m.cells[key] = cell
	}
	cell.sum += fidelity
	cell.n++
}

func (m *compatibilityMatrix) entries() []CompatibilityEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]CompatibilityEntry, 0, len(m.cells))
	for key, cell := range m.cells {
		out = append(out, CompatibilityEntry{
			Source:      key[0],
			Target:      key[1],
			AvgFidelity: cell.sum / float64(cell.n),
			SampleSize:  cell.n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

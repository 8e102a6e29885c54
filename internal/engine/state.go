package engine

import (
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/shaiso/Batchflow/internal/domain"
)

// executionState — статусы jobs и производные от них счётчики.
//
// Массивы параллельны вершинам workflow. Сам по себе тип не
// потокобезопасен: Execution защищает его мьютексом, Snapshot
// владеет собственной копией.
type executionState struct {
	statuses  []domain.JobStatus
	ids       []int64
	ready     *bitset.BitSet
	completed int
	abandoned bool
}

// newExecutionState создаёт состояние "ничего не запускалось".
func newExecutionState(n int) executionState {
	s := executionState{
		statuses: make([]domain.JobStatus, n),
		ids:      make([]int64, n),
		ready:    bitset.New(uint(n)),
	}
	for i := range s.statuses {
		s.statuses[i] = domain.JobStatusUnknown
	}
	return s
}

// clone возвращает глубокую копию.
func (s *executionState) clone() executionState {
	return executionState{
		statuses:  slices.Clone(s.statuses),
		ids:       slices.Clone(s.ids),
		ready:     s.ready.Clone(),
		completed: s.completed,
		abandoned: s.abandoned,
	}
}

// isReady вычисляет готовность вершины v по статусам.
func (s *executionState) isReady(wf *Workflow, v int) bool {
	if !s.statuses[v].IsRestartable() {
		return false
	}
	for u := range wf.graph.Dependencies(v) {
		if s.statuses[u] != domain.JobStatusCompleted {
			return false
		}
	}
	return true
}

// recompute пересчитывает счётчики, флаг abandoned и готовность с нуля.
func (s *executionState) recompute(wf *Workflow) {
	s.completed = 0
	s.abandoned = false
	s.ready.ClearAll()

	for v, status := range s.statuses {
		switch status {
		case domain.JobStatusCompleted:
			s.completed++
		case domain.JobStatusAbandoned:
			s.abandoned = true
		}
		if s.isReady(wf, v) {
			s.ready.Set(uint(v))
		}
	}
}

// readyIndexes возвращает готовые вершины по возрастанию.
func (s *executionState) readyIndexes() []int {
	out := make([]int, 0, s.ready.Count())
	for i, ok := s.ready.NextSet(0); ok; i, ok = s.ready.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

func (s *executionState) isComplete() bool {
	return s.completed == len(s.statuses)
}

func (s *executionState) isRunning() bool {
	for _, status := range s.statuses {
		if status.IsRunning() {
			return true
		}
	}
	return false
}

func (s *executionState) hasFailed() bool {
	return slices.Contains(s.statuses, domain.JobStatusFailed)
}

// withStatus возвращает вершины с одним из статусов.
func (s *executionState) withStatus(statuses []domain.JobStatus) []int {
	out := make([]int, 0)
	for v, status := range s.statuses {
		if slices.Contains(statuses, status) {
			out = append(out, v)
		}
	}
	return out
}

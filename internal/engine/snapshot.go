package engine

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Batchflow/internal/domain"
)

// Snapshot — неизменяемая копия состояния Execution на момент TakenAt.
//
// Не требует блокировок, можно передавать между горутинами.
type Snapshot struct {
	wf      *Workflow
	state   executionState
	TakenAt time.Time
}

// Workflow возвращает workflow снимка.
func (s *Snapshot) Workflow() *Workflow {
	return s.wf
}

// Status возвращает статус job.
func (s *Snapshot) Status(name string) (domain.JobStatus, error) {
	node, err := s.wf.Node(name)
	if err != nil {
		return "", err
	}
	return s.state.statuses[node.index], nil
}

// StatusAt возвращает статус job по индексу вершины.
func (s *Snapshot) StatusAt(index int) domain.JobStatus {
	return s.state.statuses[index]
}

// ExecutionID возвращает ID последней записи выполнения job.
func (s *Snapshot) ExecutionID(name string) (int64, error) {
	node, err := s.wf.Node(name)
	if err != nil {
		return 0, err
	}
	return s.state.ids[node.index], nil
}

// IsReady проверяет, был ли job готов.
func (s *Snapshot) IsReady(name string) (bool, error) {
	node, err := s.wf.Node(name)
	if err != nil {
		return false, err
	}
	return s.state.ready.Test(uint(node.index)), nil
}

// ReadyNodes возвращает готовые jobs в порядке объявления.
func (s *Snapshot) ReadyNodes() []JobNode {
	return s.nodes(s.state.readyIndexes())
}

func (s *Snapshot) IsComplete() bool   { return s.state.isComplete() }
func (s *Snapshot) CountCompleted() int { return s.state.completed }
func (s *Snapshot) IsAbandoned() bool  { return s.state.abandoned }
func (s *Snapshot) IsRunning() bool    { return s.state.isRunning() }
func (s *Snapshot) HasFailed() bool    { return s.state.hasFailed() }

// NodesWithStatus возвращает jobs с одним из указанных статусов.
func (s *Snapshot) NodesWithStatus(statuses ...domain.JobStatus) []JobNode {
	return s.nodes(s.state.withStatus(statuses))
}

func (s *Snapshot) nodes(idx []int) []JobNode {
	out := make([]JobNode, len(idx))
	for i, v := range idx {
		out[i] = JobNode{wf: s.wf, index: v}
	}
	return out
}

// JobState — состояние одного job в JSON-представлении снимка.
type JobState struct {
	Name        string           `json:"name"`
	Status      domain.JobStatus `json:"status"`
	ExecutionID int64            `json:"execution_id,omitempty"`
	Ready       bool             `json:"ready"`
}

// SnapshotView — JSON-представление снимка.
type SnapshotView struct {
	WorkflowID uuid.UUID  `json:"workflow_id"`
	Total      int        `json:"total"`
	Completed  int        `json:"completed"`
	Abandoned  bool       `json:"abandoned"`
	Running    bool       `json:"running"`
	Failed     bool       `json:"failed"`
	TakenAt    time.Time  `json:"taken_at"`
	Jobs       []JobState `json:"jobs"`
}

// View возвращает JSON-представление снимка. Jobs идут в порядке объявления.
func (s *Snapshot) View() SnapshotView {
	jobs := make([]JobState, s.wf.Len())
	for i, def := range s.wf.defs {
		jobs[i] = JobState{
			Name:        def.name,
			Status:      s.state.statuses[i],
			ExecutionID: s.state.ids[i],
			Ready:       s.state.ready.Test(uint(i)),
		}
	}
	return SnapshotView{
		WorkflowID: s.wf.id,
		Total:      s.wf.Len(),
		Completed:  s.state.completed,
		Abandoned:  s.state.abandoned,
		Running:    s.state.isRunning(),
		Failed:     s.state.hasFailed(),
		TakenAt:    s.TakenAt,
		Jobs:       jobs,
	}
}

// MarshalJSON реализует json.Marshaler.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.View())
}

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shaiso/Batchflow/internal/domain"
)

// Execution — изменяемое состояние выполнения Workflow.
//
// Хранит статус и ID записи выполнения для каждого job, множество
// готовых jobs и счётчики. Все методы потокобезопасны: чтение и запись
// идут под одним мьютексом, наружу отдаются только копии.
type Execution struct {
	wf *Workflow

	mu    sync.Mutex
	state executionState

	// loadMu упорядочивает Load; запросы к источнику идут без mu
	loadMu sync.Mutex
}

// NewExecution создаёт выполнение, в котором ни один job ещё не запускался.
func NewExecution(wf *Workflow) *Execution {
	e := &Execution{
		wf:    wf,
		state: newExecutionState(wf.Len()),
	}
	e.state.recompute(wf)
	return e
}

// Workflow возвращает выполняемый workflow.
func (e *Execution) Workflow() *Workflow {
	return e.wf
}

// Load заново строит состояние по записям внешнего источника.
//
// Для каждого job запрашивается последняя запись с его именем и
// параметрами. Нет записи → UNKNOWN. При fixTransient промежуточные
// статусы схлопываются (STARTING → STARTED, STOPPING → STOPPED):
// после аварийного рестарта им нельзя доверять.
//
// Ошибка источника прерывает загрузку, прежнее состояние сохраняется.
// Пока идут запросы, чтение и Update не блокируются; новое состояние
// подменяет текущее целиком, включая изменения, сделанные за это время.
func (e *Execution) Load(ctx context.Context, src ExecutionSource, fixTransient bool) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	next := newExecutionState(e.wf.Len())
	for node := range e.wf.Nodes() {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, ok, err := src.LatestExecution(ctx, node.Name(), node.Parameters())
		if err != nil {
			return fmt.Errorf("load job %s: %w", node.Name(), err)
		}
		if !ok {
			continue
		}

		status := rec.Status
		if fixTransient {
			status = status.Settle()
		}
		next.statuses[node.index] = status
		next.ids[node.index] = rec.ID
	}
	next.recompute(e.wf)

	e.mu.Lock()
	e.state = next
	e.mu.Unlock()
	return nil
}

// Update применяет одно изменение статуса job и возвращает jobs,
// ставшие готовыми именно в результате этого изменения.
//
// Недопустимый переход возвращает *TransitionError, состояние не меняется.
func (e *Execution) Update(name string, status domain.JobStatus, executionID int64) ([]JobNode, error) {
	node, err := e.wf.Node(name)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ready, err := e.apply(node.index, status, executionID)
	if err != nil {
		return nil, err
	}

	return e.nodes(ready), nil
}

// Apply выполняет Update и уведомляет слушателей workflow.
//
// Слушатели вызываются после снятия блокировки и получают snapshot,
// снятый в той же критической секции, что и изменение.
func (e *Execution) Apply(ctx context.Context, name string, status domain.JobStatus, executionID int64) ([]JobNode, error) {
	node, err := e.wf.Node(name)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	ready, err := e.apply(node.index, status, executionID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	nodes := e.nodes(ready)
	update := JobUpdate{
		Node:        node,
		Status:      status,
		ExecutionID: executionID,
		Ready:       nodes,
	}
	for _, l := range e.wf.listeners {
		l.OnJobUpdate(ctx, snap, update)
	}
	return nodes, nil
}

// apply проверяет переход по таблице и меняет состояние.
// Вызывается под e.mu.
func (e *Execution) apply(v int, to domain.JobStatus, executionID int64) ([]int, error) {
	s := &e.state
	from := s.statuses[v]
	ready := s.ready.Test(uint(v))

	illegal := func() error {
		return &TransitionError{Node: e.wf.defs[v].name, From: from, To: to}
	}

	switch to {
	case domain.JobStatusCompleted:
		if from != domain.JobStatusStarted {
			return nil, illegal()
		}
		s.statuses[v] = to
		s.ids[v] = executionID
		s.completed++

		// Зависимые проверяются после записи статуса
		var newly []int
		for d := range e.wf.graph.Dependents(v) {
			if s.ready.Test(uint(d)) {
				continue
			}
			if s.isReady(e.wf, d) {
				s.ready.Set(uint(d))
				newly = append(newly, d)
			}
		}
		return newly, nil

	case domain.JobStatusStarted:
		switch {
		case from.IsRestartable() && ready:
			s.ready.Clear(uint(v))
		case (from == domain.JobStatusStarting || from == domain.JobStatusStarted) && !ready:
			// продолжение: job уже запущен
		default:
			return nil, illegal()
		}
		s.statuses[v] = to
		s.ids[v] = executionID
		return nil, nil

	case domain.JobStatusStarting:
		if !from.IsRestartable() || !ready {
			return nil, illegal()
		}
		s.ready.Clear(uint(v))
		s.statuses[v] = to
		s.ids[v] = executionID
		return nil, nil

	case domain.JobStatusStopped, domain.JobStatusFailed:
		switch {
		case to == domain.JobStatusStopped && (from == domain.JobStatusStarted || from == domain.JobStatusStopping):
		case to == domain.JobStatusFailed && from == domain.JobStatusStarted:
		default:
			return nil, illegal()
		}
		s.statuses[v] = to
		s.ids[v] = executionID
		if !ready && s.isReady(e.wf, v) {
			s.ready.Set(uint(v))
			return []int{v}, nil
		}
		return nil, nil

	case domain.JobStatusStopping:
		if from != domain.JobStatusStarting && from != domain.JobStatusStarted {
			return nil, illegal()
		}
		s.statuses[v] = to
		s.ids[v] = executionID
		return nil, nil

	default:
		return nil, illegal()
	}
}

// Status возвращает статус job.
func (e *Execution) Status(name string) (domain.JobStatus, error) {
	node, err := e.wf.Node(name)
	if err != nil {
		return "", err
	}
	return e.StatusAt(node.index), nil
}

// StatusAt возвращает статус job по индексу вершины.
// Паникует при индексе вне диапазона.
func (e *Execution) StatusAt(index int) domain.JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.statuses[index]
}

// ExecutionID возвращает ID последней записи выполнения job (0 — нет записи).
func (e *Execution) ExecutionID(name string) (int64, error) {
	node, err := e.wf.Node(name)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ids[node.index], nil
}

// IsReady проверяет, готов ли job к запуску.
func (e *Execution) IsReady(name string) (bool, error) {
	node, err := e.wf.Node(name)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ready.Test(uint(node.index)), nil
}

// ReadyNodes возвращает готовые jobs в порядке объявления.
func (e *Execution) ReadyNodes() []JobNode {
	e.mu.Lock()
	idx := e.state.readyIndexes()
	e.mu.Unlock()
	return e.nodes(idx)
}

// IsComplete возвращает true, когда все jobs завершены.
func (e *Execution) IsComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.isComplete()
}

// CountCompleted возвращает количество завершённых jobs.
func (e *Execution) CountCompleted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.completed
}

// IsAbandoned возвращает true, если хотя бы один job брошен.
func (e *Execution) IsAbandoned() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.abandoned
}

// IsRunning возвращает true, если хотя бы один job в процессе.
func (e *Execution) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.isRunning()
}

// HasFailed возвращает true, если хотя бы один job завершился с ошибкой.
func (e *Execution) HasFailed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.hasFailed()
}

// NodesWithStatus возвращает jobs с одним из указанных статусов.
func (e *Execution) NodesWithStatus(statuses ...domain.JobStatus) []JobNode {
	e.mu.Lock()
	idx := e.state.withStatus(statuses)
	e.mu.Unlock()
	return e.nodes(idx)
}

// Snapshot возвращает согласованную копию состояния.
func (e *Execution) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Execution) snapshotLocked() *Snapshot {
	return &Snapshot{
		wf:      e.wf,
		state:   e.state.clone(),
		TakenAt: time.Now(),
	}
}

func (e *Execution) nodes(idx []int) []JobNode {
	out := make([]JobNode, len(idx))
	for i, v := range idx {
		out[i] = JobNode{wf: e.wf, index: v}
	}
	return out
}

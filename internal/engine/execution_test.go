package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Batchflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustUpdate применяет переход и возвращает имена ставших готовыми jobs.
func mustUpdate(t *testing.T, e *Execution, name string, status domain.JobStatus, id int64) []string {
	t.Helper()
	ready, err := e.Update(name, status, id)
	require.NoError(t, err, "%s -> %s", name, status)
	return names(ready)
}

// run проводит job через STARTED → COMPLETED.
func run(t *testing.T, e *Execution, name string, id int64) []string {
	t.Helper()
	mustUpdate(t, e, name, domain.JobStatusStarted, id)
	return mustUpdate(t, e, name, domain.JobStatusCompleted, id)
}

func TestExecution_Initial(t *testing.T) {
	e := NewExecution(linear(t))

	assert.Equal(t, []string{"a"}, names(e.ReadyNodes()))
	assert.Equal(t, 0, e.CountCompleted())
	assert.False(t, e.IsComplete())
	assert.False(t, e.IsRunning())
	assert.False(t, e.HasFailed())
	assert.False(t, e.IsAbandoned())

	status, err := e.Status("c")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusUnknown, status)

	_, err = e.Status("missing")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestExecution_LinearPipeline(t *testing.T) {
	e := NewExecution(linear(t))

	assert.Equal(t, []string{"b"}, run(t, e, "a", 101))
	assert.Equal(t, []string{"b"}, names(e.ReadyNodes()))

	ready, err := e.IsReady("a")
	require.NoError(t, err)
	assert.False(t, ready)
	ready, err = e.IsReady("c")
	require.NoError(t, err)
	assert.False(t, ready)

	assert.Equal(t, []string{"c"}, run(t, e, "b", 102))
	assert.Equal(t, []string{"c"}, names(e.ReadyNodes()))

	assert.Empty(t, run(t, e, "c", 103))
	assert.True(t, e.IsComplete())
	assert.Equal(t, 3, e.CountCompleted())
	assert.Empty(t, e.ReadyNodes())

	id, err := e.ExecutionID("b")
	require.NoError(t, err)
	assert.Equal(t, int64(102), id)
}

func TestExecution_Diamond(t *testing.T) {
	orders := [][]string{{"b", "c"}, {"c", "b"}}

	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			e := NewExecution(diamond(t))

			assert.ElementsMatch(t, []string{"b", "c"}, run(t, e, "a", 1))
			assert.Equal(t, []string{"b", "c"}, names(e.ReadyNodes()))

			mustUpdate(t, e, order[0], domain.JobStatusStarted, 2)
			mustUpdate(t, e, order[1], domain.JobStatusStarted, 3)
			assert.True(t, e.IsRunning())

			// d ждёт обе зависимости
			assert.Empty(t, mustUpdate(t, e, order[0], domain.JobStatusCompleted, 2))
			assert.Empty(t, e.ReadyNodes())

			assert.Equal(t, []string{"d"}, mustUpdate(t, e, order[1], domain.JobStatusCompleted, 3))
			assert.Equal(t, []string{"d"}, names(e.ReadyNodes()))
			assert.Equal(t, 3, e.CountCompleted())
		})
	}
}

func TestExecution_FailureAndRestart(t *testing.T) {
	e := NewExecution(diamond(t))

	mustUpdate(t, e, "a", domain.JobStatusStarted, 200)
	assert.Empty(t, e.ReadyNodes())

	// FAILED снова делает job готовым
	assert.Equal(t, []string{"a"}, mustUpdate(t, e, "a", domain.JobStatusFailed, 201))
	assert.True(t, e.HasFailed())
	assert.Equal(t, []string{"a"}, names(e.ReadyNodes()))

	mustUpdate(t, e, "a", domain.JobStatusStarted, 202)
	ready, err := e.IsReady("a")
	require.NoError(t, err)
	assert.False(t, ready)
	assert.False(t, e.HasFailed())

	for _, name := range []string{"b", "c", "d"} {
		status, err := e.Status(name)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusUnknown, status, name)
	}

	id, err := e.ExecutionID("a")
	require.NoError(t, err)
	assert.Equal(t, int64(202), id)
}

func TestExecution_StopAndRestart(t *testing.T) {
	e := NewExecution(linear(t))

	mustUpdate(t, e, "a", domain.JobStatusStarting, 1)
	// продолжение запуска
	mustUpdate(t, e, "a", domain.JobStatusStarted, 1)
	mustUpdate(t, e, "a", domain.JobStatusStopping, 1)
	assert.True(t, e.IsRunning())

	assert.Equal(t, []string{"a"}, mustUpdate(t, e, "a", domain.JobStatusStopped, 1))
	assert.False(t, e.IsRunning())
	assert.Equal(t, []string{"a"}, names(e.NodesWithStatus(domain.JobStatusStopped)))

	assert.Equal(t, []string{"b"}, run(t, e, "a", 2))
}

func TestExecution_StartedContinuation(t *testing.T) {
	e := NewExecution(linear(t))

	mustUpdate(t, e, "a", domain.JobStatusStarting, 1)
	assert.Empty(t, mustUpdate(t, e, "a", domain.JobStatusStarted, 1))

	// Повторный STARTED (например, после схлопывания STARTING при Load) допустим
	assert.Empty(t, mustUpdate(t, e, "a", domain.JobStatusStarted, 1))

	st, err := e.Status("a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusStarted, st)
	assert.Empty(t, e.ReadyNodes())

	assert.Equal(t, []string{"b"}, mustUpdate(t, e, "a", domain.JobStatusCompleted, 1))
}

func TestExecution_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, e *Execution)
		job     string
		to      domain.JobStatus
		from    domain.JobStatus
	}{
		{
			name: "complete without start",
			job:  "a", to: domain.JobStatusCompleted, from: domain.JobStatusUnknown,
		},
		{
			name: "start not ready job",
			job:  "b", to: domain.JobStatusStarted, from: domain.JobStatusUnknown,
		},
		{
			name: "starting not ready job",
			job:  "b", to: domain.JobStatusStarting, from: domain.JobStatusUnknown,
		},
		{
			name: "started while stopping",
			prepare: func(t *testing.T, e *Execution) {
				mustUpdate(t, e, "a", domain.JobStatusStarted, 1)
				mustUpdate(t, e, "a", domain.JobStatusStopping, 1)
			},
			job: "a", to: domain.JobStatusStarted, from: domain.JobStatusStopping,
		},
		{
			name: "completed twice",
			prepare: func(t *testing.T, e *Execution) {
				run(t, e, "a", 1)
			},
			job: "a", to: domain.JobStatusCompleted, from: domain.JobStatusCompleted,
		},
		{
			name: "restart completed",
			prepare: func(t *testing.T, e *Execution) {
				run(t, e, "a", 1)
			},
			job: "a", to: domain.JobStatusStarting, from: domain.JobStatusCompleted,
		},
		{
			name: "fail from starting",
			prepare: func(t *testing.T, e *Execution) {
				mustUpdate(t, e, "a", domain.JobStatusStarting, 1)
			},
			job: "a", to: domain.JobStatusFailed, from: domain.JobStatusStarting,
		},
		{
			name: "stop from unknown",
			job:  "a", to: domain.JobStatusStopped, from: domain.JobStatusUnknown,
		},
		{
			name: "stopping from failed",
			prepare: func(t *testing.T, e *Execution) {
				mustUpdate(t, e, "a", domain.JobStatusStarted, 1)
				mustUpdate(t, e, "a", domain.JobStatusFailed, 1)
			},
			job: "a", to: domain.JobStatusStopping, from: domain.JobStatusFailed,
		},
		{
			name: "abandoned as target",
			job:  "a", to: domain.JobStatusAbandoned, from: domain.JobStatusUnknown,
		},
		{
			name: "unknown as target",
			prepare: func(t *testing.T, e *Execution) {
				mustUpdate(t, e, "a", domain.JobStatusStarted, 1)
			},
			job: "a", to: domain.JobStatusUnknown, from: domain.JobStatusStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecution(linear(t))
			if tt.prepare != nil {
				tt.prepare(t, e)
			}
			before := e.Snapshot().View()

			ready, err := e.Update(tt.job, tt.to, 99)
			assert.Nil(t, ready)
			require.ErrorIs(t, err, ErrIllegalTransition)

			var tErr *TransitionError
			require.True(t, errors.As(err, &tErr))
			assert.Equal(t, tt.job, tErr.Node)
			assert.Equal(t, tt.from, tErr.From)
			assert.Equal(t, tt.to, tErr.To)

			// Состояние не изменилось
			after := e.Snapshot().View()
			assert.Equal(t, before.Jobs, after.Jobs)
			assert.Equal(t, before.Completed, after.Completed)
		})
	}
}

func TestExecution_UpdateUnknownJob(t *testing.T) {
	e := NewExecution(linear(t))
	_, err := e.Update("missing", domain.JobStatusStarted, 1)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

// legalTargets возвращает статусы, в которые job может перейти из from.
func legalTargets(from domain.JobStatus, ready bool) []domain.JobStatus {
	var out []domain.JobStatus
	if from.IsRestartable() && ready {
		out = append(out, domain.JobStatusStarting, domain.JobStatusStarted)
	}
	switch from {
	case domain.JobStatusStarting:
		out = append(out, domain.JobStatusStarted, domain.JobStatusStopping)
	case domain.JobStatusStarted:
		out = append(out,
			domain.JobStatusStarted,
			domain.JobStatusCompleted,
			domain.JobStatusFailed,
			domain.JobStatusStopping,
			domain.JobStatusStopped,
		)
	case domain.JobStatusStopping:
		out = append(out, domain.JobStatusStopped)
	}
	return out
}

// bruteReady вычисляет множество готовых jobs по определению.
func bruteReady(wf *Workflow, snap *Snapshot) []string {
	out := make([]string, 0)
	for n := range wf.Nodes() {
		if !snap.StatusAt(n.Index()).IsRestartable() {
			continue
		}
		ok := true
		for dep := range n.Dependencies() {
			if snap.StatusAt(dep.Index()) != domain.JobStatusCompleted {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, n.Name())
		}
	}
	return out
}

// randomWorkflow строит случайный DAG: job i может зависеть от jobs < i.
func randomWorkflow(t *testing.T, rng *rand.Rand, n int) *Workflow {
	t.Helper()

	b := NewBuilder()
	for i := 0; i < n; i++ {
		var deps []string
		for k := 0; k < i; k++ {
			if rng.Intn(3) == 0 {
				deps = append(deps, fmt.Sprintf("j%d:out", k))
			}
		}
		b.Job(job(t, fmt.Sprintf("j%d", i), []string{"out"}, deps...))
	}

	wf, err := b.Build()
	require.NoError(t, err)
	return wf
}

func TestExecution_ReadinessProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 30; round++ {
		wf := randomWorkflow(t, rng, 2+rng.Intn(10))
		e := NewExecution(wf)
		require.Equal(t, bruteReady(wf, e.Snapshot()), names(e.ReadyNodes()))

		for step := 0; step < 200; step++ {
			v := rng.Intn(wf.Len())
			node, err := wf.NodeAt(v)
			require.NoError(t, err)

			before := e.Snapshot()
			isReady, err := before.IsReady(node.Name())
			require.NoError(t, err)
			legal := legalTargets(before.StatusAt(v), isReady)

			// Все переходы вне таблицы отвергаются
			for _, to := range domain.JobStatuses {
				if slices.Contains(legal, to) {
					continue
				}
				_, err := e.Update(node.Name(), to, int64(step))
				require.ErrorIs(t, err, ErrIllegalTransition, "%s: %s -> %s", node, before.StatusAt(v), to)
			}
			if len(legal) == 0 {
				continue
			}

			to := legal[rng.Intn(len(legal))]
			newly, err := e.Update(node.Name(), to, int64(step))
			require.NoError(t, err, "%s: %s -> %s", node, before.StatusAt(v), to)

			after := e.Snapshot()
			want := bruteReady(wf, after)
			require.Equal(t, want, names(after.ReadyNodes()), "round %d step %d", round, step)

			// Возвращённое множество — ровно разница до/после
			var diff []string
			prev := names(before.ReadyNodes())
			for _, name := range want {
				if !slices.Contains(prev, name) {
					diff = append(diff, name)
				}
			}
			require.ElementsMatch(t, diff, names(newly), "round %d step %d", round, step)
		}
	}
}

// fakeSource — ExecutionSource в памяти.
type fakeSource struct {
	mu      sync.Mutex
	records map[string]domain.ExecutionRecord
	params  map[string]map[string]string
	err     error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		records: make(map[string]domain.ExecutionRecord),
		params:  make(map[string]map[string]string),
	}
}

func (f *fakeSource) set(name string, id int64, status domain.JobStatus) {
	f.records[name] = domain.ExecutionRecord{ID: id, JobName: name, Status: status}
}

func (f *fakeSource) LatestExecution(_ context.Context, name string, params map[string]string) (domain.ExecutionRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return domain.ExecutionRecord{}, false, f.err
	}
	f.params[name] = params
	rec, ok := f.records[name]
	return rec, ok, nil
}

func TestExecution_Load(t *testing.T) {
	ctx := context.Background()
	wf := diamond(t)

	src := newFakeSource()
	src.set("a", 10, domain.JobStatusCompleted)
	src.set("b", 11, domain.JobStatusFailed)
	src.set("c", 12, domain.JobStatusStarting)

	e := NewExecution(wf)
	require.NoError(t, e.Load(ctx, src, false))

	assert.Equal(t, 1, e.CountCompleted())
	assert.Equal(t, []string{"b"}, names(e.ReadyNodes()))
	assert.True(t, e.HasFailed())
	assert.True(t, e.IsRunning())

	status, err := e.Status("c")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusStarting, status)

	id, err := e.ExecutionID("b")
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)

	// Источник получает параметры запуска job
	assert.Equal(t, wf.ID().String(), src.params["a"][ParamWorkflowID])

	t.Run("fix transient", func(t *testing.T) {
		require.NoError(t, e.Load(ctx, src, true))
		status, err := e.Status("c")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusStarted, status)

		// После сверки можно продолжать обычными переходами
		assert.Empty(t, mustUpdate(t, e, "c", domain.JobStatusCompleted, 12))
	})

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, e.Load(ctx, src, true))
		first := e.Snapshot().View()
		require.NoError(t, e.Load(ctx, src, true))
		second := e.Snapshot().View()
		assert.Equal(t, first.Jobs, second.Jobs)
		assert.Equal(t, first.Completed, second.Completed)
	})

	t.Run("abandoned", func(t *testing.T) {
		src.set("d", 13, domain.JobStatusAbandoned)
		require.NoError(t, e.Load(ctx, src, false))
		assert.True(t, e.IsAbandoned())
	})
}

func TestExecution_LoadError(t *testing.T) {
	ctx := context.Background()
	e := NewExecution(linear(t))
	run(t, e, "a", 1)
	before := e.Snapshot().View()

	src := newFakeSource()
	src.err = errors.New("connection refused")

	err := e.Load(ctx, src, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, src.err)

	after := e.Snapshot().View()
	assert.Equal(t, before.Jobs, after.Jobs)
	assert.Equal(t, 1, e.CountCompleted())
}

// blockingSource задерживает первый запрос до закрытия release.
type blockingSource struct {
	*fakeSource
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSource) LatestExecution(ctx context.Context, name string, params map[string]string) (domain.ExecutionRecord, bool, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.fakeSource.LatestExecution(ctx, name, params)
}

func TestExecution_LoadDoesNotBlockReaders(t *testing.T) {
	e := NewExecution(linear(t))
	src := &blockingSource{
		fakeSource: newFakeSource(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	src.set("a", 1, domain.JobStatusCompleted)

	loaded := make(chan error, 1)
	go func() { loaded <- e.Load(context.Background(), src, false) }()
	<-src.entered

	read := make(chan *Snapshot, 1)
	go func() { read <- e.Snapshot() }()

	select {
	case snap := <-read:
		// Пока запрос висит, видно прежнее состояние
		assert.Equal(t, 0, snap.CountCompleted())
		assert.Equal(t, []string{"a"}, names(snap.ReadyNodes()))
	case <-time.After(time.Second):
		t.Fatal("snapshot blocked by load")
	}

	close(src.release)
	require.NoError(t, <-loaded)
	assert.Equal(t, 1, e.CountCompleted())
	assert.Equal(t, []string{"b"}, names(e.ReadyNodes()))
}

func TestSnapshot_Isolation(t *testing.T) {
	e := NewExecution(linear(t))
	snap := e.Snapshot()

	run(t, e, "a", 1)

	status, err := snap.Status("a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusUnknown, status)
	assert.Equal(t, []string{"a"}, names(snap.ReadyNodes()))
	assert.Equal(t, 0, snap.CountCompleted())

	fresh := e.Snapshot()
	assert.Equal(t, 1, fresh.CountCompleted())
	assert.Equal(t, []string{"b"}, names(fresh.ReadyNodes()))
}

func TestSnapshot_JSON(t *testing.T) {
	e := NewExecution(linear(t))
	run(t, e, "a", 7)

	data, err := json.Marshal(e.Snapshot())
	require.NoError(t, err)

	var view SnapshotView
	require.NoError(t, json.Unmarshal(data, &view))

	assert.Equal(t, e.Workflow().ID(), view.WorkflowID)
	assert.Equal(t, 3, view.Total)
	assert.Equal(t, 1, view.Completed)
	require.Len(t, view.Jobs, 3)
	assert.Equal(t, JobState{Name: "a", Status: domain.JobStatusCompleted, ExecutionID: 7}, view.Jobs[0])
	assert.Equal(t, JobState{Name: "b", Status: domain.JobStatusUnknown, Ready: true}, view.Jobs[1])
}

func TestExecution_ConcurrentUpdates(t *testing.T) {
	const leaves = 50

	b := NewBuilder().Job(job(t, "root", []string{"out"}))
	for i := 0; i < leaves; i++ {
		b.Job(job(t, fmt.Sprintf("leaf-%d", i), nil, "root:out"))
	}
	wf, err := b.Build()
	require.NoError(t, err)

	e := NewExecution(wf)
	require.Len(t, run(t, e, "root", 1), leaves)

	var wg sync.WaitGroup
	errs := make(chan error, leaves)
	for i := 0; i < leaves; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("leaf-%d", i)
			if _, err := e.Update(name, domain.JobStatusStarted, int64(i)); err != nil {
				errs <- err
				return
			}
			_ = e.Snapshot()
			if _, err := e.Update(name, domain.JobStatusCompleted, int64(i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.True(t, e.IsComplete())
	assert.Equal(t, leaves+1, e.CountCompleted())
}

func TestExecution_ApplyNotifiesListeners(t *testing.T) {
	ctx := context.Background()

	var calls atomic.Int32
	var last JobUpdate
	var lastCompleted int
	listener := ListenerFunc(func(_ context.Context, snap *Snapshot, u JobUpdate) {
		calls.Add(1)
		last = u
		lastCompleted = snap.CountCompleted()
	})

	wf, err := NewBuilder().
		Listener(listener).
		Job(job(t, "a", []string{"x"})).
		Job(job(t, "b", nil, "a:x")).
		Build()
	require.NoError(t, err)

	e := NewExecution(wf)
	_, err = e.Apply(ctx, "a", domain.JobStatusStarted, 1)
	require.NoError(t, err)
	ready, err := e.Apply(ctx, "a", domain.JobStatusCompleted, 1)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "a", last.Node.Name())
	assert.Equal(t, domain.JobStatusCompleted, last.Status)
	assert.Equal(t, []string{"b"}, names(last.Ready))
	assert.Equal(t, []string{"b"}, names(ready))
	assert.Equal(t, 1, lastCompleted)

	// Недопустимый переход не уведомляет
	_, err = e.Apply(ctx, "a", domain.JobStatusCompleted, 1)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, int32(2), calls.Load())
}

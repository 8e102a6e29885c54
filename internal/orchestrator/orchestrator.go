package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/shaiso/Batchflow/internal/domain"
	"github.com/shaiso/Batchflow/internal/engine"
	"github.com/shaiso/Batchflow/internal/mq"
	"github.com/shaiso/Batchflow/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// Default configuration values.
const (
	defaultPollInterval      = 10 * time.Second
	defaultBatchSize         = 100
	defaultReconcileSchedule = "@every 10s"
	defaultRestoreWorkers    = 8
)

// Orchestrator ведёт выполнение workflows.
//
// Для каждого RUNNING workflow в памяти держится engine.Execution.
// События job.status применяются к нему, ставшие готовыми jobs
// публикуются как job.ready. После рестарта состояние восстанавливается
// из записей о выполнении jobs.
type Orchestrator struct {
	workflows  WorkflowStore
	executions ExecutionStore
	dispatcher Dispatcher
	conn       *mq.Connection
	metrics    *telemetry.Metrics

	dataRoot    string
	strictGlobs bool

	// Active workflows — workflowID → выполнение
	active map[uuid.UUID]*engine.Execution
	mu     sync.RWMutex

	// Consumers
	submittedConsumer *mq.Consumer
	statusConsumer    *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int
	schedule     string

	// Lifecycle
	logger     *slog.Logger
	cron       *cron.Cron
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	Workflows  WorkflowStore
	Executions ExecutionStore
	Dispatcher Dispatcher

	// Conn — соединение для consumers. nil → только сверка по расписанию.
	Conn *mq.Connection

	// Metrics — nil → метрики в отдельном реестре.
	Metrics *telemetry.Metrics

	// DataRoot — корень каталогов данных workflows.
	DataRoot string

	// StrictGlobs — шаблоны входов без совпадений делают workflow невалидным.
	StrictGlobs bool

	PollInterval      time.Duration // таймаут одного цикла сверки (default: 10s)
	BatchSize         int           // количество workflows за один цикл (default: 100)
	ReconcileSchedule string        // cron-выражение сверки (default: @every 10s)

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	schedule := cfg.ReconcileSchedule
	if schedule == "" {
		schedule = defaultReconcileSchedule
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	}

	return &Orchestrator{
		workflows:    cfg.Workflows,
		executions:   cfg.Executions,
		dispatcher:   cfg.Dispatcher,
		conn:         cfg.Conn,
		metrics:      metrics,
		dataRoot:     cfg.DataRoot,
		strictGlobs:  cfg.StrictGlobs,
		active:       make(map[uuid.UUID]*engine.Execution),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		schedule:     schedule,
		logger:       logger,
	}
}

// Start запускает Orchestrator.
//
// Порядок:
//   - восстановление RUNNING workflows
//   - consumers для workflows.submitted и jobs.status
//   - сверка PENDING workflows по расписанию
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	c := cron.New()
	if _, err := c.AddFunc(o.schedule, func() { o.reconcile(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("reconcile schedule %q: %w", o.schedule, err)
	}

	o.cancelFunc = cancel
	o.cron = c

	o.logger.Info("starting orchestrator",
		"reconcile_schedule", o.schedule,
		"batch_size", o.batchSize,
		"data_root", o.dataRoot,
	)

	if err := o.restoreRunning(ctx); err != nil {
		o.logger.Error("failed to restore running workflows", "error", err)
	}

	if o.conn != nil {
		o.submittedConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueWorkflowsSubmitted),
			Handler:  o.handleWorkflowSubmitted,
			Prefetch: 10,
		})
		o.statusConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueJobsStatus),
			Handler:  o.handleJobStatus,
			Prefetch: 10,
		})

		for _, consumer := range []*mq.Consumer{o.submittedConsumer, o.statusConsumer} {
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					o.logger.Error("consumer error", "error", err)
				}
			}()
		}
	}

	// Первая сверка сразу (подхватываем workflows, созданные пока были выключены)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.reconcile(ctx)
	}()
	c.Start()

	o.logger.Info("orchestrator started", "active_workflows", o.ActiveCount())
	return nil
}

// Stop останавливает Orchestrator.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cron != nil {
		<-o.cron.Stop().Done()
	}
	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.submittedConsumer != nil {
		o.submittedConsumer.Stop()
	}
	if o.statusConsumer != nil {
		o.statusConsumer.Stop()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped", "active_workflows", o.ActiveCount())
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// reconcile берёт в работу PENDING workflows, которые не дошли через очередь,
// и восстанавливает RUNNING workflows, которых нет в памяти: например, после
// неудачной публикации при восстановлении.
func (o *Orchestrator) reconcile(ctx context.Context) {
	if o.IsStopped() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, o.pollInterval)
	defer cancel()

	pending, err := o.workflows.ListByStatus(ctx, domain.WorkflowStatusPending, o.batchSize)
	if err != nil {
		o.logger.Error("failed to list pending workflows", "error", err)
		return
	}
	if len(pending) > 0 {
		o.logger.Debug("reconcile found pending workflows", "count", len(pending))
	}

	for i := range pending {
		wf := &pending[i]
		if o.isActive(wf.ID) {
			continue
		}
		if err := o.startWorkflow(ctx, wf.ID); err != nil && !isSkippable(err) {
			o.logger.Error("failed to start workflow from reconcile",
				"workflow_id", wf.ID,
				"error", err,
			)
		}
	}

	running, err := o.workflows.ListByStatus(ctx, domain.WorkflowStatusRunning, o.batchSize)
	if err != nil {
		o.logger.Error("failed to list running workflows", "error", err)
		return
	}
	for i := range running {
		wf := &running[i]
		if o.isActive(wf.ID) {
			continue
		}
		if _, err := o.restore(ctx, wf.ID); err != nil && !errors.Is(err, ErrWorkflowNotRunning) {
			o.logger.Error("failed to restore workflow from reconcile",
				"workflow_id", wf.ID,
				"error", err,
			)
		}
	}
}

// restoreRunning восстанавливает все RUNNING workflows параллельно.
func (o *Orchestrator) restoreRunning(ctx context.Context) error {
	running, err := o.workflows.ListByStatus(ctx, domain.WorkflowStatusRunning, 0)
	if err != nil {
		return fmt.Errorf("list running workflows: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultRestoreWorkers)

	for i := range running {
		id := running[i].ID
		g.Go(func() error {
			if _, err := o.restore(gctx, id); err != nil {
				// Один битый workflow не мешает остальным
				o.logger.Error("failed to restore workflow", "workflow_id", id, "error", err)
			}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	o.logger.Info("running workflows restored", "count", o.ActiveCount())
	return nil
}

// isActive проверяет, отслеживается ли workflow.
func (o *Orchestrator) isActive(id uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, exists := o.active[id]
	return exists
}

// getActive возвращает выполнение workflow или nil.
func (o *Orchestrator) getActive(id uuid.UUID) *engine.Execution {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active[id]
}

// addActive добавляет выполнение в активные.
// Если workflow уже активен, возвращает существующее и ErrWorkflowAlreadyActive.
func (o *Orchestrator) addActive(exec *engine.Execution) (*engine.Execution, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := exec.Workflow().ID()
	if existing, exists := o.active[id]; exists {
		return existing, ErrWorkflowAlreadyActive
	}

	o.active[id] = exec
	o.metrics.ActiveWorkflows.Set(float64(len(o.active)))
	return exec, nil
}

// removeActive удаляет workflow из активных.
// Возвращает false, если его уже удалил другой обработчик.
func (o *Orchestrator) removeActive(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.active[id]; !exists {
		return false
	}
	delete(o.active, id)
	o.metrics.ActiveWorkflows.Set(float64(len(o.active)))
	return true
}

// ActiveCount возвращает количество активных workflows.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// ActiveWorkflows возвращает ID активных workflows по возрастанию.
func (o *Orchestrator) ActiveWorkflows() []uuid.UUID {
	o.mu.RLock()
	ids := make([]uuid.UUID, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	o.mu.RUnlock()

	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}

// Snapshot возвращает снимок выполнения активного workflow.
func (o *Orchestrator) Snapshot(id uuid.UUID) (*engine.Snapshot, bool) {
	exec := o.getActive(id)
	if exec == nil {
		return nil, false
	}
	return exec.Snapshot(), true
}

// Snapshots возвращает снимки всех активных workflows.
func (o *Orchestrator) Snapshots() []*engine.Snapshot {
	ids := o.ActiveWorkflows()
	out := make([]*engine.Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := o.Snapshot(id); ok {
			out = append(out, snap)
		}
	}
	return out
}

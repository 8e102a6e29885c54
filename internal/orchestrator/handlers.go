package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Batchflow/internal/domain"
	"github.com/shaiso/Batchflow/internal/engine"
	"github.com/shaiso/Batchflow/internal/mq"
	"github.com/shaiso/Batchflow/internal/repo"
	"github.com/shaiso/Batchflow/internal/telemetry"
)

// handleWorkflowSubmitted обрабатывает сообщение workflow.submitted.
func (o *Orchestrator) handleWorkflowSubmitted(ctx context.Context, msg *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.WorkflowSubmittedPayload](&msg.Message)
	if err != nil {
		return err
	}

	err = o.startWorkflow(ctx, payload.WorkflowID)
	switch {
	case err == nil:
		return nil
	case isSkippable(err):
		o.logger.Debug("workflow submission skipped",
			"workflow_id", payload.WorkflowID,
			"reason", err,
		)
		return nil
	case errors.Is(err, ErrInvalidWorkflow):
		return mq.Permanent(err)
	default:
		return err
	}
}

// handleJobStatus обрабатывает сообщение job.status от системы выполнения.
func (o *Orchestrator) handleJobStatus(ctx context.Context, msg *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.JobStatusPayload](&msg.Message)
	if err != nil {
		return err
	}
	if _, err := domain.ParseJobStatus(string(payload.Status)); err != nil {
		return mq.Permanent(err)
	}

	logger := telemetry.WithJob(telemetry.WithWorkflowID(o.logger, payload.WorkflowID), payload.JobName)

	exec := o.getActive(payload.WorkflowID)
	if exec == nil {
		exec, err = o.restore(ctx, payload.WorkflowID)
		if errors.Is(err, ErrWorkflowNotFound) || errors.Is(err, ErrWorkflowNotRunning) {
			// Запоздавшее событие для завершённого workflow
			logger.Debug("status for inactive workflow ignored", "status", payload.Status, "reason", err)
			return nil
		}
		if err != nil {
			return err
		}
	}

	node, err := exec.Workflow().Node(payload.JobName)
	if err != nil {
		return mq.Permanent(err)
	}

	if payload.ExecutionID != 0 {
		params := payload.Params
		if len(params) == 0 {
			params = node.Parameters()
		}
		rec := &domain.ExecutionRecord{
			ID:         payload.ExecutionID,
			WorkflowID: payload.WorkflowID,
			JobName:    payload.JobName,
			Params:     params,
			Status:     payload.Status,
		}
		if err := o.executions.Record(ctx, rec); err != nil {
			return fmt.Errorf("record execution: %w", err)
		}
	}

	ready, err := exec.Apply(ctx, payload.JobName, payload.Status, payload.ExecutionID)
	var terr *engine.TransitionError
	switch {
	case errors.As(err, &terr):
		o.metrics.IllegalTransitions.Inc()
		logger.Warn("illegal job transition, resyncing workflow",
			"from", terr.From,
			"to", terr.To,
			"execution_id", payload.ExecutionID,
		)
		ready, err = o.resync(ctx, exec)
		if err != nil {
			return err
		}
	case err != nil:
		return mq.Permanent(err)
	}

	if err := o.dispatch(ctx, exec, ready); err != nil {
		return err
	}
	return o.finishIfDone(ctx, exec)
}

// startWorkflow берёт PENDING workflow в работу.
//
// Порядок:
//  1. Сборка DAG по спецификации (ошибка → ABANDONED)
//  2. Сверка статусов jobs с записями о выполнении
//  3. PENDING → RUNNING (Claim)
//  4. Публикация готовых jobs; при ошибке workflow возвращается в PENDING
//  5. Регистрация в активных
func (o *Orchestrator) startWorkflow(ctx context.Context, id uuid.UUID) error {
	wf, err := o.getWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if wf.Status != domain.WorkflowStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrWorkflowNotPending, id, wf.Status)
	}

	exec, err := o.buildExecution(ctx, wf, domain.WorkflowStatusPending)
	if err != nil {
		return err
	}

	if err := exec.Load(ctx, o.executions, false); err != nil {
		return fmt.Errorf("load workflow %s: %w", id, err)
	}

	if err := o.workflows.Claim(ctx, id, domain.WorkflowStatusPending, domain.WorkflowStatusRunning); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return fmt.Errorf("%w: %s claimed elsewhere", ErrWorkflowNotPending, id)
		}
		return fmt.Errorf("claim workflow %s: %w", id, err)
	}

	if err := o.dispatch(ctx, exec, exec.ReadyNodes()); err != nil {
		o.releaseClaim(ctx, id)
		return err
	}

	// Событие job.status могло восстановить workflow раньше нас
	exec, _ = o.addActive(exec)

	o.logger.Info("workflow started",
		"workflow_id", id,
		"name", wf.Name,
		"jobs", exec.Workflow().Len(),
		"completed", exec.CountCompleted(),
	)

	return o.finishIfDone(ctx, exec)
}

// releaseClaim возвращает workflow в PENDING после неудачной первой
// публикации: повторная доставка workflow.submitted или сверка по
// расписанию запустят его снова.
func (o *Orchestrator) releaseClaim(ctx context.Context, id uuid.UUID) {
	if o.isActive(id) {
		return
	}
	if err := o.workflows.Claim(ctx, id, domain.WorkflowStatusRunning, domain.WorkflowStatusPending); err != nil {
		o.logger.Warn("failed to release workflow claim", "workflow_id", id, "error", err)
	}
}

// restore восстанавливает выполнение RUNNING workflow после рестарта.
//
// Промежуточные статусы (STARTING/STOPPING) схлопываются,
// готовые jobs публикуются заново. Если публикация не удалась,
// workflow снимается с активных, и следующее событие или сверка
// восстановят его ещё раз.
func (o *Orchestrator) restore(ctx context.Context, id uuid.UUID) (*engine.Execution, error) {
	if exec := o.getActive(id); exec != nil {
		return exec, nil
	}

	wf, err := o.getWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.Status != domain.WorkflowStatusRunning {
		return nil, fmt.Errorf("%w: %s is %s", ErrWorkflowNotRunning, id, wf.Status)
	}

	exec, err := o.buildExecution(ctx, wf, domain.WorkflowStatusRunning)
	if err != nil {
		return nil, err
	}

	if err := exec.Load(ctx, o.executions, true); err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", id, err)
	}

	exec, err = o.addActive(exec)
	if errors.Is(err, ErrWorkflowAlreadyActive) {
		// Параллельно восстановил другой обработчик
		return exec, nil
	}

	o.logger.Info("workflow restored",
		"workflow_id", id,
		"completed", exec.CountCompleted(),
		"total", exec.Workflow().Len(),
	)

	if err := o.dispatch(ctx, exec, exec.ReadyNodes()); err != nil {
		o.removeActive(id)
		return nil, err
	}
	if err := o.finishIfDone(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// resync перечитывает статусы jobs из записей о выполнении.
// Возвращает все готовые после сверки jobs: их публикация повторяется.
func (o *Orchestrator) resync(ctx context.Context, exec *engine.Execution) ([]engine.JobNode, error) {
	if err := exec.Load(ctx, o.executions, false); err != nil {
		return nil, fmt.Errorf("resync workflow %s: %w", exec.Workflow().ID(), err)
	}
	return exec.ReadyNodes(), nil
}

// buildExecution собирает engine.Workflow по сохранённой спецификации.
// Невалидная спецификация переводит workflow из from в ABANDONED.
func (o *Orchestrator) buildExecution(ctx context.Context, wf *domain.Workflow, from domain.WorkflowStatus) (*engine.Execution, error) {
	dataRoot := wf.DataRoot
	if dataRoot == "" {
		dataRoot = o.dataRoot
	}

	built, err := engine.BuildWorkflow(&wf.Spec, engine.BuildOptions{
		ID:          wf.ID,
		DataRoot:    dataRoot,
		StrictGlobs: o.strictGlobs,
		Logger:      telemetry.WithWorkflowID(o.logger, wf.ID),
		Listeners:   []engine.Listener{o.metrics.Listener(), o.logListener()},
	})
	if err != nil {
		o.logger.Error("workflow spec rejected", "workflow_id", wf.ID, "error", err)
		if cerr := o.workflows.Claim(ctx, wf.ID, from, domain.WorkflowStatusAbandoned); cerr == nil {
			o.metrics.WorkflowFinished(domain.WorkflowStatusAbandoned)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidWorkflow, wf.ID, err)
	}

	return engine.NewExecution(built), nil
}

// dispatch публикует job.ready для каждого узла.
func (o *Orchestrator) dispatch(ctx context.Context, exec *engine.Execution, nodes []engine.JobNode) error {
	wfID := exec.Workflow().ID()

	for _, node := range nodes {
		payload := mq.JobReadyPayload{
			WorkflowID: wfID,
			JobName:    node.Name(),
			Job:        node.Job(),
			Params:     node.Parameters(),
			Inputs:     node.Input(),
			Outputs:    node.Output(),
			StagingDir: node.StagingDirectory(),
			OutputDir:  node.StagingOutputDirectory(),
		}
		if err := o.dispatcher.PublishJobReady(ctx, payload); err != nil {
			return fmt.Errorf("dispatch job %s: %w", node.Name(), err)
		}
		o.metrics.JobsDispatched.Inc()

		o.logger.Info("job dispatched",
			"workflow_id", wfID,
			"job", node.Name(),
		)
	}
	return nil
}

// finishIfDone завершает workflow, если все jobs COMPLETED
// или хотя бы один ABANDONED.
func (o *Orchestrator) finishIfDone(ctx context.Context, exec *engine.Execution) error {
	var status domain.WorkflowStatus
	switch {
	case exec.IsAbandoned():
		status = domain.WorkflowStatusAbandoned
	case exec.IsComplete():
		status = domain.WorkflowStatusCompleted
	default:
		return nil
	}

	id := exec.Workflow().ID()
	if !o.removeActive(id) {
		return nil
	}

	if err := o.workflows.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("finish workflow %s: %w", id, err)
	}
	o.metrics.WorkflowFinished(status)

	o.logger.Info("workflow finished",
		"workflow_id", id,
		"status", status,
		"completed", exec.CountCompleted(),
		"total", exec.Workflow().Len(),
	)
	return nil
}

// getWorkflow загружает workflow, отображая repo.ErrNotFound в ErrWorkflowNotFound.
func (o *Orchestrator) getWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	wf, err := o.workflows.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	return wf, nil
}

// logListener пишет каждое применённое изменение статуса в debug-лог.
func (o *Orchestrator) logListener() engine.Listener {
	return engine.ListenerFunc(func(_ context.Context, snap *engine.Snapshot, u engine.JobUpdate) {
		o.logger.Debug("job status applied",
			"workflow_id", snap.Workflow().ID(),
			"job", u.Node.Name(),
			"status", u.Status,
			"execution_id", u.ExecutionID,
			"ready", len(u.Ready),
		)
	})
}

// isSkippable — ошибки, при которых сообщение просто подтверждается.
func isSkippable(err error) bool {
	return errors.Is(err, ErrWorkflowNotPending) ||
		errors.Is(err, ErrWorkflowAlreadyActive) ||
		errors.Is(err, ErrWorkflowNotFound)
}

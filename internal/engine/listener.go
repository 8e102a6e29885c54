package engine

import (
	"context"

	"github.com/shaiso/Batchflow/internal/domain"
)

// ExecutionSource — внешний источник записей о выполнении jobs.
//
// Отвечает на вопрос: какая последняя запись выполнения job с именем
// jobName и набором параметров params? ok=false, если записей нет.
type ExecutionSource interface {
	LatestExecution(ctx context.Context, jobName string, params map[string]string) (rec domain.ExecutionRecord, ok bool, err error)
}

// JobUpdate — применённое изменение статуса job.
type JobUpdate struct {
	Node        JobNode
	Status      domain.JobStatus
	ExecutionID int64

	// Ready — jobs, ставшие готовыми в результате изменения.
	Ready []JobNode
}

// Listener получает уведомления о каждом применённом изменении статуса.
//
// Вызывается вне блокировки выполнения, snapshot можно хранить.
type Listener interface {
	OnJobUpdate(ctx context.Context, snap *Snapshot, update JobUpdate)
}

// ListenerFunc — адаптер функции к Listener.
type ListenerFunc func(ctx context.Context, snap *Snapshot, update JobUpdate)

// OnJobUpdate реализует Listener.
func (f ListenerFunc) OnJobUpdate(ctx context.Context, snap *Snapshot, update JobUpdate) {
	f(ctx, snap, update)
}

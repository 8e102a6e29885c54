package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Batchflow/internal/domain"
)

// ExecutionRepo — записи о выполнении jobs.
//
// Реализует engine.ExecutionSource: оркестратор сверяет по нему
// состояние выполнения после рестарта.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// LatestExecution возвращает последнюю запись выполнения job с ровно
// таким набором параметров. ok=false, если записей нет.
func (r *ExecutionRepo) LatestExecution(ctx context.Context, jobName string, params map[string]string) (domain.ExecutionRecord, bool, error) {
	paramsJSON, err := encodeParams(params)
	if err != nil {
		return domain.ExecutionRecord{}, false, err
	}

	// @> и <@ вместе дают равенство jsonb без учёта порядка ключей
	query := `
		SELECT id, workflow_id, job_name, params, status, created_at
		FROM job_executions
		WHERE job_name = $1
		  AND params @> $2::jsonb
		  AND params <@ $2::jsonb
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	rec, err := scanExecution(r.pool.QueryRow(ctx, query, jobName, paramsJSON))
	if errors.Is(err, ErrNotFound) {
		return domain.ExecutionRecord{}, false, nil
	}
	if err != nil {
		return domain.ExecutionRecord{}, false, err
	}
	return *rec, true, nil
}

// Record сохраняет запись выполнения или обновляет её статус.
func (r *ExecutionRepo) Record(ctx context.Context, rec *domain.ExecutionRecord) error {
	paramsJSON, err := encodeParams(rec.Params)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO job_executions (id, workflow_id, job_name, params, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = now()
	`
	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.WorkflowID,
		rec.JobName,
		paramsJSON,
		rec.Status,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// encodeParams сериализует параметры в JSON. nil → {}.
func encodeParams(params map[string]string) ([]byte, error) {
	if params == nil {
		params = map[string]string{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return data, nil
}

// scanExecution сканирует одну строку в ExecutionRecord.
func scanExecution(row pgx.Row) (*domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var paramsJSON []byte

	err := row.Scan(
		&rec.ID,
		&rec.WorkflowID,
		&rec.JobName,
		&paramsJSON,
		&rec.Status,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, scanErr("execution", err)
	}

	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &rec.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	return &rec, nil
}

// Batchflow Orchestrator — ведёт выполнение workflows.
//
// Orchestrator:
//   - Получает новые workflows из RabbitMQ и по расписанию сверки
//   - Строит DAG jobs по спецификации
//   - Публикует готовые jobs для системы выполнения
//   - Применяет статусы jobs и финализирует workflows
//   - Отдаёт /healthz, /metrics и HTTP API
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Batchflow/internal/api"
	"github.com/shaiso/Batchflow/internal/config"
	"github.com/shaiso/Batchflow/internal/mq"
	"github.com/shaiso/Batchflow/internal/orchestrator"
	"github.com/shaiso/Batchflow/internal/repo"
	"github.com/shaiso/Batchflow/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Логгер ещё не настроен
		telemetry.SetupLogger("ERROR", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting batchflow-orchestrator", "data_root", cfg.DataRoot)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	// Создаём репозитории
	workflowRepo := repo.NewWorkflowRepo(pool)
	executionRepo := repo.NewExecutionRepo(pool)

	// RabbitMQ: без брокера jobs некуда публиковать
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger, mq.WithName("batchflow-orchestrator"))
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	// Создаём топологию
	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	logger.Debug("topology declared", "topology", mq.TopologyInfo())

	publisher := mq.NewPublisher(mqConn, logger)
	metrics := telemetry.NewMetrics(nil)

	// Создаём orchestrator
	orch := orchestrator.New(orchestrator.Config{
		Workflows:         workflowRepo,
		Executions:        executionRepo,
		Dispatcher:        publisher,
		Conn:              mqConn,
		Metrics:           metrics,
		DataRoot:          cfg.DataRoot,
		StrictGlobs:       cfg.StrictGlobs,
		PollInterval:      cfg.PollInterval,
		BatchSize:         cfg.BatchSize,
		ReconcileSchedule: cfg.ReconcileSchedule,
		Logger:            logger,
	})

	// Запускаем orchestrator
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics + API
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil || !mqConn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler := api.NewHandler(api.Config{
		Workflows:   workflowRepo,
		Publisher:   publisher,
		Monitor:     orch,
		DataRoot:    cfg.DataRoot,
		StrictGlobs: cfg.StrictGlobs,
		Logger:      logger,
	})
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.OrchPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	// Останавливаем orchestrator
	orch.Stop()
	logger.Info("batchflow-orchestrator stopped")
}

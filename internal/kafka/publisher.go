package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"laundry-engine/internal/db"
	"laundry-engine/internal/metrics"
	"laundry-engine/internal/repository"
	"laundry-engine/internal/storage"
)

type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Publisher drains the lifecycle outbox to the broker. It is the
// asynchronous half of the notification sink: the hook writes a task row,
// this loop delivers it with retry bookkeeping.
type Publisher struct {
	db             db.DB
	repo           storage.OutboxTaskRepository
	producer       Producer
	config         PublisherConfig
	logger         *zap.Logger
	wg             sync.WaitGroup
	shutdownSignal chan struct{}
	stopOnce       sync.Once
}

func NewPublisher(database db.DB, repo storage.OutboxTaskRepository, producer Producer, config PublisherConfig, logger *zap.Logger) *Publisher {
	return &Publisher{
		db:             database,
		repo:           repo,
		producer:       producer,
		config:         config,
		logger:         logger,
		shutdownSignal: make(chan struct{}),
	}
}

func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("starting outbox publisher",
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Int("batch_size", p.config.BatchSize))
	p.wg.Add(1)
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error("outbox publisher failed to process batch", zap.Error(err))
			}
		case <-p.shutdownSignal:
			p.logger.Info("outbox publisher stopping")
			return
		case <-ctx.Done():
			// Just unwind; Shutdown waits on this goroutine, so calling it
			// from here would stall on our own WaitGroup entry.
			p.logger.Info("outbox publisher stopping")
			return
		}
	}
}

func (p *Publisher) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.shutdownSignal)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			p.logger.Info("outbox publisher shutdown complete")
		case <-shutdownCtx.Done():
			p.logger.Warn("outbox publisher shutdown timed out")
		}

		if err := p.producer.Close(); err != nil {
			p.logger.Error("failed to close producer", zap.Error(err))
		}
	})
}

func (p *Publisher) processBatch(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for fetching tasks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	tasks, err := p.repo.GetProcessableTasksTx(ctx, tx, p.config.BatchSize, p.config.MaxAttempts)
	if err != nil {
		return fmt.Errorf("failed to get processable tasks: %w", err)
	}

	if len(tasks) == 0 {
		return tx.Commit(ctx)
	}

	for _, task := range tasks {
		err := p.repo.UpdateTaskStatusTx(ctx, tx, task.ID, repository.TaskStatusProcessing, task.Attempts, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to mark task %s as PROCESSING: %w", task.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit after marking tasks as PROCESSING: %w", err)
	}

	for _, task := range tasks {
		select {
		case <-p.shutdownSignal:
			return fmt.Errorf("publisher shutdown during batch processing")
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.processSingleTask(ctx, task); err != nil {
			p.logger.Error("failed to process outbox task",
				zap.String("task_id", task.ID.String()), zap.Error(err))
		}
	}

	return nil
}

func (p *Publisher) processSingleTask(ctx context.Context, task *repository.OutboxTask) error {
	err := p.producer.SendMessage(ctx, task.Topic, []byte(task.ID.String()), task.Payload)
	if err != nil {
		metrics.OutboxFailedTotal.Inc()
		newAttempts := task.Attempts + 1
		errMsg := err.Error()

		if newAttempts >= p.config.MaxAttempts {
			p.logger.Warn("outbox task reached max attempts",
				zap.String("task_id", task.ID.String()),
				zap.Int("max_attempts", p.config.MaxAttempts))
		}

		updateErr := p.repo.UpdateTaskStatus(ctx, task.ID, repository.TaskStatusFailed, newAttempts, &errMsg, nil)
		if updateErr != nil {
			return fmt.Errorf("failed to update task status after send failure: %w", updateErr)
		}
		return err
	}

	metrics.OutboxPublishedTotal.Inc()
	now := time.Now().UTC()
	if updateErr := p.repo.UpdateTaskStatus(ctx, task.ID, repository.TaskStatusDone, task.Attempts, nil, &now); updateErr != nil {
		return fmt.Errorf("failed to update task status after successful send: %w", updateErr)
	}
	return nil
}

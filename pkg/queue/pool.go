package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/revcrew/leadflow/pkg/config"
	"github.com/revcrew/leadflow/pkg/store"
)

// WorkerPool manages a pool of queue workers.
type WorkerPool struct {
	podID   string
	kv      *store.Store
	queue   *Queue
	config  *config.QueueConfig
	runner  JobRunner
	workers []*Worker

	mu      sync.Mutex
	started bool
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(podID string, kv *store.Store, q *Queue, cfg *config.QueueConfig, runner JobRunner) *WorkerPool {
	return &WorkerPool{
		podID:   podID,
		kv:      kv,
		queue:   q,
		config:  cfg,
		runner:  runner,
		workers: make([]*Worker, 0, cfg.WorkerCount),
	}
}

// Start spawns the worker goroutines.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	// Requeue jobs a previous run of this pod claimed but never finished.
	recovered, err := p.queue.RecoverInflight(ctx, p.podID)
	if err != nil {
		return fmt.Errorf("recovering in-flight jobs: %w", err)
	}
	if recovered > 0 {
		slog.Warn("Requeued jobs claimed by a previous run", "pod_id", p.podID, "count", recovered)
	}

	p.started = true

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.queue, p.config, p.runner)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current jobs before exiting (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")
	for _, worker := range p.workers {
		worker.Stop()
	}
	slog.Info("Worker pool stopped gracefully")
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	var storeErr string
	storeReachable := true
	if err := p.kv.Ping(ctx); err != nil {
		storeReachable = false
		storeErr = fmt.Sprintf("store ping failed: %v", err)
		slog.Error("Failed to reach store for health check", "pod_id", p.podID, "error", err)
	}

	depth, err := p.queue.Depth(ctx)
	if err != nil && storeErr == "" {
		storeReachable = false
		storeErr = fmt.Sprintf("queue depth query failed: %v", err)
	}
	scheduled, _ := p.queue.ScheduledCount(ctx)
	failed, _ := p.queue.FailedCount(ctx)

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	return &PoolHealth{
		IsHealthy:      len(p.workers) > 0 && storeReachable,
		StoreReachable: storeReachable,
		StoreError:     storeErr,
		PodID:          p.podID,
		ActiveWorkers:  activeWorkers,
		TotalWorkers:   len(p.workers),
		QueueDepth:     depth,
		ScheduledJobs:  scheduled,
		FailedJobs:     failed,
		WorkerStats:    workerStats,
	}
}

package config

import "time"

// QueueConfig contains queue and worker pool configuration.
// These values control how jobs are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and processes jobs.
	WorkerCount int `yaml:"worker_count"`

	// PollInterval is the base interval for checking queued jobs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// JobTimeout is the maximum time one job can run.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// GracefulShutdownTimeout is the max time to wait for in-flight jobs
	// to complete during shutdown. Should not be shorter than JobTimeout.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		JobTimeout:              2 * time.Minute,
		GracefulShutdownTimeout: 2 * time.Minute,
	}
}

func loadQueueConfig() *QueueConfig {
	cfg := DefaultQueueConfig()
	cfg.WorkerCount = getEnvInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", cfg.PollInterval)
	cfg.PollIntervalJitter = getEnvDuration("POLL_INTERVAL_JITTER", cfg.PollIntervalJitter)
	cfg.JobTimeout = getEnvDuration("JOB_TIMEOUT", cfg.JobTimeout)
	cfg.GracefulShutdownTimeout = getEnvDuration("GRACEFUL_SHUTDOWN_TIMEOUT", cfg.GracefulShutdownTimeout)
	return cfg
}

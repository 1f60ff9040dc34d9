package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCleanupInterval is the default interval between cleanup runs.
const DefaultCleanupInterval = 24 * time.Hour

// Purger hard-deletes archived sessions older than retention.
type Purger interface {
	PurgeArchived(ctx context.Context, retention time.Duration) (int64, error)
}

var _ Purger = (*Service)(nil)

// CleanupConfig holds configuration for the cleanup job.
type CleanupConfig struct {
	RetentionDays   int           // Days an archived session is kept; 0 disables purging (default: 0)
	CleanupInterval time.Duration // Interval between cleanup runs (default: 24h)
}

// DefaultCleanupConfig returns the default cleanup configuration, which
// keeps archived sessions forever.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{CleanupInterval: DefaultCleanupInterval}
}

// CleanupJob periodically purges archived sessions past retention.
// Active sessions are never touched. A job without retention is a no-op.
type CleanupJob struct {
	purger Purger
	config CleanupConfig

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewCleanupJob creates a new cleanup job.
func NewCleanupJob(purger Purger, config CleanupConfig) *CleanupJob {
	if config.RetentionDays < 0 {
		config.RetentionDays = 0
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCleanupInterval
	}
	return &CleanupJob{purger: purger, config: config}
}

// Retention is the configured retention as a duration.
func (j *CleanupJob) Retention() time.Duration {
	return time.Duration(j.config.RetentionDays) * 24 * time.Hour
}

// Enabled reports whether a retention is configured.
func (j *CleanupJob) Enabled() bool {
	return j.config.RetentionDays > 0
}

// Start begins the periodic cleanup in a goroutine. A first run happens
// immediately. Calling Start on a running or disabled job does nothing.
func (j *CleanupJob) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running || !j.Enabled() {
		return
	}
	j.running = true
	j.stop = make(chan struct{})
	j.done = make(chan struct{})

	go j.run(ctx, j.stop, j.done)

	slog.Info("chat cleanup job started",
		"retention_days", j.config.RetentionDays,
		"interval", j.config.CleanupInterval)
}

// Stop stops the job and waits for an in-progress run to finish.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	close(j.stop)
	done := j.done
	j.running = false
	j.mu.Unlock()

	<-done
	slog.Info("chat cleanup job stopped")
}

// RunOnce executes a single cleanup run immediately. It deletes nothing
// when the job is disabled.
func (j *CleanupJob) RunOnce(ctx context.Context) (int64, error) {
	if !j.Enabled() {
		return 0, nil
	}
	return j.purger.PurgeArchived(ctx, j.Retention())
}

// IsRunning returns whether the job is running.
func (j *CleanupJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *CleanupJob) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.config.CleanupInterval)
	defer ticker.Stop()

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.mu.Lock()
			if j.stop == stop {
				j.running = false
			}
			j.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	deleted, err := j.RunOnce(ctx)
	if err != nil {
		slog.Error("chat cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("chat cleanup completed", "deleted", deleted)
	}
}

package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// SessionCleanupArgs defines the job that purges expired sessions and
// verification records.
type SessionCleanupArgs struct{}

func (SessionCleanupArgs) Kind() string { return JobKindSessionCleanup }

// ExpiredRecordCleaner is implemented by users.Service.
type ExpiredRecordCleaner interface {
	CleanupExpired(ctx context.Context) (sessions, verifications int64, err error)
}

type SessionCleanupWorker struct {
	river.WorkerDefaults[SessionCleanupArgs]
	Cleaner ExpiredRecordCleaner
	Logger  *slog.Logger
}

func (SessionCleanupWorker) Kind() string { return JobKindSessionCleanup }

func (w SessionCleanupWorker) Timeout(*river.Job[SessionCleanupArgs]) time.Duration {
	return time.Minute
}

func (w SessionCleanupWorker) Work(ctx context.Context, job *river.Job[SessionCleanupArgs]) error {
	if w.Cleaner == nil {
		return fmt.Errorf("session cleaner not configured")
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	sessions, verifications, err := w.Cleaner.CleanupExpired(ctx)
	if err != nil {
		return fmt.Errorf("session cleanup: %w", err)
	}

	logger.Info("session cleanup completed",
		"attempt", job.Attempt,
		"sessions_deleted", sessions,
		"verifications_deleted", verifications,
		"duration_seconds", time.Since(start).Seconds(),
	)
	return nil
}

// NewWorkers registers every worker this server runs.
func NewWorkers(cleaner ExpiredRecordCleaner, logger *slog.Logger) (*river.Workers, error) {
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, &SessionCleanupWorker{Cleaner: cleaner, Logger: logger}); err != nil {
		return nil, fmt.Errorf("register session cleanup worker: %w", err)
	}
	return workers, nil
}

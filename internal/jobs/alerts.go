package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Failure describes a job attempt that returned an error or panicked.
type Failure struct {
	JobID    int64
	Kind     string
	Attempt  int
	Err      error
	Panicked bool
}

// AlertFunc receives every job failure.
type AlertFunc func(ctx context.Context, f Failure)

// AlertingErrorHandler logs job failures and forwards them to Notify. River's
// retry policy still applies; the handler never cancels or snoozes a job.
type AlertingErrorHandler struct {
	Logger *slog.Logger
	Notify AlertFunc
}

var _ river.ErrorHandler = (*AlertingErrorHandler)(nil)

func NewAlertingErrorHandler(logger *slog.Logger, notify AlertFunc) *AlertingErrorHandler {
	return &AlertingErrorHandler{Logger: logger, Notify: notify}
}

func (h *AlertingErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.report(ctx, Failure{JobID: job.ID, Kind: job.Kind, Attempt: job.Attempt, Err: err})
	return nil
}

func (h *AlertingErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	f := Failure{JobID: job.ID, Kind: job.Kind, Attempt: job.Attempt, Err: fmt.Errorf("panic: %v", panicVal), Panicked: true}
	if h.Logger != nil {
		h.Logger.Debug("job panic trace", "job_id", job.ID, "trace", trace)
	}
	h.report(ctx, f)
	return nil
}

func (h *AlertingErrorHandler) report(ctx context.Context, f Failure) {
	if h.Logger != nil {
		msg := "job failed"
		if f.Panicked {
			msg = "job panicked"
		}
		h.Logger.Error(msg, "job_id", f.JobID, "kind", f.Kind, "attempt", f.Attempt, "error", f.Err)
	}
	if h.Notify != nil {
		h.Notify(ctx, f)
	}
}

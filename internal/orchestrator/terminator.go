package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/kubejob/scaler/pkg/metrics"
)

// Terminator deletes at most one worker job per call, selecting the oldest
// job of the given type that still has running pods and is not already
// being torn down. Deleting one job per call ratchets scale-down and rules
// out mass termination in a single tick.
type Terminator struct {
	client Client
	logger *zap.Logger
}

// NewTerminator builds a Terminator.
func NewTerminator(client Client, logger *zap.Logger) *Terminator {
	return &Terminator{client: client, logger: logger}
}

// TerminateOldest deletes the oldest eligible job of typeID, if any, and
// reports whether a deletion was attempted.
func (t *Terminator) TerminateOldest(ctx context.Context, typeID string) bool {
	jobs, err := t.client.ListWorkerJobs(ctx, typeID)
	if err != nil {
		t.logger.Warn("failed to list jobs for scale-down", zap.String("type", typeID), zap.Error(err))
		return false
	}

	oldest, found := pickOldest(jobs)
	if !found {
		return false
	}

	if err := t.client.DeleteJob(ctx, oldest.Name); err != nil {
		t.logger.Warn("failed to delete job", zap.String("job", oldest.Name), zap.Error(err))
		return false
	}

	t.logger.Info("terminated worker job", zap.String("type", typeID), zap.String("job", oldest.Name))
	metrics.JobsTerminatedTotal.WithLabelValues(typeID).Inc()
	return true
}

// pickOldest keeps jobs with at least one running pod that are not already
// terminating, and returns the one with the earliest creation timestamp.
func pickOldest(jobs []WorkerJobRecord) (WorkerJobRecord, bool) {
	var oldest WorkerJobRecord
	found := false

	for _, j := range jobs {
		if j.ActiveCount <= 0 || j.Terminating {
			continue
		}
		if !found || j.CreationTime.Before(oldest.CreationTime) {
			oldest = j
			found = true
		}
	}

	return oldest, found
}

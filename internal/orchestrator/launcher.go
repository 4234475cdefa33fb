package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/kubejob/scaler/pkg/metrics"
)

// Launcher submits new worker jobs for a job type and records the launch.
// Any orchestrator error is logged and swallowed: a failed spawn just means
// the controller tries again on the next tick.
type Launcher struct {
	client    Client
	logger    *zap.Logger
	onSpawned func(ctx context.Context, typeID, jobName string)
}

// NewLauncher builds a Launcher. onSpawned, if non-nil, is invoked after a
// successful CreateJob with the generated job name, so callers can
// increment counters and write audit rows without the launcher depending on
// those packages directly.
func NewLauncher(client Client, logger *zap.Logger, onSpawned func(ctx context.Context, typeID, jobName string)) *Launcher {
	return &Launcher{client: client, logger: logger, onSpawned: onSpawned}
}

// Launch submits one new job for spec.
func (l *Launcher) Launch(ctx context.Context, spec JobSpec) {
	jobName, err := l.client.CreateJob(ctx, spec)
	if err != nil {
		l.logger.Warn("failed to spawn worker job",
			zap.String("type", spec.TypeID), zap.Error(err))
		return
	}
	l.logger.Info("spawned worker job",
		zap.String("type", spec.TypeID), zap.String("job", jobName))
	metrics.JobsSpawnedTotal.WithLabelValues(spec.TypeID).Inc()
	if l.onSpawned != nil {
		l.onSpawned(ctx, spec.TypeID, jobName)
	}
}

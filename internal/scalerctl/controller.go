// Package scalerctl implements the scaling controller: the periodic loop
// that applies the per-type scale-up/scale-down state machine against the
// broker and orchestrator probes under a global worker budget.
package scalerctl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kubejob/scaler/internal/audit"
	"github.com/kubejob/scaler/internal/broker"
	"github.com/kubejob/scaler/internal/catalog"
	"github.com/kubejob/scaler/internal/orchestrator"
	"github.com/kubejob/scaler/internal/sampler"
	"github.com/kubejob/scaler/internal/state"
	"github.com/kubejob/scaler/pkg/metrics"
)

const (
	// PollInterval is the tick cadence.
	PollInterval = 5 * time.Second
	// IdleThreshold is the number of consecutive idle ticks before a type's
	// fleet starts shrinking.
	IdleThreshold = 6
	// BurstCap bounds how many jobs a single burst scale-up may launch.
	BurstCap = 5
)

// Controller runs the scaling loop. Construct with New; start with Run in
// its own goroutine.
type Controller struct {
	catalog    *catalog.Catalog
	orch       orchestrator.Client
	probe      broker.Probe
	launcher   *orchestrator.Launcher
	terminator *orchestrator.Terminator
	auditStore audit.Aggregator
	jobEvents  audit.JobEventRecorder
	sampler    *sampler.Sampler
	shared     *state.SharedState
	logger     *zap.Logger

	maxJobs     int
	brokerHost  string
	reportURL   string
	logsHostDir string
}

// Config bundles Controller's fixed dependencies and tunables.
type Config struct {
	Catalog      *catalog.Catalog
	Orchestrator orchestrator.Client
	Probe        broker.Probe
	AuditStore   audit.Aggregator
	JobEvents    audit.JobEventRecorder
	Sampler      *sampler.Sampler
	Shared       *state.SharedState
	Logger       *zap.Logger
	MaxJobs      int
	BrokerHost   string
	ReportURL    string
	LogsHostDir  string
}

// New builds a Controller, wiring its own Launcher and Terminator against
// the given orchestrator client.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	jobEvents := cfg.JobEvents
	shared := cfg.Shared

	onSpawned := func(ctx context.Context, typeID, jobName string) {
		shared.RecordSpawn()
		if jobEvents == nil {
			return
		}
		if err := jobEvents.RecordJobEvent(ctx, jobName, typeID, audit.JobEventSpawned); err != nil {
			logger.Warn("failed to record job_audit spawn row",
				zap.String("job", jobName), zap.Error(err))
		}
	}

	return &Controller{
		catalog:     cfg.Catalog,
		orch:        cfg.Orchestrator,
		probe:       cfg.Probe,
		launcher:    orchestrator.NewLauncher(cfg.Orchestrator, logger, onSpawned),
		terminator:  orchestrator.NewTerminator(cfg.Orchestrator, logger),
		auditStore:  cfg.AuditStore,
		jobEvents:   jobEvents,
		sampler:     cfg.Sampler,
		shared:      shared,
		logger:      logger,
		maxJobs:     cfg.MaxJobs,
		brokerHost:  cfg.BrokerHost,
		reportURL:   cfg.ReportURL,
		logsHostDir: cfg.LogsHostDir,
	}
}

// Run executes the controller loop until ctx is cancelled. Cancellation is
// cooperative: it is checked between ticks only, so a tick already in
// progress always completes.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	c.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("scaling controller loop stopped")
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick runs exactly one iteration of the state machine. Exported so tests
// can drive single ticks deterministically. The tick body is one failure
// domain: a panic anywhere inside it is logged, flips status_msg to
// "Error", and leaves the loop running.
func (c *Controller) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			c.logger.Error("scaling controller tick panicked", zap.Any("panic", r))
			c.shared.MarkError()
		}
	}()

	jobs, err := c.orch.ListWorkerJobs(ctx, "")
	if err != nil {
		c.logger.Warn("orchestrator probe failed, treating as all-zero", zap.Error(err))
		jobs = nil
	}

	perTypeActive := activeCountsByType(jobs)
	usage := c.sampler.Sample()

	totalActive := 0
	for _, n := range perTypeActive {
		totalActive += n
	}

	var totalReady, totalUnacked int
	scalingStatus := make(map[string]state.ScalingStatus, c.catalog.Len())

	for _, spec := range c.catalog.Types() {
		active := perTypeActive[spec.TypeID]
		ready, unacked := c.probe.QueueStats(ctx, spec.Queue)
		pending := ready + unacked
		totalReady += ready
		totalUnacked += unacked

		switch {
		case ready > spec.Threshold && active < c.maxJobs:
			count := 1
			if ready > 2*spec.Threshold {
				count = min(BurstCap, c.maxJobs-totalActive)
			}
			for i := 0; i < count; i++ {
				c.launcher.Launch(ctx, orchestrator.JobSpec{
					TypeID:      spec.TypeID,
					Image:       spec.Image,
					Queue:       spec.Queue,
					PullSecret:  spec.PullSecret,
					ReportURL:   c.reportURL,
					BrokerHost:  c.brokerHost,
					LogsHostDir: c.logsHostDir,
				})
				totalActive++
				active++
			}
			c.shared.ResetIdle(spec.TypeID)

		case pending == 0 && active > 0:
			idle := c.shared.IncrementIdle(spec.TypeID)
			if idle >= IdleThreshold {
				c.terminator.TerminateOldest(ctx, spec.TypeID)
				c.shared.RatchetIdle(spec.TypeID)
			}

		default:
			c.shared.ResetIdle(spec.TypeID)
		}

		idleTicks := c.shared.IdleTicks(spec.TypeID)
		scalingStatus[spec.TypeID] = state.ScalingStatus{
			Active:             active,
			IdleSeconds:        idleTicks * int(PollInterval.Seconds()),
			ScaleDownInSeconds: max(0, IdleThreshold-idleTicks) * int(PollInterval.Seconds()),
			IsIdle:             idleTicks > 0,
		}
	}

	avgLatency, count := c.queryAuditSummary(ctx)

	c.shared.UpdateMetrics(state.MetricsSnapshot{
		QueueDepth:          totalReady,
		Unacked:             totalUnacked,
		ActiveJobs:          totalActive,
		MaxJobs:             c.maxJobs,
		AvgLatencyMs:        avgLatency,
		ThroughputPerMinute: count,
		CPUPercent:          usage.CPUPercent,
		MemoryPercent:       usage.MemoryPercent,
		StatusMsg:           "OK",
		ScalingStatus:       scalingStatus,
	}, jobs)
}

// queryAuditSummary reads the latency/throughput aggregates. A failed query
// holds the previously published value rather than zeroing the dashboard.
func (c *Controller) queryAuditSummary(ctx context.Context) (float64, int64) {
	avg, err := c.auditStore.AvgDurationMs(ctx, 10*time.Minute)
	if err != nil {
		c.logger.Warn("audit avg_duration_ms query failed, holding previous value", zap.Error(err))
		prev, _ := c.shared.Snapshot()
		return prev.AvgLatencyMs, prev.ThroughputPerMinute
	}

	count, err := c.auditStore.CountSince(ctx, time.Minute)
	if err != nil {
		c.logger.Warn("audit count query failed, holding previous value", zap.Error(err))
		prev, _ := c.shared.Snapshot()
		return avg, prev.ThroughputPerMinute
	}

	return avg, count
}

func activeCountsByType(jobs []orchestrator.WorkerJobRecord) map[string]int {
	counts := make(map[string]int)
	for _, j := range jobs {
		if j.Occupying() {
			counts[j.TypeID]++
		}
	}
	return counts
}

// Package state holds the single process-wide SharedState the scaling
// controller and the HTTP API mutate concurrently, protected by one mutex.
package state

import (
	"sync"

	"github.com/kubejob/scaler/internal/orchestrator"
)

// ScalingStatus is one type's entry in MetricsSnapshot.ScalingStatus.
type ScalingStatus struct {
	Active             int  `json:"active"`
	IdleSeconds        int  `json:"idle_seconds"`
	ScaleDownInSeconds int  `json:"scale_down_in_seconds"`
	IsIdle             bool `json:"is_idle"`
}

// MetricsSnapshot is the derived, read-mostly aggregate served by GET /stats.
type MetricsSnapshot struct {
	QueueDepth          int                      `json:"queue_depth"`
	Unacked             int                      `json:"unacked"`
	ActiveJobs          int                      `json:"active_jobs"`
	MaxJobs             int                      `json:"max_jobs"`
	AvgLatencyMs        float64                  `json:"avg_latency_ms"`
	ThroughputPerMinute int64                    `json:"throughput_per_minute"`
	CPUPercent          float64                  `json:"cpu_percent"`
	MemoryPercent       float64                  `json:"memory_percent"`
	StatusMsg           string                   `json:"status_msg"`
	TotalConsumed       int64                    `json:"total_consumed"`
	TotalSpawned        int64                    `json:"total_spawned"`
	ScalingStatus       map[string]ScalingStatus `json:"scaling_status"`
}

// typeState is the mutable per-type scaling state. idleTicks stays within
// [0, idleThreshold] at all times.
type typeState struct {
	idleTicks int
}

// SharedState is the single controller-owned value holding every piece of
// process-wide mutable state. All access goes through its methods; there
// are no ambient package-level writes.
type SharedState struct {
	mu sync.Mutex

	idleThreshold int

	types    map[string]*typeState
	progress map[string]int64
	history  []orchestrator.WorkerJobRecord
	metrics  MetricsSnapshot

	totalConsumed int64
	totalSpawned  int64
}

// New builds an empty SharedState for the given catalog type IDs.
func New(typeIDs []string, idleThreshold, maxJobs int) *SharedState {
	types := make(map[string]*typeState, len(typeIDs))
	for _, id := range typeIDs {
		types[id] = &typeState{}
	}
	return &SharedState{
		idleThreshold: idleThreshold,
		types:         types,
		progress:      make(map[string]int64),
		metrics:       MetricsSnapshot{MaxJobs: maxJobs, ScalingStatus: map[string]ScalingStatus{}},
	}
}

// IdleTicks returns the current idle tick count for typeID.
func (s *SharedState) IdleTicks(typeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typeState(typeID).idleTicks
}

// ResetIdle sets the idle counter to 0: the "reset" and "scale up"
// transitions.
func (s *SharedState) ResetIdle(typeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typeState(typeID).idleTicks = 0
}

// IncrementIdle increments the idle counter by one and returns the new
// value, clamped to the threshold.
func (s *SharedState) IncrementIdle(typeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.typeState(typeID)
	if ts.idleTicks < s.idleThreshold {
		ts.idleTicks++
	}
	return ts.idleTicks
}

// RatchetIdle sets the idle counter to one below the threshold after a
// termination, so the next idle tick deletes again without a full
// re-accumulation from zero.
func (s *SharedState) RatchetIdle(typeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typeState(typeID).idleTicks = s.idleThreshold - 1
}

func (s *SharedState) typeState(typeID string) *typeState {
	ts, ok := s.types[typeID]
	if !ok {
		ts = &typeState{}
		s.types[typeID] = ts
	}
	return ts
}

// RecordProgress applies a /report: total_consumed += processed,
// per_job_progress[jobName] += processed.
func (s *SharedState) RecordProgress(jobName string, processed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[jobName] += processed
	s.totalConsumed += processed
}

// RecordMessageReport applies a /report-message: total_consumed += 1.
func (s *SharedState) RecordMessageReport() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalConsumed++
}

// RecordSpawn increments total_spawned after a successful Job Launcher call.
func (s *SharedState) RecordSpawn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSpawned++
}

// Progress returns the cumulative processed count for jobName.
func (s *SharedState) Progress(jobName string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress[jobName]
}

// TotalConsumed returns the running total_consumed counter.
func (s *SharedState) TotalConsumed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalConsumed
}

// UpdateMetrics atomically replaces the MetricsSnapshot and job history
// following one controller tick's computations.
func (s *SharedState) UpdateMetrics(snapshot MetricsSnapshot, history []orchestrator.WorkerJobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot.TotalConsumed = s.totalConsumed
	snapshot.TotalSpawned = s.totalSpawned
	s.metrics = snapshot
	s.history = orchestrator.SortHistory(history)
}

// MarkError sets status_msg to "Error" without disturbing the rest of the
// snapshot, used when a tick fails partway through.
func (s *SharedState) MarkError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.StatusMsg = "Error"
}

// Snapshot returns a consistent, independent copy of the metrics and job
// history for GET /stats, with each job's cumulative processed count
// attached from the in-memory progress counters.
func (s *SharedState) Snapshot() (MetricsSnapshot, []orchestrator.WorkerJobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metricsCopy := s.metrics
	metricsCopy.ScalingStatus = make(map[string]ScalingStatus, len(s.metrics.ScalingStatus))
	for k, v := range s.metrics.ScalingStatus {
		metricsCopy.ScalingStatus[k] = v
	}

	historyCopy := make([]orchestrator.WorkerJobRecord, len(s.history))
	copy(historyCopy, s.history)
	for i := range historyCopy {
		historyCopy[i].Processed = s.progress[historyCopy[i].Name]
	}

	return metricsCopy, historyCopy
}

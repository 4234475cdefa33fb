// Package orchestrator adapts the container orchestrator's batch Job API
// into the explicit interfaces the scaling controller depends on: list
// worker jobs, create one, delete one. Tests inject fakes against these
// interfaces instead of a live cluster.
package orchestrator

import (
	"context"
	"time"
)

// WorkerLabel is the label every worker job and its pods carry, used to
// scope every orchestrator list call to this controller's fleet.
const WorkerLabel = "app=worker-job"

// Phase classifies a worker job from its orchestrator-reported counters.
type Phase string

const (
	PhasePending   Phase = "Pending"
	PhaseRunning   Phase = "Running"
	PhaseSucceeded Phase = "Succeeded"
	PhaseFailed    Phase = "Failed"
)

// WorkerJobRecord is an observed, non-authoritative snapshot of one worker
// job as reported by the orchestrator. Processed is filled in from the
// in-memory per-job progress counters when the record is served, not by
// the orchestrator itself.
type WorkerJobRecord struct {
	Name           string     `json:"name"`
	TypeID         string     `json:"type"`
	StartTime      *time.Time `json:"start_time"`
	CreationTime   time.Time  `json:"creation_time"`
	Phase          Phase      `json:"phase"`
	ActiveCount    int        `json:"active"`
	SucceededCount int        `json:"succeeded"`
	FailedCount    int        `json:"failed"`
	Terminating    bool       `json:"terminating"`
	Processed      int64      `json:"processed"`
}

// Occupying reports whether this job still consumes a budget slot: a job
// that has not yet Succeeded or Failed is occupying, even before it has
// scheduled a pod.
func (w WorkerJobRecord) Occupying() bool {
	return w.SucceededCount == 0 && w.FailedCount == 0
}

// JobSpec is the Job Launcher's input: everything needed to submit a new
// worker job for a type.
type JobSpec struct {
	TypeID      string
	Image       string
	Queue       string
	PullSecret  string
	ReportURL   string
	BrokerHost  string
	LogsHostDir string
}

// PodInfo is a pod observed under a job or across the whole namespace, used
// by the Read API's /logs and /cluster-info endpoints.
type PodInfo struct {
	Name     string `json:"name"`
	Phase    string `json:"phase"`
	IP       string `json:"ip"`
	Node     string `json:"node"`
	Restarts int32  `json:"restarts"`
}

// NodeInfo is one cluster node, used by /cluster-info.
type NodeInfo struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	CPU    string `json:"cpu"`
	Memory string `json:"memory"`
	OS     string `json:"os"`
	Kernel string `json:"kernel"`
}

// EventInfo is one namespace event, used by /cluster-info.
type EventInfo struct {
	Type    string    `json:"type"`
	Reason  string    `json:"reason"`
	Message string    `json:"message"`
	Object  string    `json:"object"`
	Time    time.Time `json:"time"`
}

// ClusterInfo aggregates the three views /cluster-info serves.
type ClusterInfo struct {
	Nodes  []NodeInfo  `json:"nodes"`
	Events []EventInfo `json:"events"`
	Pods   []PodInfo   `json:"pods"`
}

// Client is the adapter the controller, launcher, and terminator depend on
// instead of talking to client-go directly.
type Client interface {
	// ListWorkerJobs lists every job labeled WorkerLabel, optionally
	// filtered to one type_id (empty string means all types).
	ListWorkerJobs(ctx context.Context, typeID string) ([]WorkerJobRecord, error)
	// CreateJob submits a new worker job and returns its generated name.
	CreateJob(ctx context.Context, spec JobSpec) (string, error)
	DeleteJob(ctx context.Context, name string) error
	PodsForJob(ctx context.Context, jobName string) ([]PodInfo, error)
	PodLogs(ctx context.Context, podName string, sinceSeconds *int64) (string, error)
	ClusterInfo(ctx context.Context) (ClusterInfo, error)
}

package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// K8sClient implements Client against a real kubernetes.Interface.
type K8sClient struct {
	kube      kubernetes.Interface
	namespace string
	logger    *zap.Logger
}

// NewK8sClient builds a Client scoped to namespace.
func NewK8sClient(kube kubernetes.Interface, namespace string, logger *zap.Logger) *K8sClient {
	return &K8sClient{kube: kube, namespace: namespace, logger: logger}
}

// ListWorkerJobs implements Client.
func (c *K8sClient) ListWorkerJobs(ctx context.Context, typeID string) ([]WorkerJobRecord, error) {
	selector := WorkerLabel
	if typeID != "" {
		selector += fmt.Sprintf(",type=%s", typeID)
	}

	jobs, err := c.kube.BatchV1().Jobs(c.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	records := make([]WorkerJobRecord, 0, len(jobs.Items))
	for _, job := range jobs.Items {
		records = append(records, toRecord(job))
	}
	return records, nil
}

func toRecord(job batchv1.Job) WorkerJobRecord {
	succeeded := int(job.Status.Succeeded)
	failed := int(job.Status.Failed)
	active := int(job.Status.Active)

	phase := PhaseRunning
	switch {
	case succeeded >= 1:
		phase = PhaseSucceeded
	case failed >= 1:
		phase = PhaseFailed
	case active == 0:
		phase = PhasePending
	}

	var start *time.Time
	if job.Status.StartTime != nil {
		t := job.Status.StartTime.Time
		start = &t
	}

	return WorkerJobRecord{
		Name:           job.Name,
		TypeID:         job.Labels["type"],
		StartTime:      start,
		CreationTime:   job.CreationTimestamp.Time,
		Phase:          phase,
		ActiveCount:    active,
		SucceededCount: succeeded,
		FailedCount:    failed,
		Terminating:    job.DeletionTimestamp != nil,
	}
}

// CreateJob implements Client, submitting a batch/v1 Job carrying the
// worker/type labels, a 60s TTL-after-finish, restart-on-failure, the
// injected report/queue/broker env, and a host-path /logs volume.
func (c *K8sClient) CreateJob(ctx context.Context, spec JobSpec) (string, error) {
	jobName := fmt.Sprintf("%s-%s", spec.TypeID, shortHex())

	ttl := int32(60)
	labels := map[string]string{"app": "worker-job", "type": spec.TypeID}

	env := []corev1.EnvVar{
		{Name: "BROKER_HOST", Value: spec.BrokerHost},
		{Name: "CONTROLLER_REPORT_URL", Value: spec.ReportURL},
		{Name: "JOB_NAME", Value: jobName},
		{Name: "JOB_TYPE", Value: spec.TypeID},
		{Name: "QUEUE_NAME", Value: spec.Queue},
	}

	podSpec := corev1.PodSpec{
		RestartPolicy: corev1.RestartPolicyOnFailure,
		Volumes: []corev1.Volume{
			{
				Name: "logs",
				VolumeSource: corev1.VolumeSource{
					HostPath: &corev1.HostPathVolumeSource{
						Path: spec.LogsHostDir,
						Type: hostPathType(corev1.HostPathDirectoryOrCreate),
					},
				},
			},
		},
		Containers: []corev1.Container{
			{
				Name:  "worker",
				Image: spec.Image,
				Env:   env,
				VolumeMounts: []corev1.VolumeMount{
					{Name: "logs", MountPath: "/logs"},
				},
			},
		},
	}

	if spec.PullSecret != "" {
		podSpec.ImagePullSecrets = []corev1.LocalObjectReference{{Name: spec.PullSecret}}
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:   jobName,
			Labels: labels,
		},
		Spec: batchv1.JobSpec{
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       podSpec,
			},
		},
	}

	if _, err := c.kube.BatchV1().Jobs(c.namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return "", fmt.Errorf("create job %s: %w", jobName, err)
	}
	return jobName, nil
}

// DeleteJob implements Client, requesting background-propagation deletion
// so dependent pods are cleaned up asynchronously rather than blocking this
// call.
func (c *K8sClient) DeleteJob(ctx context.Context, name string) error {
	policy := metav1.DeletePropagationBackground
	err := c.kube.BatchV1().Jobs(c.namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete job %s: %w", name, err)
	}
	return nil
}

// PodsForJob returns pods whose job-name label matches jobName.
func (c *K8sClient) PodsForJob(ctx context.Context, jobName string) ([]PodInfo, error) {
	pods, err := c.kube.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=%s", jobName),
	})
	if err != nil {
		return nil, fmt.Errorf("list pods for job %s: %w", jobName, err)
	}
	return toPodInfos(pods.Items), nil
}

// PodLogs streams a container log tail, restricted to sinceSeconds if set.
func (c *K8sClient) PodLogs(ctx context.Context, podName string, sinceSeconds *int64) (string, error) {
	opts := &corev1.PodLogOptions{}
	if sinceSeconds != nil {
		opts.SinceSeconds = sinceSeconds
	}

	req := c.kube.CoreV1().Pods(c.namespace).GetLogs(podName, opts)
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("read logs for pod %s: %w", podName, err)
	}
	defer stream.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, readErr := stream.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	return string(buf), nil
}

// ClusterInfo implements Client's node/event/pod snapshot for /cluster-info.
func (c *K8sClient) ClusterInfo(ctx context.Context) (ClusterInfo, error) {
	var info ClusterInfo

	nodes, err := c.kube.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return info, fmt.Errorf("list nodes: %w", err)
	}
	for _, n := range nodes.Items {
		info.Nodes = append(info.Nodes, toNodeInfo(n))
	}

	events, err := c.kube.CoreV1().Events(c.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return info, fmt.Errorf("list events: %w", err)
	}
	info.Events = toEventInfos(events.Items)

	pods, err := c.kube.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return info, fmt.Errorf("list pods: %w", err)
	}
	info.Pods = toPodInfos(pods.Items)

	return info, nil
}

func toPodInfos(pods []corev1.Pod) []PodInfo {
	out := make([]PodInfo, 0, len(pods))
	for _, p := range pods {
		var restarts int32
		for _, cs := range p.Status.ContainerStatuses {
			restarts += cs.RestartCount
		}
		out = append(out, PodInfo{
			Name:     p.Name,
			Phase:    string(p.Status.Phase),
			IP:       p.Status.PodIP,
			Node:     p.Spec.NodeName,
			Restarts: restarts,
		})
	}
	return out
}

func toNodeInfo(n corev1.Node) NodeInfo {
	ready := false
	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			ready = cond.Status == corev1.ConditionTrue
		}
	}
	return NodeInfo{
		Name:   n.Name,
		Ready:  ready,
		CPU:    n.Status.Capacity.Cpu().String(),
		Memory: n.Status.Capacity.Memory().String(),
		OS:     n.Status.NodeInfo.OSImage,
		Kernel: n.Status.NodeInfo.KernelVersion,
	}
}

func toEventInfos(events []corev1.Event) []EventInfo {
	out := make([]EventInfo, 0, len(events))
	for _, e := range events {
		ts := e.LastTimestamp.Time
		if ts.IsZero() {
			ts = e.EventTime.Time
		}
		if ts.IsZero() {
			ts = e.FirstTimestamp.Time
		}
		out = append(out, EventInfo{
			Type:    e.Type,
			Reason:  e.Reason,
			Message: e.Message,
			Object:  e.InvolvedObject.Kind + "/" + e.InvolvedObject.Name,
			Time:    ts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if len(out) > 20 {
		out = out[:20]
	}
	return out
}

func shortHex() string {
	return uuid.New().String()[:6]
}

func hostPathType(t corev1.HostPathType) *corev1.HostPathType {
	return &t
}

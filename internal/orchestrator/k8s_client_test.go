package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestK8sClient_ListWorkerJobsFiltersByType(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		&batchv1.Job{
			ObjectMeta: metav1.ObjectMeta{
				Name:      "spend-analysis-abc123",
				Namespace: "default",
				Labels:    map[string]string{"app": "worker-job", "type": "spend-analysis"},
			},
			Status: batchv1.JobStatus{Active: 1},
		},
		&batchv1.Job{
			ObjectMeta: metav1.ObjectMeta{
				Name:      "report-gen-def456",
				Namespace: "default",
				Labels:    map[string]string{"app": "worker-job", "type": "report-gen"},
			},
			Status: batchv1.JobStatus{Succeeded: 1},
		},
	)

	client := NewK8sClient(clientset, "default", zap.NewNop())

	jobs, err := client.ListWorkerJobs(context.Background(), "spend-analysis")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "spend-analysis-abc123", jobs[0].Name)
	require.Equal(t, PhaseRunning, jobs[0].Phase)
	require.True(t, jobs[0].Occupying())
}

func TestK8sClient_CreateJobReturnsGeneratedName(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	client := NewK8sClient(clientset, "default", zap.NewNop())

	name, err := client.CreateJob(context.Background(), JobSpec{
		TypeID:      "spend-analysis",
		Image:       "registry.local/worker:1",
		Queue:       "spend_queue",
		ReportURL:   "http://controller:8080/report",
		BrokerHost:  "rabbitmq",
		LogsHostDir: "/var/log/workers",
	})
	require.NoError(t, err)
	require.Contains(t, name, "spend-analysis-")

	job, err := clientset.BatchV1().Jobs("default").Get(context.Background(), name, metav1.GetOptions{})
	require.NoError(t, err)
	require.Equal(t, "worker-job", job.Labels["app"])
	require.Equal(t, "spend-analysis", job.Labels["type"])
	require.Equal(t, int32(60), *job.Spec.TTLSecondsAfterFinished)
	require.Equal(t, corev1.RestartPolicyOnFailure, job.Spec.Template.Spec.RestartPolicy)
}

func TestK8sClient_DeleteJobIsIdempotentOnNotFound(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	client := NewK8sClient(clientset, "default", zap.NewNop())

	err := client.DeleteJob(context.Background(), "does-not-exist")
	require.NoError(t, err)
}

func TestSortHistory_AbsentStartTimesSortLast(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	records := []WorkerJobRecord{
		{Name: "pending", StartTime: nil},
		{Name: "newer", StartTime: &now},
		{Name: "older", StartTime: &earlier},
	}

	sorted := SortHistory(records)
	require.Equal(t, []string{"newer", "older", "pending"}, names(sorted))
}

func names(records []WorkerJobRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

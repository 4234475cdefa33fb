//go:build integration

package audit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/kubejob/scaler/internal/audit"
)

// AuditStoreIntegrationSuite exercises Store against a real Postgres
// container. Run with -tags integration.
type AuditStoreIntegrationSuite struct {
	suite.Suite
	container testcontainers.Container
	store     *audit.Store
	ctx       context.Context
}

func (s *AuditStoreIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "scaler_test",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(s.ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(s.ctx, "5432")
	s.Require().NoError(err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=scaler_test sslmode=disable",
		host, port.Port())

	store, err := audit.Open(s.ctx, dsn, 5, 2, time.Minute, zap.NewNop())
	s.Require().NoError(err)
	s.Require().NoError(store.EnsureSchema(s.ctx))
	s.store = store
}

func (s *AuditStoreIntegrationSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
	if s.container != nil {
		s.container.Terminate(s.ctx)
	}
}

func (s *AuditStoreIntegrationSuite) TestAvgDurationMs_ComputesMeanWithinWindow() {
	now := time.Now()
	s.Require().NoError(s.store.RecordMessage(s.ctx, audit.MessageRecord{
		MessageID:   "m1",
		JobType:     "spend-analysis",
		WorkerPod:   "worker-1",
		PickedAt:    now.Add(-100 * time.Millisecond),
		ProcessedAt: now,
		DurationMs:  100,
		Status:      "SUCCESS",
	}))
	s.Require().NoError(s.store.RecordMessage(s.ctx, audit.MessageRecord{
		MessageID:   "m2",
		JobType:     "spend-analysis",
		WorkerPod:   "worker-1",
		PickedAt:    now.Add(-300 * time.Millisecond),
		ProcessedAt: now,
		DurationMs:  300,
		Status:      "SUCCESS",
	}))

	avg, err := s.store.AvgDurationMs(s.ctx, 10*time.Minute)
	s.Require().NoError(err)
	s.InDelta(200.0, avg, 0.01)
}

func (s *AuditStoreIntegrationSuite) TestRecordMessage_DuplicatesProduceDuplicateRows() {
	rec := audit.MessageRecord{
		MessageID:   "dup",
		JobType:     "spend-analysis",
		WorkerPod:   "worker-1",
		PickedAt:    time.Now(),
		ProcessedAt: time.Now(),
		DurationMs:  10,
		Status:      "SUCCESS",
	}

	before, err := s.store.CountSince(s.ctx, time.Hour)
	s.Require().NoError(err)

	s.Require().NoError(s.store.RecordMessage(s.ctx, rec))
	s.Require().NoError(s.store.RecordMessage(s.ctx, rec))

	after, err := s.store.CountSince(s.ctx, time.Hour)
	s.Require().NoError(err)
	s.Equal(before+2, after)
}

func (s *AuditStoreIntegrationSuite) TestRecordJobEvent_InsertsSpawnedRow() {
	s.Require().NoError(s.store.RecordJobEvent(s.ctx, "job-1", "spend-analysis", audit.JobEventSpawned))
}

func TestAuditStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(AuditStoreIntegrationSuite))
}

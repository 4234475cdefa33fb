package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kubejob/scaler/internal/audit"
	"github.com/kubejob/scaler/internal/state"
)

// fakeAudit is an AuditAccess double recording every insert.
type fakeAudit struct {
	records   []audit.MessageRecord
	insertErr error
}

func (f *fakeAudit) RecordMessage(_ context.Context, rec audit.MessageRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAudit) RecentMessages(_ context.Context, limit int) ([]audit.MessageRecord, error) {
	if limit > len(f.records) {
		limit = len(f.records)
	}
	return f.records[:limit], nil
}

func newTestServer(store AuditAccess) *Server {
	return &Server{
		shared:     state.New(nil, 6, 3),
		auditStore: store,
		logsRoot:   "/logs",
		logger:     zap.NewNop(),
	}
}

func postJSON(t *testing.T, handler gin.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return w
}

func TestHandleReport_AccumulatesProgressAndTotal(t *testing.T) {
	s := newTestServer(&fakeAudit{})

	w := postJSON(t, s.handleReport, `{"job_name": "spend-analysis-abc123", "processed": 5}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status": "ok"}`, w.Body.String())

	postJSON(t, s.handleReport, `{"job_name": "spend-analysis-abc123", "processed": 3}`)

	require.Equal(t, int64(8), s.shared.Progress("spend-analysis-abc123"))
	require.Equal(t, int64(8), s.shared.TotalConsumed())
}

func TestHandleReport_MalformedBodyIs400(t *testing.T) {
	s := newTestServer(&fakeAudit{})

	w := postJSON(t, s.handleReport, `{"processed": "not-a-number"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, int64(0), s.shared.TotalConsumed())
}

func TestHandleReportMessage_DuplicatesProduceDuplicateRecords(t *testing.T) {
	store := &fakeAudit{}
	s := newTestServer(store)

	now := time.Now().UTC().Format(time.RFC3339)
	body := `{
		"message_id": "m-1",
		"job_type": "spend-analysis",
		"worker_name": "spend-analysis-abc123",
		"picked_at": "` + now + `",
		"processed_at": "` + now + `",
		"duration_ms": 120,
		"status": "SUCCESS"
	}`

	for i := 0; i < 3; i++ {
		w := postJSON(t, s.handleReportMessage, body)
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"status": "recorded"}`, w.Body.String())
	}

	require.Len(t, store.records, 3)
	require.Equal(t, int64(3), s.shared.TotalConsumed())
}

func TestHandleReportMessage_InsertFailureStillAcknowledges(t *testing.T) {
	store := &fakeAudit{insertErr: errors.New("connection refused")}
	s := newTestServer(store)

	now := time.Now().UTC().Format(time.RFC3339)
	w := postJSON(t, s.handleReportMessage, `{
		"message_id": "m-1",
		"job_type": "spend-analysis",
		"picked_at": "`+now+`",
		"processed_at": "`+now+`",
		"status": "FAILURE"
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int64(1), s.shared.TotalConsumed())
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kubejob/scaler/internal/audit"
	"github.com/kubejob/scaler/pkg/metrics"
)

// reportRequest is POST /report's body. Processed is not marked required
// so a zero-progress heartbeat still binds.
type reportRequest struct {
	JobName   string `json:"job_name" binding:"required"`
	Processed int64  `json:"processed"`
}

// handleReport implements POST /report.
func (s *Server) handleReport(c *gin.Context) {
	metrics.ReportsTotal.WithLabelValues("report").Inc()

	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report body"})
		return
	}

	s.shared.RecordProgress(req.JobName, req.Processed)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// messageReportRequest is POST /report-message's body, matching
// MessageAuditRecord.
type messageReportRequest struct {
	MessageID   string    `json:"message_id" binding:"required"`
	JobType     string    `json:"job_type" binding:"required"`
	WorkerName  string    `json:"worker_name"`
	QueuedAt    time.Time `json:"queued_at"`
	PickedAt    time.Time `json:"picked_at" binding:"required"`
	ProcessedAt time.Time `json:"processed_at" binding:"required"`
	DurationMs  int64     `json:"duration_ms"`
	Status      string    `json:"status" binding:"required"`
	LogFilePath string    `json:"log_file_path"`
}

// handleReportMessage implements POST /report-message. Audit-write failure
// is logged and swallowed: the report is still acknowledged and
// total_consumed still advances.
func (s *Server) handleReportMessage(c *gin.Context) {
	metrics.ReportsTotal.WithLabelValues("report-message").Inc()

	var req messageReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message audit body"})
		return
	}

	rec := audit.MessageRecord{
		MessageID:   req.MessageID,
		JobType:     req.JobType,
		WorkerPod:   req.WorkerName,
		QueuedAt:    req.QueuedAt,
		PickedAt:    req.PickedAt,
		ProcessedAt: req.ProcessedAt,
		DurationMs:  req.DurationMs,
		Status:      req.Status,
		LogFile:     req.LogFilePath,
	}

	if err := s.auditStore.RecordMessage(c.Request.Context(), rec); err != nil {
		s.logger.Warn("failed to record message audit, swallowing", zap.Error(err))
	}

	s.shared.RecordMessageReport()
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

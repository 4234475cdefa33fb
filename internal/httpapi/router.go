// Package httpapi serves the Report API and Read API over gin.
package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kubejob/scaler/internal/audit"
	"github.com/kubejob/scaler/internal/auth"
	"github.com/kubejob/scaler/internal/orchestrator"
	"github.com/kubejob/scaler/internal/state"
)

// AuditAccess is the audit-store surface the handlers touch: insert one
// completion record, page through recent ones. Satisfied by *audit.Store;
// tests inject fakes.
type AuditAccess interface {
	RecordMessage(ctx context.Context, rec audit.MessageRecord) error
	RecentMessages(ctx context.Context, limit int) ([]audit.MessageRecord, error)
}

// Server bundles everything the HTTP handlers depend on.
type Server struct {
	shared     *state.SharedState
	orch       orchestrator.Client
	auditStore AuditAccess
	authStore  *auth.Store
	logsRoot   string
	logger     *zap.Logger
}

// NewServer builds a Server.
func NewServer(shared *state.SharedState, orch orchestrator.Client, auditStore AuditAccess, authStore *auth.Store, logsRoot string, logger *zap.Logger) *Server {
	return &Server{
		shared:     shared,
		orch:       orch,
		auditStore: auditStore,
		authStore:  authStore,
		logsRoot:   logsRoot,
		logger:     logger,
	}
}

// Router builds the gin engine with every route wired. The report endpoints
// are open to workers (rate limited per source IP); the read endpoints sit
// behind basic auth.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(s.logger), CORSMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	report := r.Group("/")
	report.Use(RateLimitMiddleware())
	report.POST("/report", s.handleReport)
	report.POST("/report-message", s.handleReportMessage)

	read := r.Group("/")
	read.Use(auth.Middleware(s.authStore))
	read.GET("/stats", s.handleStats)
	read.GET("/logs/:job_name", s.handleJobLogs)
	read.GET("/audit", s.handleAuditList)
	read.GET("/audit/log", s.handleAuditLog)
	read.GET("/cluster-info", s.handleClusterInfo)

	return r
}

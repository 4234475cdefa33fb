package httpapi

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statsResponse is GET /stats's body: the derived metrics snapshot plus
// the job history the orchestrator probe last observed.
type statsResponse struct {
	Metrics interface{} `json:"metrics"`
	Jobs    interface{} `json:"jobs"`
}

// handleStats implements GET /stats.
func (s *Server) handleStats(c *gin.Context) {
	metrics, history := s.shared.Snapshot()
	c.JSON(http.StatusOK, statsResponse{Metrics: metrics, Jobs: history})
}

// handleJobLogs implements GET /logs/{job_name}?since_minutes=N. A missing
// pod is a 200 with a literal placeholder string the dashboard displays
// as-is, not a 404.
func (s *Server) handleJobLogs(c *gin.Context) {
	jobName := c.Param("job_name")

	sinceMinutes := int64(0)
	if raw := c.Query("since_minutes"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since_minutes must be an integer"})
			return
		}
		sinceMinutes = parsed
	}

	pods, err := s.orch.PodsForJob(c.Request.Context(), jobName)
	if err != nil {
		s.logger.Warn("failed to list pods for job", zap.String("job", jobName), zap.Error(err))
		c.String(http.StatusOK, "No pods found for this job yet.")
		return
	}
	if len(pods) == 0 {
		c.String(http.StatusOK, "No pods found for this job yet.")
		return
	}

	var sinceSeconds *int64
	if sinceMinutes > 0 {
		secs := sinceMinutes * 60
		sinceSeconds = &secs
	}

	logs, err := s.orch.PodLogs(c.Request.Context(), pods[0].Name, sinceSeconds)
	if err != nil {
		s.logger.Warn("failed to read pod logs", zap.String("job", jobName), zap.Error(err))
		c.String(http.StatusOK, "No pods found for this job yet.")
		return
	}

	c.String(http.StatusOK, logs)
}

// handleAuditList implements GET /audit?limit=K: the most recent K
// message_audit rows ordered by processed_at descending.
func (s *Server) handleAuditList(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := s.auditStore.RecentMessages(c.Request.Context(), limit)
	if err != nil {
		s.logger.Warn("failed to fetch recent audit records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit query failed"})
		return
	}

	c.JSON(http.StatusOK, records)
}

// handleAuditLog implements GET /audit/log?file_path=P, serving a log file
// under logsRoot. Paths must resolve under logsRoot after taking the
// basename if relative; anything else is a 403.
func (s *Server) handleAuditLog(c *gin.Context) {
	raw := c.Query("file_path")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_path is required"})
		return
	}

	resolved, ok := s.resolveLogPath(raw)
	if !ok {
		c.String(http.StatusForbidden, "forbidden")
		return
	}

	c.File(resolved)
}

// resolveLogPath takes a client-supplied path and confirms it resolves
// under s.logsRoot. A relative path is first reduced to its basename and
// joined under logsRoot; an absolute path must already lie under logsRoot.
// Either way the final absolute path is re-checked with a trailing
// separator to rule out sibling-prefix escapes like "/logs-evil".
func (s *Server) resolveLogPath(raw string) (string, bool) {
	root := filepath.Clean(s.logsRoot)

	var candidate string
	if filepath.IsAbs(raw) {
		candidate = filepath.Clean(raw)
	} else {
		candidate = filepath.Join(root, filepath.Base(raw))
	}

	if candidate != root && !strings.HasPrefix(candidate, root+string(filepath.Separator)) {
		return "", false
	}

	return candidate, true
}

// handleClusterInfo implements GET /cluster-info.
func (s *Server) handleClusterInfo(c *gin.Context) {
	info, err := s.orch.ClusterInfo(c.Request.Context())
	if err != nil {
		s.logger.Warn("failed to fetch cluster info", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cluster info query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"nodes":  info.Nodes,
		"events": info.Events,
		"pods":   info.Pods,
	})
}

package httpapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLogPath_AcceptsFileDirectlyUnderRoot(t *testing.T) {
	s := &Server{logsRoot: "/logs"}

	resolved, ok := s.resolveLogPath("/logs/worker-abc.log")

	require.True(t, ok)
	require.Equal(t, "/logs/worker-abc.log", resolved)
}

func TestResolveLogPath_RejectsPathOutsideRoot(t *testing.T) {
	s := &Server{logsRoot: "/logs"}

	_, ok := s.resolveLogPath("/etc/passwd")

	require.False(t, ok)
}

func TestResolveLogPath_RelativeTraversalResolvesToBasenameUnderRoot(t *testing.T) {
	s := &Server{logsRoot: "/logs"}

	resolved, ok := s.resolveLogPath("../../etc/passwd")

	require.True(t, ok)
	require.Equal(t, "/logs/passwd", resolved)
}

func TestResolveLogPath_RejectsSiblingPrefixEscape(t *testing.T) {
	s := &Server{logsRoot: "/logs"}

	_, ok := s.resolveLogPath("/logs-evil/secret.log")

	require.False(t, ok)
}

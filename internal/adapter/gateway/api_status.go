package gateway

import (
	"net/http"
	"sync/atomic"
	"time"

	"costcompass/internal/usecase"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service  ServiceStatus         `json:"service"`
	Sessions SessionStatus         `json:"sessions"`
	Agents   []usecase.AgentStatus `json:"agents"`
}

// ServiceStatus holds service overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// SessionStatus holds session counts.
type SessionStatus struct {
	Active        int   `json:"active"`
	Total         int64 `json:"total"`
	RequestsTotal int64 `json:"requests_total"`
	RequestErrors int64 `json:"request_errors"`
}

// Metrics tracks gateway counters for the status API and /metrics.
type Metrics struct {
	RequestsTotal atomic.Int64
	RequestErrors atomic.Int64
	SessionsTotal atomic.Int64
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Service: ServiceStatus{
			Name:          "costcompass",
			UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		},
		Sessions: SessionStatus{
			Active:        s.sessionCount(),
			Total:         s.metrics.SessionsTotal.Load(),
			RequestsTotal: s.metrics.RequestsTotal.Load(),
			RequestErrors: s.metrics.RequestErrors.Load(),
		},
		Agents: s.registry.Status(),
	})
}

package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// handleMetrics serves GET /metrics in Prometheus text format. The
// lightweight text exposition avoids pulling in the full prometheus client.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	fmt.Fprintf(w, "# HELP costcompass_sessions_active Number of active sessions.\n")
	fmt.Fprintf(w, "# TYPE costcompass_sessions_active gauge\n")
	fmt.Fprintf(w, "costcompass_sessions_active %d\n", s.sessionCount())

	fmt.Fprintf(w, "# HELP costcompass_sessions_total Total sessions created.\n")
	fmt.Fprintf(w, "# TYPE costcompass_sessions_total counter\n")
	fmt.Fprintf(w, "costcompass_sessions_total %d\n", s.metrics.SessionsTotal.Load())

	fmt.Fprintf(w, "# HELP costcompass_requests_total Total chat requests received.\n")
	fmt.Fprintf(w, "# TYPE costcompass_requests_total counter\n")
	fmt.Fprintf(w, "costcompass_requests_total %d\n", s.metrics.RequestsTotal.Load())

	fmt.Fprintf(w, "# HELP costcompass_request_errors_total Total rejected chat requests.\n")
	fmt.Fprintf(w, "# TYPE costcompass_request_errors_total counter\n")
	fmt.Fprintf(w, "costcompass_request_errors_total %d\n", s.metrics.RequestErrors.Load())

	agents := s.registry.Status()
	enabled := 0
	for _, a := range agents {
		if a.Enabled {
			enabled++
		}
	}
	fmt.Fprintf(w, "# HELP costcompass_agents_registered Number of registered agents.\n")
	fmt.Fprintf(w, "# TYPE costcompass_agents_registered gauge\n")
	fmt.Fprintf(w, "costcompass_agents_registered %d\n", len(agents))

	fmt.Fprintf(w, "# HELP costcompass_agents_enabled Number of enabled agents.\n")
	fmt.Fprintf(w, "# TYPE costcompass_agents_enabled gauge\n")
	fmt.Fprintf(w, "costcompass_agents_enabled %d\n", enabled)

	fmt.Fprintf(w, "# HELP costcompass_uptime_seconds Seconds since the gateway started.\n")
	fmt.Fprintf(w, "# TYPE costcompass_uptime_seconds gauge\n")
	fmt.Fprintf(w, "costcompass_uptime_seconds %.0f\n", time.Since(s.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fmt.Fprintf(w, "# HELP go_goroutines Number of goroutines.\n")
	fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
	fmt.Fprintf(w, "go_goroutines %d\n", runtime.NumGoroutine())

	fmt.Fprintf(w, "# HELP go_memstats_alloc_bytes Bytes of allocated heap objects.\n")
	fmt.Fprintf(w, "# TYPE go_memstats_alloc_bytes gauge\n")
	fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n", mem.Alloc)

	fmt.Fprintf(w, "# HELP go_memstats_sys_bytes Total bytes of memory obtained from the OS.\n")
	fmt.Fprintf(w, "# TYPE go_memstats_sys_bytes gauge\n")
	fmt.Fprintf(w, "go_memstats_sys_bytes %d\n", mem.Sys)
}

package routes

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"hlsworker/logger"
)

// Build-time variables (injected by ldflags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// HealthCheck is one dependency probed by /health.
type HealthCheck struct {
	Name  string
	Check func() error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	StartTime string            `json:"start_time"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Global start time for uptime calculation
var startTime = time.Now()

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// HealthHandler reports "healthy" when every check passes and answers 503
// with status "degraded" otherwise.
func HealthHandler(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("Health check request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

		if r.Method != http.MethodGet {
			logger.Warnf("Invalid method for health endpoint: %s", r.Method)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		response := HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now(),
			Version:   version,
			GoVersion: runtime.Version(),
			Uptime:    formatUptime(time.Since(startTime)),
			StartTime: startTime.Format("2006-01-02 15:04:05 MST"),
			Checks:    make(map[string]string, len(checks)),
		}

		code := http.StatusOK
		for _, c := range checks {
			if err := c.Check(); err != nil {
				logger.Warnf("Health check %s failed: %v", c.Name, err)
				response.Checks[c.Name] = err.Error()
				response.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			response.Checks[c.Name] = "ok"
		}

		writeJSON(w, code, response)
	}
}

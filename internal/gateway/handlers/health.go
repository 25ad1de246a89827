package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"
)

var (
	startTime time.Time
	startOnce sync.Once
)

// InitStartTime records the server start time. Later calls are no-ops.
func InitStartTime() {
	startOnce.Do(func() {
		startTime = time.Now()
	})
}

// Uptime returns whole seconds since InitStartTime, or 0.
func Uptime() int64 {
	if startTime.IsZero() {
		return 0
	}
	return int64(time.Since(startTime).Seconds())
}

// healthProbeTimeout bounds the backend check made by /health.
const healthProbeTimeout = 2 * time.Second

// HealthResponse is the /health body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
	Backend string `json:"backend,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthHandler reports liveness. When probe is set it is called with a
// short deadline and a failure turns the answer into 503 "degraded".
func HealthHandler(version string, probe func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: version,
			Uptime:  Uptime(),
		}

		if probe == nil {
			SendJSON(w, http.StatusOK, resp)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		if err := probe(ctx); err != nil {
			resp.Status = "degraded"
			resp.Backend = "unreachable"
			resp.Error = err.Error()
			SendJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Backend = "ok"
		SendJSON(w, http.StatusOK, resp)
	}
}

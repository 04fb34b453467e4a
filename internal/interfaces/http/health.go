package http

import (
	"net/http"
	"time"

	"github.com/wordmine/wordmine/internal/vocab"
)

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Snapshot      vocab.Stats       `json:"snapshot"`
	Checks        map[string]string `json:"checks,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// handleHealth reports liveness plus dependency probes. A failing probe
// degrades the status but still answers 200 so load balancers can see the
// detail; a missing snapshot would never have let the process start.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Snapshot:      s.deps.Vocab.Stats(),
		Timestamp:     time.Now().UTC(),
	}

	if len(s.deps.Checks) > 0 {
		resp.Checks = make(map[string]string, len(s.deps.Checks))
		for name, check := range s.deps.Checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
			} else {
				resp.Checks[name] = "ok"
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

package http

import (
	"context"
	"net/http"
	"time"

	"budget/internal/log"
)

const readyTimeout = 5 * time.Second

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady probes every registered dependency. Any failure makes the
// instance not ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string, len(s.checks)+1)

	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			s.logger.WarnContext(ctx, "Readiness check failed", "check", c.Name, log.FieldError, err)
			continue
		}
		checks[c.Name] = "ok"
	}

	rl := s.limiter.GetMetrics()
	NewJSONResponse().Status(httpStatus).Data(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
		"rate_limiter": map[string]int64{
			"active_clients": rl.ClientCount,
			"rejected":       rl.Rejected,
		},
	}).Write(w)
}

// deleteByID runs del with the {id} path value and answers 204 on success.
func (s *Server) deleteByID(w http.ResponseWriter, r *http.Request, del func(context.Context, int64) error) {
	id, err := parsePathID(r, "id")
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	if err := del(r.Context(), id); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

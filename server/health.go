package server

import (
	"net/http"
	"time"
)

// healthResponse reports worker liveness.
// LastHeartbeat is null until the worker's first poll tick.
type healthResponse struct {
	Alive         bool       `json:"alive"`
	LastHeartbeat *time.Time `json:"last_heartbeat"`
}

// handleWorkerHealth reports whether the worker beat within the staleness
// window.
//
//	GET /v1/worker/health
func (s *Server) handleWorkerHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Alive: s.heartbeat.Alive(s.cfg.HeartbeatStale()),
	}
	if last, ok := s.heartbeat.Last(); ok {
		utc := last.UTC()
		resp.LastHeartbeat = &utc
	}
	writeJSON(w, http.StatusOK, resp)
}

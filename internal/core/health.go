package core

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout is the maximum time allowed for the database probe.
const healthCheckTimeout = 2 * time.Second

// componentStatus represents the health state of a single subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth probes the database with a short deadline. The service has a
// single critical dependency, so the response is 200 when the pool answers a
// ping and 503 otherwise. The endpoint is public and mounted at GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Version: s.Config.Build.Version,
	}

	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := s.DB.Ping(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Components = map[string]componentStatus{
				"database": {Status: "unhealthy", Message: err.Error()},
			}
			JSON(w, r, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Components = map[string]componentStatus{
			"database": {Status: "healthy"},
		}
	}

	JSON(w, r, http.StatusOK, resp)
}

package api

import (
	"net/http"

	"github.com/onkernel/imgport/lib/logger"
	"github.com/onkernel/imgport/lib/oapi"
)

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health reports whether the docker engine answers a ping.
func (s *ApiService) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Ping(r.Context()); err != nil {
		logger.FromContext(r.Context()).WarnContext(r.Context(), "health check failed", "error", err)
		oapi.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	oapi.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

type healthResponse struct {
	Success bool              `json:"success"`
	Checks  map[string]string `json:"checks"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Success: true, Checks: make(map[string]string, len(h.health))}
	for _, check := range h.health {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))
			resp.Checks[check.Name] = "down"
			resp.Success = false
			continue
		}
		resp.Checks[check.Name] = "ok"
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, h.logger, status, resp)
}

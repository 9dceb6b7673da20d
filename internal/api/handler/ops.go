// Package handler provides the HTTP handlers of the navigation API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/breatheroute/navcore/internal/api/models"
	"github.com/breatheroute/navcore/internal/api/response"
	"github.com/breatheroute/navcore/internal/provider/resilience"
)

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	sessions  SessionCounter
}

// NewOpsHandler creates a new OpsHandler. registry and sessions may be nil.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry, sessions SessionCounter) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
		sessions:  sessions,
	}
}

// HealthCheck handles GET /v1/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ready. The service is not ready while any
// routing provider circuit is open, because no session could be created.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ready := models.Readiness{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Providers: []models.ProviderStatus{},
	}

	if h.sessions != nil {
		count, err := h.sessions.Count(r.Context())
		if err != nil {
			response.ServiceUnavailable(w, r, "session store unavailable")
			return
		}
		ready.ActiveSessions = count
	}

	if h.registry != nil {
		for _, ph := range h.registry.Snapshot() {
			ready.Providers = append(ready.Providers, providerStatus(ph))
		}
		if !h.registry.Ready() {
			ready.Status = models.HealthStatusFail
		}
	}

	status := http.StatusOK
	if ready.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	} else {
		for _, p := range ready.Providers {
			if p.Status == models.HealthStatusDegraded {
				ready.Status = models.HealthStatusDegraded
			}
		}
	}
	response.JSON(w, r, status, ready)
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:     ph.Name,
		Status:       models.HealthStatusOK,
		CircuitState: ph.CircuitState.String(),
	}
	switch {
	case ph.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case ph.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}
	if ph.LastSuccessAt != nil {
		ts := models.Timestamp(*ph.LastSuccessAt)
		ps.LastSuccessAt = &ts
	}
	if ph.LastFailureAt != nil {
		ts := models.Timestamp(*ph.LastFailureAt)
		ps.LastFailureAt = &ts
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}

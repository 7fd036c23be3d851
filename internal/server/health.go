package server

import (
	"context"
	"net/http"
	"time"

	"clip-drop/internal/storage"
)

// HealthStatus represents the overall health of the service
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health is the /health response body.
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
	Details   any             `json:"details,omitempty"`
}

type breakerReporter interface {
	Breaker() *storage.CircuitBreaker
}

// PendingCounter reports deferred transfers still waiting for a link.
type PendingCounter interface {
	Pending() int
}

const healthPingTimeout = 3 * time.Second

// handleHealth reports storage reachability. Degraded still answers 200 so a
// load balancer keeps routing while the breaker recovers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:  time.Now().UTC(),
		Version:    s.cfg.Version,
		Components: make(map[string]ComponentHealth),
	}

	health.Components["storage"] = s.checkStorageHealth(ctx)
	if p := s.pending; p != nil {
		health.Components["pending_transfers"] = ComponentHealth{
			Status:  ComponentStatusUp,
			Details: map[string]int{"count": p.Pending()},
		}
	}

	health.Status = HealthStatusHealthy
	for _, c := range health.Components {
		switch c.Status {
		case ComponentStatusDown:
			health.Status = HealthStatusUnhealthy
		case ComponentStatusDegraded:
			if health.Status == HealthStatusHealthy {
				health.Status = HealthStatusDegraded
			}
		}
	}
	return health
}

func (s *Server) checkStorageHealth(ctx context.Context) ComponentHealth {
	if s.storage == nil {
		return ComponentHealth{Status: ComponentStatusDown, Message: "no storage backend configured"}
	}

	details := map[string]string{"backend": s.storage.Name()}
	status := ComponentStatusUp
	var message string
	var latency float64

	if b, ok := s.storage.(breakerReporter); ok {
		state := b.Breaker().State()
		details["circuit"] = state.String()
		if state != storage.StateClosed {
			status = ComponentStatusDegraded
			message = "storage circuit " + state.String()
		}
	}

	if p, ok := s.storage.(storage.Pinger); ok && status == ComponentStatusUp {
		pctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
		defer cancel()

		start := time.Now()
		err := p.Ping(pctx)
		latency = float64(time.Since(start).Microseconds()) / 1000
		if err != nil {
			return ComponentHealth{
				Status:    ComponentStatusDown,
				Message:   "storage unreachable",
				LatencyMs: latency,
				Details:   details,
			}
		}
	}

	return ComponentHealth{Status: status, Message: message, LatencyMs: latency, Details: details}
}

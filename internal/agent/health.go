package agent

import (
	"context"
	"strings"
	"time"

	"ilm/backend/internal/fanar"
	"ilm/backend/internal/logging"
)

const (
	StatusHealthy     = "healthy"
	StatusDegraded    = "degraded"
	StatusUnhealthy   = "unhealthy"
	StatusUnavailable = "unavailable"
	StatusUnknown     = "unknown"

	ServiceChat   = "fanar"
	ServiceSearch = "tavily"

	healthProbeMaxTokens = 16
)

type Health struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	Timestamp time.Time         `json:"timestamp"`
}

// CheckHealth probes the chat backend with a one-line message and reports
// whether web search is configured. Overall status is degraded when any
// service failed its probe and unhealthy when the chat backend was never
// probed.
func CheckHealth(ctx context.Context, chat ChatBackend, search SearchBackend, logger logging.Logger) Health {
	logger = logging.OrDiscard(logger)
	health := Health{
		Status: StatusHealthy,
		Services: map[string]string{
			ServiceChat:   StatusUnknown,
			ServiceSearch: StatusUnavailable,
		},
		Timestamp: time.Now().UTC(),
	}

	if chat != nil {
		reply, err := chat.Send(ctx, []fanar.Message{{Role: fanar.RoleUser, Content: "Test message"}}, healthProbeMaxTokens)
		switch {
		case err != nil:
			logger.WithError(err).Error("chat backend health check failed")
			health.Services[ServiceChat] = StatusUnhealthy
		case strings.TrimSpace(reply) != "":
			health.Services[ServiceChat] = StatusHealthy
		default:
			health.Services[ServiceChat] = StatusUnhealthy
		}
	}

	if search != nil && search.Available() {
		health.Services[ServiceSearch] = StatusHealthy
	}

	for _, status := range health.Services {
		if status == StatusUnhealthy {
			health.Status = StatusDegraded
			return health
		}
	}
	if health.Services[ServiceChat] != StatusHealthy {
		health.Status = StatusUnhealthy
	}
	return health
}

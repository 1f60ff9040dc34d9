package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/callsight/internal/pubsub"
	"github.com/hrygo/callsight/plugin/chat"
	"github.com/hrygo/callsight/server/internal/observability"
)

// Healthz reports liveness.
func (s *APIV1Service) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}

type chatStatsResponse struct {
	Save   chat.SaveStats                 `json:"save"`
	HTTP   *observability.MetricsSnapshot `json:"http"`
	Events pubsub.BrokerMetrics           `json:"events"`
}

// GetChatStats returns process-wide save counters and HTTP metrics.
func (s *APIV1Service) GetChatStats(c echo.Context) error {
	return c.JSON(http.StatusOK, chatStatsResponse{
		Save:   s.Chat.Stats(),
		HTTP:   s.Metrics.Snapshot(),
		Events: s.Chat.Events().Metrics(),
	})
}

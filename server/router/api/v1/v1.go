package v1

import (
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/callsight/internal/profile"
	"github.com/hrygo/callsight/plugin/chat"
	"github.com/hrygo/callsight/server/internal/observability"
	"github.com/hrygo/callsight/server/middleware"
)

// DefaultMaxEventStreams bounds concurrently open /chat/events streams.
const DefaultMaxEventStreams = 256

type APIV1Service struct {
	Profile *profile.Profile
	Chat    *chat.Service
	Auth    *middleware.Authenticator
	Limiter *middleware.RateLimiter
	Metrics *observability.Metrics

	// eventStreams bounds concurrent SSE subscribers.
	eventStreams *semaphore.Weighted
}

func NewAPIV1Service(profile *profile.Profile, chatService *chat.Service, metrics *observability.Metrics) *APIV1Service {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &APIV1Service{
		Profile:      profile,
		Chat:         chatService,
		Auth:         middleware.NewAuthenticator(profile.JWTSecret),
		Limiter:      middleware.NewRateLimiter(profile.RateLimitPerSecond, profile.RateLimitBurst),
		Metrics:      metrics,
		eventStreams: semaphore.NewWeighted(DefaultMaxEventStreams),
	}
}

// RegisterRoutes mounts the chat API on e. Everything under /api/v1 except
// /healthz requires a bearer token and is rate limited per user.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.HTTPErrorHandler = HTTPErrorHandler

	api := e.Group("/api/v1")
	api.GET("/healthz", s.Healthz)

	authed := api.Group("", middleware.RequireAuth(s.Auth), s.Limiter.Middleware())
	authed.GET("/chat/sessions", s.ListChatSessions)
	authed.POST("/chat/sessions", s.CreateChatSession)
	authed.GET("/chat/sessions/:id", s.GetChatSession)
	authed.PATCH("/chat/sessions/:id", s.UpdateChatSession)
	authed.DELETE("/chat/sessions/:id", s.DeleteChatSession)
	authed.GET("/chat/sessions/:id/messages", s.ListChatMessages)
	authed.POST("/chat/sessions/:id/messages", s.SaveChatMessages)
	authed.GET("/chat/events", s.StreamChatEvents)
	authed.GET("/chat/stats", s.GetChatStats)
}

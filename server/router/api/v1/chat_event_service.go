package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/callsight/internal/errors"
	"github.com/hrygo/callsight/internal/pubsub"
	"github.com/hrygo/callsight/plugin/chat"
	"github.com/hrygo/callsight/server/internal/observability"
	"github.com/hrygo/callsight/server/middleware"
)

// eventKeepAlive is how often an idle stream gets a comment line so proxies
// keep it open.
const eventKeepAlive = 25 * time.Second

type chatEventData struct {
	chat.SessionEvent
	Timestamp time.Time `json:"timestamp"`
}

// StreamChatEvents streams the caller's session events as Server-Sent
// Events until the client disconnects. Events are refetch hints and may
// repeat.
func (s *APIV1Service) StreamChatEvents(c echo.Context) error {
	ctx := c.Request().Context()
	logger := observability.LoggerFromContext(ctx)

	if !s.eventStreams.TryAcquire(1) {
		return apperrors.RateLimitExceeded("too many open event streams")
	}
	defer s.eventStreams.Release(1)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	events := s.Chat.Events().Subscribe(ctx, chat.ForUser(middleware.UserID(c)))

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(eventKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.writeEvent(w, flusher, event); err != nil {
				logger.Debug("event stream closed", "error", err)
				return nil
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func (s *APIV1Service) writeEvent(w http.ResponseWriter, flusher http.Flusher, event pubsub.Event[chat.SessionEvent]) error {
	data, err := json.Marshal(chatEventData{SessionEvent: event.Payload, Timestamp: event.Timestamp})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	flusher.Flush()
	s.Metrics.RecordStreamEvent()
	return nil
}

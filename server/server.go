package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/callsight/internal/profile"
	"github.com/hrygo/callsight/plugin/cache"
	"github.com/hrygo/callsight/plugin/chat"
	"github.com/hrygo/callsight/server/internal/observability"
	"github.com/hrygo/callsight/server/middleware"
	apiv1 "github.com/hrygo/callsight/server/router/api/v1"
	"github.com/hrygo/callsight/store"
)

const (
	shutdownTimeout = 10 * time.Second
	// limiterIdle is how long a per-user rate limiter survives without requests.
	limiterIdle = 30 * time.Minute
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	cache      *cache.Service
	chat       *chat.Service
	cleanup    *chat.CleanupJob
	api        *apiv1.APIV1Service
}

func NewServer(_ context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	if profile.JWTSecret == "" {
		if !profile.IsDev() {
			return nil, errors.New("jwt secret is required")
		}
		slog.Warn("no jwt secret configured, using an insecure development secret")
		profile.JWTSecret = "callsight-dev-secret"
	}

	titles, err := chat.NewTitleDeriver(profile.TitleContextPattern, profile.TitlePlaceholder, profile.TitleMaxLength)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build title deriver")
	}

	cacheSvc := cache.NewService(cache.ServiceConfig{
		Capacity:        profile.SessionCacheCapacity,
		DefaultTTL:      profile.SessionCacheTTL,
		CleanupInterval: time.Minute,
	})
	chatSvc := chat.NewService(store, cacheSvc,
		chat.WithTitleDeriver(titles),
		chat.WithCacheTTL(profile.SessionCacheTTL),
	)

	s := &Server{
		Profile: profile,
		Store:   store,
		cache:   cacheSvc,
		chat:    chatSvc,
		cleanup: chat.NewCleanupJob(chatSvc, chat.CleanupConfig{
			RetentionDays:   profile.ArchiveRetentionDays,
			CleanupInterval: profile.CleanupInterval,
		}),
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(echomiddleware.CORS())

	s.api = apiv1.NewAPIV1Service(profile, chatSvc, observability.NewMetrics())
	echoServer.Use(middleware.RequestContext(slog.Default(), s.api.Metrics))
	s.api.RegisterRoutes(echoServer)
	s.echoServer = echoServer

	return s, nil
}

// Start serves HTTP and runs the change-feed watcher, the archived session
// cleanup job and limiter pruning until ctx is done or one of them fails.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return errors.Wrapf(err, "failed to listen on %s", address)
	}
	s.echoServer.Listener = listener

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "address", listener.Addr().String())
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed to start echo server")
		}
		return nil
	})
	g.Go(func() error {
		return s.chat.Watch(ctx)
	})
	if s.cleanup.Enabled() {
		g.Go(func() error {
			s.cleanup.Start(ctx)
			<-ctx.Done()
			s.cleanup.Stop()
			return nil
		})
	} else {
		slog.Info("archived session purging disabled")
	}
	g.Go(func() error {
		ticker := time.NewTicker(limiterIdle)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := s.api.Limiter.Prune(limiterIdle); n > 0 {
					slog.Debug("pruned idle rate limiters", "count", n)
				}
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops the HTTP server and background services, then closes the
// store. It is safe to call once Start has returned or instead of Start.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
		shutdownErr = err
	}
	s.cleanup.Stop()
	s.chat.Close()
	s.cache.Close()
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
		if shutdownErr == nil {
			shutdownErr = err
		}
	}
	slog.Info("server stopped properly")
	return shutdownErr
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

package chat

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/callsight/store"
)

// Watch consumes the repository change feed until ctx is done, invalidating
// cached session lists for writes made by other processes and republishing
// them as EventSessionChanged. It returns nil at once when the repository
// has no change feed; local mutations still invalidate on their own.
func (s *Service) Watch(ctx context.Context) error {
	changes, err := s.repo.WatchChatChanges(ctx)
	if errors.Is(err, store.ErrChangeFeedNotSupported) {
		slog.Info("chat change feed not supported by driver, skipping watch")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to watch chat changes")
	}

	slog.Info("watching chat changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			s.applyChange(ctx, change)
		}
	}
}

func (s *Service) applyChange(ctx context.Context, change *store.ChatChange) {
	if change == nil || change.UserID == "" {
		// The feed reconnected and may have missed notifications.
		slog.Info("chat change feed resynced, invalidating all session lists")
		s.invalidateAll(ctx)
		s.events.Publish(EventSessionChanged, SessionEvent{})
		return
	}
	s.invalidate(ctx, change.UserID)
	s.events.Publish(EventSessionChanged, SessionEvent{UserID: change.UserID, SessionID: change.SessionID})
}

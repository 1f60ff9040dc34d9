package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/hrygo/callsight/store"
)

// ChatChangesChannel is the NOTIFY channel written by notify_chat_change().
const ChatChangesChannel = "chat_changes"

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// WatchChatChanges opens a dedicated LISTEN connection and streams decoded
// notifications until ctx is done. After a reconnect an empty ChatChange is
// sent, meaning notifications may have been missed.
func (d *DB) WatchChatChanges(ctx context.Context) (<-chan *store.ChatChange, error) {
	listener := pq.NewListener(d.profile.DSN, listenerMinReconnect, listenerMaxReconnect, func(event pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("chat change listener event", slog.Int("event", int(event)), slog.String("error", err.Error()))
		}
	})
	if err := listener.Listen(ChatChangesChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", ChatChangesChannel, err)
	}

	changes := make(chan *store.ChatChange, 64)
	go func() {
		defer close(changes)
		defer listener.Close()

		ticker := time.NewTicker(listenerPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				var change *store.ChatChange
				if n == nil {
					change = &store.ChatChange{}
				} else {
					decoded, err := decodeChatChange(n.Extra)
					if err != nil {
						slog.Warn("dropping malformed chat change", slog.String("payload", n.Extra), slog.String("error", err.Error()))
						continue
					}
					change = decoded
				}
				select {
				case changes <- change:
				case <-ctx.Done():
					return
				}
			case <-ticker.C:
				if err := listener.Ping(); err != nil {
					slog.Warn("chat change listener ping failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
	return changes, nil
}

func decodeChatChange(payload string) (*store.ChatChange, error) {
	change := &store.ChatChange{}
	if err := json.Unmarshal([]byte(payload), change); err != nil {
		return nil, err
	}
	if change.SessionID == "" {
		return nil, fmt.Errorf("missing session_id")
	}
	return change, nil
}

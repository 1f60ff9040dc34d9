package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/hrygo/callsight/internal/errors"
	"github.com/hrygo/callsight/internal/pubsub"
	"github.com/hrygo/callsight/plugin/cache"
	"github.com/hrygo/callsight/store"
)

// DefaultCacheTTL bounds how long a session list may be served from cache
// when no invalidation reaches it.
const DefaultCacheTTL = 5 * time.Minute

const sessionListKeyPrefix = "chat-sessions:"

// listFillTimeout bounds a shared session list load, which outlives the
// cancellation of the caller that started it.
const listFillTimeout = 30 * time.Second

func sessionListKey(userID string) string {
	return sessionListKeyPrefix + userID
}

// Option configures a Service.
type Option func(*Service)

// WithIDGenerator replaces the UUID generator used for sessions and messages.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithTitleDeriver replaces the default title deriver.
func WithTitleDeriver(d *TitleDeriver) Option {
	return func(s *Service) {
		if d != nil {
			s.titles = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCacheTTL sets the session list cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithBroker publishes session events on b instead of a private broker.
func WithBroker(b *pubsub.Broker[SessionEvent]) Option {
	return func(s *Service) {
		s.events = b
	}
}

// Service orchestrates chat session persistence.
//
// Every mutation invalidates the owner's cached session list before it
// returns, so the next ListSessions call observes it.
type Service struct {
	repo   Repository
	cache  cache.CacheService
	newID  IDGenerator
	titles *TitleDeriver
	now    func() time.Time
	ttl    time.Duration
	events *pubsub.Broker[SessionEvent]
	stats  saveCounters

	fills singleflight.Group

	// genMu orders list cache fills against invalidations: a fill is only
	// stored if the user's generation did not move while it ran.
	genMu sync.Mutex
	epoch uint64
	gens  map[string]uint64
}

type generation struct {
	epoch uint64
	user  uint64
}

// NewService creates a Service over repo, caching session lists in cacheSvc.
func NewService(repo Repository, cacheSvc cache.CacheService, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		cache:  cacheSvc,
		newID:  NewMessageID,
		titles: DefaultTitleDeriver(),
		now:    time.Now,
		ttl:    DefaultCacheTTL,
		gens:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = pubsub.NewBroker[SessionEvent]("chat-sessions")
	}
	return s
}

// Events returns the broker session events are published on.
func (s *Service) Events() *pubsub.Broker[SessionEvent] {
	return s.events
}

// Stats returns a snapshot of the SaveMessages counters.
func (s *Service) Stats() SaveStats {
	return s.stats.snapshot()
}

// Close shuts down the event broker.
func (s *Service) Close() {
	s.events.Shutdown()
}

// ListSessions returns the user's non-archived sessions, most recently
// updated first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*store.ChatSession, error) {
	key := sessionListKey(userID)
	if cached, ok := s.cache.Get(ctx, key); ok {
		var list []*store.ChatSession
		if err := json.Unmarshal(cached, &list); err == nil {
			return list, nil
		}
		slog.Warn("ignoring undecodable session list cache entry", "user_id", userID)
	}

	v, err, _ := s.fills.Do(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listFillTimeout)
		defer cancel()

		gen := s.generation(userID)
		archived := false
		list, err := s.repo.ListChatSessions(fillCtx, &store.FindChatSession{UserID: &userID, Archived: &archived})
		if err != nil {
			return nil, err
		}
		s.fill(fillCtx, userID, gen, list)
		return list, nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeListSessionsFailed, "failed to load chat sessions")
	}
	return v.([]*store.ChatSession), nil
}

// ListArchivedSessions returns the user's archived sessions. Not cached.
func (s *Service) ListArchivedSessions(ctx context.Context, userID string) ([]*store.ChatSession, error) {
	archived := true
	list, err := s.repo.ListChatSessions(ctx, &store.FindChatSession{UserID: &userID, Archived: &archived})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeListSessionsFailed, "failed to load archived chat sessions")
	}
	return list, nil
}

// GetSession reads a session owned by userID, bypassing the cache.
func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (*store.ChatSession, error) {
	session, err := s.repo.GetChatSession(ctx, &store.FindChatSession{ID: &sessionID, UserID: &userID})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("chat session", sessionID)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeListSessionsFailed, "failed to load chat session")
	}
	return session, nil
}

// FetchMessages returns the session's messages in creation order.
func (s *Service) FetchMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.repo.ListChatMessages(ctx, &store.FindChatMessage{SessionID: &sessionID})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeFetchMessagesFailed, "failed to load messages")
	}
	return toMessages(rows), nil
}

// SaveMessages persists the part of batch that is not yet durable.
//
// An empty batch is a no-op with no repository call. Otherwise durable keys
// are read first and the batch is deduplicated against them; messages with
// an unknown role are dropped, parts are sanitized, and the survivors get
// fresh ids and are inserted in one atomic call. model is recorded on
// assistant messages only. Insert failure is returned as
// SAVE_MESSAGES_FAILED with no retry and no title work. After a successful
// insert the session title is derived if still unset; that step never fails
// the save.
func (s *Service) SaveMessages(ctx context.Context, userID, sessionID string, batch []Message, model string) (*SaveResult, error) {
	result := &SaveResult{Inserted: []Message{}}
	if len(batch) == 0 {
		return result, nil
	}

	keys, err := s.repo.ListChatMessageKeys(ctx, sessionID)
	if err != nil {
		s.stats.failures.Add(1)
		return nil, saveFailed(err, sessionID)
	}
	fresh := SelectNew(keys, batch)
	result.Duplicates = len(batch) - len(fresh)

	now := s.now()
	rows := make([]*store.ChatMessage, 0, len(fresh))
	for _, msg := range fresh {
		role := store.MessageRole(msg.Role)
		if !role.IsValid() {
			result.InvalidRoles++
			slog.Debug("dropping message with invalid role", "session_id", sessionID, "role", msg.Role)
			continue
		}
		row := &store.ChatMessage{
			ID:        s.newID(),
			SessionID: sessionID,
			UserID:    userID,
			Role:      role,
			Content:   msg.Content,
			Parts:     SanitizeParts(msg.Parts),
			CreatedAt: msg.CreatedAt,
		}
		if row.CreatedAt.IsZero() {
			// Offset by position so one batch keeps its order on read.
			row.CreatedAt = now.Add(time.Duration(len(rows)) * time.Microsecond)
		}
		if role == store.MessageRoleAssistant && model != "" {
			row.Model = &model
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		s.stats.recordResult(result)
		return result, nil
	}

	inserted, err := s.repo.CreateChatMessages(ctx, rows)
	if err != nil {
		s.stats.failures.Add(1)
		return nil, saveFailed(err, sessionID)
	}
	result.Inserted = toMessages(inserted)
	s.stats.recordResult(result)

	s.invalidate(ctx, userID)
	s.events.Publish(EventMessagesSaved, SessionEvent{UserID: userID, SessionID: sessionID, Count: len(inserted)})

	s.deriveTitle(ctx, userID, sessionID, rows)
	return result, nil
}

func saveFailed(err error, sessionID string) error {
	return apperrors.Wrap(err, apperrors.ErrCodeSaveMessagesFailed, "failed to save messages").
		WithContext("session_id", sessionID)
}

// deriveTitle sets the session title from the first inserted user message
// when a fresh read shows the session untitled. Failures are logged only.
func (s *Service) deriveTitle(ctx context.Context, userID, sessionID string, inserted []*store.ChatMessage) {
	var first *store.ChatMessage
	for _, row := range inserted {
		if row.Role == store.MessageRoleUser {
			first = row
			break
		}
	}
	if first == nil {
		return
	}

	session, err := s.repo.GetChatSession(ctx, &store.FindChatSession{ID: &sessionID})
	if err != nil {
		s.stats.titleFailures.Add(1)
		slog.Warn("failed to read session for title", "session_id", sessionID, "error", err)
		return
	}
	if session.Title != nil {
		return
	}

	title := s.titles.Derive(EffectiveContent(first.Content, first.Parts))
	_, err = s.repo.UpdateChatSession(ctx, &store.UpdateChatSession{
		ID:             sessionID,
		UserID:         &userID,
		Title:          &title,
		OnlyIfUntitled: true,
	})
	if errors.Is(err, store.ErrNotFound) {
		// A concurrent save titled it first.
		return
	}
	if err != nil {
		s.stats.titleFailures.Add(1)
		slog.Warn("failed to set session title", "session_id", sessionID, "error", err)
		return
	}
	s.stats.titlesSet.Add(1)
	s.invalidate(ctx, userID)
	s.events.Publish(EventSessionUpdated, SessionEvent{UserID: userID, SessionID: sessionID})
}

// CreateSession creates a session owned by userID. Filter fields default to
// empty and are stored verbatim.
func (s *Service) CreateSession(ctx context.Context, userID string, opts CreateSessionOptions) (*store.ChatSession, error) {
	if userID == "" {
		return nil, apperrors.InvalidArgument("user id is required")
	}
	filter := opts.Filter.Normalize()
	if filter.DateStart != nil && filter.DateEnd != nil && filter.DateEnd.Before(*filter.DateStart) {
		return nil, apperrors.InvalidArgument("filter date_end is before date_start")
	}

	session, err := s.repo.CreateChatSession(ctx, &store.ChatSession{
		ID:          s.newID(),
		UserID:      userID,
		Title:       normalizeTitle(opts.Title),
		Description: opts.Description,
		Filter:      filter,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeCreateSessionFailed, "failed to create chat session")
	}

	s.invalidate(ctx, userID)
	s.events.Publish(EventSessionCreated, SessionEvent{UserID: userID, SessionID: session.ID})
	return session, nil
}

func normalizeTitle(title *string) *string {
	if title == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*title)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// DeleteSession hard-deletes the session and, by cascade, its messages.
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID string) error {
	err := s.repo.DeleteChatSession(ctx, &store.DeleteChatSession{ID: sessionID, UserID: &userID})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("chat session", sessionID)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeDeleteSessionFailed, "failed to delete chat session")
	}

	s.invalidate(ctx, userID)
	s.events.Publish(EventSessionDeleted, SessionEvent{UserID: userID, SessionID: sessionID})
	return nil
}

// RenameSession sets a user-supplied title.
func (s *Service) RenameSession(ctx context.Context, userID, sessionID, title string) (*store.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperrors.InvalidArgument("title must not be empty")
	}
	return s.updateSession(ctx, userID, &store.UpdateChatSession{ID: sessionID, UserID: &userID, Title: &title}, "failed to update title")
}

func (s *Service) SetPinned(ctx context.Context, userID, sessionID string, pinned bool) (*store.ChatSession, error) {
	return s.updateSession(ctx, userID, &store.UpdateChatSession{ID: sessionID, UserID: &userID, Pinned: &pinned}, "failed to update pin status")
}

func (s *Service) SetArchived(ctx context.Context, userID, sessionID string, archived bool) (*store.ChatSession, error) {
	return s.updateSession(ctx, userID, &store.UpdateChatSession{ID: sessionID, UserID: &userID, Archived: &archived}, "failed to update archive status")
}

func (s *Service) updateSession(ctx context.Context, userID string, update *store.UpdateChatSession, failure string) (*store.ChatSession, error) {
	session, err := s.repo.UpdateChatSession(ctx, update)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("chat session", update.ID)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUpdateSessionFailed, failure)
	}

	s.invalidate(ctx, userID)
	s.events.Publish(EventSessionUpdated, SessionEvent{UserID: userID, SessionID: update.ID})
	return session, nil
}

// PurgeArchived hard-deletes sessions of any user that were archived and
// untouched for longer than retention. It returns how many were deleted.
// A non-positive retention deletes nothing.
func (s *Service) PurgeArchived(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-retention)
	archived := true
	list, err := s.repo.ListChatSessions(ctx, &store.FindChatSession{Archived: &archived, UpdatedBefore: &cutoff})
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeListSessionsFailed, "failed to load archived chat sessions")
	}

	var deleted int64
	for _, session := range list {
		userID := session.UserID
		err := s.repo.DeleteChatSession(ctx, &store.DeleteChatSession{ID: session.ID, UserID: &userID})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return deleted, apperrors.Wrap(err, apperrors.ErrCodeDeleteSessionFailed, "failed to delete chat session")
		}
		deleted++
		s.invalidate(ctx, userID)
		s.events.Publish(EventSessionDeleted, SessionEvent{UserID: userID, SessionID: session.ID})
	}
	return deleted, nil
}

func (s *Service) generation(userID string) generation {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return generation{epoch: s.epoch, user: s.gens[userID]}
}

func (s *Service) fill(ctx context.Context, userID string, gen generation, list []*store.ChatSession) {
	encoded, err := json.Marshal(list)
	if err != nil {
		slog.Warn("failed to encode session list for cache", "user_id", userID, "error", err)
		return
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()
	if (generation{epoch: s.epoch, user: s.gens[userID]}) != gen {
		return
	}
	if err := s.cache.Set(ctx, sessionListKey(userID), encoded, s.ttl); err != nil {
		slog.Warn("failed to cache session list", "user_id", userID, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	key := sessionListKey(userID)

	s.genMu.Lock()
	s.gens[userID]++
	err := s.cache.Invalidate(ctx, key)
	s.genMu.Unlock()

	s.fills.Forget(key)
	if err != nil {
		slog.Warn("failed to invalidate session list cache", "user_id", userID, "error", err)
	}
}

func (s *Service) invalidateAll(ctx context.Context) {
	s.genMu.Lock()
	s.epoch++
	clear(s.gens)
	err := s.cache.Invalidate(ctx, sessionListKeyPrefix+"*")
	s.genMu.Unlock()

	if err != nil {
		slog.Warn("failed to invalidate session list cache", "error", err)
	}
}

func toMessages(rows []*store.ChatMessage) []Message {
	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		msg := Message{
			ID:        row.ID,
			Role:      string(row.Role),
			Content:   row.Content,
			CreatedAt: row.CreatedAt,
		}
		if len(row.Parts) > 0 {
			msg.Parts = row.Parts
		}
		messages = append(messages, msg)
	}
	return messages
}

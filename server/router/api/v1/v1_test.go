package v1

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/callsight/internal/profile"
	"github.com/hrygo/callsight/plugin/cache"
	"github.com/hrygo/callsight/plugin/chat"
	"github.com/hrygo/callsight/server/middleware"
	"github.com/hrygo/callsight/store"
)

type apiFixture struct {
	e    *echo.Echo
	api  *APIV1Service
	repo *chat.MockRepository
}

func newAPIFixture(t *testing.T, mutate ...func(*profile.Profile)) *apiFixture {
	t.Helper()
	repo := chat.NewMockRepository()
	cacheSvc := cache.NewService(cache.DefaultServiceConfig())
	t.Cleanup(cacheSvc.Close)
	svc := chat.NewService(repo, cacheSvc)
	t.Cleanup(svc.Close)

	prof := &profile.Profile{
		Mode:               "dev",
		Version:            "test",
		JWTSecret:          "test-secret",
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}
	for _, m := range mutate {
		m(prof)
	}

	api := NewAPIV1Service(prof, svc, nil)
	e := echo.New()
	e.Use(middleware.RequestContext(nil, api.Metrics))
	api.RegisterRoutes(e)
	return &apiFixture{e: e, api: api, repo: repo}
}

func (f *apiFixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.api.Auth.IssueToken(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(encoded))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if userID != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+f.token(t, userID))
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *apiFixture) createSession(t *testing.T, userID string) *store.ChatSession {
	t.Helper()
	rec := f.do(t, userID, http.MethodPost, "/api/v1/chat/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*store.ChatSession](t, rec)
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "", http.MethodGet, "/api/v1/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, rec.Body.String())
}

func TestRequiresAuthentication(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "", http.MethodGet, "/api/v1/chat/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, "UNAUTHORIZED", string(resp.Code))
	assert.Empty(t, f.repo.Calls())
}

func TestChatSessionLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string]any{
		"filter": map[string]any{
			"speakers":      []string{"Dana"},
			"recording_ids": []int64{42},
		},
	}
	rec := f.do(t, "u1", http.MethodPost, "/api/v1/chat/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decode[*store.ChatSession](t, rec)
	assert.Nil(t, session.Title)
	assert.Equal(t, []string{"Dana"}, session.Filter.Speakers)
	assert.Equal(t, []string{}, session.Filter.Categories)
	assert.Equal(t, []int64{42}, session.Filter.RecordingIDs)

	rec = f.do(t, "u1", http.MethodGet, "/api/v1/chat/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listChatSessionsResponse](t, rec)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, session.ID, list.Sessions[0].ID)

	rec = f.do(t, "u1", http.MethodGet, "/api/v1/chat/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "u1", http.MethodPatch, "/api/v1/chat/sessions/"+session.ID, map[string]any{
		"title":       "Pipeline review",
		"is_pinned":   true,
		"is_archived": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[*store.ChatSession](t, rec)
	assert.Equal(t, "Pipeline review", *updated.Title)
	assert.True(t, updated.Pinned)
	assert.True(t, updated.Archived)

	rec = f.do(t, "u1", http.MethodGet, "/api/v1/chat/sessions", nil)
	assert.Empty(t, decode[listChatSessionsResponse](t, rec).Sessions)
	rec = f.do(t, "u1", http.MethodGet, "/api/v1/chat/sessions?archived=true", nil)
	assert.Len(t, decode[listChatSessionsResponse](t, rec).Sessions, 1)

	rec = f.do(t, "u1", http.MethodDelete, "/api/v1/chat/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, "u1", http.MethodDelete, "/api/v1/chat/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatSessionValidation(t *testing.T) {
	f := newAPIFixture(t)
	session := f.createSession(t, "u1")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed id", http.MethodGet, "/api/v1/chat/sessions/not-a-uuid", nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"malformed id on messages", http.MethodGet, "/api/v1/chat/sessions/123/messages", nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown id", http.MethodGet, "/api/v1/chat/sessions/0190a3b2-0000-7000-8000-000000000000", nil, http.StatusNotFound, "NOT_FOUND"},
		{"empty patch", http.MethodPatch, "/api/v1/chat/sessions/" + session.ID, map[string]any{}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"blank title", http.MethodPatch, "/api/v1/chat/sessions/" + session.ID, map[string]any{"title": "  "}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad archived flag", http.MethodGet, "/api/v1/chat/sessions?archived=maybe", nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"inverted dates", http.MethodPost, "/api/v1/chat/sessions", map[string]any{"filter": map[string]any{
			"date_start": "2026-03-02T00:00:00Z",
			"date_end":   "2026-03-01T00:00:00Z",
		}}, http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, "u1", tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, string(decode[errorResponse](t, rec).Code))
		})
	}
}

func TestChatSessionOwnership(t *testing.T) {
	f := newAPIFixture(t)
	session := f.createSession(t, "owner")
	f.repo.ResetCalls()

	for _, tt := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/v1/chat/sessions/" + session.ID, nil},
		{http.MethodPatch, "/api/v1/chat/sessions/" + session.ID, map[string]any{"is_pinned": true}},
		{http.MethodDelete, "/api/v1/chat/sessions/" + session.ID, nil},
		{http.MethodGet, "/api/v1/chat/sessions/" + session.ID + "/messages", nil},
		{http.MethodPost, "/api/v1/chat/sessions/" + session.ID + "/messages", map[string]any{
			"messages": []map[string]any{{"role": "user", "content": "hi"}},
		}},
	} {
		rec := f.do(t, "intruder", tt.method, tt.path, tt.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tt.method, tt.path)
	}
	assert.Zero(t, f.repo.CallCount("CreateChatMessages"))
	assert.Zero(t, f.repo.CallCount("ListChatMessages"))

	rec := f.do(t, "owner", http.MethodGet, "/api/v1/chat/sessions/"+session.ID, nil)
	got := decode[*store.ChatSession](t, rec)
	assert.False(t, got.Pinned)
}

func TestChatMessages(t *testing.T) {
	f := newAPIFixture(t)
	session := f.createSession(t, "u1")
	path := "/api/v1/chat/sessions/" + session.ID + "/messages"

	body := map[string]any{
		"model": "gpt-4o",
		"messages": []map[string]any{
			{"id": "tmp-1", "role": "user", "content": "[Context: @Q3 calls]\n\nWhich deals slipped?"},
			{"id": "tmp-2", "role": "assistant", "content": "", "parts": []map[string]any{{"type": "text", "text": "Two deals slipped."}}},
			{"id": "tmp-3", "role": "narrator", "content": "dropped"},
		},
	}
	rec := f.do(t, "u1", http.MethodPost, path, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[chat.SaveResult](t, rec)
	assert.Len(t, result.Inserted, 2)
	assert.Equal(t, 1, result.InvalidRoles)

	rec = f.do(t, "u1", http.MethodPost, path, body)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[chat.SaveResult](t, rec)
	assert.Empty(t, again.Inserted)
	assert.Equal(t, 2, again.Duplicates)

	rec = f.do(t, "u1", http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var raw struct {
		Messages []map[string]any `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw.Messages, 2)
	assert.Equal(t, "user", raw.Messages[0]["role"])
	assert.NotEqual(t, "tmp-1", raw.Messages[0]["id"])
	assert.Equal(t, []any{map[string]any{"type": "text", "text": "Two deals slipped."}}, raw.Messages[1]["parts"])

	rec = f.do(t, "u1", http.MethodGet, "/api/v1/chat/sessions/"+session.ID, nil)
	got := decode[*store.ChatSession](t, rec)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Which deals slipped?", *got.Title)
	assert.Equal(t, int32(2), got.MessageCount)

	stored := f.repo.StoredMessages(session.ID)
	require.Len(t, stored, 2)
	assert.Nil(t, stored[0].Model)
	assert.Equal(t, "gpt-4o", *stored[1].Model)
}

func TestSaveChatMessagesFailure(t *testing.T) {
	f := newAPIFixture(t)
	session := f.createSession(t, "u1")
	f.repo.FailOn("CreateChatMessages", errors.New("connection reset"))

	rec := f.do(t, "u1", http.MethodPost, "/api/v1/chat/sessions/"+session.ID+"/messages", map[string]any{
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, "SAVE_MESSAGES_FAILED", string(resp.Code))
	assert.Equal(t, "failed to save messages", resp.Message)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestListChatSessionsFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.FailOn("ListChatSessions", errors.New("timeout"))
	rec := f.do(t, "u1", http.MethodGet, "/api/v1/chat/sessions", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "LIST_SESSIONS_FAILED", string(decode[errorResponse](t, rec).Code))
}

func TestRateLimit(t *testing.T) {
	f := newAPIFixture(t, func(p *profile.Profile) {
		p.RateLimitPerSecond = 0.001
		p.RateLimitBurst = 2
	})

	for range 2 {
		assert.Equal(t, http.StatusOK, f.do(t, "u1", http.MethodGet, "/api/v1/chat/sessions", nil).Code)
	}
	rec := f.do(t, "u1", http.MethodGet, "/api/v1/chat/sessions", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", string(decode[errorResponse](t, rec).Code))

	assert.Equal(t, http.StatusOK, f.do(t, "u2", http.MethodGet, "/api/v1/chat/sessions", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, "", http.MethodGet, "/api/v1/healthz", nil).Code)
}

func TestChatStats(t *testing.T) {
	f := newAPIFixture(t)
	session := f.createSession(t, "u1")
	f.do(t, "u1", http.MethodPost, "/api/v1/chat/sessions/"+session.ID+"/messages", map[string]any{
		"messages": []map[string]any{{"role": "user", "content": "hello"}},
	})

	rec := f.do(t, "u1", http.MethodGet, "/api/v1/chat/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[chatStatsResponse](t, rec)
	assert.Equal(t, int64(1), stats.Save.Batches)
	assert.Equal(t, int64(1), stats.Save.Inserted)
	assert.Equal(t, "chat-sessions", stats.Events.Name)
	assert.GreaterOrEqual(t, stats.HTTP.RequestTotal, int64(2))
}

func TestStreamChatEvents(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.e)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/chat/events", nil)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+f.token(t, "u1"))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	// The subscription exists once the connected comment is flushed.
	f.createSession(t, "u2")
	session := f.createSession(t, "u1")

	lines := make(chan string, 4)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimRight(line, "\n")
		}
	}()

	next := func() string {
		select {
		case line := <-lines:
			return line
		case <-time.After(2 * time.Second):
			t.Fatal("timeout reading event stream")
			return ""
		}
	}
	assert.Equal(t, "event: session.created", next())
	data, ok := strings.CutPrefix(next(), "data: ")
	require.True(t, ok)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &payload))
	assert.Equal(t, "u1", payload["user_id"])
	assert.Equal(t, session.ID, payload["session_id"])
	assert.Contains(t, payload, "timestamp")
}

func TestStreamChatEventsLimit(t *testing.T) {
	f := newAPIFixture(t)
	require.True(t, f.api.eventStreams.TryAcquire(DefaultMaxEventStreams))
	defer f.api.eventStreams.Release(DefaultMaxEventStreams)

	rec := f.do(t, "u1", http.MethodGet, "/api/v1/chat/events", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

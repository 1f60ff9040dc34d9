package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/callsight/internal/profile"
	"github.com/hrygo/callsight/server/middleware"
	teststore "github.com/hrygo/callsight/store/test"
)

func newTestServer(t *testing.T, mode string) *Server {
	t.Helper()
	ctx := context.Background()
	st := teststore.NewTestingStore(ctx, t)

	p := &profile.Profile{Mode: mode, Version: "test", Addr: "127.0.0.1"}
	p.FromEnv()
	p.JWTSecret = "integration"

	s, err := NewServer(ctx, p, st)
	require.NoError(t, err)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(shutdownCtx))
	})
	return s
}

func TestNewServerRequiresSecretInProd(t *testing.T) {
	_, err := NewServer(context.Background(), &profile.Profile{Mode: "prod"}, nil)
	assert.Error(t, err)
}

func TestNewServerDefaults(t *testing.T) {
	t.Run("dev", func(t *testing.T) {
		s := newTestServer(t, "dev")
		assert.True(t, s.echoServer.Debug)
		assert.False(t, s.cleanup.Enabled())
	})
	t.Run("prod", func(t *testing.T) {
		s := newTestServer(t, "prod")
		assert.False(t, s.echoServer.Debug)
		assert.False(t, s.cleanup.Enabled())
	})
}

func TestStartClosesStoreWhenListenFails(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	s := newTestServer(t, "dev")
	s.Profile.Port = busy.Addr().(*net.TCPAddr).Port

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.Error(t, s.Store.GetDriver().GetDB().PingContext(context.Background()))
}

func TestServerEndToEnd(t *testing.T) {
	s := newTestServer(t, "dev")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	token, err := middleware.NewAuthenticator("integration").IssueToken("rep-7", time.Hour)
	require.NoError(t, err)

	call := func(method, path, body string) (*http.Response, map[string]any) {
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var decoded map[string]any
		if resp.StatusCode != http.StatusNoContent {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
		}
		return resp, decoded
	}

	resp, session := call(http.MethodPost, "/api/v1/chat/sessions", `{"filter":{"categories":["renewal"]}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := session["id"].(string)

	batch := `{"model":"gpt-4o","messages":[
		{"role":"user","content":"Summarize the Acme renewal call"},
		{"role":"assistant","content":"Acme wants a two year term."}
	]}`
	resp, result := call(http.MethodPost, "/api/v1/chat/sessions/"+id+"/messages", batch)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, result["inserted"], 2)

	resp, result = call(http.MethodPost, "/api/v1/chat/sessions/"+id+"/messages", batch)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), result["duplicates"])

	resp, list := call(http.MethodGet, "/api/v1/chat/sessions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessions := list["sessions"].([]any)
	require.Len(t, sessions, 1)
	got := sessions[0].(map[string]any)
	assert.Equal(t, "Summarize the Acme renewal call", got["title"])
	assert.Equal(t, float64(2), got["message_count"])
	assert.NotNil(t, got["last_message_at"])

	resp, messages := call(http.MethodGet, "/api/v1/chat/sessions/"+id+"/messages", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, messages["messages"], 2)

	resp, _ = call(http.MethodDelete, "/api/v1/chat/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = call(http.MethodGet, "/api/v1/chat/sessions/"+id+"/messages", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

package internal

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/widgetboard/widget-auth/internal/config"
)

func testConfig(tokenURL string) config.Config {
	return config.Config{
		Version: "v1",
		Server: config.ServerConfig{
			BaseURL:        "https://dash.example.com",
			Addr:           "127.0.0.1:0",
			AllowedOrigins: []string{"https://dash.example.com"},
		},
		StateSecret: config.Secret("0123456789abcdef0123456789abcdef"),
		Providers: map[string]config.ProviderConfig{
			"gmail": {
				ClientID:     "google-id",
				ClientSecret: config.Secret("google-secret"),
				RedirectURI:  "https://dash.example.com/auth/gmail",
				TokenURL:     tokenURL,
			},
		},
	}
}

func TestAppRoutes(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at_new","token_type":"Bearer","expires_in":3599}`))
	}))
	defer tokens.Close()

	app, err := NewApp(context.Background(), testConfig(tokens.URL))
	require.NoError(t, err)

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("begin uses configured redirect", func(t *testing.T) {
		w := httptest.NewRecorder()
		app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/gmail?widgetId=inbox", nil))
		require.Equal(t, http.StatusFound, w.Code)

		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "accounts.google.com", loc.Host)
		assert.Equal(t, "https://dash.example.com/auth/gmail", loc.Query().Get("redirect_uri"))
		assert.Equal(t, "google-id", loc.Query().Get("client_id"))
		assert.Empty(t, loc.Query().Get("client_secret"))
	})

	t.Run("refresh uses token url override", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/gmail/refresh", strings.NewReader(`{"refreshToken":"rt"}`))
		w := httptest.NewRecorder()
		app.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"accessToken":"at_new","expiresInSeconds":3599}`, w.Body.String())
	})

	t.Run("unconfigured provider fails per request", func(t *testing.T) {
		w := httptest.NewRecorder()
		app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/google-calendar", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "Authentication Failed")
	})
}

func TestNewAppRejectsShortStateSecret(t *testing.T) {
	cfg := testConfig("")
	cfg.StateSecret = "short"
	_, err := NewApp(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(""))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig("")
	cfg.Server.Addr = ln.Addr().String()
	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)

	err = app.Run(context.Background())
	assert.ErrorContains(t, err, "HTTP server error")
}

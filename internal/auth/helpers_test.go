package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/widgetboard/widget-auth/internal/provider"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

// fakeTokenEndpoint mimics a provider token endpoint. Authorization codes are
// single-use, the refresh token "revoked" is rejected with invalid_grant and
// "flaky" yields a 503.
type fakeTokenEndpoint struct {
	*httptest.Server

	mu       sync.Mutex
	hits     int
	used     map[string]bool
	lastForm url.Values
	lastUser string
	lastPass string
}

func newFakeTokenEndpoint(t *testing.T) *fakeTokenEndpoint {
	t.Helper()
	f := &fakeTokenEndpoint{used: map[string]bool{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeTokenEndpoint) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.hits++
	_ = r.ParseForm()
	f.lastForm = r.PostForm
	f.lastUser, f.lastPass, _ = r.BasicAuth()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		code := r.PostForm.Get("code")
		if f.used[code] {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_grant",
				"error_description": "Invalid authorization code",
			})
			return
		}
		f.used[code] = true
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at_x",
			"refresh_token": "rt_x",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	case "refresh_token":
		switch r.PostForm.Get("refresh_token") {
		case "revoked":
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_grant",
				"error_description": "Token has been expired or revoked.",
			})
		case "flaky":
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "temporarily_unavailable"})
		case "bad-client":
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_client",
				"error_description": "Invalid client",
			})
		case "expired-access":
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":             "invalid_token",
				"error_description": "The access token expired",
			})
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "at_new",
				"token_type":   "Bearer",
				"expires_in":   3599,
			})
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
	}
}

func (f *fakeTokenEndpoint) Hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type testStack struct {
	registry  *provider.Registry
	codec     *StateCodec
	callbacks CallbackURLs
	initiator *Initiator
	callback  *CallbackHandler
	refresher *Refresher
}

var deploymentCreds = StaticCredentials{
	provider.GoogleCalendar: {ClientID: "google-id", ClientSecret: "google-secret"},
	provider.Gmail:          {ClientID: "google-id", ClientSecret: "google-secret"},
	provider.Spotify:        {ClientID: "env-spotify-id", ClientSecret: "env-spotify-secret"},
}

// newTestStack wires all components against tokenURL with the clock frozen at testNow.
func newTestStack(t *testing.T, tokenURL string, creds CredentialSource) *testStack {
	t.Helper()

	registry := provider.DefaultRegistry()
	for _, id := range registry.IDs() {
		registry = registry.WithEndpoint(id, "", tokenURL)
	}

	clock := func() time.Time { return testNow }
	codec, err := NewStateCodec([]byte(testSecret), WithClock(clock))
	require.NoError(t, err)

	callbacks, err := NewCallbackURLs("https://dash.example.com", nil)
	require.NoError(t, err)

	initiator := NewInitiator(registry, creds, codec, callbacks)
	initiator.now = clock

	callback := NewCallbackHandler(initiator, nil)
	callback.now = clock

	refresher := NewRefresher(registry, creds, nil)
	refresher.now = clock

	return &testStack{
		registry:  registry,
		codec:     codec,
		callbacks: callbacks,
		initiator: initiator,
		callback:  callback,
		refresher: refresher,
	}
}

// mintState encodes a flow for p created age ago.
func (s *testStack) mintState(t *testing.T, p provider.ID, widgetID string, caller ClientCredentials, age time.Duration) string {
	t.Helper()
	flow := NewFlowContext(p, widgetID, caller, testNow.Add(-age))
	state, err := s.codec.Encode(flow)
	require.NoError(t, err)
	return state
}

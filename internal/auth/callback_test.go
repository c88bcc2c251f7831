package auth

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/widgetboard/widget-auth/internal/provider"
)

func TestCallbackWithoutCodeMatchesBegin(t *testing.T) {
	s := newTestStack(t, "http://token.invalid", deploymentCreds)

	for _, p := range []provider.ID{provider.Spotify, provider.Gmail, provider.GoogleCalendar} {
		t.Run(string(p), func(t *testing.T) {
			begin, err := s.initiator.Begin(p, "w1", ClientCredentials{})
			require.NoError(t, err)

			outcome := s.callback.HandleCallback(context.Background(), CallbackRequest{Provider: p, WidgetID: "w1"})
			require.Equal(t, OutcomeRedirect, outcome.Kind)

			bu, bq := parseRedirect(t, begin.URL)
			ou, oq := parseRedirect(t, outcome.RedirectURL)
			assert.Equal(t, bu.Host+bu.Path, ou.Host+ou.Path)

			bState, oState := bq.Get("state"), oq.Get("state")
			bq.Del("state")
			oq.Del("state")
			assert.Equal(t, bq, oq, "everything but the sealed state must be identical")

			bf, err := s.codec.Decode(bState)
			require.NoError(t, err)
			of, err := s.codec.Decode(oState)
			require.NoError(t, err)
			assert.Equal(t, bf.Provider, of.Provider)
			assert.Equal(t, bf.WidgetID, of.WidgetID)
			assert.Equal(t, bf.CallerCredentials(), of.CallerCredentials())
			assert.True(t, bf.CreatedAt.Equal(of.CreatedAt))
		})
	}
}

func TestCallbackGmailSuccess(t *testing.T) {
	tokens := newFakeTokenEndpoint(t)
	s := newTestStack(t, tokens.URL, deploymentCreds)

	state := s.mintState(t, provider.Gmail, "inbox-1", ClientCredentials{}, 10*time.Minute)
	outcome := s.callback.HandleCallback(context.Background(), CallbackRequest{
		Provider: provider.Gmail,
		Code:     "abc",
		State:    state,
	})

	require.Equal(t, OutcomeSucceeded, outcome.Kind, outcome.Reason)
	assert.Equal(t, "rt_x", outcome.Tokens.RefreshToken)
	assert.Equal(t, "at_x", outcome.Tokens.AccessToken)
	assert.Equal(t, int64(3600), outcome.Tokens.ExpiresInSeconds)
	assert.Equal(t, "inbox-1", outcome.WidgetID)

	assert.Equal(t, 1, tokens.Hits())
	assert.Equal(t, "google-id", tokens.lastUser)
	assert.Equal(t, "google-secret", tokens.lastPass)
	assert.Equal(t, "authorization_code", tokens.lastForm.Get("grant_type"))
	assert.Equal(t, "abc", tokens.lastForm.Get("code"))
	assert.Equal(t, s.callbacks.For(provider.Gmail), tokens.lastForm.Get("redirect_uri"))
}

func TestCallbackSpotifyUsesCredentialsFromState(t *testing.T) {
	tokens := newFakeTokenEndpoint(t)
	s := newTestStack(t, tokens.URL, deploymentCreds)

	state := s.mintState(t, provider.Spotify, "player", ClientCredentials{ClientID: "mine", ClientSecret: "my-secret"}, time.Minute)
	outcome := s.callback.HandleCallback(context.Background(), CallbackRequest{
		Provider: provider.Spotify,
		Code:     "spot-code",
		State:    state,
		// ignored once a code is present
		Caller: ClientCredentials{ClientID: "other", ClientSecret: "other"},
	})

	require.Equal(t, OutcomeSucceeded, outcome.Kind, outcome.Reason)
	assert.Equal(t, "mine", tokens.lastUser)
	assert.Equal(t, "my-secret", tokens.lastPass)
	assert.Equal(t, "player", outcome.WidgetID)
}

func TestCallbackExpiredStateMakesNoNetworkCall(t *testing.T) {
	tokens := newFakeTokenEndpoint(t)
	s := newTestStack(t, tokens.URL, deploymentCreds)

	state := s.mintState(t, provider.GoogleCalendar, "cal", ClientCredentials{}, 2*time.Hour)
	outcome := s.callback.HandleCallback(context.Background(), CallbackRequest{
		Provider: provider.GoogleCalendar,
		Code:     "abc",
		State:    state,
	})

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Equal(t, "State parameter has expired", outcome.Reason)
	var de *DecodeError
	require.ErrorAs(t, outcome.Err, &de)
	assert.Equal(t, Expired, de.Kind)
	assert.Equal(t, 0, tokens.Hits())
}

func TestCallbackCodeIsSingleUse(t *testing.T) {
	tokens := newFakeTokenEndpoint(t)
	s := newTestStack(t, tokens.URL, deploymentCreds)

	state := s.mintState(t, provider.Gmail, "w", ClientCredentials{}, time.Minute)
	req := CallbackRequest{Provider: provider.Gmail, Code: "once", State: state}

	first := s.callback.HandleCallback(context.Background(), req)
	second := s.callback.HandleCallback(context.Background(), req)

	assert.Equal(t, OutcomeSucceeded, first.Kind)
	assert.Equal(t, OutcomeFailed, second.Kind)
	assert.Equal(t, "Invalid authorization code", second.Reason)

	var xerr *ExchangeError
	require.ErrorAs(t, second.Err, &xerr)
	assert.Equal(t, "invalid_grant", xerr.Code)
	assert.Equal(t, "w", second.WidgetID)
	assert.Equal(t, 2, tokens.Hits(), "a failed exchange is not retried")
}

func TestCallbackRejectsBeforeExchange(t *testing.T) {
	tokens := newFakeTokenEndpoint(t)
	s := newTestStack(t, tokens.URL, deploymentCreds)

	spotifyState := s.mintState(t, provider.Spotify, "w", ClientCredentials{}, time.Minute)

	tests := []struct {
		name   string
		req    CallbackRequest
		reason string
	}{
		{
			name:   "missing state",
			req:    CallbackRequest{Provider: provider.Gmail, Code: "abc"},
			reason: "state parameter is missing",
		},
		{
			name:   "forged state",
			req:    CallbackRequest{Provider: provider.Gmail, Code: "abc", State: "eyJ3aWRnZXRJZCI6IncxIn0"},
			reason: "State parameter is invalid",
		},
		{
			name:   "state for another provider",
			req:    CallbackRequest{Provider: provider.Gmail, Code: "abc", State: spotifyState},
			reason: "State parameter does not match provider",
		},
		{
			name:   "provider error",
			req:    CallbackRequest{Provider: provider.Gmail, Error: "access_denied"},
			reason: "You cancelled the authorization. You can try again if this was a mistake.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := s.callback.HandleCallback(context.Background(), tt.req)
			assert.Equal(t, OutcomeFailed, outcome.Kind)
			assert.Equal(t, tt.reason, outcome.Reason)
			assert.Error(t, outcome.Err)
		})
	}
	assert.Equal(t, 0, tokens.Hits())
}

func TestCallbackMissingDeploymentCredentials(t *testing.T) {
	tokens := newFakeTokenEndpoint(t)
	s := newTestStack(t, tokens.URL, deploymentCreds)
	state := s.mintState(t, provider.Gmail, "w", ClientCredentials{}, time.Minute)

	// Configuration lost between start and callback, e.g. a redeploy.
	s.callback.creds = StaticCredentials{}

	outcome := s.callback.HandleCallback(context.Background(), CallbackRequest{Provider: provider.Gmail, Code: "abc", State: state})
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, ErrMissingCredentials)
	assert.Equal(t, NotConfiguredReason, outcome.Reason)
	assert.Equal(t, 0, tokens.Hits())
}

func TestCallbackBeginNotConfiguredIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	s := newTestStack(t, "http://token.invalid", StaticCredentials{})

	outcome := s.callback.HandleCallback(context.Background(), CallbackRequest{Provider: provider.GoogleCalendar, WidgetID: "cal"})
	require.Equal(t, OutcomeFailed, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, ErrMissingCredentials)
	assert.Equal(t, "cal", outcome.WidgetID)
	assert.Equal(t, NotConfiguredReason, outcome.Reason)
	assert.NotContains(t, outcome.Reason, "missing client credentials")

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "Cannot start authorization flow")
	assert.Contains(t, out, "missing client credentials")
}

func TestCallbackErrorBodyOnSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"error":             "invalid_request",
			"error_description": "redirect_uri mismatch",
		})
	}))
	defer srv.Close()

	s := newTestStack(t, srv.URL, deploymentCreds)
	state := s.mintState(t, provider.Spotify, "w", ClientCredentials{}, time.Minute)

	outcome := s.callback.HandleCallback(context.Background(), CallbackRequest{Provider: provider.Spotify, Code: "abc", State: state})
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.NotEmpty(t, outcome.Reason)
}

func TestCallbackWithoutRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "at_only",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	s := newTestStack(t, srv.URL, deploymentCreds)
	state := s.mintState(t, provider.GoogleCalendar, "w", ClientCredentials{}, time.Minute)

	outcome := s.callback.HandleCallback(context.Background(), CallbackRequest{Provider: provider.GoogleCalendar, Code: "abc", State: state})
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Equal(t, "Provider did not return a refresh token", outcome.Reason)
}

func TestFriendlyProviderError(t *testing.T) {
	assert.Contains(t, FriendlyProviderError("access_denied", ""), "cancelled")
	assert.Equal(t, "Authorization failed: boom", FriendlyProviderError("weird", "boom"))
	assert.Equal(t, "Authorization failed: weird", FriendlyProviderError("weird", ""))
}

package auth

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/widgetboard/widget-auth/internal/provider"
)

func parseRedirect(t *testing.T, raw string) (*url.URL, url.Values) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u, u.Query()
}

func TestBeginSpotify(t *testing.T) {
	s := newTestStack(t, "http://token.invalid", deploymentCreds)

	target, err := s.initiator.Begin(provider.Spotify, "w1", ClientCredentials{})
	require.NoError(t, err)

	u, q := parseRedirect(t, target.URL)
	assert.Equal(t, "accounts.spotify.com", u.Host)
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "env-spotify-id", q.Get("client_id"))
	assert.Equal(t, "https://dash.example.com/auth/spotify", q.Get("redirect_uri"))
	assert.Equal(t, "true", q.Get("show_dialog"))
	assert.Equal(t, []string{
		"streaming",
		"user-read-email",
		"user-read-private",
		"user-read-currently-playing",
		"user-read-playback-state",
		"user-modify-playback-state",
		"user-read-recently-played",
	}, strings.Fields(q.Get("scope")))

	flow, err := s.codec.Decode(q.Get("state"))
	require.NoError(t, err)
	assert.Equal(t, provider.Spotify, flow.Provider)
	assert.Equal(t, "w1", flow.WidgetID)
	assert.Empty(t, flow.ClientSecret, "deployment secrets never ride in the state")
	assert.NotEmpty(t, flow.ID)
}

func TestBeginSpotifyCallerCredentials(t *testing.T) {
	s := newTestStack(t, "http://token.invalid", StaticCredentials{})

	caller := ClientCredentials{ClientID: "mine", ClientSecret: "my-secret"}
	target, err := s.initiator.Begin(provider.Spotify, "w9", caller)
	require.NoError(t, err)

	_, q := parseRedirect(t, target.URL)
	assert.Equal(t, "mine", q.Get("client_id"))
	assert.NotContains(t, target.URL, "my-secret")

	flow, err := s.codec.Decode(q.Get("state"))
	require.NoError(t, err)
	assert.Equal(t, caller, flow.CallerCredentials())
}

func TestBeginGoogleIgnoresCallerCredentials(t *testing.T) {
	s := newTestStack(t, "http://token.invalid", deploymentCreds)

	for _, p := range []provider.ID{provider.Gmail, provider.GoogleCalendar} {
		t.Run(string(p), func(t *testing.T) {
			target, err := s.initiator.Begin(p, "w", ClientCredentials{ClientID: "mine", ClientSecret: "my-secret"})
			require.NoError(t, err)

			u, q := parseRedirect(t, target.URL)
			assert.Equal(t, "accounts.google.com", u.Host)
			assert.Equal(t, "google-id", q.Get("client_id"))
			assert.Equal(t, "offline", q.Get("access_type"))
			assert.Equal(t, "consent", q.Get("prompt"))
			assert.Equal(t, "code", q.Get("response_type"))
			assert.Equal(t, "https://dash.example.com/auth/"+string(p), q.Get("redirect_uri"))

			flow, err := s.codec.Decode(q.Get("state"))
			require.NoError(t, err)
			assert.Empty(t, flow.ClientID)
			assert.Empty(t, flow.ClientSecret)
		})
	}
}

func TestBeginMissingCredentials(t *testing.T) {
	s := newTestStack(t, "http://token.invalid", StaticCredentials{
		provider.Gmail: {ClientID: "id-only"},
	})

	tests := []struct {
		name   string
		p      provider.ID
		caller ClientCredentials
	}{
		{"gmail partial deployment credentials", provider.Gmail, ClientCredentials{}},
		{"calendar without configuration", provider.GoogleCalendar, ClientCredentials{ClientID: "a", ClientSecret: "b"}},
		{"spotify without any credentials", provider.Spotify, ClientCredentials{}},
		{"spotify with partial caller credentials", provider.Spotify, ClientCredentials{ClientID: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.initiator.Begin(tt.p, "w", tt.caller)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.True(t, errors.Is(err, ErrMissingCredentials))
			assert.Equal(t, tt.p, ce.Provider)
		})
	}
}

func TestBeginUnknownProvider(t *testing.T) {
	s := newTestStack(t, "http://token.invalid", deploymentCreds)

	_, err := s.initiator.Begin("outlook", "w", ClientCredentials{})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestCallbackURLs(t *testing.T) {
	urls, err := NewCallbackURLs("https://dash.example.com/app/", map[provider.ID]string{
		provider.Spotify: "https://dash.example.com/spotify/callback",
		provider.Gmail:   "",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://dash.example.com/app/auth/gmail", urls.For(provider.Gmail))
	assert.Equal(t, "https://dash.example.com/app/auth/google-calendar", urls.For(provider.GoogleCalendar))
	assert.Equal(t, "https://dash.example.com/spotify/callback", urls.For(provider.Spotify))

	_, err = NewCallbackURLs("/relative", nil)
	assert.Error(t, err)
}

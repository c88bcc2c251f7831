// Package provider holds the static OAuth parameters of the integrated
// account providers. Entries are immutable once a Registry is built.
package provider

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/spotify"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

// ID identifies an integrated provider. The value doubles as the URL path segment.
type ID string

const (
	GoogleCalendar ID = "google-calendar"
	Gmail          ID = "gmail"
	Spotify        ID = "spotify"
)

// CredentialSource says where a provider's OAuth client credentials come from.
type CredentialSource int

const (
	// CredentialsFromDeployment means only deployment configuration supplies
	// the client id and secret. Caller-supplied values are ignored.
	CredentialsFromDeployment CredentialSource = iota

	// CredentialsFromCaller means the widget may supply its own client id and
	// secret, falling back to deployment configuration when it does not.
	CredentialsFromCaller
)

func (s CredentialSource) String() string {
	switch s {
	case CredentialsFromDeployment:
		return "deployment"
	case CredentialsFromCaller:
		return "caller"
	default:
		return "unknown"
	}
}

// Config is the static exchange description of one provider.
type Config struct {
	ID          ID
	DisplayName string

	// Endpoint carries the authorize and token URLs. AuthStyle is always
	// AuthStyleInHeader: every integrated provider takes HTTP Basic client auth.
	Endpoint oauth2.Endpoint
	Scopes   []string

	Credentials CredentialSource

	// AuthParams are appended to the authorization URL. They force the consent
	// screen so a refresh credential is reissued on every grant.
	AuthParams []oauth2.AuthCodeOption
}

// AcceptsCallerCredentials reports whether a widget may bring its own client credentials.
func (c Config) AcceptsCallerCredentials() bool {
	return c.Credentials == CredentialsFromCaller
}

// MessageType is the tag of the cross-window message announcing a successful grant,
// e.g. "GOOGLE_CALENDAR_AUTH_SUCCESS".
func (c Config) MessageType() string {
	return messagePrefix(c.ID) + "_AUTH_SUCCESS"
}

// ErrorMessageType is the tag of the cross-window message announcing a failed flow.
func (c Config) ErrorMessageType() string {
	return messagePrefix(c.ID) + "_AUTH_ERROR"
}

func messagePrefix(id ID) string {
	return strings.ToUpper(strings.ReplaceAll(string(id), "-", "_"))
}

func googleEndpoint() oauth2.Endpoint {
	ep := google.Endpoint
	ep.AuthStyle = oauth2.AuthStyleInHeader
	return ep
}

func spotifyEndpoint() oauth2.Endpoint {
	ep := spotify.Endpoint
	ep.AuthStyle = oauth2.AuthStyleInHeader
	return ep
}

// Defaults returns the built-in configuration of every integrated provider.
func Defaults() []Config {
	googleParams := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}

	return []Config{
		{
			ID:          GoogleCalendar,
			DisplayName: "Google Calendar",
			Endpoint:    googleEndpoint(),
			Scopes:      []string{calendar.CalendarReadonlyScope},
			Credentials: CredentialsFromDeployment,
			AuthParams:  googleParams,
		},
		{
			ID:          Gmail,
			DisplayName: "Gmail",
			Endpoint:    googleEndpoint(),
			Scopes:      []string{gmail.GmailReadonlyScope},
			Credentials: CredentialsFromDeployment,
			AuthParams:  googleParams,
		},
		{
			ID:          Spotify,
			DisplayName: "Spotify",
			Endpoint:    spotifyEndpoint(),
			Scopes: []string{
				"streaming",
				"user-read-email",
				"user-read-private",
				"user-read-currently-playing",
				"user-read-playback-state",
				"user-modify-playback-state",
				"user-read-recently-played",
			},
			Credentials: CredentialsFromCaller,
			AuthParams:  []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("show_dialog", "true")},
		},
	}
}

// Registry maps provider IDs to their configuration.
type Registry struct {
	configs map[ID]Config
}

// NewRegistry builds a registry from the given configs. Later entries win on duplicate IDs.
func NewRegistry(configs ...Config) *Registry {
	r := &Registry{configs: make(map[ID]Config, len(configs))}
	for _, c := range configs {
		c.Scopes = slices.Clone(c.Scopes)
		c.AuthParams = slices.Clone(c.AuthParams)
		r.configs[c.ID] = c
	}
	return r
}

// DefaultRegistry returns a registry holding Defaults.
func DefaultRegistry() *Registry {
	return NewRegistry(Defaults()...)
}

// Lookup returns the configuration for id. The returned slices are copies.
func (r *Registry) Lookup(id ID) (Config, bool) {
	c, ok := r.configs[id]
	if !ok {
		return Config{}, false
	}
	c.Scopes = slices.Clone(c.Scopes)
	c.AuthParams = slices.Clone(c.AuthParams)
	return c, true
}

// Parse resolves a path segment to a registered provider ID.
func (r *Registry) Parse(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := r.configs[id]; !ok {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return id, nil
}

// IDs lists registered providers in sorted order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// WithEndpoint returns a copy of the registry where id uses the given authorize and
// token URLs. Empty values keep the current URL.
func (r *Registry) WithEndpoint(id ID, authURL, tokenURL string) *Registry {
	configs := make([]Config, 0, len(r.configs))
	for _, c := range r.configs {
		if c.ID == id {
			if authURL != "" {
				c.Endpoint.AuthURL = authURL
			}
			if tokenURL != "" {
				c.Endpoint.TokenURL = tokenURL
			}
		}
		configs = append(configs, c)
	}
	return NewRegistry(configs...)
}

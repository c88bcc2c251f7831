package auth

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/widgetboard/widget-auth/internal/provider"
	"golang.org/x/oauth2"
)

// ClientCredentials is an OAuth client id/secret pair.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// Complete reports whether both halves are present.
func (c ClientCredentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// CredentialSource supplies deployment-configured client credentials.
type CredentialSource interface {
	Credentials(p provider.ID) ClientCredentials
}

// StaticCredentials is a fixed CredentialSource.
type StaticCredentials map[provider.ID]ClientCredentials

func (s StaticCredentials) Credentials(p provider.ID) ClientCredentials {
	return s[p]
}

// resolveCredentials picks the client credentials for an exchange. Caller-supplied
// credentials win only for providers that accept them.
func resolveCredentials(cfg provider.Config, source CredentialSource, caller ClientCredentials) (ClientCredentials, error) {
	if cfg.AcceptsCallerCredentials() && caller.Complete() {
		return caller, nil
	}
	if source != nil {
		if creds := source.Credentials(cfg.ID); creds.Complete() {
			return creds, nil
		}
	}
	return ClientCredentials{}, &ConfigError{Provider: cfg.ID, Err: ErrMissingCredentials}
}

// CallbackURLs builds the redirect URI of each provider. The same value must be
// sent when starting a flow and when exchanging its code.
type CallbackURLs struct {
	base      *url.URL
	overrides map[provider.ID]string
}

// NewCallbackURLs derives redirect URIs from baseURL. overrides pins the
// redirect URI of individual providers to a configured value.
func NewCallbackURLs(baseURL string, overrides map[provider.ID]string) (CallbackURLs, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return CallbackURLs{}, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return CallbackURLs{}, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	pinned := make(map[provider.ID]string, len(overrides))
	for id, uri := range overrides {
		if uri != "" {
			pinned[id] = uri
		}
	}
	return CallbackURLs{base: u, overrides: pinned}, nil
}

// For returns the redirect URI registered for p.
func (c CallbackURLs) For(p provider.ID) string {
	if uri, ok := c.overrides[p]; ok {
		return uri
	}
	return c.base.JoinPath(CallbackPath(p)).String()
}

// CallbackPath is the fixed path that both starts and completes a flow for p.
func CallbackPath(p provider.ID) string {
	return "/auth/" + string(p)
}

func oauth2Config(cfg provider.Config, creds ClientCredentials, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     cfg.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       cfg.Scopes,
	}
}

// withHTTPClient makes the oauth2 package use client for token endpoint calls.
func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// TokenSet is the result of a code or refresh exchange. RefreshToken is only
// set by code exchanges.
type TokenSet struct {
	AccessToken      string
	RefreshToken     string
	ExpiresInSeconds int64
}

func tokenSetFrom(tok *oauth2.Token, now time.Time) TokenSet {
	ts := TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	switch {
	case tok.ExpiresIn > 0:
		ts.ExpiresInSeconds = tok.ExpiresIn
	case !tok.Expiry.IsZero():
		ts.ExpiresInSeconds = int64(math.Round(tok.Expiry.Sub(now).Seconds()))
	}
	return ts
}

package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/widgetboard/widget-auth/internal/log"
	"github.com/widgetboard/widget-auth/internal/provider"
	"golang.org/x/oauth2"
)

// authFailurePattern matches provider error text meaning the refresh credential
// itself is no good.
var authFailurePattern = regexp.MustCompile(`(?i)invalid[_ ]grant|invalid[_ ]token|token (has been )?(expired|revoked)|revoked|unauthori[sz]ed`)

// Refresher trades a stored refresh credential for a short-lived access token.
// It does not cache access tokens and does not retry.
type Refresher struct {
	registry   *provider.Registry
	creds      CredentialSource
	httpClient *http.Client
	now        func() time.Time
}

// NewRefresher creates a Refresher. httpClient nil means http.DefaultClient.
func NewRefresher(registry *provider.Registry, creds CredentialSource, httpClient *http.Client) *Refresher {
	return &Refresher{
		registry:   registry,
		creds:      creds,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Refresh performs a refresh_token grant for p. The returned TokenSet never
// carries a refresh token; callers keep the original until InvalidGrant.
// Provider failures are *RefreshError, configuration problems *ConfigError.
func (r *Refresher) Refresh(ctx context.Context, p provider.ID, refreshToken string, caller ClientCredentials) (TokenSet, error) {
	cfg, ok := r.registry.Lookup(p)
	if !ok {
		return TokenSet{}, &ConfigError{Provider: p, Err: ErrUnknownProvider}
	}
	if refreshToken == "" {
		return TokenSet{}, &RefreshError{Kind: InvalidGrant, Provider: p, Err: errors.New("no refresh token")}
	}

	creds, err := resolveCredentials(cfg, r.creds, caller)
	if err != nil {
		return TokenSet{}, err
	}

	oc := oauth2Config(cfg, creds, "")
	tok, err := oc.TokenSource(withHTTPClient(ctx, r.httpClient), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		rerr := classifyRefreshError(p, err)
		log.LogWarnWithFields("auth", "Token refresh failed", map[string]any{
			"provider": p,
			"kind":     rerr.Kind.String(),
			"error":    err.Error(),
		})
		return TokenSet{}, rerr
	}

	ts := tokenSetFrom(tok, r.now())
	ts.RefreshToken = ""

	log.LogDebugWithFields("auth", "Token refreshed", map[string]any{
		"provider":   p,
		"expires_in": ts.ExpiresInSeconds,
	})
	return ts, nil
}

func classifyRefreshError(p provider.ID, err error) *RefreshError {
	kind := Rejected

	var re *oauth2.RetrieveError
	var netErr net.Error
	switch {
	case errors.As(err, &re):
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		switch {
		case re.ErrorCode == "invalid_grant":
			kind = InvalidGrant
		case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
			kind = Transient
		case authFailurePattern.MatchString(re.ErrorCode + " " + re.ErrorDescription + " " + string(re.Body)):
			kind = InvalidGrant
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.As(err, &netErr):
		kind = Transient
	case strings.Contains(err.Error(), "cannot fetch token"):
		// body read failures lose their type inside oauth2
		kind = Transient
	case authFailurePattern.MatchString(err.Error()):
		kind = InvalidGrant
	}

	return &RefreshError{Kind: kind, Provider: p, Err: err}
}

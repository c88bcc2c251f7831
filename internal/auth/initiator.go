package auth

import (
	"fmt"
	"time"

	"github.com/widgetboard/widget-auth/internal/log"
	"github.com/widgetboard/widget-auth/internal/provider"
)

// RedirectTarget is where the popup is sent to start a grant.
type RedirectTarget struct {
	URL string
}

// Initiator builds provider authorization URLs. It holds no per-flow state.
type Initiator struct {
	registry  *provider.Registry
	creds     CredentialSource
	codec     *StateCodec
	callbacks CallbackURLs
	now       func() time.Time
}

// NewInitiator creates an Initiator.
func NewInitiator(registry *provider.Registry, creds CredentialSource, codec *StateCodec, callbacks CallbackURLs) *Initiator {
	return &Initiator{
		registry:  registry,
		creds:     creds,
		codec:     codec,
		callbacks: callbacks,
		now:       time.Now,
	}
}

// Begin returns the authorization redirect for p. The flow context, including
// caller credentials when the provider accepts them, rides in the state parameter.
func (i *Initiator) Begin(p provider.ID, widgetID string, caller ClientCredentials) (RedirectTarget, error) {
	cfg, ok := i.registry.Lookup(p)
	if !ok {
		return RedirectTarget{}, &ConfigError{Provider: p, Err: ErrUnknownProvider}
	}

	creds, err := resolveCredentials(cfg, i.creds, caller)
	if err != nil {
		return RedirectTarget{}, err
	}

	var carried ClientCredentials
	if cfg.AcceptsCallerCredentials() && creds == caller {
		carried = caller
	}

	flow := NewFlowContext(p, widgetID, carried, i.now())
	state, err := i.codec.Encode(flow)
	if err != nil {
		return RedirectTarget{}, fmt.Errorf("encoding state: %w", err)
	}

	redirectURL := i.callbacks.For(p)
	authURL := oauth2Config(cfg, creds, redirectURL).AuthCodeURL(state, cfg.AuthParams...)

	log.LogInfoWithFields("auth", "Starting authorization flow", map[string]any{
		"provider":           p,
		"flow_id":            flow.ID,
		"widget_id":          widgetID,
		"redirect":           redirectURL,
		"caller_credentials": carried.Complete(),
	})

	return RedirectTarget{URL: authURL}, nil
}

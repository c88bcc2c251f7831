package server

import (
	"errors"
	"net/http"

	"github.com/widgetboard/widget-auth/internal/auth"
	"github.com/widgetboard/widget-auth/internal/ioutil"
	jsonwriter "github.com/widgetboard/widget-auth/internal/json"
	"github.com/widgetboard/widget-auth/internal/log"
	"github.com/widgetboard/widget-auth/internal/notify"
	"github.com/widgetboard/widget-auth/internal/provider"
)

// maxRefreshBody bounds the refresh request body.
const maxRefreshBody = 16 << 10

// AuthHandlers serves the popup flow and the refresh endpoint.
type AuthHandlers struct {
	registry  *provider.Registry
	callback  *auth.CallbackHandler
	refresher *auth.Refresher
	notifier  *notify.Notifier
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(registry *provider.Registry, callback *auth.CallbackHandler, refresher *auth.Refresher, notifier *notify.Notifier) *AuthHandlers {
	return &AuthHandlers{
		registry:  registry,
		callback:  callback,
		refresher: refresher,
		notifier:  notifier,
	}
}

// RefreshRequest is the body of POST /auth/{provider}/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

// RefreshResponse is returned by a successful refresh.
type RefreshResponse struct {
	AccessToken      string `json:"accessToken"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (h *AuthHandlers) lookupProvider(r *http.Request) (provider.Config, bool) {
	id, err := h.registry.Parse(r.PathValue("provider"))
	if err != nil {
		return provider.Config{}, false
	}
	return h.registry.Lookup(id)
}

// Register mounts the auth routes on mux. cors wraps the refresh endpoint,
// which widgets call from the dashboard origin.
func (h *AuthHandlers) Register(mux *http.ServeMux, cors MiddlewareFunc) {
	mux.HandleFunc("GET /auth/{provider}", h.CallbackHandler)

	refresh := ChainMiddleware(http.HandlerFunc(h.RefreshHandler), cors)
	mux.Handle("POST /auth/{provider}/refresh", refresh)
	mux.Handle("OPTIONS /auth/{provider}/refresh", refresh)
}

// CallbackHandler serves GET /auth/{provider}. The same path starts a flow
// (no code) and completes it (code and state from the provider).
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.lookupProvider(r)
	if !ok {
		jsonwriter.WriteNotFound(w, "Unknown provider")
		return
	}

	q := r.URL.Query()
	outcome := h.callback.HandleCallback(r.Context(), auth.CallbackRequest{
		Provider:         cfg.ID,
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		WidgetID:         q.Get("widgetId"),
		Caller: auth.ClientCredentials{
			ClientID:     q.Get("clientId"),
			ClientSecret: q.Get("clientSecret"),
		},
	})

	switch outcome.Kind {
	case auth.OutcomeRedirect:
		setNoLeakHeaders(w.Header())
		http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
	case auth.OutcomeSucceeded:
		h.notifier.Success(w, cfg, outcome.WidgetID, outcome.Tokens.RefreshToken)
	default:
		h.notifier.Failure(w, failureStatus(outcome, q.Has("error")), cfg, outcome.WidgetID, outcome.Reason)
	}
}

// failureStatus maps a failed outcome to the status of the popup document.
func failureStatus(outcome auth.FlowOutcome, providerReported bool) int {
	var configErr *auth.ConfigError
	var decodeErr *auth.DecodeError
	switch {
	case errors.As(outcome.Err, &configErr):
		return http.StatusInternalServerError
	case errors.As(outcome.Err, &decodeErr), providerReported:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// RefreshHandler serves POST /auth/{provider}/refresh.
func (h *AuthHandlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.lookupProvider(r)
	if !ok {
		jsonwriter.WriteNotFound(w, "Unknown provider")
		return
	}

	var req RefreshRequest
	if err := ioutil.DecodeJSON(r.Body, maxRefreshBody, &req); err != nil {
		jsonwriter.WriteBadRequest(w, "Request body must be a JSON object")
		return
	}
	if req.RefreshToken == "" {
		jsonwriter.WriteBadRequest(w, "refreshToken is required")
		return
	}

	tokens, err := h.refresher.Refresh(r.Context(), cfg.ID, req.RefreshToken, auth.ClientCredentials{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
	})
	if err != nil {
		writeRefreshError(w, cfg, err)
		return
	}

	_ = jsonwriter.Write(w, RefreshResponse{
		AccessToken:      tokens.AccessToken,
		ExpiresInSeconds: tokens.ExpiresInSeconds,
	})
}

func writeRefreshError(w http.ResponseWriter, cfg provider.Config, err error) {
	var configErr *auth.ConfigError
	switch {
	case errors.As(err, &configErr):
		log.LogErrorWithFields("auth_handlers", "Refresh misconfigured", map[string]any{
			"provider": cfg.ID,
			"error":    err.Error(),
		})
		jsonwriter.WriteConfigError(w, "Provider is not configured")
	case auth.IsInvalidGrant(err):
		jsonwriter.WriteInvalidGrant(w, "Reconnect your "+cfg.DisplayName+" account")
	case auth.IsTransient(err):
		jsonwriter.WriteTransient(w, cfg.DisplayName+" is temporarily unavailable")
	default:
		jsonwriter.WriteExchangeFailed(w, cfg.DisplayName+" rejected the refresh request")
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/widgetboard/widget-auth/internal/log"
	"github.com/widgetboard/widget-auth/internal/provider"
	"golang.org/x/oauth2"
)

// OutcomeKind is the terminal state reached by a callback request.
type OutcomeKind int

const (
	// OutcomeRedirect means no code was present and the flow was (re)started.
	OutcomeRedirect OutcomeKind = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRedirect:
		return "redirect"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FlowOutcome is the result of HandleCallback.
type FlowOutcome struct {
	Kind     OutcomeKind
	Provider provider.ID

	RedirectURL string   // OutcomeRedirect
	Tokens      TokenSet // OutcomeSucceeded

	// WidgetID is known once the state has been decoded.
	WidgetID string

	// Reason is a user-facing description of an OutcomeFailed.
	Reason string
	Err    error
}

// CallbackRequest carries the query parameters of a hit on a provider's callback path.
// WidgetID and the caller credentials are only read when Code is empty.
type CallbackRequest struct {
	Provider         provider.ID
	Code             string
	State            string
	Error            string
	ErrorDescription string

	WidgetID string
	Caller   ClientCredentials
}

// CallbackHandler completes authorization flows. Each call is independent;
// a failed exchange is never retried because codes are single-use.
type CallbackHandler struct {
	initiator  *Initiator
	registry   *provider.Registry
	creds      CredentialSource
	codec      *StateCodec
	callbacks  CallbackURLs
	httpClient *http.Client
	now        func() time.Time
}

// NewCallbackHandler creates a handler sharing configuration with initiator.
// httpClient is used for token endpoint calls; nil means http.DefaultClient.
func NewCallbackHandler(initiator *Initiator, httpClient *http.Client) *CallbackHandler {
	return &CallbackHandler{
		initiator:  initiator,
		registry:   initiator.registry,
		creds:      initiator.creds,
		codec:      initiator.codec,
		callbacks:  initiator.callbacks,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// NotConfiguredReason is shown in the popup when a provider lacks configuration.
// The cause is only logged.
const NotConfiguredReason = "This account type is not configured on the server. Please contact your administrator."

func failed(p provider.ID, widgetID, reason string, err error) FlowOutcome {
	return FlowOutcome{Kind: OutcomeFailed, Provider: p, WidgetID: widgetID, Reason: reason, Err: err}
}

// setupFailed logs err and fails the flow without exposing its text.
func setupFailed(p provider.ID, widgetID, message string, err error) FlowOutcome {
	log.LogErrorWithFields("auth", message, map[string]any{
		"provider":  p,
		"widget_id": widgetID,
		"error":     err.Error(),
	})

	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return failed(p, widgetID, NotConfiguredReason, err)
	}
	return failed(p, widgetID, "Could not start the authorization. Please try again.", err)
}

// HandleCallback drives one callback request to a terminal outcome.
func (h *CallbackHandler) HandleCallback(ctx context.Context, req CallbackRequest) FlowOutcome {
	p := req.Provider

	if req.Error != "" {
		log.LogWarnWithFields("auth", "Provider reported authorization error", map[string]any{
			"provider":    p,
			"error":       req.Error,
			"description": req.ErrorDescription,
		})
		return failed(p, "", FriendlyProviderError(req.Error, req.ErrorDescription),
			&ExchangeError{Provider: p, Code: req.Error, Description: req.ErrorDescription})
	}

	if req.Code == "" {
		target, err := h.initiator.Begin(p, req.WidgetID, req.Caller)
		if err != nil {
			return setupFailed(p, req.WidgetID, "Cannot start authorization flow", err)
		}
		return FlowOutcome{Kind: OutcomeRedirect, Provider: p, RedirectURL: target.URL}
	}

	if req.State == "" {
		return failed(p, "", "state parameter is missing", &DecodeError{Kind: Malformed, Err: errors.New("no state")})
	}

	flow, err := h.codec.Decode(req.State)
	if err != nil {
		log.LogWarnWithFields("auth", "Rejected state parameter", map[string]any{
			"provider": p,
			"error":    err.Error(),
		})
		return failed(p, "", err.Error(), err)
	}

	if flow.Provider != p {
		return failed(p, "", "State parameter does not match provider",
			&DecodeError{Kind: Malformed, Err: fmt.Errorf("state minted for %s", flow.Provider)})
	}

	cfg, ok := h.registry.Lookup(p)
	if !ok {
		return setupFailed(p, flow.WidgetID, "Cannot exchange code", &ConfigError{Provider: p, Err: ErrUnknownProvider})
	}

	creds, err := resolveCredentials(cfg, h.creds, flow.CallerCredentials())
	if err != nil {
		return setupFailed(p, flow.WidgetID, "Cannot exchange code", err)
	}

	oc := oauth2Config(cfg, creds, h.callbacks.For(p))
	tok, err := oc.Exchange(withHTTPClient(ctx, h.httpClient), req.Code)
	if err != nil {
		xerr := exchangeErrorFrom(p, err)
		log.LogErrorWithFields("auth", "Failed to exchange code for token", map[string]any{
			"provider":   p,
			"flow_id":    flow.ID,
			"error_code": xerr.Code,
			"error":      err.Error(),
		})
		return failed(p, flow.WidgetID, xerr.Error(), xerr)
	}

	if tok.RefreshToken == "" {
		xerr := &ExchangeError{Provider: p, Description: "Provider did not return a refresh token"}
		return failed(p, flow.WidgetID, xerr.Error(), xerr)
	}

	log.LogInfoWithFields("auth", "Authorization flow completed", map[string]any{
		"provider":  p,
		"flow_id":   flow.ID,
		"widget_id": flow.WidgetID,
		"age":       h.now().Sub(flow.CreatedAt).Truncate(time.Second).String(),
	})

	return FlowOutcome{
		Kind:     OutcomeSucceeded,
		Provider: p,
		Tokens:   tokenSetFrom(tok, h.now()),
		WidgetID: flow.WidgetID,
	}
}

// exchangeErrorFrom extracts the provider's error code and description.
func exchangeErrorFrom(p provider.ID, err error) *ExchangeError {
	xerr := &ExchangeError{Provider: p, Err: err}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		xerr.Code = re.ErrorCode
		xerr.Description = re.ErrorDescription
		if xerr.Code == "" && xerr.Description == "" && re.Response != nil {
			xerr.Description = fmt.Sprintf("Token endpoint returned %s", re.Response.Status)
		}
	}
	return xerr
}

// FriendlyProviderError turns an OAuth error redirect into a message for the popup.
func FriendlyProviderError(code, description string) string {
	switch code {
	case "access_denied":
		return "You cancelled the authorization. You can try again if this was a mistake."
	case "invalid_scope":
		return "Requested permissions are not available."
	case "unauthorized_client", "unsupported_response_type", "invalid_request":
		return "The application is not configured correctly for this provider."
	case "temporarily_unavailable", "server_error":
		return "The provider is temporarily unavailable. Please try again in a few minutes."
	default:
		if description != "" {
			return fmt.Sprintf("Authorization failed: %s", description)
		}
		return fmt.Sprintf("Authorization failed: %s", code)
	}
}

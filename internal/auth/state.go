package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/widgetboard/widget-auth/internal/crypto"
	"github.com/widgetboard/widget-auth/internal/provider"
)

// StateMaxAge is how long a state token stays valid after its flow was created.
const StateMaxAge = time.Hour

// FlowContext identifies one in-flight authorization attempt.
// CreatedAt is fixed by NewFlowContext and never changes afterwards. It is a
// whole-second UTC instant, the precision the state token carries.
type FlowContext struct {
	ID           string
	Provider     provider.ID
	WidgetID     string
	ClientID     string
	ClientSecret string
	CreatedAt    time.Time
}

// NewFlowContext starts a flow at now. Credentials are only recorded when
// the caller supplied them; deployment credentials are resolved at exchange time.
func NewFlowContext(p provider.ID, widgetID string, creds ClientCredentials, now time.Time) FlowContext {
	return FlowContext{
		ID:           uuid.NewString(),
		Provider:     p,
		WidgetID:     widgetID,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		CreatedAt:    now.UTC().Truncate(time.Second),
	}
}

// CallerCredentials returns the client credentials carried by the flow, if any.
func (f FlowContext) CallerCredentials() ClientCredentials {
	return ClientCredentials{ClientID: f.ClientID, ClientSecret: f.ClientSecret}
}

// stateClaims is the wire form of a FlowContext. Short keys keep the URL small.
type stateClaims struct {
	ID           string `json:"jti,omitempty"`
	Provider     string `json:"p"`
	WidgetID     string `json:"w,omitempty"`
	ClientID     string `json:"cid,omitempty"`
	ClientSecret string `json:"cs,omitempty"`
	IssuedAt     int64  `json:"iat"`
}

// StateCodec turns a FlowContext into an opaque, URL-safe state token and back.
// Tokens are encrypted because they may carry a client secret.
type StateCodec struct {
	sealer crypto.TokenSealer
	maxAge time.Duration
	now    func() time.Time
}

// CodecOption configures a StateCodec.
type CodecOption func(*StateCodec)

// WithClock overrides the time source used for freshness checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *StateCodec) {
		c.now = now
	}
}

// NewStateCodec creates a codec keyed by secret.
func NewStateCodec(secret []byte, opts ...CodecOption) (*StateCodec, error) {
	sealer, err := crypto.NewTokenSealer(secret, "oauth-state")
	if err != nil {
		return nil, fmt.Errorf("creating state sealer: %w", err)
	}

	c := &StateCodec{
		sealer: sealer,
		maxAge: StateMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode seals f into a state token.
func (c *StateCodec) Encode(f FlowContext) (string, error) {
	if f.Provider == "" {
		return "", errors.New("flow context has no provider")
	}
	if f.CreatedAt.IsZero() {
		return "", errors.New("flow context has no creation time")
	}
	if f.CreatedAt.Location() != time.UTC || f.CreatedAt.Nanosecond() != 0 {
		return "", fmt.Errorf("flow context creation time %s is not whole-second UTC", f.CreatedAt)
	}

	return c.sealer.Seal(stateClaims{
		ID:           f.ID,
		Provider:     string(f.Provider),
		WidgetID:     f.WidgetID,
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		IssuedAt:     f.CreatedAt.Unix(),
	})
}

// Decode opens a state token. Any failure is a *DecodeError: Malformed when the
// token cannot be opened or lacks required fields, Expired when it is older than
// StateMaxAge. A readable creation time past the limit is Expired even if other
// fields are missing.
func (c *StateCodec) Decode(token string) (FlowContext, error) {
	var claims stateClaims
	if err := c.sealer.Open(token, &claims); err != nil {
		return FlowContext{}, &DecodeError{Kind: Malformed, Err: err}
	}

	if claims.IssuedAt <= 0 {
		return FlowContext{}, &DecodeError{Kind: Malformed, Err: errors.New("missing creation time")}
	}

	createdAt := time.Unix(claims.IssuedAt, 0).UTC()
	if age := c.now().Sub(createdAt); age > c.maxAge {
		return FlowContext{}, &DecodeError{
			Kind: Expired,
			Err:  fmt.Errorf("state is %s old, limit %s", age.Truncate(time.Second), c.maxAge),
		}
	}

	if claims.Provider == "" {
		return FlowContext{}, &DecodeError{Kind: Malformed, Err: errors.New("missing provider")}
	}

	return FlowContext{
		ID:           claims.ID,
		Provider:     provider.ID(claims.Provider),
		WidgetID:     claims.WidgetID,
		ClientID:     claims.ClientID,
		ClientSecret: claims.ClientSecret,
		CreatedAt:    createdAt,
	}, nil
}

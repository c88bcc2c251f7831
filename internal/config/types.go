package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Version is the only config version this build understands.
const Version = "v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// BaseURL is the public URL of this service. Callback URLs derive from it.
	BaseURL string `json:"baseURL"`
	Addr    string `json:"addr"`

	// AllowedOrigins may call the refresh endpoint from a browser.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// OpenerOrigin is the only origin the popup posts results to.
	// Defaults to the origin of BaseURL.
	OpenerOrigin string `json:"openerOrigin,omitempty"`
}

// ProviderConfig holds the deployment settings of one provider. Every field is
// optional: missing credentials surface per request, not at startup.
type ProviderConfig struct {
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret Secret `json:"clientSecret,omitempty"`

	// RedirectURI pins the callback URL registered with the provider.
	RedirectURI string `json:"redirectUri,omitempty"`

	// AuthURL and TokenURL override the provider's endpoints, for staging
	// environments and tests.
	AuthURL  string `json:"authUrl,omitempty"`
	TokenURL string `json:"tokenUrl,omitempty"`
}

// HasCredentials reports whether both client id and secret are configured.
func (p ProviderConfig) HasCredentials() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// errEnvNotSet is returned for an {"$env"} reference to an unset variable.
var errEnvNotSet = errors.New("environment variable not set")

// Config represents the config structure with resolved values
type Config struct {
	Version     string                    `json:"version"`
	Server      ServerConfig              `json:"server"`
	StateSecret Secret                    `json:"stateSecret"`
	Providers   map[string]ProviderConfig `json:"providers,omitempty"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference resolved immediately.
//
// The explicit JSON syntax is used instead of shell-style $VAR substitution so
// that a config file passing through startup scripts is never expanded by the
// shell, and an environment value containing $ is never re-expanded.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("%w: %s", errEnvNotSet, envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// parseOptionalValue is ParseConfigValue for fields that may be omitted.
func parseOptionalValue(raw json.RawMessage, field string) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	v, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return v, nil
}

package config

import (
	"encoding/json"
	"errors"

	"github.com/widgetboard/widget-auth/internal/log"
)

// UnmarshalJSON resolves env references in the state secret.
func (c *Config) UnmarshalJSON(data []byte) error {
	type rawConfig struct {
		Version     string                    `json:"version"`
		Server      ServerConfig              `json:"server"`
		StateSecret json.RawMessage           `json:"stateSecret"`
		Providers   map[string]ProviderConfig `json:"providers"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Version = raw.Version
	c.Server = raw.Server
	c.Providers = raw.Providers

	secret, err := parseOptionalValue(raw.StateSecret, "stateSecret")
	if err != nil {
		return err
	}
	c.StateSecret = Secret(secret)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type rawServer struct {
		BaseURL        json.RawMessage `json:"baseURL"`
		Addr           json.RawMessage `json:"addr"`
		AllowedOrigins []string        `json:"allowedOrigins"`
		OpenerOrigin   json.RawMessage `json:"openerOrigin"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.BaseURL, err = parseOptionalValue(raw.BaseURL, "baseURL"); err != nil {
		return err
	}
	if s.Addr, err = parseOptionalValue(raw.Addr, "addr"); err != nil {
		return err
	}
	if s.OpenerOrigin, err = parseOptionalValue(raw.OpenerOrigin, "openerOrigin"); err != nil {
		return err
	}
	s.AllowedOrigins = raw.AllowedOrigins
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ProviderConfig. A credential
// referencing an unset environment variable is left empty with a warning, so the
// service still starts and the provider fails per request.
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	type rawProvider struct {
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret"`
		RedirectURI  json.RawMessage `json:"redirectUri"`
		AuthURL      string          `json:"authUrl"`
		TokenURL     string          `json:"tokenUrl"`
	}

	var raw rawProvider
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	clientID, err := parseCredential(raw.ClientID, "clientId")
	if err != nil {
		return err
	}
	clientSecret, err := parseCredential(raw.ClientSecret, "clientSecret")
	if err != nil {
		return err
	}
	redirectURI, err := parseOptionalValue(raw.RedirectURI, "redirectUri")
	if err != nil {
		return err
	}

	p.ClientID = clientID
	p.ClientSecret = Secret(clientSecret)
	p.RedirectURI = redirectURI
	p.AuthURL = raw.AuthURL
	p.TokenURL = raw.TokenURL
	return nil
}

func parseCredential(raw json.RawMessage, field string) (string, error) {
	v, err := parseOptionalValue(raw, field)
	if errors.Is(err, errEnvNotSet) {
		log.LogWarnWithFields("config", "Provider credential not available", map[string]any{
			"field": field,
			"error": err.Error(),
		})
		return "", nil
	}
	return v, err
}

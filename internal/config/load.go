package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/widgetboard/widget-auth/internal/envutil"
	"github.com/widgetboard/widget-auth/internal/log"
	"github.com/widgetboard/widget-auth/internal/notify"
	"github.com/widgetboard/widget-auth/internal/provider"
)

// MinStateSecretLength is the shortest accepted stateSecret.
const MinStateSecretLength = 32

// DefaultAddr is used when no listen address is configured.
const DefaultAddr = ":8080"

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != Version {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if config.Server.Addr == "" {
		config.Server.Addr = DefaultAddr
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadFromEnv builds the configuration from environment variables alone, for
// deployments that carry no config file. Both Google providers share one client.
func LoadFromEnv() (Config, error) {
	google := ProviderConfig{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: Secret(os.Getenv("GOOGLE_CLIENT_SECRET")),
	}
	calendar, gmail := google, google
	calendar.RedirectURI = os.Getenv("GOOGLE_CALENDAR_REDIRECT_URI")
	gmail.RedirectURI = os.Getenv("GMAIL_REDIRECT_URI")

	config := Config{
		Version: Version,
		Server: ServerConfig{
			BaseURL:        os.Getenv("BASE_URL"),
			Addr:           os.Getenv("ADDR"),
			AllowedOrigins: envutil.List("ALLOWED_ORIGINS"),
			OpenerOrigin:   os.Getenv("OPENER_ORIGIN"),
		},
		StateSecret: Secret(os.Getenv("STATE_SECRET")),
		Providers: map[string]ProviderConfig{
			string(provider.GoogleCalendar): calendar,
			string(provider.Gmail):          gmail,
			string(provider.Spotify): {
				ClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
				ClientSecret: Secret(os.Getenv("SPOTIFY_CLIENT_SECRET")),
				RedirectURI:  os.Getenv("SPOTIFY_REDIRECT_URI"),
			},
		},
	}
	if config.Server.Addr == "" {
		config.Server.Addr = DefaultAddr
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// validateRawConfig checks that secrets are env references before resolution
func validateRawConfig(rawConfig map[string]any) error {
	if value, exists := rawConfig["stateSecret"]; exists {
		if err := validateEnvVarReference(value, "stateSecret", "stateSecret"); err != nil {
			return fmt.Errorf("%s", err.Message)
		}
	}

	providers, _ := rawConfig["providers"].(map[string]any)
	for name, p := range providers {
		settings, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if value, exists := settings["clientSecret"]; exists {
			if err := validateEnvVarReference(value, "clientSecret", "providers."+name+".clientSecret"); err != nil {
				return fmt.Errorf("providers.%s: %s", name, err.Message)
			}
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if err := validateServer(&config.Server); err != nil {
		return err
	}

	if len(config.StateSecret) < MinStateSecretLength {
		return fmt.Errorf("stateSecret must be at least %d characters (got %d). Generate with: openssl rand -base64 32", MinStateSecretLength, len(config.StateSecret))
	}

	registry := provider.DefaultRegistry()
	for name, p := range config.Providers {
		if _, ok := registry.Lookup(provider.ID(name)); !ok {
			return fmt.Errorf("providers.%s: unknown provider (known: %s)", name, joinIDs(registry.IDs()))
		}
		for field, raw := range map[string]string{"redirectUri": p.RedirectURI, "authUrl": p.AuthURL, "tokenUrl": p.TokenURL} {
			if raw == "" {
				continue
			}
			if err := requireAbsoluteURL(raw); err != nil {
				return fmt.Errorf("providers.%s.%s: %w", name, field, err)
			}
		}
	}

	for id, p := range config.ProviderSettings() {
		if !p.HasCredentials() {
			log.LogWarnWithFields("config", "Provider has no deployment credentials", map[string]any{
				"provider": id,
			})
		}
	}

	return nil
}

func validateServer(server *ServerConfig) error {
	if server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if err := requireAbsoluteURL(server.BaseURL); err != nil {
		return fmt.Errorf("server.baseURL: %w", err)
	}
	if !strings.HasPrefix(server.BaseURL, "https://") && !envutil.IsDev() {
		return fmt.Errorf("server.baseURL must use https (set %s=development to allow http)", envutil.EnvVar)
	}
	if server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, err := server.ResolvedOpenerOrigin(); err != nil {
		return fmt.Errorf("server.openerOrigin: %w", err)
	}
	for i, origin := range server.AllowedOrigins {
		if _, err := notify.NormalizeOrigin(origin); err != nil {
			return fmt.Errorf("server.allowedOrigins[%d]: %w", i, err)
		}
	}
	return nil
}

// ResolvedOpenerOrigin returns OpenerOrigin, defaulting to the origin of BaseURL.
func (s ServerConfig) ResolvedOpenerOrigin() (string, error) {
	if s.OpenerOrigin != "" {
		return notify.NormalizeOrigin(s.OpenerOrigin)
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", err
	}
	return notify.NormalizeOrigin(u.Scheme + "://" + u.Host)
}

// ProviderSettings returns the settings of every known provider, with an empty
// entry for providers the config does not mention.
func (c Config) ProviderSettings() map[provider.ID]ProviderConfig {
	out := make(map[provider.ID]ProviderConfig)
	for _, id := range provider.DefaultRegistry().IDs() {
		out[id] = c.Providers[string(id)]
	}
	return out
}

func requireAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q must be an absolute URL", raw)
	}
	return nil
}

func joinIDs(ids []provider.ID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return strings.Join(names, ", ")
}

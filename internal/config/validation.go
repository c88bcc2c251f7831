package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/widgetboard/widget-auth/internal/provider"
)

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
		})
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "version",
			Message: fmt.Sprintf("version field is required. Hint: Add \"version\": %q", Version),
		})
	} else if version != Version {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "version",
			Message: fmt.Sprintf("unsupported version '%s' - use '%s'", version, Version),
		})
	}

	validateServerStructure(rawConfig, result)

	if secret, ok := rawConfig["stateSecret"]; !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "stateSecret",
			Message: "stateSecret is required. Example: {\"$env\": \"STATE_SECRET\"}",
		})
	} else if verr := validateEnvVarReference(secret, "stateSecret", "stateSecret"); verr != nil {
		result.Errors = append(result.Errors, *verr)
	}

	validateProvidersStructure(rawConfig, result)

	return result, nil
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := rawConfig["server"].(map[string]any)
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "server",
			Message: "server field is required and must be an object",
		})
		return
	}

	if _, ok := server["baseURL"]; !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "server.baseURL",
			Message: "baseURL is required. Example: \"https://dashboard.example.com\"",
		})
	}
	if _, ok := server["addr"]; !ok {
		result.Warnings = append(result.Warnings, ValidationError{
			Path:    "server.addr",
			Message: fmt.Sprintf("addr not set, defaulting to %q", DefaultAddr),
		})
	}
	if origins, ok := server["allowedOrigins"]; ok {
		list, ok := origins.([]any)
		if !ok {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "server.allowedOrigins",
				Message: "allowedOrigins must be an array of origins",
			})
			return
		}
		for i, o := range list {
			if s, ok := o.(string); !ok || s == "*" {
				result.Errors = append(result.Errors, ValidationError{
					Path:    fmt.Sprintf("server.allowedOrigins[%d]", i),
					Message: "each allowed origin must be an explicit scheme://host string",
				})
			}
		}
	}
}

func validateProvidersStructure(rawConfig map[string]any, result *ValidationResult) {
	raw, ok := rawConfig["providers"]
	if !ok {
		result.Warnings = append(result.Warnings, ValidationError{
			Path:    "providers",
			Message: "no providers configured - every authorization flow will fail with a configuration error",
		})
		return
	}
	providers, ok := raw.(map[string]any)
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "providers",
			Message: "providers must be an object keyed by provider id",
		})
		return
	}

	registry := provider.DefaultRegistry()
	for name, p := range providers {
		path := "providers." + name
		cfg, known := registry.Lookup(provider.ID(name))
		if !known {
			result.Errors = append(result.Errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("unknown provider '%s' - use one of %s", name, joinIDs(registry.IDs())),
			})
			continue
		}
		settings, ok := p.(map[string]any)
		if !ok {
			result.Errors = append(result.Errors, ValidationError{
				Path:    path,
				Message: "provider settings must be an object",
			})
			continue
		}

		if secret, ok := settings["clientSecret"]; ok {
			if verr := validateEnvVarReference(secret, "clientSecret", path+".clientSecret"); verr != nil {
				result.Errors = append(result.Errors, *verr)
			}
		}
		_, hasID := settings["clientId"]
		_, hasSecret := settings["clientSecret"]
		if !hasID || !hasSecret {
			msg := "clientId and clientSecret are both required for this provider to work"
			if cfg.AcceptsCallerCredentials() {
				msg = "no deployment credentials - only widgets that bring their own client id and secret can connect"
			}
			result.Warnings = append(result.Warnings, ValidationError{Path: path, Message: msg})
		}
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, matches[1]),
			}
		}
		// Never echo the plain value: it is a secret.
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.Warnings = append(result.Warnings, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName),
			})
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}

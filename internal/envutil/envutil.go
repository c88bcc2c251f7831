package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the deployment environment.
const EnvVar = "WIDGET_AUTH_ENV"

// IsDev checks if we're running in development mode
// where security requirements can be relaxed for testing
func IsDev() bool {
	env := strings.ToLower(os.Getenv(EnvVar))
	return env == "development" || env == "dev"
}

// List splits a comma separated environment value, dropping empty entries.
func List(name string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(name), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/widgetboard/widget-auth/internal"
	"github.com/widgetboard/widget-auth/internal/config"
	"github.com/widgetboard/widget-auth/internal/crypto"
	"github.com/widgetboard/widget-auth/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	google := func(widget string) map[string]any {
		return map[string]any{
			"clientId":     map[string]string{"$env": "GOOGLE_CLIENT_ID"},
			"clientSecret": map[string]string{"$env": "GOOGLE_CLIENT_SECRET"},
			"redirectUri":  "https://dashboard.yourcompany.com/auth/" + widget,
		}
	}

	defaultConfig := map[string]any{
		"version": config.Version,
		"server": map[string]any{
			"baseURL":        "https://dashboard.yourcompany.com",
			"addr":           config.DefaultAddr,
			"allowedOrigins": []string{"https://dashboard.yourcompany.com"},
		},
		"stateSecret": map[string]string{"$env": "STATE_SECRET"},
		"providers": map[string]any{
			"gmail":           google("gmail"),
			"google-calendar": google("google-calendar"),
			"spotify": map[string]any{
				"clientId":     map[string]string{"$env": "SPOTIFY_CLIENT_ID"},
				"clientSecret": map[string]string{"$env": "SPOTIFY_CLIENT_SECRET"},
			},
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func printIssues(out io.Writer, title string, issues []config.ValidationError) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s (%d):\n", title, len(issues))
	for _, issue := range issues {
		if issue.Path != "" {
			fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
		} else {
			fmt.Fprintf(out, "  - %s\n", issue.Message)
		}
	}
}

func validateConfig(out io.Writer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Fprintf(out, "Validating: %s\n", path)
	printIssues(out, "Errors", result.Errors)
	printIssues(out, "Warnings", result.Warnings)

	fmt.Fprintln(out)
	switch {
	case !result.IsValid():
		fmt.Fprintln(out, "Result: FAIL")
	case len(result.Warnings) > 0:
		fmt.Fprintln(out, "Result: FAIL (warnings present)")
	default:
		fmt.Fprintln(out, "Result: PASS")
	}

	if !result.IsValid() || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

func main() {
	conf := flag.String("config", "", "path to config file (reads environment variables when empty)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	genSecret := flag.Bool("generate-secret", false, "print a random value for STATE_SECRET and exit")
	logLevel := flag.String("log-level", "", "override LOG_LEVEL (error, warn, info, debug, trace)")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *genSecret {
		secret, err := crypto.GenerateSecureToken()
		if err != nil {
			log.LogError("Failed to generate secret: %v", err)
			os.Exit(1)
		}
		fmt.Println(secret)
		return
	}
	if *logLevel != "" {
		if err := log.SetLogLevel(*logLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(os.Stdout, *conf); err != nil {
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting widget-auth", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()
	app, err := internal.NewApp(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create widget auth service: %v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}

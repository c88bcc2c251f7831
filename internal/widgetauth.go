package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/widgetboard/widget-auth/internal/auth"
	"github.com/widgetboard/widget-auth/internal/config"
	"github.com/widgetboard/widget-auth/internal/log"
	"github.com/widgetboard/widget-auth/internal/notify"
	"github.com/widgetboard/widget-auth/internal/provider"
	"github.com/widgetboard/widget-auth/internal/server"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds the graceful drain of in-flight requests.
const ShutdownTimeout = 30 * time.Second

// App is the complete widget auth service
type App struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
}

// NewApp builds the service with all dependencies wired from cfg
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	log.LogInfoWithFields("widgetauth", "Building widget auth service", map[string]any{
		"baseURL":   cfg.Server.BaseURL,
		"providers": len(cfg.Providers),
	})

	settings := cfg.ProviderSettings()
	registry := providerRegistry(settings)

	creds := make(auth.StaticCredentials, len(settings))
	redirects := make(map[provider.ID]string, len(settings))
	for id, p := range settings {
		creds[id] = auth.ClientCredentials{
			ClientID:     p.ClientID,
			ClientSecret: string(p.ClientSecret),
		}
		redirects[id] = p.RedirectURI
		if !p.HasCredentials() {
			log.LogWarnWithFields("widgetauth", "Provider has no deployment credentials", map[string]any{
				"provider": id,
			})
		}
	}

	codec, err := auth.NewStateCodec([]byte(cfg.StateSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to create state codec: %w", err)
	}

	callbacks, err := auth.NewCallbackURLs(cfg.Server.BaseURL, redirects)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	openerOrigin, err := cfg.Server.ResolvedOpenerOrigin()
	if err != nil {
		return nil, fmt.Errorf("invalid opener origin: %w", err)
	}
	notifier, err := notify.New(openerOrigin)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}

	initiator := auth.NewInitiator(registry, creds, codec, callbacks)
	authHandlers := server.NewAuthHandlers(
		registry,
		auth.NewCallbackHandler(initiator, nil),
		auth.NewRefresher(registry, creds, nil),
		notifier,
	)

	handler := buildHTTPHandler(cfg, authHandlers)

	return &App{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
	}, nil
}

// providerRegistry applies configured endpoint overrides to the built-in providers.
func providerRegistry(settings map[provider.ID]config.ProviderConfig) *provider.Registry {
	registry := provider.DefaultRegistry()
	for id, p := range settings {
		if p.AuthURL == "" && p.TokenURL == "" {
			continue
		}
		log.LogInfoWithFields("widgetauth", "Using custom provider endpoints", map[string]any{
			"provider": id,
			"authURL":  p.AuthURL,
			"tokenURL": p.TokenURL,
		})
		registry = registry.WithEndpoint(id, p.AuthURL, p.TokenURL)
	}
	return registry
}

func buildHTTPHandler(cfg config.Config, authHandlers *server.AuthHandlers) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /health", server.NewHealthHandler())
	authHandlers.Register(mux, server.NewCORSMiddleware(cfg.Server.AllowedOrigins))

	// Recover sits inside the logger so a panic is still logged as a 500.
	return server.ChainMiddleware(mux,
		server.NewRecoverMiddleware("auth"),
		server.NewLoggerMiddleware("http"),
	)
}

// Handler returns the fully wrapped HTTP handler
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// server fails, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	log.LogInfoWithFields("widgetauth", "Starting widget auth service", map[string]any{
		"addr": a.config.Server.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		reason := "context cancelled"
		if cause := context.Cause(gctx); cause != nil && !errors.Is(cause, context.Canceled) {
			reason = cause.Error()
		}
		log.LogInfoWithFields("widgetauth", "Starting graceful shutdown", map[string]any{
			"reason":  reason,
			"timeout": ShutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			log.LogErrorWithFields("widgetauth", "HTTP server shutdown error", map[string]any{
				"error": err.Error(),
			})
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.LogErrorWithFields("widgetauth", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("widgetauth", "Application shutdown complete", nil)
	return nil
}

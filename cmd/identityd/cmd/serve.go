package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/config"
	"github.com/goliatone/go-identity/middleware/jwtware"
	"github.com/goliatone/go-identity/repository"
	"github.com/goliatone/go-identity/social"
	"github.com/goliatone/go-identity/social/providers/github"
	"github.com/goliatone/go-identity/social/providers/google"
	"github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identity HTTP server",
	Long:  `Serves signup, signin, role management and the OAuth login flow.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer repository.Close(db)

		logger.Info("connected to database", "dialect", repository.DetectDatabaseType(cfg.DatabaseURL))

		app, cleanup, err := buildApp(cfg, repository.NewStore(db), logger)
		if err != nil {
			return err
		}
		defer cleanup()

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("identity server listening", "addr", cfg.ServerAddr)
			serverErrors <- app.Listen(cfg.ServerAddr)
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())
			if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// buildApp wires the services over store and mounts them on a fiber app.
func buildApp(cfg *config.Config, store identity.Store, lgr *glog.BaseLogger) (*fiber.App, func(), error) {
	cleanup := func() {}

	hasher, err := identity.NewCredentialHasher(cfg.GlobalSecret)
	if err != nil {
		return nil, cleanup, err
	}

	tokens, err := identity.NewTokenService([]byte(cfg.JWT.SigningKey), cfg.JWT.TTL, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		return nil, cleanup, err
	}
	tokens.WithLogger(lgr.GetLogger("identity.tokens"))

	policy, err := identity.ParseLoginCollisionPolicy(cfg.OAuth.CollisionPolicy)
	if err != nil {
		return nil, cleanup, err
	}

	activity := auditLog(lgr.GetLogger("identity.audit"))

	auth := identity.NewAuthenticator(store, hasher, tokens).
		WithLoggerProvider(lgr).
		WithActivitySink(activity)
	roles := identity.NewRoleService(store).
		WithLoggerProvider(lgr).
		WithActivitySink(activity)

	app := fiber.New(fiber.Config{
		AppName:               "identityd",
		DisableStartupMessage: true,
		ErrorHandler:          identity.NewErrorHandler(lgr.GetLogger("identity.http"), cfg.Debug),
	})

	protect := jwtware.New(jwtware.Config{
		TokenValidator: tokens,
		Logger:         lgr.GetLogger("identity.jwtware"),
	})

	identity.NewHTTPController(auth, roles,
		identity.WithHTTPLogger(lgr.GetLogger("identity.http")),
		identity.WithHTTPDebug(cfg.Debug),
	).RegisterRoutes(app, protect)

	if !cfg.SocialEnabled() {
		return app, cleanup, nil
	}

	reconciler := identity.NewReconciler(store, tokens).
		WithLoggerProvider(lgr).
		WithActivitySink(activity).
		WithCollisionPolicy(policy)

	states, err := social.NewEncryptedStateManager(cfg.GlobalSecret, cfg.OAuth.StateTTL)
	if err != nil {
		return nil, cleanup, err
	}

	opts := []social.SocialAuthOption{social.WithLoggerProvider(lgr)}

	if cfg.Google.Enabled() {
		googleCfg := google.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			CallbackURL:  cfg.Google.CallbackURL,
			Scopes:       cfg.Google.Scopes,
		}
		if cfg.Google.JWKSURL != "" {
			verifier, err := google.NewIDTokenVerifier(cfg.Google.JWKSURL, cfg.Google.ClientID, lgr.GetLogger("identity.google"))
			if err != nil {
				return nil, cleanup, err
			}
			googleCfg.IDTokenVerifier = verifier
			cleanup = verifier.Close
		}
		opts = append(opts, social.WithProvider(google.New(googleCfg)))
	}

	if cfg.GitHub.Enabled() {
		opts = append(opts, social.WithProvider(github.New(github.Config{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			CallbackURL:  cfg.GitHub.CallbackURL,
			Scopes:       cfg.GitHub.Scopes,
		})))
	}

	socialAuth := social.NewSocialAuthenticator(reconciler, states, social.SocialAuthConfig{
		StateTTL:    cfg.OAuth.StateTTL,
		DisablePKCE: cfg.OAuth.DisablePKCE,
	}, opts...)

	social.NewHTTPController(socialAuth, social.HTTPConfig{
		SuccessRedirect: cfg.OAuth.SuccessRedirect,
		FailureRedirect: cfg.OAuth.FailureRedirect,
	}).RegisterRoutes(app)

	return app, cleanup, nil
}

func auditLog(lgr identity.Logger) identity.ActivitySink {
	return identity.ActivitySinkFunc(func(ctx context.Context, event identity.ActivityEvent) error {
		lgr.Info("activity",
			"id", event.ID,
			"event", event.EventType,
			"actor", event.Actor,
			"login", event.Login,
			"provider", event.Provider,
			"metadata", event.Metadata,
		)
		return nil
	})
}

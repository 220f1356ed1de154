package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/virtualgta/go-accounts"
	"github.com/virtualgta/go-accounts/provider/hosted"
	"github.com/virtualgta/go-accounts/provider/local"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, "server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	backend, cleanup, err := newIdentityBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	users := accounts.NewUsersRepository(db)

	sessions := accounts.NewSessionStore(backend,
		accounts.WithSessionLogger(newLogger(cfg.Log, "sessions")),
	)
	if err := sessions.Start(ctx); err != nil {
		// The store keeps polling for a session after a failed initial
		// fetch, so a flaky identity backend does not stop the server.
		logger.Warn("session recovery failed, continuing without a session", "error", err)
	}
	defer sessions.Close()

	profiles := accounts.NewProfileStore(users, sessions,
		accounts.WithProfileLogger(newLogger(cfg.Log, "profiles")),
	)
	profiles.Start()
	defer profiles.Close()

	guard := accounts.NewGuard(sessions, profiles, cfg).
		WithLogger(newLogger(cfg.Log, "guard"))

	flows := accounts.NewFlows(sessions, profiles, backend).
		WithLogger(newLogger(cfg.Log, "flows"))

	engine := django.New("./views", ".html")
	for name, fn := range accounts.TemplateHelpers() {
		engine.AddFunc(name, fn)
	}

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	accounts.RegisterAccountRoutes(srv.Router(),
		accounts.WithControllerLogger(newLogger(cfg.Log, "accounts")),
		accounts.WithControllerStores(sessions, profiles),
		accounts.WithControllerGuard(guard),
		accounts.WithControllerFlows(flows),
		accounts.WithControllerDebug(cfg.Server.Debug),
	)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down", "address", cfg.Server.Address)
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("starting server", "address", cfg.Server.Address, "provider", cfg.Provider.Kind)
	return srv.Serve(cfg.Server.Address)
}

func openDatabase(ctx context.Context, cfg DatabaseConfig) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if err := accounts.CreateUsersTable(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}

	return db, nil
}

func newIdentityBackend(ctx context.Context, cfg *AppConfig) (accounts.Identities, func(), error) {
	switch cfg.Provider.Kind {
	case "hosted":
		opts := []hosted.Option{
			hosted.WithLogger(newLogger(cfg.Log, "hosted")),
			hosted.WithEmailRedirectTo(cfg.GetEmailRedirectTo()),
		}

		cleanup := func() {}
		if cfg.Provider.JWKSURL != "" {
			verifier, err := hosted.NewTokenVerifier(ctx, cfg.Provider.JWKSURL)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, hosted.WithTokenVerifier(verifier))
			cleanup = verifier.Close
		}

		return hosted.New(cfg.Provider.BaseURL, cfg.Provider.APIKey, opts...), cleanup, nil
	case "local", "":
		key := cfg.Provider.APIKey
		if key == "" {
			key = "local-dev-signing-key"
		}
		return local.New([]byte(key)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}

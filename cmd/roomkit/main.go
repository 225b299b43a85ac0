// Roomkit - Cleaning Schedule Service
//
// This is the main entry point for the Roomkit server: an OAuth 2.0
// authorization server and the rooms/zones cleaning-schedule API it
// protects, in one binary over one SQLite database.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jmbarlow/roomkit/migrations"

	"github.com/jmbarlow/roomkit/internal/api"
	"github.com/jmbarlow/roomkit/internal/audit"
	"github.com/jmbarlow/roomkit/internal/auth"
	"github.com/jmbarlow/roomkit/internal/infrastructure/config"
	"github.com/jmbarlow/roomkit/internal/infrastructure/database"
	"github.com/jmbarlow/roomkit/internal/infrastructure/logging"
	"github.com/jmbarlow/roomkit/internal/location"
	"github.com/jmbarlow/roomkit/internal/oauth"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Roomkit", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	clients := oauth.NewClientRepository(db.DB)
	codes := oauth.NewCodeRepository(db.DB)
	tokens := oauth.NewTokenRepository(db.DB)
	users := auth.NewUserRepository(db.DB)
	rooms := location.NewRoomRepository(db.DB)
	zones := location.NewZoneRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Services
	// The token repository doubles as the auth service's session
	// revoker, so a password change kills every outstanding token.
	authSvc := auth.NewService(users, tokens, log.With("component", "auth"))
	recorder := audit.NewRecorder(auditRepo, log.With("component", "audit"))
	oauthSvc := oauth.NewService(
		clients, codes, tokens,
		authSvc, auth.VerifySecret, recorder,
		log.With("component", "oauth"),
		oauth.ServiceConfig{
			AccessTokenTTL:        cfg.OAuth.AccessTokenLifetime(),
			RefreshTokenTTL:       cfg.OAuth.RefreshTokenLifetime(),
			DirectAccessTokenTTL:  cfg.OAuth.DirectAccessTokenLifetime(),
			DirectRefreshTokenTTL: cfg.OAuth.DirectRefreshTokenLifetime(),
			AuthCodeTTL:           cfg.OAuth.AuthCodeLifetime(),
		},
	)

	if err := ensureFirstPartyClient(ctx, clients, log); err != nil {
		return fmt.Errorf("provisioning first-party client: %w", err)
	}

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log.With("component", "api"),
		OAuth:   oauthSvc,
		Auth:    authSvc,
		Clients: clients,
		Rooms:   rooms,
		Zones:   zones,
		Audit:   auditRepo,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ROOMKIT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ROOMKIT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// ensureFirstPartyClient registers the built-in first-party app on first
// run. It is public (PKCE-only) so no secret ever needs distributing; the
// official apps use it for the code and direct flows.
func ensureFirstPartyClient(ctx context.Context, clients oauth.ClientRepository, log *logging.Logger) error {
	const firstPartyID = "roomkit-app"

	_, err := clients.GetByID(ctx, firstPartyID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, oauth.ErrClientNotFound) {
		return err
	}

	client := &oauth.Client{
		ID:           firstPartyID,
		Name:         "Roomkit App",
		RedirectURIs: []string{"roomkit://callback", "http://localhost:8080/callback"},
		GrantTypes: []string{
			string(oauth.GrantAuthorizationCode),
			string(oauth.GrantRefreshToken),
			string(oauth.GrantDirect),
		},
		Scopes:   oauth.DefaultScopes(),
		IsPublic: true,
	}
	if err := clients.Create(ctx, client); err != nil {
		return err
	}

	log.Info("first-party client registered", "client_id", firstPartyID)
	return nil
}

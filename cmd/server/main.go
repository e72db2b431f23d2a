// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/opclink/internal/api"
	"github.com/tomtom215/opclink/internal/auth"
	"github.com/tomtom215/opclink/internal/config"
	"github.com/tomtom215/opclink/internal/logging"
	"github.com/tomtom215/opclink/internal/nodetree"
	"github.com/tomtom215/opclink/internal/scheduler"
	"github.com/tomtom215/opclink/internal/store"
	"github.com/tomtom215/opclink/internal/supervisor"
	"github.com/tomtom215/opclink/internal/supervisor/services"
	ws "github.com/tomtom215/opclink/internal/websocket"
)

func main() {
	issue := flag.String("issue-token", "", "print a signed token for subject:role and exit")
	flag.Parse()

	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	if *issue != "" {
		token, err := issueToken(cfg.Security, *issue)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to issue token")
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("OPCLink stopped with an error")
	}
}

//nolint:gocyclo // Sequential setup steps
func run(cfg *config.Config) error {
	logging.Info().
		Str("store_path", cfg.Store.Path).
		Bool("store_in_memory", cfg.Store.InMemory).
		Str("auth_mode", cfg.Security.AuthMode).
		Str("default_driver", cfg.Driver.Default).
		Msg("Starting OPCLink")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cipher, err := newCredentialCipher(cfg.Security)
	if err != nil {
		return err
	}

	nodes := nodetree.New()
	st, err := store.Open(store.Config{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
		SecretAttributes: []string{
			supervisor.AttrPassword,
			supervisor.SettingPrefix + supervisor.AttrPassword,
		},
	}, nodes, cipher)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing snapshot store")
		}
	}()

	if restored, err := st.Restore(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to restore tree snapshot, starting with an empty tree")
	} else if !restored {
		logging.Info().Msg("No tree snapshot found, starting with an empty tree")
	}

	if err := registerDrivers(cfg.Driver); err != nil {
		return err
	}

	ticker := scheduler.NewTicker()
	link, err := supervisor.NewLink(supervisor.Deps{
		Tree:      nodes,
		Scheduler: ticker,
		Discovery: newDiscoverer(cfg),
		Options: supervisor.Options{
			PingInterval:   cfg.Supervisor.PingInterval,
			MaxPingSkip:    cfg.Supervisor.MaxPingSkip,
			ConnectTimeout: cfg.Supervisor.ConnectTimeout,
			DefaultDriver:  cfg.Driver.Default,
		},
	})
	if err != nil {
		return fmt.Errorf("create connection link: %w", err)
	}

	hub := ws.NewHub(nodes, ws.Limits{
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		Burst:             cfg.WebSocket.Burst,
	})
	publisher := newEventPublisher(cfg.NATS, nodes)

	authMW, err := newAuthMiddleware(cfg.Security)
	if err != nil {
		return err
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	handler := api.NewHandler(link, hub, cfg)
	router := api.NewRouter(handler, authMW, api.NewChiMiddlewareFromConfig(cfg.Security))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	procTree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	// === ADD SERVICES TO SUPERVISOR TREE ===

	procTree.AddCoreService(ticker)
	procTree.AddCoreService(services.NewLinkService(link))
	procTree.AddCoreService(services.NewSnapshotService(st, cfg.Store.SnapshotInterval))

	procTree.AddMessagingService(services.NewWebSocketHubService(hub))
	if publisher != nil {
		procTree.AddMessagingService(services.NewEventsService(publisher, cfg.NATS.ShutdownTimeout))
		logging.Info().Str("subject_prefix", cfg.NATS.SubjectPrefix).Msg("NATS value publisher added to supervisor tree")
	}

	procTree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := procTree.ServeBackground(ctx)

	// Connections are restored with the scheduler already supervised, so a
	// slow server only delays readiness.
	link.Init(ctx)
	handler.SetReady(true)
	logging.Info().
		Int("connections", len(link.Endpoints())).
		Int("servers", len(link.Supervisors())).
		Msg("OPCLink ready")

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}
	handler.SetReady(false)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := procTree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	// Every supervisor is stopped by now; persist what they left behind.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err := st.SaveSnapshot(saveCtx); err != nil {
		logging.Error().Err(err).Msg("Final tree snapshot failed")
	}

	logging.Info().Msg("Application stopped gracefully")
	return nil
}

// newCredentialCipher returns the cipher for stored endpoint passwords, or
// nil when no secret is configured.
func newCredentialCipher(sec config.SecurityConfig) (store.Cipher, error) {
	secret := sec.EncryptionSecret()
	if secret == "" {
		return nil, nil
	}
	enc, err := config.NewCredentialEncryptor(secret)
	if err != nil {
		return nil, fmt.Errorf("credential encryption: %w", err)
	}
	if err := enc.ValidateEncryptionSetup(); err != nil {
		return nil, fmt.Errorf("credential encryption: %w", err)
	}
	return enc, nil
}

func newAuthMiddleware(sec config.SecurityConfig) (*auth.Middleware, error) {
	if sec.AuthMode != "jwt" {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: Authentication is DISABLED (AUTH_MODE=none)")
		logging.Warn().Msg("  Anyone who can reach the API can edit connections and write values.")
		logging.Warn().Msg("============================================================")
		return auth.NewMiddleware(nil), nil
	}
	jwtManager, err := auth.NewJWTManager(sec.JWTSecret, sec.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("initialize JWT manager: %w", err)
	}
	logging.Info().Dur("token_ttl", sec.TokenTTL).Msg("JWT authentication enabled")
	return auth.NewMiddleware(jwtManager), nil
}

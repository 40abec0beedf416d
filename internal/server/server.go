// Package server provides the main application server.
package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/reelvault/reelvault/internal/auth"
	"github.com/reelvault/reelvault/internal/catalog"
	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/debrid"
	"github.com/reelvault/reelvault/internal/diskspace"
	"github.com/reelvault/reelvault/internal/events"
	"github.com/reelvault/reelvault/internal/orchestrator"
	"github.com/reelvault/reelvault/internal/store"
	"github.com/reelvault/reelvault/internal/transfer"
)

// Options holds additional server options not in config.
type Options struct {
	// Logger
	Logger zerolog.Logger
}

// Server is the main application server. It wires the record store, event
// bus, disk accountant, catalog matcher, token-exchange client, transfer
// engine and orchestrator together and exposes them over HTTP.
type Server struct {
	cfg        config.Config
	httpServer *HTTPServer
	st         *store.Store
	bus        *events.Bus
	logger     zerolog.Logger
}

// New creates a new server with the given configuration.
func New(cfg config.Config, opts Options) (*Server, error) {
	logger := opts.Logger

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	bus := events.New(
		events.WithLogger(logger.With().Str("component", "events").Logger()),
	)

	accountant := diskspace.New(
		cfg.Downloads.Volume,
		cfg.Downloads.Dir,
		diskspace.WithLogger(logger.With().Str("component", "diskspace").Logger()),
	)

	// The catalog is an optional capability: without an API key every
	// lookup degrades to "no match" instead of branching at call sites.
	var matcher catalog.Matcher
	if cfg.Catalog.APIKey != "" {
		matcher = catalog.NewTMDB(
			cfg.Catalog.APIKey,
			cfg.Catalog.BaseURL,
			catalog.WithLogger(logger.With().Str("component", "catalog").Logger()),
		)
	} else {
		logger.Warn().Msg("catalog api key not configured - metadata enrichment disabled")
		matcher = catalog.NewNoop()
	}

	debridClient, err := debrid.New(
		cfg.Debrid.Endpoint,
		cfg.Debrid.APIKey,
		debrid.WithLogger(logger.With().Str("component", "debrid").Logger()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure token exchange: %w", err)
	}

	engine, err := transfer.New(
		st,
		bus,
		matcher,
		accountant,
		cfg.Downloads.Dir,
		transfer.WithLogger(logger.With().Str("component", "transfer").Logger()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer engine: %w", err)
	}

	orch := orchestrator.New(
		st,
		bus,
		debridClient,
		engine,
		orchestrator.WithLogger(logger.With().Str("component", "orchestrator").Logger()),
	)

	httpOpts := []HTTPOption{
		WithHTTPLogger(logger.With().Str("component", "http").Logger()),
	}

	if cfg.Auth.JWTSecret != "" {
		httpOpts = append(httpOpts, WithVerifier(auth.NewHMAC(cfg.Auth.JWTSecret)))
	} else {
		logger.Warn().Msg("auth secret not configured - api is open")
	}

	httpServer := NewHTTPServer(st, bus, accountant, orch, httpOpts...)

	return &Server{
		cfg:        cfg,
		httpServer: httpServer,
		st:         st,
		bus:        bus,
		logger:     logger,
	}, nil
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().
		Str("listen", s.cfg.Server.Listen).
		Str("downloads_dir", s.cfg.Downloads.Dir).
		Str("volume", s.cfg.Downloads.Volume).
		Msg("starting reelvault")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Start(s.cfg.Server.Listen); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server. In-flight transfers are
// abandoned with the process; there is no cancellation protocol.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("server shutdown error")
	}

	s.bus.Close()

	if err := s.st.Close(); err != nil {
		s.logger.Error().Err(err).Msg("store close error")
	}

	s.logger.Info().Msg("shutdown complete")
	return nil
}
